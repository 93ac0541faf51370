package collect

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
)

// ReportName is the report file written into every collection directory.
const ReportName = "collection_report.txt"

// Report renders the plain-text collection report.
func Report(res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Отчет о сборе PDF файлов от %s\n", res.Started.Format("20060102_150405"))
	fmt.Fprintf(&b, "Всего собрано файлов: %d\n", len(res.Files()))
	fmt.Fprintf(&b, "Чатов с файлами: %d из %d\n\n", res.ChatsWithFiles(), res.Scanned)

	for _, c := range res.Chats {
		if c.Outcome == OutcomeNone {
			continue
		}
		fmt.Fprintf(&b, "== Чат: %s (ID: %d) ==\n", c.Name, c.ChatID)
		if c.Outcome == OutcomeError {
			fmt.Fprintf(&b, "  Ошибка: %s\n", c.Err)
			continue
		}
		fmt.Fprintf(&b, "  Найдено файлов: %d\n", len(c.Files))
		for i, f := range c.Files {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, f.Name)
			fmt.Fprintf(&b, "     Дата сообщения: %s\n", f.Date.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(&b, "     От пользователя: %s\n", f.From)
			fmt.Fprintf(&b, "     Путь: %s\n", f.Path)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteReport writes the report into dir and returns its path.
func WriteReport(dir, report string) (string, error) {
	path := filepath.Join(dir, ReportName)
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Summary is the chat message sent when collection finishes.
func Summary(res Result) string {
	files := len(res.Files())
	if files == 0 {
		return fmt.Sprintf("📊 Сбор PDF файлов завершен!\n\nPDF файлы не найдены в доступных чатах.\nОбработано чатов: %d", res.Scanned)
	}
	return fmt.Sprintf("📊 Сбор PDF файлов завершен!\n\nВсего найдено файлов: %d\nЧатов с файлами: %d из %d\nФайлы сохранены в директории: %s",
		files, res.ChatsWithFiles(), res.Scanned, res.Dir)
}

// ReportHTML renders a plain-text report as HTML.
func ReportHTML(report string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(reportMarkdown(report)), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// reportMarkdown maps the report layout onto Markdown: chat blocks become
// headings, files become an ordered list with their details nested.
func reportMarkdown(report string) string {
	var b strings.Builder
	header := true
	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			header = false
			b.WriteString("\n")
		case strings.HasPrefix(trimmed, "== ") && strings.HasSuffix(trimmed, " =="):
			header = false
			fmt.Fprintf(&b, "## %s\n\n", strings.TrimSuffix(strings.TrimPrefix(trimmed, "== "), " =="))
		case header:
			fmt.Fprintf(&b, "%s  \n", trimmed)
		case strings.HasPrefix(line, "     "):
			key, value, ok := strings.Cut(trimmed, ": ")
			if ok {
				fmt.Fprintf(&b, "   - %s: `%s`\n", key, value)
			} else {
				fmt.Fprintf(&b, "   - %s\n", trimmed)
			}
		case isListItem(trimmed):
			fmt.Fprintf(&b, "%s\n", trimmed)
		default:
			fmt.Fprintf(&b, "%s\n\n", trimmed)
		}
	}
	return b.String()
}

func isListItem(s string) bool {
	num, _, ok := strings.Cut(s, ". ")
	if !ok || num == "" {
		return false
	}
	for _, r := range num {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
