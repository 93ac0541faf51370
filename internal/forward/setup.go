package forward

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/dgallion1/pricebot/internal/telegram"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
)

// Candidates resolves the chats of a folder, skipping ones the bot cannot
// read.
func Candidates(ctx context.Context, lister ChatLister, folder telegram.Folder) []telegram.Chat {
	var out []telegram.Chat
	for _, id := range folder.ChatIDs() {
		chat, err := lister.GetChat(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, chat)
	}
	return out
}

func typeName(t string) string {
	switch t {
	case telegram.ChatGroup, telegram.ChatSupergroup:
		return "Группа"
	case telegram.ChatPrivate:
		return "Личный чат"
	case telegram.ChatChannel:
		return "Канал"
	}
	return "UNKNOWN"
}

// InteractiveSetup asks which chats to forward from and, for each, which
// chats to forward to. Selections are comma-separated 1-based numbers.
func InteractiveSetup(in io.Reader, out io.Writer, folder string, chats []telegram.Chat) (Config, error) {
	cfg := Config{Routes: map[int64][]int64{}, ChatInfo: map[int64]ChatInfo{}}
	r := bufio.NewReader(in)

	heading.Fprintln(out, "\n=== Настройка пересылки сообщений из папки ===")
	fmt.Fprintf(out, "Доступные диалоги из папки '%s':\n", folder)
	for i, c := range chats {
		fmt.Fprintf(out, "[%d] %s (%s) - ID: %d\n", i+1, c.Name(), typeName(c.Type), c.ID)
		cfg.ChatInfo[c.ID] = ChatInfoFrom(c)
	}

	fmt.Fprintln(out, "\nВыберите номера чатов, ИЗ которых нужно пересылать сообщения (введите номера через запятую):")
	sources, err := readSelection(r, out, len(chats))
	if err != nil {
		return cfg, err
	}
	if len(sources) == 0 {
		warning.Fprintln(out, "Вы не выбрали ни одного чата для пересылки.")
		return cfg, nil
	}

	for _, si := range sources {
		src := chats[si]
		fmt.Fprintf(out, "\nВыберите номера чатов, В которые нужно пересылать сообщения из %s (введите номера через запятую):\n", src.Name())
		dests, err := readSelection(r, out, len(chats))
		if err != nil {
			return cfg, err
		}
		var ids []int64
		for _, di := range dests {
			if id := chats[di].ID; id != src.ID {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		cfg.SourceChatIDs = append(cfg.SourceChatIDs, src.ID)
		cfg.Routes[src.ID] = ids
		success.Fprintf(out, "Пересылка из %s настроена в %d чат(ов)\n", src.Name(), len(ids))
	}
	return cfg, nil
}

// readSelection reads one line of numbers, ignoring anything out of range.
// EOF after a partial line is accepted.
func readSelection(r *bufio.Reader, out io.Writer, n int) ([]int, error) {
	fmt.Fprint(out, "> ")
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	var picked []int
	seen := map[int]bool{}
	for _, part := range strings.Split(line, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || i < 1 || i > n || seen[i] {
			continue
		}
		seen[i] = true
		picked = append(picked, i-1)
	}
	return picked, nil
}
