// Package collect gathers the newest PDF price list from each chat in the
// collection folder and drives the extract, scrape and publish chain.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"

	"github.com/dgallion1/pricebot/internal/metrics"
	"github.com/dgallion1/pricebot/internal/telegram"
)

// Chats is the slice of the chat transport collection needs.
type Chats interface {
	GetChat(ctx context.Context, chatID int64) (telegram.Chat, error)
	History(ctx context.Context, chatID int64, limit int) ([]telegram.Message, error)
	Download(ctx context.Context, fileID, dst string) error
}

// Keywords matches filenames against a fixed keyword list, case-insensitively.
type Keywords struct {
	words   []string
	matcher *ahocorasick.Matcher
}

func NewKeywords(words []string) *Keywords {
	lower := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lower = append(lower, w)
		}
	}
	return &Keywords{words: lower, matcher: ahocorasick.NewStringMatcher(lower)}
}

// Match returns the first keyword found in name.
func (k *Keywords) Match(name string) (string, bool) {
	if len(k.words) == 0 {
		return "", false
	}
	hits := k.matcher.Match([]byte(strings.ToLower(name)))
	if len(hits) == 0 {
		return "", false
	}
	return k.words[hits[0]], true
}

// Outcome is the per-chat result of a collection pass.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeNone    Outcome = "none"
	OutcomeError   Outcome = "error"
)

// File is one downloaded attachment.
type File struct {
	Name string
	Path string
	Date time.Time
	From string
}

// ChatResult records what happened in one chat.
type ChatResult struct {
	ChatID  int64
	Name    string
	Outcome Outcome
	Files   []File
	Err     string
}

// Result aggregates a collection pass.
type Result struct {
	Dir     string
	Started time.Time
	Scanned int
	Chats   []ChatResult
}

// Files lists every downloaded file in chat order.
func (r Result) Files() []File {
	var out []File
	for _, c := range r.Chats {
		out = append(out, c.Files...)
	}
	return out
}

// Paths lists the saved paths of every downloaded file.
func (r Result) Paths() []string {
	var out []string
	for _, f := range r.Files() {
		out = append(out, f.Path)
	}
	return out
}

// ChatsWithFiles counts chats that produced a download.
func (r Result) ChatsWithFiles() int {
	n := 0
	for _, c := range r.Chats {
		if c.Outcome == OutcomeSuccess {
			n++
		}
	}
	return n
}

// Options tune a Collector.
type Options struct {
	Keywords     []string
	Exempt       []string // chat ids or titles that skip the keyword check
	HistoryLimit int
}

// Collector scans chats for price-list PDFs.
type Collector struct {
	chats    Chats
	keywords *Keywords
	exempt   map[string]bool
	limit    int
	log      *slog.Logger

	// Progress, if set, is called before each chat is scanned.
	Progress func(chatName string)
}

func NewCollector(chats Chats, opts Options, log *slog.Logger) *Collector {
	exempt := make(map[string]bool, len(opts.Exempt))
	for _, e := range opts.Exempt {
		exempt[strings.ToLower(strings.TrimSpace(e))] = true
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = 100
	}
	return &Collector{
		chats:    chats,
		keywords: NewKeywords(opts.Keywords),
		exempt:   exempt,
		limit:    limit,
		log:      log,
	}
}

// NewRunDir returns the collection directory for a run started at t.
func NewRunDir(base string, t time.Time) string {
	return filepath.Join(base, "collection_"+t.Format("20060102_150405"))
}

// Collect downloads the newest matching PDF of every chat into dir. A
// failing chat is recorded and does not stop the others.
func (c *Collector) Collect(ctx context.Context, chatIDs []int64, dir string) (Result, error) {
	res := Result{Dir: dir, Started: time.Now(), Scanned: len(chatIDs)}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("create collection dir: %w", err)
	}

	for _, id := range chatIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cr := c.collectChat(ctx, id, dir)
		res.Chats = append(res.Chats, cr)
		if cr.Outcome == OutcomeSuccess {
			metrics.CollectedFiles.Add(float64(len(cr.Files)))
		}
	}
	c.log.Info("collection finished", "dir", dir, "chats", len(chatIDs), "files", len(res.Files()))
	return res, nil
}

func (c *Collector) collectChat(ctx context.Context, chatID int64, dir string) ChatResult {
	log := c.log.With("chat_id", chatID)
	cr := ChatResult{ChatID: chatID, Name: fmt.Sprintf("Chat %d", chatID)}

	chat, err := c.chats.GetChat(ctx, chatID)
	if err != nil {
		log.Error("get chat failed", "error", err)
		cr.Outcome, cr.Err = OutcomeError, err.Error()
		return cr
	}
	if name := chat.Name(); name != "" {
		cr.Name = name
	}
	if c.Progress != nil {
		c.Progress(cr.Name)
	}

	history, err := c.chats.History(ctx, chatID, c.limit)
	if err != nil {
		log.Error("history failed", "error", err)
		cr.Outcome, cr.Err = OutcomeError, err.Error()
		return cr
	}

	latest, ok := c.Newest(chat, history)
	if !ok {
		log.Info("no matching pdf", "chat", cr.Name)
		cr.Outcome = OutcomeNone
		return cr
	}

	path := filepath.Join(dir, FileName(chat))
	if err := c.chats.Download(ctx, latest.Document.FileID, path); err != nil {
		log.Error("download failed", "file", latest.Document.FileName, "error", err)
		cr.Outcome, cr.Err = OutcomeError, err.Error()
		return cr
	}
	from := "Unknown"
	if latest.From != nil && latest.From.FirstName != "" {
		from = latest.From.FirstName
	}
	log.Info("pdf collected", "file", latest.Document.FileName, "path", path)
	cr.Outcome = OutcomeSuccess
	cr.Files = []File{{
		Name: latest.Document.FileName,
		Path: path,
		Date: time.Unix(latest.Date, 0),
		From: from,
	}}
	return cr
}

// Newest picks the most recently dated PDF document whose filename matches
// a keyword. Exempt chats accept any PDF.
func (c *Collector) Newest(chat telegram.Chat, history []telegram.Message) (telegram.Message, bool) {
	exempt := c.isExempt(chat)
	var best telegram.Message
	found := false
	for _, m := range history {
		if m.Document == nil || !strings.HasSuffix(strings.ToLower(m.Document.FileName), ".pdf") {
			continue
		}
		if !exempt {
			if _, ok := c.keywords.Match(m.Document.FileName); !ok {
				continue
			}
		}
		if !found || m.Date > best.Date {
			best, found = m, true
		}
	}
	return best, found
}

func (c *Collector) isExempt(chat telegram.Chat) bool {
	if len(c.exempt) == 0 {
		return false
	}
	return c.exempt[strconv.FormatInt(chat.ID, 10)] || c.exempt[strings.ToLower(chat.Title)]
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}_\-. ]`)

// FileName is the saved name of a chat's price list: its sanitized title,
// or its id when untitled.
func FileName(chat telegram.Chat) string {
	title := chat.Title
	if title == "" {
		title = strconv.FormatInt(chat.ID, 10)
	}
	return unsafeName.ReplaceAllString(title, "_") + ".pdf"
}
