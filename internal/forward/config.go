package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgallion1/pricebot/internal/telegram"
)

// ChatInfo is the display metadata kept for each configured chat.
type ChatInfo struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Type     string `json:"type"`
}

// Config maps source chats to their destinations. Map keys are written as
// decimal strings in JSON.
type Config struct {
	SourceChatIDs []int64            `json:"source_chat_ids"`
	Routes        map[int64][]int64  `json:"forwarding_config"`
	ChatInfo      map[int64]ChatInfo `json:"chat_info"`
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := Config{
		SourceChatIDs: slices.Clone(c.SourceChatIDs),
		Routes:        make(map[int64][]int64, len(c.Routes)),
		ChatInfo:      make(map[int64]ChatInfo, len(c.ChatInfo)),
	}
	for k, v := range c.Routes {
		out.Routes[k] = slices.Clone(v)
	}
	for k, v := range c.ChatInfo {
		out.ChatInfo[k] = v
	}
	return out
}

// Empty reports whether no route is configured.
func (c Config) Empty() bool {
	return len(c.Routes) == 0
}

// IsSource reports whether messages from chatID are forwarded.
func (c Config) IsSource(chatID int64) bool {
	return len(c.Routes[chatID]) > 0
}

// Destinations returns the distinct destinations of a source in configured
// order, never including the source itself.
func (c Config) Destinations(source int64) []int64 {
	var out []int64
	for _, d := range c.Routes[source] {
		if d != source && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// Prefix is the attribution line prepended to copied messages.
func (c Config) Prefix(source int64) string {
	label := ""
	if info, ok := c.ChatInfo[source]; ok {
		switch {
		case info.Username != "":
			label = "@" + info.Username
		case info.Type != "":
			label = fmt.Sprintf("%s %d", info.Type, source)
		}
	}
	if label == "" {
		label = fmt.Sprintf("Чат %d", source)
	}
	return "📨 Переслано из: " + label + "\n\n"
}

// Describe renders the routes for humans, one source per line.
func (c Config) Describe() string {
	var b strings.Builder
	for _, src := range c.SourceChatIDs {
		dests := c.Destinations(src)
		if len(dests) == 0 {
			continue
		}
		names := make([]string, len(dests))
		for i, d := range dests {
			names[i] = c.label(d)
		}
		fmt.Fprintf(&b, "Из чата %s в чаты: %s\n", c.label(src), strings.Join(names, ", "))
	}
	return b.String()
}

func (c Config) label(id int64) string {
	info, ok := c.ChatInfo[id]
	if !ok {
		return fmt.Sprintf("Чат %d", id)
	}
	name := info.Name
	if name == "" {
		name = fmt.Sprint(id)
	}
	if info.Username != "" {
		name += " (@" + info.Username + ")"
	}
	if info.Type != "" {
		name += " [тип: " + info.Type + "]"
	}
	return name
}

// ChatInfoFrom builds display metadata from a chat.
func ChatInfoFrom(chat telegram.Chat) ChatInfo {
	return ChatInfo{Name: chat.Name(), Username: chat.Username, Type: strings.ToUpper(chat.Type)}
}

// ChatLister is the part of the transport the store needs to check access.
type ChatLister interface {
	Dialogs(ctx context.Context) ([]telegram.Chat, error)
	GetChat(ctx context.Context, chatID int64) (telegram.Chat, error)
}

// ConfigStore persists a Config as JSON.
type ConfigStore struct {
	path string
	log  *slog.Logger
}

func NewConfigStore(path string, log *slog.Logger) *ConfigStore {
	return &ConfigStore{path: path, log: log}
}

// Path returns the backing file.
func (s *ConfigStore) Path() string {
	return s.path
}

// Save writes cfg atomically.
func (s *ConfigStore) Save(cfg Config) error {
	if cfg.SourceChatIDs == nil {
		cfg.SourceChatIDs = []int64{}
	}
	if cfg.Routes == nil {
		cfg.Routes = map[int64][]int64{}
	}
	if cfg.ChatInfo == nil {
		cfg.ChatInfo = map[int64]ChatInfo{}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal forwarding config: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".forwarding-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write forwarding config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace forwarding config: %w", err)
	}
	return nil
}

// Load reads the saved config. found is false when the file does not exist.
func (s *ConfigStore) Load() (cfg Config, found bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, fmt.Errorf("read forwarding config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("parse forwarding config: %w", err)
	}
	if cfg.Routes == nil {
		cfg.Routes = map[int64][]int64{}
	}
	if cfg.ChatInfo == nil {
		cfg.ChatInfo = map[int64]ChatInfo{}
	}
	return cfg, true, nil
}

// Validate checks that every configured chat is reachable, drops the ones
// that are not along with sources left without destinations, refreshes chat
// metadata and saves the result.
func (s *ConfigStore) Validate(ctx context.Context, lister ChatLister, cfg Config) (Config, error) {
	out := cfg.Clone()
	known := map[int64]bool{}

	dialogs, err := lister.Dialogs(ctx)
	if err != nil {
		s.log.Warn("list dialogs failed, checking chats one by one", "error", err)
	}
	for _, chat := range dialogs {
		known[chat.ID] = true
		out.ChatInfo[chat.ID] = ChatInfoFrom(chat)
	}

	all := slices.Clone(out.SourceChatIDs)
	for src, dests := range out.Routes {
		all = append(all, src)
		all = append(all, dests...)
	}
	bad := map[int64]bool{}
	for _, id := range all {
		if known[id] || bad[id] {
			continue
		}
		chat, err := lister.GetChat(ctx, id)
		if err != nil {
			s.log.Warn("chat not accessible", "chat_id", id, "error", err)
			bad[id] = true
			continue
		}
		known[id] = true
		out.ChatInfo[id] = ChatInfoFrom(chat)
	}

	for src, dests := range out.Routes {
		if bad[src] {
			delete(out.Routes, src)
			s.log.Info("source removed (not accessible)", "chat_id", src)
			continue
		}
		kept := slices.DeleteFunc(dests, func(d int64) bool { return bad[d] })
		if len(kept) == 0 {
			delete(out.Routes, src)
			s.log.Info("source removed (no accessible destinations)", "chat_id", src)
			continue
		}
		out.Routes[src] = kept
	}
	out.SourceChatIDs = slices.DeleteFunc(out.SourceChatIDs, func(id int64) bool {
		return len(out.Routes[id]) == 0
	})

	if err := s.Save(out); err != nil {
		return out, err
	}
	return out, nil
}
