package collect

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dgallion1/pricebot/internal/pipeline"
	"github.com/dgallion1/pricebot/internal/telegram"
)

// BatchSize is how many collected files go into one album reply.
const BatchSize = 5

const (
	deniedText    = "❌ У вас нет прав на выполнение этой команды. Доступ только для администраторов."
	queueFullText = "❌ Сбор уже выполняется, очередь заполнена. Попробуйте позже."
)

// Messenger is the chat surface the collect command replies through.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	SendDocuments(ctx context.Context, chatID int64, paths []string) error
}

// Submitter queues runs.
type Submitter interface {
	Submit(run *pipeline.Run) error
}

// Command handles /collect and /сбор from chat.
type Command struct {
	msgr    Messenger
	service *Service
	runs    Submitter
	folders telegram.Folders
	admins  string
	log     *slog.Logger
}

func NewCommand(msgr Messenger, service *Service, runs Submitter, folders telegram.Folders, adminsFolder string, log *slog.Logger) *Command {
	return &Command{
		msgr:    msgr,
		service: service,
		runs:    runs,
		folders: folders,
		admins:  adminsFolder,
		log:     log,
	}
}

// IsCommand reports whether text invokes collection, with or without a
// trailing @botname.
func IsCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd == "/collect" || cmd == "/сбор"
}

// Allowed reports whether the sender is listed in the admins folder.
func (c *Command) Allowed(msg telegram.Message) bool {
	if msg.From == nil {
		return false
	}
	folder, ok := c.folders.Find(c.admins)
	if !ok {
		c.log.Warn("admins folder not found", "folder", c.admins)
		return false
	}
	return folder.Contains(msg.From.ID)
}

// Handle is a telegram.Handler.
func (c *Command) Handle(ctx context.Context, msg telegram.Message) {
	if !IsCommand(msg.Text) {
		return
	}
	log := c.log.With("chat_id", msg.Chat.ID, "user_id", msg.SenderID())
	if msg.Chat.Type == telegram.ChatChannel {
		return
	}
	if !c.Allowed(msg) {
		log.Warn("collect denied")
		c.reply(ctx, msg.Chat.ID, deniedText)
		return
	}

	run := pipeline.NewRun(pipeline.TriggerChat)
	w := &chatWatcher{msgr: c.msgr, chatID: msg.Chat.ID, log: log}
	stop := c.service.Watch(run.ID, w)
	if err := c.runs.Submit(run); err != nil {
		stop()
		log.Error("collect not queued", "error", err)
		if errors.Is(err, pipeline.ErrQueueFull) {
			c.reply(ctx, msg.Chat.ID, queueFullText)
		}
		return
	}
	log.Info("collect queued", "run_id", run.ID)
}

func (c *Command) reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.msgr.SendMessage(ctx, chatID, text); err != nil {
		c.log.Error("reply failed", "chat_id", chatID, "error", err)
	}
}

// chatWatcher keeps one status message per phase, editing it in place.
// After the files are sent back the next status starts a new message below
// them.
type chatWatcher struct {
	msgr   Messenger
	chatID int64
	log    *slog.Logger

	mu    sync.Mutex
	msgID int64
	last  string
}

func (w *chatWatcher) Status(ctx context.Context, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.msgID == 0 {
		m, err := w.msgr.SendMessage(ctx, w.chatID, text)
		if err != nil {
			w.log.Error("status send failed", "error", err)
			return
		}
		w.msgID, w.last = m.ID, text
		return
	}
	if text == w.last {
		return
	}
	if err := w.msgr.EditMessageText(ctx, w.chatID, w.msgID, text); err != nil {
		w.log.Error("status edit failed", "error", err)
		return
	}
	w.last = text
}

func (w *chatWatcher) Collected(ctx context.Context, res Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for batch := range slices.Chunk(res.Paths(), BatchSize) {
		if err := w.msgr.SendDocuments(ctx, w.chatID, batch); err != nil {
			w.log.Error("sending files failed", "files", len(batch), "error", err)
		}
	}
	w.msgID, w.last = 0, ""
}
