package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/dgallion1/pricebot/internal/metrics"
	"github.com/dgallion1/pricebot/internal/retry"
)

// MaxMessageLength is the Bot API limit for message text, in runes.
const MaxMessageLength = 4096

// MaxMediaGroup is the largest album sendMediaGroup accepts.
const MaxMediaGroup = 10

// Options configures a Client.
type Options struct {
	BaseURL  string
	Token    string
	Rate     float64 // requests per second
	Timeout  time.Duration
	Poll     time.Duration // getUpdates long-poll
	Attempts int
}

// Client wraps the Bot API with pacing, retries of transient failures and
// the local journal.
type Client struct {
	bot        *bot.Bot
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   int

	journal *Journal
	folders Folders
	log     *slog.Logger
}

func NewClient(opts Options, journal *Journal, folders Folders, log *slog.Logger) (*Client, error) {
	if opts.Rate <= 0 {
		opts.Rate = 25
	}
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Second
	}
	if opts.Timeout <= opts.Poll {
		opts.Timeout = opts.Poll + 35*time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = retry.MaxRetries
	}
	httpClient := &http.Client{Timeout: opts.Timeout}

	botOpts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(opts.Poll, statusRecorder{client: httpClient}),
		bot.WithAllowedUpdates(bot.AllowedUpdates{"message", "channel_post"}),
		bot.WithNotAsyncHandlers(),
		bot.WithDefaultHandler(func(context.Context, *bot.Bot, *models.Update) {}),
		bot.WithErrorsHandler(func(err error) {
			log.Warn("bot api error", "error", err)
		}),
	}
	if opts.BaseURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(opts.BaseURL))
	}
	b, err := bot.New(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	return &Client{
		bot:        b,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.Rate), 1),
		attempts:   opts.Attempts,
		journal:    journal,
		folders:    folders,
		log:        log,
	}, nil
}

type statusKey struct{}

// statusRecorder stores the HTTP status of a response in the slot carried
// by the request context. The bot library reports 5xx replies as plain
// errors, so the status is what marks them transient.
type statusRecorder struct {
	client *http.Client
}

func (s statusRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := s.client.Do(req)
	if slot, ok := req.Context().Value(statusKey{}).(*int); ok && resp != nil {
		*slot = resp.StatusCode
	}
	return resp, err
}

// do paces, retries transient failures and records latency.
func (c *Client) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.attempts, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		status := 0
		start := time.Now()
		err := apiError(method, fn(context.WithValue(ctx, statusKey{}, &status)))
		metrics.TelegramRequests.WithLabelValues(method, outcome(err)).Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case status == 0 || status >= 500:
			// no response at all, or a server-side failure
			return retry.Transient(err)
		}
		return err
	})
}

var statusErrors = []struct {
	code int
	err  error
}{
	{400, bot.ErrorBadRequest},
	{401, bot.ErrorUnauthorized},
	{403, bot.ErrorForbidden},
	{404, bot.ErrorNotFound},
	{409, bot.ErrorConflict},
}

// apiError turns the library's errors into *APIError.
func apiError(method string, err error) error {
	if err == nil {
		return nil
	}
	var flood *bot.TooManyRequestsError
	if errors.As(err, &flood) {
		return &APIError{
			Method:      method,
			Code:        http.StatusTooManyRequests,
			Description: flood.Message,
			RetryAfter:  time.Duration(flood.RetryAfter) * time.Second,
		}
	}
	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return &APIError{Method: method, Code: http.StatusBadRequest, Description: migrate.Message}
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return &APIError{Method: method, Code: se.code, Description: err.Error()}
		}
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr) && apiErr.RateLimited():
		return "rate_limited"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "error"
	}
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var u *models.User
	err := c.do(ctx, "getMe", func(ctx context.Context) error {
		var err error
		u, err = c.bot.GetMe(ctx)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return fromUser(u), nil
}

// GetChat returns chat metadata; an error means the bot cannot access it.
func (c *Client) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	var info *models.ChatFullInfo
	err := c.do(ctx, "getChat", func(ctx context.Context) error {
		var err error
		info, err = c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
		return err
	})
	if err != nil {
		return Chat{}, err
	}
	chat := Chat{
		ID:        info.ID,
		Type:      string(info.Type),
		Title:     info.Title,
		Username:  info.Username,
		FirstName: info.FirstName,
		LastName:  info.LastName,
	}
	if c.journal != nil {
		if err := c.journal.RememberChat(chat); err != nil {
			c.log.Warn("journal chat failed", "chat_id", chatID, "error", err)
		}
	}
	return chat, nil
}

func intIDs(ids []int64) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

// ForwardMessages forwards ids from one chat to another as a single call,
// which keeps albums grouped.
func (c *Client) ForwardMessages(ctx context.Context, to, from int64, ids []int64) error {
	return c.do(ctx, "forwardMessages", func(ctx context.Context) error {
		_, err := c.bot.ForwardMessages(ctx, &bot.ForwardMessagesParams{
			ChatID:     to,
			FromChatID: from,
			MessageIDs: intIDs(ids),
		})
		return err
	})
}

// CopyMessages copies ids without the forward header.
func (c *Client) CopyMessages(ctx context.Context, to, from int64, ids []int64) error {
	return c.do(ctx, "copyMessages", func(ctx context.Context) error {
		_, err := c.bot.CopyMessages(ctx, &bot.CopyMessagesParams{
			ChatID:     to,
			FromChatID: from,
			MessageIDs: intIDs(ids),
		})
		return err
	})
}

// CopyMessage copies one message. A non-nil caption replaces the original.
func (c *Client) CopyMessage(ctx context.Context, to, from, id int64, caption *string) error {
	params := &bot.CopyMessageParams{ChatID: to, FromChatID: from, MessageID: int(id)}
	if caption != nil {
		params.Caption = truncate(*caption, MaxCaptionLength)
	}
	return c.do(ctx, "copyMessage", func(ctx context.Context) error {
		_, err := c.bot.CopyMessage(ctx, params)
		return err
	})
}

// MaxCaptionLength is the Bot API limit for media captions, in runes.
const MaxCaptionLength = 1024

// SendMessage sends text, truncated to MaxMessageLength.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (Message, error) {
	var msg *models.Message
	err := c.do(ctx, "sendMessage", func(ctx context.Context) error {
		var err error
		msg, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   truncate(text, MaxMessageLength),
		})
		return err
	})
	if err != nil {
		return Message{}, err
	}
	return fromMessage(msg), nil
}

// EditMessageText replaces the text of a message the bot sent.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.do(ctx, "editMessageText", func(ctx context.Context) error {
		_, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: int(messageID),
			Text:      truncate(text, MaxMessageLength),
		})
		return err
	})
}

// Download fetches a file by id into dst, replacing it.
func (c *Client) Download(ctx context.Context, fileID, dst string) error {
	var f *models.File
	err := c.do(ctx, "getFile", func(ctx context.Context) error {
		var err error
		f, err = c.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
		return err
	})
	if err != nil {
		return err
	}
	if f.FilePath == "" {
		return fmt.Errorf("getFile %s: empty file_path", fileID)
	}
	u := c.bot.FileDownloadLink(f)
	return retry.Do(ctx, c.attempts, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.Transient(fmt.Errorf("download %s: %w", f.FilePath, err))
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("download %s: status %d: %s", f.FilePath, resp.StatusCode, string(respBody))
			if resp.StatusCode >= 500 {
				return retry.Transient(err)
			}
			return err
		}
		return writeFile(dst, resp.Body)
	})
}

func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// SendDocuments uploads files as one album (sendMediaGroup), or as a single
// document when there is only one. At most MaxMediaGroup paths.
func (c *Client) SendDocuments(ctx context.Context, chatID int64, paths []string) error {
	switch {
	case len(paths) == 0:
		return nil
	case len(paths) > MaxMediaGroup:
		return fmt.Errorf("sendMediaGroup: %d files exceeds %d", len(paths), MaxMediaGroup)
	case len(paths) == 1:
		return c.do(ctx, "sendDocument", func(ctx context.Context) error {
			f, err := os.Open(paths[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", paths[0], err)
			}
			defer f.Close()
			_, err = c.bot.SendDocument(ctx, &bot.SendDocumentParams{
				ChatID:   chatID,
				Document: &models.InputFileUpload{Filename: filepath.Base(paths[0]), Data: f},
			})
			return err
		})
	}
	return c.do(ctx, "sendMediaGroup", func(ctx context.Context) error {
		media := make([]models.InputMedia, len(paths))
		for i, p := range paths {
			f, err := os.Open(p)
			if err != nil {
				return fmt.Errorf("open %s: %w", p, err)
			}
			defer f.Close()
			media[i] = &models.InputMediaDocument{
				Media:           fmt.Sprintf("attach://file%d", i),
				MediaAttachment: f,
			}
		}
		_, err := c.bot.SendMediaGroup(ctx, &bot.SendMediaGroupParams{ChatID: chatID, Media: media})
		return err
	})
}

// History returns up to limit recent messages of a chat, newest first.
func (c *Client) History(_ context.Context, chatID int64, limit int) ([]Message, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.History(chatID, limit)
}

// Dialogs returns the chats the bot has seen.
func (c *Client) Dialogs(_ context.Context) ([]Chat, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.Chats()
}

// Folders returns the configured folder definitions.
func (c *Client) Folders() Folders {
	return c.folders
}

// Record journals an incoming message.
func (c *Client) Record(msg Message) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(msg); err != nil {
		c.log.Warn("journal record failed", "chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
