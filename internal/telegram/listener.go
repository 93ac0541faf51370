package telegram

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Handler receives one incoming message.
type Handler func(ctx context.Context, msg Message)

// Listener long-polls getUpdates through the bot library and dispatches
// every new message to the registered handlers, each on its own goroutine.
// Updates the server kept while the bot was down arrive first, so they are
// journaled too.
type Listener struct {
	client   *Client
	log      *slog.Logger
	mu       sync.Mutex
	handlers []Handler
	wg       sync.WaitGroup
}

func NewListener(client *Client, log *slog.Logger) *Listener {
	l := &Listener{client: client, log: log}
	client.bot.RegisterHandlerMatchFunc(func(*models.Update) bool { return true }, l.process)
	return l
}

// Handle registers h for all subsequent messages.
func (l *Listener) Handle(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Run polls until ctx is done, then waits for in-flight handlers.
func (l *Listener) Run(ctx context.Context) {
	l.client.bot.Start(ctx)
	l.wg.Wait()
}

func (l *Listener) process(ctx context.Context, _ *bot.Bot, u *models.Update) {
	m := incoming(u)
	if m == nil {
		return
	}
	l.dispatch(ctx, fromMessage(m))
}

func (l *Listener) dispatch(ctx context.Context, msg Message) {
	l.client.Record(msg)

	l.mu.Lock()
	handlers := append([]Handler(nil), l.handlers...)
	l.mu.Unlock()

	for _, h := range handlers {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			h(ctx, msg)
		}()
	}
}
