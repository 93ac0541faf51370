// Package forward relays messages from configured source chats to their
// destinations, keeping albums together and falling back to copies when a
// forward is refused.
package forward

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/pricebot/internal/metrics"
	"github.com/dgallion1/pricebot/internal/telegram"
)

// Transport is the subset of the chat client the engine drives.
type Transport interface {
	ForwardMessages(ctx context.Context, to, from int64, ids []int64) error
	CopyMessages(ctx context.Context, to, from int64, ids []int64) error
	CopyMessage(ctx context.Context, to, from, id int64, caption *string) error
	SendMessage(ctx context.Context, chatID int64, text string) (telegram.Message, error)
}

// Options tunes timing.
type Options struct {
	GroupDelay time.Duration
	JitterMin  time.Duration
	JitterMax  time.Duration
}

// DefaultOptions wait 1s for an album to complete and 1-3s between
// destinations.
func DefaultOptions() Options {
	return Options{GroupDelay: time.Second, JitterMin: time.Second, JitterMax: 3 * time.Second}
}

const forwardAttempts = 2

// flushTimeout bounds the delivery of one buffered album.
const flushTimeout = 30 * time.Second

const unavailableContent = "Содержимое сообщения недоступно"

type groupBuffer struct {
	source    int64
	messages  []telegram.Message
	scheduled bool
}

// Engine forwards messages according to a Config snapshot it owns.
type Engine struct {
	cfg  Config
	tr   Transport
	self int64
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	groups map[string]*groupBuffer
	wg     sync.WaitGroup

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine copies cfg; later changes to the caller's value are not seen.
func NewEngine(cfg Config, tr Transport, self int64, opts Options, log *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg.Clone(),
		tr:     tr,
		self:   self,
		opts:   opts,
		log:    log,
		groups: make(map[string]*groupBuffer),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one incoming message. Album parts are buffered and
// flushed together once the group delay passes.
func (e *Engine) Handle(ctx context.Context, msg telegram.Message) {
	if e.self != 0 && msg.SenderID() == e.self {
		return
	}
	source := msg.Chat.ID
	if !e.cfg.IsSource(source) {
		return
	}

	if msg.MediaGroupID == "" {
		e.deliverAll(ctx, source, []telegram.Message{msg})
		return
	}

	key := fmt.Sprintf("%d:%s", source, msg.MediaGroupID)
	e.mu.Lock()
	buf, ok := e.groups[key]
	if !ok {
		buf = &groupBuffer{source: source}
		e.groups[key] = buf
	}
	buf.messages = append(buf.messages, msg)
	schedule := !buf.scheduled
	buf.scheduled = true
	e.mu.Unlock()

	if schedule {
		e.wg.Add(1)
		time.AfterFunc(e.opts.GroupDelay, func() {
			defer e.wg.Done()
			if ctx.Err() != nil {
				e.log.Debug("listener stopped, flushing buffered album", "group", key)
			}
			// An album buffered when shutdown starts is still delivered,
			// within flushTimeout.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			e.flush(flushCtx, key)
		})
	}
}

// Wait blocks until every scheduled album flush has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) flush(ctx context.Context, key string) {
	e.mu.Lock()
	buf := e.groups[key]
	delete(e.groups, key)
	e.mu.Unlock()
	if buf == nil || len(buf.messages) == 0 {
		return
	}
	slices.SortFunc(buf.messages, func(a, b telegram.Message) int {
		return cmp.Compare(a.ID, b.ID)
	})
	e.deliverAll(ctx, buf.source, buf.messages)
}

func (e *Engine) deliverAll(ctx context.Context, source int64, msgs []telegram.Message) {
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	for i, dest := range e.cfg.Destinations(source) {
		if i > 0 {
			if err := e.sleep(ctx, e.jitter()); err != nil {
				return
			}
		}
		e.deliver(ctx, source, dest, msgs, ids)
	}
}

func (e *Engine) jitter() time.Duration {
	span := e.opts.JitterMax - e.opts.JitterMin
	if span <= 0 {
		return e.opts.JitterMin
	}
	return e.opts.JitterMin + time.Duration(rand.Int64N(int64(span)+1))
}

// deliver forwards ids to one destination. A rate limit on the first attempt
// waits and retries once; an invalid id on the first attempt is skipped.
// Every other failure ends in a fallback copy.
func (e *Engine) deliver(ctx context.Context, source, dest int64, msgs []telegram.Message, ids []int64) {
	log := e.log.With("source", source, "destination", dest, "messages", ids)

attempts:
	for attempt := 1; attempt <= forwardAttempts; attempt++ {
		res := telegram.Classify(e.tr.ForwardMessages(ctx, dest, source, ids))
		switch {
		case res.Kind == telegram.OK:
			metrics.Forwards.WithLabelValues("forwarded").Inc()
			log.Info("forwarded", "attempt", attempt)
			return
		case attempt == 1 && res.Kind == telegram.Invalid:
			metrics.Forwards.WithLabelValues("skipped").Inc()
			log.Warn("message ids invalid, skipping", "error", res.Err)
			return
		case attempt == 1 && res.Kind == telegram.RetryAfter:
			log.Warn("rate limited", "wait", res.Wait)
			if err := e.sleep(ctx, res.Wait); err != nil {
				return
			}
			continue
		}
		log.Warn("forward failed, copying instead", "attempt", attempt, "result", res.Kind, "error", res.Err)
		break attempts
	}
	e.fallback(ctx, log, source, dest, msgs, ids)
}

func (e *Engine) fallback(ctx context.Context, log *slog.Logger, source, dest int64, msgs []telegram.Message, ids []int64) {
	prefix := e.cfg.Prefix(source)
	anchor := msgs[0]

	if anchor.MediaGroupID != "" {
		err := e.tr.CopyMessages(ctx, dest, source, ids)
		if err == nil {
			metrics.Forwards.WithLabelValues("fallback").Inc()
			return
		}
		log.Warn("album copy failed", "error", err)
	}

	var err error
	switch {
	case anchor.HasMedia():
		caption := prefix + anchor.Caption
		err = e.tr.CopyMessage(ctx, dest, source, anchor.ID, &caption)
	case anchor.Text != "":
		_, err = e.tr.SendMessage(ctx, dest, prefix+anchor.Text)
	default:
		err = e.tr.CopyMessage(ctx, dest, source, anchor.ID, nil)
	}
	if err == nil {
		metrics.Forwards.WithLabelValues("fallback").Inc()
		return
	}
	log.Warn("copy failed", "error", err, "media", anchor.HasMedia(), "album", anchor.MediaGroupID != "")

	content := anchor.Content()
	if content == "" {
		content = unavailableContent
	}
	if _, err := e.tr.SendMessage(ctx, dest, prefix+"\n\n"+content); err != nil {
		metrics.Forwards.WithLabelValues("failed").Inc()
		log.Error("delivery failed", "error", err)
		return
	}
	metrics.Forwards.WithLabelValues("fallback").Inc()
}
