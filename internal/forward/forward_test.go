package forward

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pricebot/internal/telegram"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	method  string
	to      int64
	ids     []int64
	caption *string
	text    string
}

type fakeTransport struct {
	mu       sync.Mutex
	calls    []call
	forwards map[int64][]error // scripted results per destination, consumed in order
	copyErr  error
	sendErr  error
	ctxErrs  []error // ctx.Err() seen by each forward
}

func (f *fakeTransport) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeTransport) ForwardMessages(ctx context.Context, to, _ int64, ids []int64) error {
	f.record(call{method: "forward", to: to, ids: append([]int64(nil), ids...)})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if q := f.forwards[to]; len(q) > 0 {
		f.forwards[to] = q[1:]
		return q[0]
	}
	return nil
}

func (f *fakeTransport) CopyMessages(_ context.Context, to, _ int64, ids []int64) error {
	f.record(call{method: "copyMessages", to: to, ids: ids})
	return f.copyErr
}

func (f *fakeTransport) CopyMessage(_ context.Context, to, _ int64, id int64, caption *string) error {
	f.record(call{method: "copyMessage", to: to, ids: []int64{id}, caption: caption})
	return f.copyErr
}

func (f *fakeTransport) SendMessage(_ context.Context, to int64, text string) (telegram.Message, error) {
	f.record(call{method: "send", to: to, text: text})
	return telegram.Message{}, f.sendErr
}

func (f *fakeTransport) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

const src = int64(-100)

func testConfig(dests ...int64) Config {
	return Config{
		SourceChatIDs: []int64{src},
		Routes:        map[int64][]int64{src: dests},
		ChatInfo:      map[int64]ChatInfo{src: {Name: "Prices", Username: "prices", Type: "CHANNEL"}},
	}
}

func newTestEngine(cfg Config, tr Transport) (*Engine, *[]time.Duration) {
	e := NewEngine(cfg, tr, 1, Options{GroupDelay: 10 * time.Millisecond, JitterMin: time.Second, JitterMax: 3 * time.Second}, discard())
	var slept []time.Duration
	var mu sync.Mutex
	e.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func msg(id int64, group string) telegram.Message {
	return telegram.Message{ID: id, Chat: telegram.Chat{ID: src}, MediaGroupID: group, Photo: []telegram.PhotoSize{{FileID: "p"}}}
}

func TestAlbumForwardedSortedOncePerDestination(t *testing.T) {
	tr := &fakeTransport{}
	e, slept := newTestEngine(testConfig(10, 20), tr)

	for _, id := range []int64{5, 3, 4} {
		e.Handle(context.Background(), msg(id, "g1"))
	}
	e.Wait()

	require.Len(t, tr.calls, 2)
	assert.Equal(t, call{method: "forward", to: 10, ids: []int64{3, 4, 5}}, tr.calls[0])
	assert.Equal(t, call{method: "forward", to: 20, ids: []int64{3, 4, 5}}, tr.calls[1])

	// jitter only before the second destination
	require.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], time.Second)
	assert.LessOrEqual(t, (*slept)[0], 3*time.Second)
}

func TestSeparateAlbumsFlushSeparately(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(testConfig(10), tr)
	e.Handle(context.Background(), msg(1, "a"))
	e.Handle(context.Background(), msg(7, "b"))
	e.Handle(context.Background(), msg(2, "a"))
	e.Wait()

	require.Len(t, tr.calls, 2)
	var got [][]int64
	for _, c := range tr.calls {
		got = append(got, c.ids)
	}
	assert.ElementsMatch(t, [][]int64{{1, 2}, {7}}, got)
}

func TestAlbumBufferedAtShutdownIsDelivered(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(testConfig(10), tr)

	ctx, cancel := context.WithCancel(context.Background())
	e.Handle(ctx, msg(2, "g"))
	e.Handle(ctx, msg(1, "g"))
	cancel()
	e.Wait()

	require.Len(t, tr.calls, 1)
	assert.Equal(t, call{method: "forward", to: 10, ids: []int64{1, 2}}, tr.calls[0])
	assert.Equal(t, []error{nil}, tr.ctxErrs)
}

func TestIgnoresOwnAndUnconfigured(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(testConfig(10), tr)

	own := telegram.Message{ID: 1, Chat: telegram.Chat{ID: src}, From: &telegram.User{ID: 1}, Text: "x"}
	other := telegram.Message{ID: 2, Chat: telegram.Chat{ID: -999}, Text: "x"}
	e.Handle(context.Background(), own)
	e.Handle(context.Background(), other)
	e.Wait()
	assert.Empty(t, tr.calls)
}

func TestEngineOwnsConfigSnapshot(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig(10)
	e, _ := newTestEngine(cfg, tr)
	cfg.Routes[src] = append(cfg.Routes[src], 30)
	cfg.Routes[-5] = []int64{10}

	e.Handle(context.Background(), telegram.Message{ID: 1, Chat: telegram.Chat{ID: src}, Text: "x"})
	e.Handle(context.Background(), telegram.Message{ID: 2, Chat: telegram.Chat{ID: -5}, Text: "x"})
	require.Len(t, tr.calls, 1)
	assert.Equal(t, int64(10), tr.calls[0].to)
}

var (
	errFlood   = &telegram.APIError{Code: 429, Description: "Too Many Requests", RetryAfter: 4 * time.Second}
	errInvalid = &telegram.APIError{Code: 400, Description: "Bad Request: MESSAGE_ID_INVALID"}
	errOther   = &telegram.APIError{Code: 403, Description: "Forbidden: protected content"}
)

func TestDeliveryPolicy(t *testing.T) {
	text := telegram.Message{ID: 9, Chat: telegram.Chat{ID: src}, Text: "hello"}

	tests := []struct {
		name     string
		script   []error
		want     []string
		wantWait []time.Duration
	}{
		{"ok", nil, []string{"forward"}, nil},
		{"flood then ok", []error{errFlood}, []string{"forward", "forward"}, []time.Duration{4 * time.Second}},
		{"flood then flood", []error{errFlood, errFlood}, []string{"forward", "forward", "send"}, []time.Duration{4 * time.Second}},
		{"flood then invalid", []error{errFlood, errInvalid}, []string{"forward", "forward", "send"}, []time.Duration{4 * time.Second}},
		{"flood then other", []error{errFlood, errOther}, []string{"forward", "forward", "send"}, []time.Duration{4 * time.Second}},
		{"invalid first is skipped", []error{errInvalid}, []string{"forward"}, nil},
		{"other error copies at once", []error{errOther}, []string{"forward", "send"}, nil},
		{"network error copies at once", []error{errors.New("connection reset")}, []string{"forward", "send"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{forwards: map[int64][]error{10: tt.script}}
			e, slept := newTestEngine(testConfig(10), tr)
			e.Handle(context.Background(), text)
			assert.Equal(t, tt.want, tr.methods())
			assert.Equal(t, tt.wantWait, *slept)
		})
	}
}

func TestFallbackTextUsesPrefix(t *testing.T) {
	tr := &fakeTransport{forwards: map[int64][]error{10: {errOther}}}
	e, _ := newTestEngine(testConfig(10), tr)
	e.Handle(context.Background(), telegram.Message{ID: 9, Chat: telegram.Chat{ID: src}, Text: "hello"})

	require.Len(t, tr.calls, 2)
	assert.Equal(t, "📨 Переслано из: @prices\n\nhello", tr.calls[1].text)
}

func TestFallbackMediaCaption(t *testing.T) {
	tr := &fakeTransport{forwards: map[int64][]error{10: {errOther}}}
	e, _ := newTestEngine(testConfig(10), tr)
	m := msg(9, "")
	m.Caption = "S21 850$"
	e.Handle(context.Background(), m)

	require.Len(t, tr.calls, 2)
	c := tr.calls[1]
	assert.Equal(t, "copyMessage", c.method)
	require.NotNil(t, c.caption)
	assert.Equal(t, "📨 Переслано из: @prices\n\nS21 850$", *c.caption)
}

func TestFallbackAlbumCopiesWholeGroup(t *testing.T) {
	tr := &fakeTransport{forwards: map[int64][]error{10: {errOther}}}
	e, _ := newTestEngine(testConfig(10), tr)
	e.Handle(context.Background(), msg(2, "g"))
	e.Handle(context.Background(), msg(1, "g"))
	e.Wait()

	require.Len(t, tr.calls, 2)
	assert.Equal(t, call{method: "copyMessages", to: 10, ids: []int64{1, 2}}, tr.calls[1])
}

func TestFallbackLastResort(t *testing.T) {
	tr := &fakeTransport{forwards: map[int64][]error{10: {errOther}}, copyErr: errors.New("no rights")}
	e, _ := newTestEngine(testConfig(10), tr)
	m := msg(9, "")
	e.Handle(context.Background(), m)

	assert.Equal(t, []string{"forward", "copyMessage", "send"}, tr.methods())
	assert.Equal(t, "📨 Переслано из: @prices\n\n\n\n"+unavailableContent, tr.calls[2].text)
}

func TestDestinationsDeduplicated(t *testing.T) {
	cfg := testConfig(10, 10, src, 20)
	assert.Equal(t, []int64{10, 20}, cfg.Destinations(src))
	assert.Nil(t, cfg.Destinations(-1))
}

func TestPrefix(t *testing.T) {
	cfg := Config{ChatInfo: map[int64]ChatInfo{
		1: {Username: "u"},
		2: {Type: "SUPERGROUP"},
	}}
	assert.Equal(t, "📨 Переслано из: @u\n\n", cfg.Prefix(1))
	assert.Equal(t, "📨 Переслано из: SUPERGROUP 2\n\n", cfg.Prefix(2))
	assert.Equal(t, "📨 Переслано из: Чат 3\n\n", cfg.Prefix(3))
}

func TestConfigStoreRoundTrip(t *testing.T) {
	store := NewConfigStore(filepath.Join(t.TempDir(), "cfg", "forwarding_config.json"), discard())

	_, found, err := store.Load()
	require.NoError(t, err)
	assert.False(t, found)

	cfg := Config{
		SourceChatIDs: []int64{-1001, 5},
		Routes:        map[int64][]int64{-1001: {-1002, 7}, 5: {-1001}},
		ChatInfo: map[int64]ChatInfo{
			-1001: {Name: "Цены", Username: "ceny", Type: "CHANNEL"},
			5:     {Name: "Ann", Type: "PRIVATE"},
		},
	}
	require.NoError(t, store.Save(cfg))

	got, found, err := store.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, cfg, got)
}

func TestConfigJSONShape(t *testing.T) {
	dir := t.TempDir()
	store := NewConfigStore(filepath.Join(dir, "f.json"), discard())
	require.NoError(t, store.Save(Config{SourceChatIDs: []int64{-5}, Routes: map[int64][]int64{-5: {6}}}))

	data, err := readFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, data, `"source_chat_ids"`)
	assert.Contains(t, data, `"forwarding_config": {`)
	assert.Contains(t, data, `"-5": [`)
	assert.Contains(t, data, `"chat_info": {}`)
}

type fakeLister struct {
	dialogs []telegram.Chat
	chats   map[int64]telegram.Chat
}

func (f fakeLister) Dialogs(context.Context) ([]telegram.Chat, error) { return f.dialogs, nil }

func (f fakeLister) GetChat(_ context.Context, id int64) (telegram.Chat, error) {
	if c, ok := f.chats[id]; ok {
		return c, nil
	}
	return telegram.Chat{}, errors.New("chat not found")
}

func TestValidateDropsInaccessible(t *testing.T) {
	store := NewConfigStore(filepath.Join(t.TempDir(), "f.json"), discard())
	cfg := Config{
		SourceChatIDs: []int64{1, 2, 3},
		Routes: map[int64][]int64{
			1: {10, 99}, // 99 gone
			2: {98},     // only destination gone
			3: {10},     // source gone
		},
		ChatInfo: map[int64]ChatInfo{},
	}
	lister := fakeLister{
		dialogs: []telegram.Chat{{ID: 1, Type: "group", Title: "One"}},
		chats:   map[int64]telegram.Chat{2: {ID: 2, Type: "channel", Title: "Two", Username: "two"}, 10: {ID: 10, Type: "private", FirstName: "Ten"}},
	}

	got, err := store.Validate(context.Background(), lister, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.SourceChatIDs)
	assert.Equal(t, map[int64][]int64{1: {10}}, got.Routes)
	assert.Equal(t, ChatInfo{Name: "Two", Username: "two", Type: "CHANNEL"}, got.ChatInfo[2])

	saved, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, got.Routes, saved.Routes)

	// the input is left untouched
	assert.Len(t, cfg.Routes, 3)
}

func TestInteractiveSetup(t *testing.T) {
	color.NoColor = true
	chats := []telegram.Chat{
		{ID: -1, Type: "channel", Title: "Source"},
		{ID: -2, Type: "supergroup", Title: "Dest A"},
		{ID: 3, Type: "private", FirstName: "Bob"},
	}
	in := strings.NewReader("1, 9, x\n1,2,3\n")
	var out bytes.Buffer

	cfg, err := InteractiveSetup(in, &out, "Forward Bot", chats)
	require.NoError(t, err)
	assert.Equal(t, []int64{-1}, cfg.SourceChatIDs)
	assert.Equal(t, []int64{-2, 3}, cfg.Routes[-1])
	assert.Equal(t, "CHANNEL", cfg.ChatInfo[-1].Type)
	assert.Contains(t, out.String(), "[3] Bob (Личный чат) - ID: 3")
	assert.Contains(t, out.String(), "Пересылка из Source настроена в 2 чат(ов)")
}

func TestInteractiveSetupNothingSelected(t *testing.T) {
	color.NoColor = true
	cfg, err := InteractiveSetup(strings.NewReader("\n"), io.Discard, "F", []telegram.Chat{{ID: 1}})
	require.NoError(t, err)
	assert.True(t, cfg.Empty())
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}
