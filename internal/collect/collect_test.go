package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/dgallion1/pricebot/internal/config"
	"github.com/dgallion1/pricebot/internal/pipeline"
	"github.com/dgallion1/pricebot/internal/tabular"
	"github.com/dgallion1/pricebot/internal/telegram"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

var keywords = []string{"прайс", "price", "ibmm", "promminer", "uminers"}

type fakeChats struct {
	chats   map[int64]telegram.Chat
	history map[int64][]telegram.Message
}

func (f *fakeChats) GetChat(_ context.Context, id int64) (telegram.Chat, error) {
	c, ok := f.chats[id]
	if !ok {
		return telegram.Chat{}, errors.New("chat not found")
	}
	return c, nil
}

func (f *fakeChats) History(_ context.Context, id int64, limit int) ([]telegram.Message, error) {
	h := f.history[id]
	if len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (f *fakeChats) Download(_ context.Context, fileID, dst string) error {
	return os.WriteFile(dst, []byte("pdf:"+fileID), 0o644)
}

func doc(id int64, name, fileID string, date int64) telegram.Message {
	return telegram.Message{
		ID:       id,
		Date:     date,
		From:     &telegram.User{ID: 9, FirstName: "Ivan"},
		Document: &telegram.Document{FileID: fileID, FileName: name},
	}
}

func sampleChats() *fakeChats {
	return &fakeChats{
		chats: map[int64]telegram.Chat{
			-100: {ID: -100, Type: telegram.ChatSupergroup, Title: "Рустехмаш / Опт*"},
			2:    {ID: 2, Type: telegram.ChatPrivate, FirstName: "Nobody"},
		},
		history: map[int64][]telegram.Message{
			-100: {
				doc(5, "menu.pdf", "e", 500),
				{ID: 4, Date: 400, Text: "price update soon"},
				doc(3, "price.xlsx", "c", 300),
				doc(2, "Price_New.PDF", "b", 200),
				doc(1, "old_прайс.pdf", "a", 100),
			},
			2: {doc(1, "menu.pdf", "x", 100)},
		},
	}
}

func TestKeywords(t *testing.T) {
	k := NewKeywords([]string{"Прайс", " price ", ""})

	kw, ok := k.Match("ПРАЙС_март.pdf")
	assert.True(t, ok)
	assert.Equal(t, "прайс", kw)

	kw, ok = k.Match("Pricelist.PDF")
	assert.True(t, ok)
	assert.Equal(t, "price", kw)

	_, ok = k.Match("menu.pdf")
	assert.False(t, ok)

	_, ok = NewKeywords(nil).Match("price.pdf")
	assert.False(t, ok)
}

func TestNewestPicksLatestMatchingPDF(t *testing.T) {
	fc := sampleChats()
	c := NewCollector(fc, Options{Keywords: keywords}, testLog)

	m, ok := c.Newest(fc.chats[-100], fc.history[-100])
	require.True(t, ok)
	assert.Equal(t, "Price_New.PDF", m.Document.FileName)

	_, ok = c.Newest(fc.chats[2], fc.history[2])
	assert.False(t, ok)
}

func TestNewestExemptChatSkipsKeywords(t *testing.T) {
	fc := sampleChats()

	byID := NewCollector(fc, Options{Keywords: keywords, Exempt: []string{"2"}}, testLog)
	m, ok := byID.Newest(fc.chats[2], fc.history[2])
	require.True(t, ok)
	assert.Equal(t, "menu.pdf", m.Document.FileName)

	byTitle := NewCollector(fc, Options{Keywords: keywords, Exempt: []string{"рустехмаш / опт*"}}, testLog)
	m, ok = byTitle.Newest(fc.chats[-100], fc.history[-100])
	require.True(t, ok)
	assert.Equal(t, "menu.pdf", m.Document.FileName)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Рустехмаш _ Опт_.pdf", FileName(telegram.Chat{ID: -100, Title: "Рустехмаш / Опт*"}))
	assert.Equal(t, "IBMM-price_v2.1.pdf", FileName(telegram.Chat{ID: -1, Title: "IBMM-price_v2.1"}))
	assert.Equal(t, "42.pdf", FileName(telegram.Chat{ID: 42}))
}

func TestNewRunDir(t *testing.T) {
	at := time.Date(2026, 3, 4, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, filepath.Join("data", "collection_20260304_090507"), NewRunDir("data", at))
}

func TestCollect(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "collection_x")
	c := NewCollector(sampleChats(), Options{Keywords: keywords}, testLog)
	var progress []string
	c.Progress = func(name string) { progress = append(progress, name) }

	res, err := c.Collect(context.Background(), []int64{-100, 2, -3}, dir)
	require.NoError(t, err)
	require.Len(t, res.Chats, 3)
	assert.Equal(t, 3, res.Scanned)

	ok := res.Chats[0]
	assert.Equal(t, OutcomeSuccess, ok.Outcome)
	require.Len(t, ok.Files, 1)
	assert.Equal(t, "Price_New.PDF", ok.Files[0].Name)
	assert.Equal(t, "Ivan", ok.Files[0].From)
	assert.Equal(t, filepath.Join(dir, "Рустехмаш _ Опт_.pdf"), ok.Files[0].Path)
	data, err := os.ReadFile(ok.Files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "pdf:b", string(data))

	assert.Equal(t, OutcomeNone, res.Chats[1].Outcome)
	assert.Equal(t, "Nobody", res.Chats[1].Name)

	assert.Equal(t, OutcomeError, res.Chats[2].Outcome)
	assert.Equal(t, "Chat -3", res.Chats[2].Name)
	assert.Equal(t, "chat not found", res.Chats[2].Err)

	assert.Equal(t, 1, res.ChatsWithFiles())
	assert.Equal(t, []string{ok.Files[0].Path}, res.Paths())
	assert.Equal(t, []string{"Рустехмаш / Опт*", "Nobody"}, progress)
}

func TestCollectOverwritesSameChat(t *testing.T) {
	dir := t.TempDir()
	fc := sampleChats()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Рустехмаш _ Опт_.pdf"), []byte("stale"), 0o644))

	_, err := NewCollector(fc, Options{Keywords: keywords}, testLog).Collect(context.Background(), []int64{-100}, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "Рустехмаш _ Опт_.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdf:b", string(data))
}

func sampleResult() Result {
	return Result{
		Dir:     "d",
		Started: time.Date(2026, 3, 4, 9, 5, 7, 0, time.UTC),
		Scanned: 3,
		Chats: []ChatResult{
			{ChatID: -100, Name: "Рустехмаш", Outcome: OutcomeSuccess, Files: []File{{
				Name: "price.pdf",
				Path: "d/Рустехмаш.pdf",
				Date: time.Date(2026, 3, 3, 18, 30, 0, 0, time.UTC),
				From: "Ivan",
			}}},
			{ChatID: 2, Name: "Nobody", Outcome: OutcomeNone},
			{ChatID: -3, Name: "Chat -3", Outcome: OutcomeError, Err: "chat not found"},
		},
	}
}

func TestReport(t *testing.T) {
	want := "Отчет о сборе PDF файлов от 20260304_090507\n" +
		"Всего собрано файлов: 1\n" +
		"Чатов с файлами: 1 из 3\n" +
		"\n" +
		"== Чат: Рустехмаш (ID: -100) ==\n" +
		"  Найдено файлов: 1\n" +
		"  1. price.pdf\n" +
		"     Дата сообщения: 2026-03-03 18:30:00\n" +
		"     От пользователя: Ivan\n" +
		"     Путь: d/Рустехмаш.pdf\n" +
		"\n" +
		"== Чат: Chat -3 (ID: -3) ==\n" +
		"  Ошибка: chat not found\n"
	assert.Equal(t, want, Report(sampleResult()))
}

func TestReportHTML(t *testing.T) {
	html, err := ReportHTML(Report(sampleResult()))
	require.NoError(t, err)
	assert.Contains(t, html, "<h2>Чат: Рустехмаш (ID: -100)</h2>")
	assert.Contains(t, html, "<h2>Чат: Chat -3 (ID: -3)</h2>")
	assert.Contains(t, html, "<ol>")
	assert.Contains(t, html, "<code>d/Рустехмаш.pdf</code>")
	assert.Contains(t, html, "Ошибка: chat not found")
}

func TestSummary(t *testing.T) {
	s := Summary(sampleResult())
	assert.True(t, strings.HasPrefix(s, "📊 Сбор PDF файлов завершен!"))
	assert.Contains(t, s, "Всего найдено файлов: 1")
	assert.Contains(t, s, "Чатов с файлами: 1 из 3")

	empty := Summary(Result{Scanned: 2})
	assert.Contains(t, empty, "PDF файлы не найдены в доступных чатах.")
	assert.Contains(t, empty, "Обработано чатов: 2")
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteReport(dir, "report")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ReportName), path)
}

// Stage fakes.

type stages struct {
	calls      []string
	extractErr error
	scrapeErr  error
	publishErr error
	// blockScrape holds the scraper until the run context expires.
	blockScrape bool
	excelDir    string
	published   []string
}

func (s *stages) ExtractDir(_ context.Context, dir, outDir string) ([]string, error) {
	s.calls = append(s.calls, "extract")
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	out := filepath.Join(outDir, "ibmm.xlsx")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	return []string{out}, os.WriteFile(out, []byte("xlsx"), 0o644)
}

func (s *stages) Run(ctx context.Context) ([]tabular.Product, []string, error) {
	s.calls = append(s.calls, "scrape")
	if s.blockScrape {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if s.scrapeErr != nil {
		return nil, nil, s.scrapeErr
	}
	return []tabular.Product{{Model: "S21"}, {Model: "L9"}}, nil, nil
}

func (s *stages) Publish(_ context.Context, files []string) (string, error) {
	s.calls = append(s.calls, "publish")
	s.published = files
	if s.publishErr != nil {
		return "", s.publishErr
	}
	return "https://docs.google.com/spreadsheets/d/ss1", nil
}

type recorder struct {
	statuses  []string
	collected []Result
}

func (r *recorder) Status(_ context.Context, text string) { r.statuses = append(r.statuses, text) }
func (r *recorder) Collected(_ context.Context, res Result) {
	r.collected = append(r.collected, res)
}

var testFolders = telegram.Folders{
	{Title: "Collect Bot", Peers: []telegram.Peer{{Kind: telegram.PeerChat, ID: 100}}},
	{Title: "Empty", Peers: nil},
	{Title: "Admins Bot", Peers: []telegram.Peer{{Kind: telegram.PeerUser, ID: 42}}},
}

func newService(t *testing.T, st *stages, folder string, chats Chats) *Service {
	t.Helper()
	st.excelDir = filepath.Join(t.TempDir(), "excel")
	cfg := ServiceConfig{Folder: folder, DataDir: t.TempDir(), ExcelDir: st.excelDir}
	collector := NewCollector(chats, Options{Keywords: keywords}, testLog)
	return NewService(cfg, testFolders, collector, st, st, st, testLog)
}

func TestServiceRunsAllStages(t *testing.T) {
	st := &stages{}
	svc := newService(t, st, "Collect Bot", sampleChats())
	run := pipeline.NewRun(pipeline.TriggerAPI)
	rec := &recorder{}
	svc.Watch(run.ID, rec)

	require.NoError(t, svc.Execute(context.Background(), run))

	assert.Equal(t, []string{"extract", "scrape", "publish"}, st.calls)
	assert.Equal(t, []string{filepath.Join(st.excelDir, "ibmm.xlsx")}, st.published)

	snap := run.Snapshot()
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/ss1", snap.SheetURL)
	assert.Equal(t, 1, snap.Progress.ChatsScanned)
	assert.Equal(t, 1, snap.Progress.Files)
	assert.Equal(t, 1, snap.Progress.Tables)
	assert.Equal(t, 2, snap.Progress.Products)
	assert.Contains(t, snap.Report, "Всего собрано файлов: 1")
	assert.FileExists(t, filepath.Join(snap.Dir, ReportName))
	assert.True(t, strings.HasPrefix(filepath.Base(snap.Dir), "collection_"))

	require.Len(t, rec.collected, 1)
	assert.Equal(t, []string{
		"🔍 Начинаю поиск последних PDF файлов в чатах из папки для сбора...",
		"🔍 Найдено 1 чатов в папке для сбора",
		Summary(rec.collected[0]),
		"Извлечение данных из PDF файлов...",
		"Сбор данных с сайта Uminers...",
		"Загрузка данных в Google Sheets...",
		"✅ Данные загружены в Google Sheets: https://docs.google.com/spreadsheets/d/ss1",
	}, rec.statuses)

	// The watcher is detached once the run returns.
	assert.Nil(t, svc.watcher(run.ID))
}

func TestServiceStageFailureDoesNotStopChain(t *testing.T) {
	st := &stages{extractErr: errors.New("boom"), scrapeErr: errors.New("site down")}
	svc := newService(t, st, "Collect Bot", sampleChats())
	require.NoError(t, os.MkdirAll(st.excelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(st.excelDir, "old.xlsx"), []byte("x"), 0o644))
	run := pipeline.NewRun(pipeline.TriggerAPI)

	require.NoError(t, svc.Execute(context.Background(), run))
	assert.Equal(t, []string{"extract", "scrape", "publish"}, st.calls)
	assert.Equal(t, []string{"extract: boom", "scrape: site down"}, run.Snapshot().Progress.Errors)
}

func TestServiceSkipsStagesWithoutFiles(t *testing.T) {
	st := &stages{}
	chats := &fakeChats{chats: map[int64]telegram.Chat{-100: {ID: -100, Title: "Empty chat"}}}
	svc := newService(t, st, "Collect Bot", chats)
	run := pipeline.NewRun(pipeline.TriggerCron)

	require.NoError(t, svc.Execute(context.Background(), run))
	assert.Empty(t, st.calls)
	assert.Equal(t, 0, run.Snapshot().Progress.Files)
}

func TestServiceQuotaIsSoftSkip(t *testing.T) {
	st := &stages{publishErr: &googleapi.Error{Code: 403, Message: "sharing quota exceeded"}}
	svc := newService(t, st, "Collect Bot", sampleChats())
	orch := pipeline.NewOrchestrator(config.Config{RunTimeout: 5 * time.Second, MaxQueueSize: 1, WorkerCount: 1, RunTTL: time.Hour}, svc, testLog)

	snap := orch.Execute(context.Background(), pipeline.NewRun(pipeline.TriggerCron))
	assert.Equal(t, pipeline.StatusPartial, snap.Status)
	assert.Contains(t, snap.Progress.Errors, "publish skipped: sharing quota exhausted")
}

func TestServicePublishErrorFailsRun(t *testing.T) {
	st := &stages{publishErr: &googleapi.Error{Code: 403, Message: "insufficient permissions"}}
	svc := newService(t, st, "Collect Bot", sampleChats())

	run := pipeline.NewRun(pipeline.TriggerAPI)
	rec := &recorder{}
	svc.Watch(run.ID, rec)

	err := svc.Execute(context.Background(), run)
	assert.ErrorContains(t, err, "publish")
	require.NotEmpty(t, rec.statuses)
	last := rec.statuses[len(rec.statuses)-1]
	assert.True(t, strings.HasPrefix(last, "❌"), last)
	assert.Contains(t, last, "insufficient permissions")
}

func TestServiceTimeoutStopsChain(t *testing.T) {
	st := &stages{blockScrape: true}
	svc := newService(t, st, "Collect Bot", sampleChats())
	orch := pipeline.NewOrchestrator(config.Config{RunTimeout: 100 * time.Millisecond, MaxQueueSize: 1, WorkerCount: 1, RunTTL: time.Hour}, svc, testLog)
	run := pipeline.NewRun(pipeline.TriggerCron)
	rec := &recorder{}
	svc.Watch(run.ID, rec)

	snap := orch.Execute(context.Background(), run)
	assert.Equal(t, pipeline.StatusFailed, snap.Status)
	assert.Equal(t, []string{"extract", "scrape"}, st.calls)
	assert.Empty(t, snap.SheetURL)

	require.NotEmpty(t, rec.statuses)
	assert.Equal(t, "❌ Сбор прерван: превышено время выполнения.", rec.statuses[len(rec.statuses)-1])
	for _, text := range rec.statuses {
		assert.NotContains(t, text, "✅")
	}
}

func TestServiceCompletesThroughOrchestrator(t *testing.T) {
	st := &stages{}
	svc := newService(t, st, "Collect Bot", sampleChats())
	orch := pipeline.NewOrchestrator(config.Config{RunTimeout: 5 * time.Second, MaxQueueSize: 1, WorkerCount: 1, RunTTL: time.Hour}, svc, testLog)

	snap := orch.Execute(context.Background(), pipeline.NewRun(pipeline.TriggerCLI))
	assert.Equal(t, pipeline.StatusCompleted, snap.Status)
}

func TestServiceFolderErrors(t *testing.T) {
	st := &stages{}

	svc := newService(t, st, "Missing", sampleChats())
	run := pipeline.NewRun(pipeline.TriggerAPI)
	rec := &recorder{}
	svc.Watch(run.ID, rec)
	err := svc.Execute(context.Background(), run)
	assert.ErrorIs(t, err, ErrNoFolder)
	assert.Contains(t, rec.statuses[len(rec.statuses)-1], "❌ Папка «Missing» не найдена.")

	svc = newService(t, st, "Empty", sampleChats())
	err = svc.Execute(context.Background(), pipeline.NewRun(pipeline.TriggerAPI))
	assert.ErrorIs(t, err, ErrEmptyFolder)
	assert.Empty(t, st.calls)
}

// Chat command.

type sent struct {
	kind   string
	chatID int64
	msgID  int64
	text   string
	files  []string
}

type fakeMessenger struct {
	next int64
	log  []sent
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) (telegram.Message, error) {
	m.next++
	m.log = append(m.log, sent{kind: "send", chatID: chatID, msgID: m.next, text: text})
	return telegram.Message{ID: m.next, Chat: telegram.Chat{ID: chatID}}, nil
}

func (m *fakeMessenger) EditMessageText(_ context.Context, chatID, messageID int64, text string) error {
	m.log = append(m.log, sent{kind: "edit", chatID: chatID, msgID: messageID, text: text})
	return nil
}

func (m *fakeMessenger) SendDocuments(_ context.Context, chatID int64, paths []string) error {
	m.log = append(m.log, sent{kind: "docs", chatID: chatID, files: paths})
	return nil
}

func (m *fakeMessenger) kinds() []string {
	out := make([]string, len(m.log))
	for i, s := range m.log {
		out[i] = s.kind
	}
	return out
}

// syncRuns executes submitted runs inline.
type syncRuns struct {
	svc  *Service
	runs []*pipeline.Run
	err  error
}

func (s *syncRuns) Submit(run *pipeline.Run) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	if s.svc != nil {
		return s.svc.Execute(context.Background(), run)
	}
	return nil
}

func command(msgr Messenger, svc *Service, runs Submitter) *Command {
	return NewCommand(msgr, svc, runs, testFolders, "Admins Bot", testLog)
}

func TestIsCommand(t *testing.T) {
	for text, want := range map[string]bool{
		"/collect":           true,
		"/сбор":              true,
		"/collect@pricebot":  true,
		"  /collect now":     true,
		"/collection":        false,
		"collect":            false,
		"":                   false,
		"please /collect it": false,
	} {
		assert.Equal(t, want, IsCommand(text), text)
	}
}

func TestCommandDeniesNonAdmins(t *testing.T) {
	msgr := &fakeMessenger{}
	runs := &syncRuns{}
	cmd := command(msgr, nil, runs)

	cmd.Handle(context.Background(), telegram.Message{
		Text: "/collect",
		From: &telegram.User{ID: 7},
		Chat: telegram.Chat{ID: 7, Type: telegram.ChatPrivate},
	})
	require.Len(t, msgr.log, 1)
	assert.Equal(t, deniedText, msgr.log[0].text)
	assert.Empty(t, runs.runs)

	cmd.Handle(context.Background(), telegram.Message{Text: "/collect", Chat: telegram.Chat{ID: -5, Type: telegram.ChatGroup}})
	assert.Equal(t, deniedText, msgr.log[1].text)
}

func TestCommandIgnoresOtherText(t *testing.T) {
	msgr := &fakeMessenger{}
	command(msgr, nil, &syncRuns{}).Handle(context.Background(), telegram.Message{
		Text: "hello",
		From: &telegram.User{ID: 42},
	})
	assert.Empty(t, msgr.log)
}

func TestCommandRunsCollection(t *testing.T) {
	st := &stages{}
	svc := newService(t, st, "Collect Bot", sampleChats())
	msgr := &fakeMessenger{}
	runs := &syncRuns{svc: svc}

	command(msgr, svc, runs).Handle(context.Background(), telegram.Message{
		Text: "/сбор",
		From: &telegram.User{ID: 42},
		Chat: telegram.Chat{ID: 42, Type: telegram.ChatPrivate},
	})

	require.Len(t, runs.runs, 1)
	assert.Equal(t, pipeline.TriggerChat, runs.runs[0].Trigger)
	assert.Equal(t, []string{"send", "edit", "edit", "docs", "send", "edit", "edit", "edit"}, msgr.kinds())

	docs := msgr.log[3]
	require.Len(t, docs.files, 1)
	assert.Equal(t, "Рустехмаш _ Опт_.pdf", filepath.Base(docs.files[0]))

	// Status edits target the message they belong to.
	assert.Equal(t, int64(1), msgr.log[1].msgID)
	assert.Equal(t, "Извлечение данных из PDF файлов...", msgr.log[4].text)
	assert.Equal(t, int64(2), msgr.log[5].msgID)
	assert.Contains(t, msgr.log[7].text, "✅ Данные загружены в Google Sheets:")
}

func TestCommandQueueFull(t *testing.T) {
	msgr := &fakeMessenger{}
	svc := newService(t, &stages{}, "Collect Bot", sampleChats())
	runs := &syncRuns{err: fmt.Errorf("%w (1)", pipeline.ErrQueueFull)}

	command(msgr, svc, runs).Handle(context.Background(), telegram.Message{
		Text: "/collect",
		From: &telegram.User{ID: 42},
		Chat: telegram.Chat{ID: 42, Type: telegram.ChatPrivate},
	})
	require.Len(t, msgr.log, 1)
	assert.Equal(t, queueFullText, msgr.log[0].text)
	assert.Empty(t, svc.watchers)
}

func TestWatcherBatchesFiles(t *testing.T) {
	msgr := &fakeMessenger{}
	w := &chatWatcher{msgr: msgr, chatID: 1, log: testLog}

	w.Status(context.Background(), "a")
	w.Status(context.Background(), "a")
	w.Status(context.Background(), "b")

	var files []File
	for i := range 7 {
		files = append(files, File{Path: fmt.Sprintf("f%d.pdf", i)})
	}
	w.Collected(context.Background(), Result{Chats: []ChatResult{{Outcome: OutcomeSuccess, Files: files}}})
	w.Status(context.Background(), "c")

	assert.Equal(t, []string{"send", "edit", "docs", "docs", "send"}, msgr.kinds())
	assert.Len(t, msgr.log[2].files, BatchSize)
	assert.Len(t, msgr.log[3].files, 2)
}

type countingRuns struct{ runs []*pipeline.Run }

func (c *countingRuns) Submit(run *pipeline.Run) error {
	c.runs = append(c.runs, run)
	return nil
}

func TestSchedulerRunNow(t *testing.T) {
	runs := &countingRuns{}
	s := NewScheduler("0 3 * * *", runs, testLog)
	s.RunNow()
	require.Len(t, runs.runs, 1)
	assert.Equal(t, pipeline.TriggerCron, runs.runs[0].Trigger)

	require.NoError(t, s.Start())
	<-s.Stop().Done()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	assert.Error(t, NewScheduler("not a schedule", &countingRuns{}, testLog).Start())
}
