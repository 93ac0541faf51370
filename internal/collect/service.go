package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/pricebot/internal/pipeline"
	"github.com/dgallion1/pricebot/internal/publish"
	"github.com/dgallion1/pricebot/internal/tabular"
	"github.com/dgallion1/pricebot/internal/telegram"
)

// failureNotifyTimeout bounds the final status edit sent after a run
// failed, which may happen on an already expired context.
const failureNotifyTimeout = 10 * time.Second

var (
	ErrNoFolder    = errors.New("collect folder not found")
	ErrEmptyFolder = errors.New("collect folder is empty")
)

// Extractor turns the PDFs of a collection directory into xlsx files.
type Extractor interface {
	ExtractDir(ctx context.Context, dir, outDir string) ([]string, error)
}

// Scraper fetches the web catalog.
type Scraper interface {
	Run(ctx context.Context) ([]tabular.Product, []string, error)
}

// Publisher uploads xlsx files and returns a link to the result.
type Publisher interface {
	Publish(ctx context.Context, files []string) (string, error)
}

// Watcher follows one run from the chat that started it.
type Watcher interface {
	Status(ctx context.Context, text string)
	Collected(ctx context.Context, res Result)
}

// ServiceConfig names the folder and directories a run works in.
type ServiceConfig struct {
	Folder   string
	DataDir  string
	ExcelDir string
}

// Service runs the collect, extract, scrape and publish chain. It is the
// pipeline.Runner behind every trigger.
type Service struct {
	cfg       ServiceConfig
	folders   telegram.Folders
	collector *Collector
	extractor Extractor
	scraper   Scraper
	publisher Publisher
	log       *slog.Logger

	mu       sync.Mutex
	watchers map[string]Watcher
}

// NewService wires the stages. scraper and publisher may be nil, in which
// case their stage is skipped.
func NewService(cfg ServiceConfig, folders telegram.Folders, collector *Collector, extractor Extractor, scraper Scraper, publisher Publisher, log *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		folders:   folders,
		collector: collector,
		extractor: extractor,
		scraper:   scraper,
		publisher: publisher,
		log:       log,
		watchers:  make(map[string]Watcher),
	}
}

// Watch attaches w to the run with the given id until the run finishes or
// the returned stop func is called.
func (s *Service) Watch(runID string, w Watcher) (stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[runID] = w
	return func() { s.unwatch(runID) }
}

func (s *Service) watcher(runID string) Watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchers[runID]
}

func (s *Service) unwatch(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, runID)
}

func (s *Service) status(ctx context.Context, run *pipeline.Run, text string) {
	if w := s.watcher(run.ID); w != nil {
		w.Status(ctx, text)
	}
}

// ChatIDs resolves the collection folder.
func (s *Service) ChatIDs() ([]int64, error) {
	folder, ok := s.folders.Find(s.cfg.Folder)
	if !ok {
		return nil, ErrNoFolder
	}
	ids := folder.ChatIDs()
	if len(ids) == 0 {
		return nil, ErrEmptyFolder
	}
	return ids, nil
}

// Execute implements pipeline.Runner. Folder resolution, collection and
// publish errors fail the run, as does an expired context between stages;
// extract and scrape failures are recorded and the chain moves on. A failed
// run always leaves a final ❌ status with its watcher.
func (s *Service) Execute(ctx context.Context, run *pipeline.Run) (err error) {
	defer s.unwatch(run.ID)
	log := s.log.With("run_id", run.ID)

	notified := false
	defer func() {
		if err != nil && !notified {
			s.failed(ctx, run, err)
		}
	}()

	run.SetStatus(pipeline.StatusCollecting, "collecting")
	s.status(ctx, run, "🔍 Начинаю поиск последних PDF файлов в чатах из папки для сбора...")

	ids, err := s.ChatIDs()
	switch {
	case errors.Is(err, ErrNoFolder):
		notified = true
		s.status(ctx, run, fmt.Sprintf("❌ Папка «%s» не найдена. Создайте папку с названием «%s» и добавьте в неё чаты для сбора PDF.", s.cfg.Folder, s.cfg.Folder))
		return fmt.Errorf("%w: %q", err, s.cfg.Folder)
	case errors.Is(err, ErrEmptyFolder):
		notified = true
		s.status(ctx, run, fmt.Sprintf("❌ Папка «%s» пуста. Добавьте чаты в папку «%s» для сбора PDF.", s.cfg.Folder, s.cfg.Folder))
		return fmt.Errorf("%w: %q", err, s.cfg.Folder)
	}
	log.Info("collect folder resolved", "folder", s.cfg.Folder, "chats", len(ids))
	s.status(ctx, run, fmt.Sprintf("🔍 Найдено %d чатов в папке для сбора", len(ids)))

	dir := NewRunDir(s.cfg.DataDir, run.CreatedAt)
	run.SetDir(dir)

	res, err := s.collector.Collect(ctx, ids, dir)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	run.Update(func(p *pipeline.Progress) {
		p.ChatsScanned = res.Scanned
		p.Files = len(res.Files())
	})
	for _, c := range res.Chats {
		if c.Outcome == OutcomeError {
			run.AddError(fmt.Sprintf("chat %d: %s", c.ChatID, c.Err))
		}
	}

	report := Report(res)
	run.SetReport(report)
	if path, err := WriteReport(dir, report); err != nil {
		log.Error("report not saved", "error", err)
	} else {
		log.Info("report saved", "path", path)
	}

	s.status(ctx, run, Summary(res))
	if w := s.watcher(run.ID); w != nil {
		w.Collected(ctx, res)
	}

	if len(res.Files()) == 0 {
		log.Warn("no files collected, skipping extraction, scrape and publish")
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.extract(ctx, run, log, dir)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.scrape(ctx, run, log)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.publish(ctx, run, log)
}

// failed sends the final status of a failed run. ctx may already be done,
// so the send gets a detached, bounded context of its own.
func (s *Service) failed(ctx context.Context, run *pipeline.Run, err error) {
	w := s.watcher(run.ID)
	if w == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureNotifyTimeout)
	defer cancel()

	text := "❌ Сбор прерван с ошибкой: " + err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		text = "❌ Сбор прерван: превышено время выполнения."
	}
	w.Status(sendCtx, text)
}

func (s *Service) extract(ctx context.Context, run *pipeline.Run, log *slog.Logger, dir string) {
	run.SetStatus(pipeline.StatusExtracting, "extracting")
	s.status(ctx, run, "Извлечение данных из PDF файлов...")

	written, err := s.extractor.ExtractDir(ctx, dir, s.cfg.ExcelDir)
	run.Update(func(p *pipeline.Progress) { p.Tables = len(written) })
	if err != nil {
		log.Error("extraction failed", "error", err)
		run.AddError("extract: " + err.Error())
		return
	}
	log.Info("extraction done", "tables", len(written))
}

func (s *Service) scrape(ctx context.Context, run *pipeline.Run, log *slog.Logger) {
	if s.scraper == nil {
		return
	}
	run.SetStatus(pipeline.StatusScraping, "scraping")
	s.status(ctx, run, "Сбор данных с сайта Uminers...")

	products, _, err := s.scraper.Run(ctx)
	run.Update(func(p *pipeline.Progress) { p.Products = len(products) })
	if err != nil {
		log.Error("catalog scrape failed", "error", err)
		run.AddError("scrape: " + err.Error())
		return
	}
	log.Info("catalog scraped", "products", len(products))
}

func (s *Service) publish(ctx context.Context, run *pipeline.Run, log *slog.Logger) error {
	if s.publisher == nil {
		return nil
	}
	run.SetStatus(pipeline.StatusPublishing, "publishing")
	s.status(ctx, run, "Загрузка данных в Google Sheets...")

	files, err := ExcelFiles(s.cfg.ExcelDir)
	if err != nil {
		log.Error("listing xlsx failed", "error", err)
		run.AddError("publish: " + err.Error())
		return nil
	}
	if len(files) == 0 {
		log.Warn("no xlsx files to publish", "dir", s.cfg.ExcelDir)
		return nil
	}

	link, err := s.publisher.Publish(ctx, files)
	switch {
	case publish.IsQuotaExceeded(err):
		log.Warn("sharing quota exhausted, skipping publish")
		run.AddError("publish skipped: sharing quota exhausted")
		return nil
	case err != nil:
		log.Error("publish failed", "error", err)
		return fmt.Errorf("publish: %w", err)
	}
	run.SetSheetURL(link)
	log.Info("published", "url", link, "sheets", len(files))
	s.status(ctx, run, "✅ Данные загружены в Google Sheets: "+link)
	return nil
}

// ExcelFiles lists the xlsx files of dir in name order.
func ExcelFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
