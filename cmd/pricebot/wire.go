package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dgallion1/pricebot/internal/collect"
	"github.com/dgallion1/pricebot/internal/config"
	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/parser"
	"github.com/dgallion1/pricebot/internal/publish"
	"github.com/dgallion1/pricebot/internal/scraper"
	"github.com/dgallion1/pricebot/internal/telegram"
)

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func newExtractor(cfg config.Config, stats *ocr.Stats, log *slog.Logger) (*parser.Extractor, error) {
	profiles, err := parser.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}
	tess := ocr.NewTesseract(cfg.TesseractBin, stats, log.With("component", "ocr"))
	return parser.NewExtractor(profiles, parser.FitzRenderer{}, tess, cfg.OCRWorkers, log.With("component", "extract")), nil
}

func newScraper(cfg config.Config, log *slog.Logger) scraper.Job {
	return scraper.Job{
		Options: scraper.Options{
			URL:     cfg.ScraperURL,
			Workers: cfg.ScraperWorkers,
			Timeout: cfg.ScraperTimeout,
			OutDir:  cfg.ExcelDir,
		},
		Factory: scraper.NewHTTPFactory(&http.Client{Timeout: 30 * time.Second}),
		Log:     log.With("component", "scraper"),
	}
}

// newPublisher returns nil when no Google credentials are configured.
func newPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (collect.Publisher, error) {
	if !cfg.Publishing() {
		log.Warn("GOOGLE_CREDENTIALS_FILE not set, publishing disabled")
		return nil, nil
	}
	p, err := publish.New(ctx, publish.Options{
		CredentialsFile: cfg.GoogleCredentialsFile,
		Folder:          cfg.SheetsFolder,
		Emails:          cfg.SheetsEmails,
	}, log.With("component", "publish"))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// newTelegram opens the journal and folder file and builds the Bot API
// client. The returned close func releases both.
func newTelegram(cfg config.Config, log *slog.Logger) (*telegram.Client, func(), error) {
	if cfg.TelegramToken == "" {
		return nil, nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	folders, err := telegram.LoadFolders(cfg.FoldersFile)
	if err != nil {
		return nil, nil, err
	}
	journal, err := telegram.OpenJournal(cfg.JournalPath)
	if err != nil {
		return nil, nil, err
	}
	client, err := telegram.NewClient(telegram.Options{
		BaseURL: cfg.TelegramAPIURL,
		Token:   cfg.TelegramToken,
		Rate:    cfg.TelegramRate,
	}, journal, folders, log.With("component", "telegram"))
	if err != nil {
		journal.Close()
		return nil, nil, err
	}

	closeFn := func() {
		client.Close()
		if err := journal.Close(); err != nil {
			log.Error("journal close failed", "error", err)
		}
	}
	return client, closeFn, nil
}

// newService wires the collection chain on top of a Bot API client.
func newService(ctx context.Context, cfg config.Config, client *telegram.Client, extractor *parser.Extractor, log *slog.Logger) (*collect.Service, error) {
	publisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	collector := collect.NewCollector(client, collect.Options{
		Keywords:     cfg.PDFKeywords,
		Exempt:       cfg.KeywordExemptChats,
		HistoryLimit: cfg.HistoryLimit,
	}, log.With("component", "collect"))

	return collect.NewService(collect.ServiceConfig{
		Folder:   cfg.CollectFolder,
		DataDir:  cfg.DataDir,
		ExcelDir: cfg.ExcelDir,
	}, client.Folders(), collector, extractor, newScraper(cfg, log), publisher, log.With("component", "collect")), nil
}
