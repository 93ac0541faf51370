package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Bot run modes.
const (
	ModeFull        = "full"
	ModeForwardOnly = "forward-only"
	ModeCollectOnly = "collect-only"
)

type Config struct {
	Port     string
	Mode     string
	LogLevel string

	// Auth
	AdminAPIKey string

	// Telegram Bot API
	TelegramToken  string
	TelegramAPIURL string
	TelegramRate   float64
	FoldersFile    string
	JournalPath    string
	HistoryLimit   int

	// Folder titles
	ForwardFolder string
	CollectFolder string
	AdminsFolder  string

	// Forwarding
	ForwardConfigFile string

	// Collection
	PDFKeywords        []string
	KeywordExemptChats []string
	DataDir            string
	ExcelDir           string
	CollectCron        string
	RunTimeout         time.Duration

	// Extraction
	ProfilesFile string
	TesseractBin string
	OCRWorkers   int

	// Catalog scraper
	ScraperURL     string
	ScraperWorkers int
	ScraperTimeout time.Duration

	// Google Sheets
	GoogleCredentialsFile string
	SheetsFolder          string
	SheetsEmails          []string

	// Run queue
	WorkerCount  int
	MaxQueueSize int
	RunTTL       time.Duration

	// Upload limits
	MaxUploadBytes int64
}

// Load reads the environment, after merging a .env file from the working
// directory if one exists. Variables already set take precedence.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:     envOr("PORT", "8090"),
		Mode:     envOr("MODE", ModeFull),
		LogLevel: envOr("LOG_LEVEL", "info"),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIURL: envOr("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramRate:   envFloat("TELEGRAM_RATE", 25),
		FoldersFile:    envOr("FOLDERS_FILE", "folders.yaml"),
		JournalPath:    envOr("JOURNAL_PATH", "data/journal.db"),
		HistoryLimit:   envInt("HISTORY_LIMIT", 100),

		ForwardFolder: envOr("FORWARD_FOLDER", "Forward Bot"),
		CollectFolder: envOr("COLLECT_FOLDER", "Collect Bot"),
		AdminsFolder:  envOr("ADMINS_FOLDER", "Admins Bot"),

		ForwardConfigFile: envOr("FORWARD_CONFIG_FILE", "forwarding_config.json"),

		PDFKeywords:        envList("PDF_KEYWORDS", []string{"прайс", "price", "ibmm", "promminer", "uminers"}),
		KeywordExemptChats: envList("KEYWORD_EXEMPT_CHATS", nil),
		DataDir:            envOr("DATA_DIR", "data/downloads"),
		ExcelDir:           envOr("EXCEL_DIR", "data/excel"),
		CollectCron:        os.Getenv("COLLECT_CRON"),
		RunTimeout:         envDuration("RUN_TIMEOUT", 600*time.Second),

		ProfilesFile: os.Getenv("PROFILES_FILE"),
		TesseractBin: envOr("TESSERACT_BIN", "tesseract"),
		OCRWorkers:   envInt("OCR_WORKERS", 4),

		ScraperURL:     envOr("SCRAPER_URL", "https://uminers.com/catalog"),
		ScraperWorkers: envInt("SCRAPER_WORKERS", 5),
		ScraperTimeout: envDuration("SCRAPER_TIMEOUT", 20*time.Second),

		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		SheetsFolder:          envOr("SHEETS_FOLDER", "Price lists"),
		SheetsEmails:          envList("SHEETS_EMAILS", nil),

		WorkerCount:  envInt("WORKER_COUNT", 1),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 10),
		RunTTL:       envDuration("RUN_TTL", 24*time.Hour),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
	}

	if cfg.TelegramRate <= 0 {
		cfg.TelegramRate = 25
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 600 * time.Second
	}
	if cfg.OCRWorkers <= 0 {
		cfg.OCRWorkers = 4
	}
	if cfg.ScraperWorkers <= 0 {
		cfg.ScraperWorkers = 5
	}
	if cfg.ScraperTimeout <= 0 {
		cfg.ScraperTimeout = 20 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 10
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 24 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}

	return cfg
}

// Validate checks what the long-running bot needs. Offline subcommands
// skip it.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeFull, ModeForwardOnly, ModeCollectOnly:
	default:
		return fmt.Errorf("MODE must be one of %s, %s, %s; got %q", ModeFull, ModeForwardOnly, ModeCollectOnly, c.Mode)
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AdminAPIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required")
	}
	return nil
}

// Forwarding reports whether the mode runs the forwarding handler.
func (c Config) Forwarding() bool {
	return c.Mode == ModeFull || c.Mode == ModeForwardOnly
}

// Collecting reports whether the mode runs collection.
func (c Config) Collecting() bool {
	return c.Mode == ModeFull || c.Mode == ModeCollectOnly
}

// Publishing reports whether Google Sheets credentials are configured.
func (c Config) Publishing() bool {
	return c.GoogleCredentialsFile != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
