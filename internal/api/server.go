package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/pricebot/internal/config"
	"github.com/dgallion1/pricebot/internal/forward"
	"github.com/dgallion1/pricebot/internal/metrics"
	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/pipeline"
	"github.com/dgallion1/pricebot/internal/tabular"
)

// Runs is the run queue the API submits to and reads from.
type Runs interface {
	Submit(run *pipeline.Run) error
	GetRun(id string) *pipeline.Run
	LatestRun() *pipeline.Run
	QueueDepth() int
}

// Extractor turns one uploaded price list into a table.
type Extractor interface {
	Extract(ctx context.Context, path string) tabular.Table
}

// Deps are the components the API exposes. Nil members disable their
// endpoints.
type Deps struct {
	Runs       Runs
	Extractor  Extractor
	OCRStats   *ocr.Stats
	Forwarding *forward.Config
}

// Server is the admin HTTP API of the bot.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AdminAPIKey, s.log))

		r.Post("/api/runs", s.handleStartRun)
		r.Get("/api/runs/latest", s.handleLatestRun)
		r.Get("/api/runs/{runID}", s.handleRunStatus)
		r.Get("/api/runs/{runID}/report", s.handleRunReport)

		r.Post("/api/extract", s.handleExtract)

		r.Get("/api/stats/ocr", s.handleOCRStats)
		r.Get("/api/forwarding", s.handleForwarding)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
