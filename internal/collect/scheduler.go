package collect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/dgallion1/pricebot/internal/pipeline"
)

// Scheduler submits a collection run on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	runs   Submitter
	logger *slog.Logger
}

// NewScheduler creates a scheduler for the standard 5-field cron spec.
func NewScheduler(spec string, runs Submitter, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Scheduler{
		cron:   c,
		spec:   spec,
		runs:   runs,
		logger: logger,
	}
}

// Start registers the collection job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.submit); err != nil {
		return fmt.Errorf("collect schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("spec", s.spec),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop stops the cron loop. The returned context is done once a job that
// is already submitting has returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow submits a collection run immediately.
func (s *Scheduler) RunNow() {
	s.submit()
}

func (s *Scheduler) submit() {
	run := pipeline.NewRun(pipeline.TriggerCron)
	if err := s.runs.Submit(run); err != nil {
		s.logger.Error("scheduled collection not queued", slog.String("run_id", run.ID), slog.Any("error", err))
		return
	}
	s.logger.Info("scheduled collection queued", slog.String("run_id", run.ID))
}
