package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/pricebot/internal/config"
	"github.com/dgallion1/pricebot/internal/metrics"
)

// Runner executes one run's stages. It updates the run's status as it goes
// and returns an error only when the run as a whole failed.
type Runner interface {
	Execute(ctx context.Context, run *Run) error
}

// ErrQueueFull is returned by Submit when no queue slot is free.
var ErrQueueFull = errors.New("run queue is full")

// Orchestrator queues collection runs and executes them on a fixed set of
// workers, each under a timeout.
type Orchestrator struct {
	runs    *RunStore
	queue   chan *Run
	runner  Runner
	log     *slog.Logger
	workers int
	timeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, runner Runner, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runs:    NewRunStore(cfg.RunTTL),
		queue:   make(chan *Run, cfg.MaxQueueSize),
		runner:  runner,
		log:     log,
		workers: cfg.WorkerCount,
		timeout: cfg.RunTimeout,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case run, ok := <-o.queue:
					if !ok {
						return
					}
					metrics.QueueDepth.Set(float64(len(o.queue)))
					o.Execute(workerCtx, run)
				}
			}
		}()
	}

	// Start run store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.runs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a run for processing.
func (o *Orchestrator) Submit(run *Run) error {
	o.runs.Put(run)
	select {
	case o.queue <- run:
		metrics.QueueDepth.Set(float64(len(o.queue)))
		return nil
	default:
		run.SetStatus(StatusFailed, "queue_full")
		metrics.Runs.WithLabelValues(string(StatusFailed)).Inc()
		return fmt.Errorf("%w (%d)", ErrQueueFull, cap(o.queue))
	}
}

// Execute runs one run synchronously under the run timeout and returns
// its final state. A run that outlives the timeout is marked failed.
func (o *Orchestrator) Execute(ctx context.Context, run *Run) RunSnapshot {
	o.runs.Put(run)
	log := o.log.With("run_id", run.ID, "trigger", run.Trigger)

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	log.Info("run started")
	err := o.runner.Execute(runCtx, run)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		log.Error("run timed out", "timeout", o.timeout)
		run.AddError(fmt.Sprintf("timed out after %s", o.timeout))
		run.SetStatus(StatusFailed, "timeout")
	case err != nil:
		log.Error("run failed", "error", err)
		run.AddError(err.Error())
		run.SetStatus(StatusFailed, run.Snapshot().Phase)
	default:
		if snap := run.Snapshot(); !snap.Status.Terminal() {
			status := StatusCompleted
			if len(snap.Progress.Errors) > 0 {
				status = StatusPartial
			}
			run.SetStatus(status, "done")
		}
	}

	snap := run.Snapshot()
	metrics.Runs.WithLabelValues(string(snap.Status)).Inc()
	log.Info("run finished", "status", snap.Status, "files", snap.Progress.Files, "elapsed", time.Since(start))
	return snap
}

// GetRun returns a run by ID.
func (o *Orchestrator) GetRun(id string) *Run {
	return o.runs.Get(id)
}

// LatestRun returns the most recent run, or nil.
func (o *Orchestrator) LatestRun() *Run {
	return o.runs.Latest()
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
