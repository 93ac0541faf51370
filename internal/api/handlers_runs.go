package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pricebot/internal/collect"
	"github.com/dgallion1/pricebot/internal/pipeline"
)

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		jsonError(w, "collection is disabled in this mode", http.StatusServiceUnavailable)
		return
	}
	run := pipeline.NewRun(pipeline.TriggerAPI)
	if err := s.deps.Runs.Submit(run); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrQueueFull) {
			code = http.StatusServiceUnavailable
		}
		jsonError(w, err.Error(), code)
		return
	}

	snap := run.Snapshot()
	w.Header().Set(RunIDHeader, snap.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"run_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/runs/%s", snap.ID),
		"queued":   s.deps.Runs.QueueDepth(),
	})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	run := s.lookupRun(w, chi.URLParam(r, "runID"))
	if run == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run.Snapshot())
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	s.handleRunStatus(w, r)
}

// handleRunReport serves the collection report as HTML, or as the original
// text with ?format=text.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run := s.lookupRun(w, chi.URLParam(r, "runID"))
	if run == nil {
		return
	}
	report := run.Snapshot().Report
	if report == "" {
		jsonError(w, "run has no report yet", http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(report))
		return
	}
	html, err := collect.ReportHTML(report)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// lookupRun resolves a run id, or "latest" when the route has no id. It
// writes the error response itself and returns nil on failure.
func (s *Server) lookupRun(w http.ResponseWriter, id string) *pipeline.Run {
	if s.deps.Runs == nil {
		jsonError(w, "collection is disabled in this mode", http.StatusServiceUnavailable)
		return nil
	}
	var run *pipeline.Run
	if id == "" || id == "latest" {
		run = s.deps.Runs.LatestRun()
	} else {
		run = s.deps.Runs.GetRun(id)
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return nil
	}
	w.Header().Set(RunIDHeader, run.ID)
	return run
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
