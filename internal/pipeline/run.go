package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a collection run.
type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusCollecting RunStatus = "collecting"
	StatusExtracting RunStatus = "extracting"
	StatusScraping   RunStatus = "scraping"
	StatusPublishing RunStatus = "publishing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusPartial    RunStatus = "partial"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// Trigger names what started a run.
type Trigger string

const (
	TriggerChat Trigger = "chat"
	TriggerCron Trigger = "cron"
	TriggerAPI  Trigger = "api"
	TriggerCLI  Trigger = "cli"
)

// Run tracks one collect → extract → scrape → publish cycle.
type Run struct {
	mu sync.Mutex

	ID      string  `json:"run_id"`
	Trigger Trigger `json:"trigger"`

	Status RunStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	Dir       string    `json:"dir,omitempty"`
	Report    string    `json:"report,omitempty"`
	SheetURL  string    `json:"sheet_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Notify, if set, is called on every status change. Not serialized.
	Notify func(RunSnapshot) `json:"-"`

	errors []string
}

// Progress counts what a run produced so far.
type Progress struct {
	ChatsScanned int      `json:"chats_scanned"`
	Files        int      `json:"files"`
	Tables       int      `json:"tables"`
	Products     int      `json:"products"`
	Errors       []string `json:"errors"`
}

// NewRun returns a queued run with a time-ordered id.
func NewRun(trigger Trigger) *Run {
	now := time.Now()
	return &Run{
		ID:        newID(),
		Trigger:   trigger,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SetStatus updates run status atomically.
func (r *Run) SetStatus(status RunStatus, phase string) {
	r.mu.Lock()
	r.Status = status
	r.Phase = phase
	r.UpdatedAt = time.Now()
	notify := r.Notify
	snap := r.snapshotLocked()
	r.mu.Unlock()
	if notify != nil {
		notify(snap)
	}
}

// AddError records an error without changing status.
func (r *Run) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.Progress.Errors = r.errors
	r.UpdatedAt = time.Now()
}

// Update applies fn to the progress counters under the run lock.
func (r *Run) Update(fn func(p *Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.Progress)
	r.UpdatedAt = time.Now()
}

// SetDir records the collection directory.
func (r *Run) SetDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Dir = dir
}

// SetReport stores the plain-text collection report.
func (r *Run) SetReport(report string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Report = report
	r.UpdatedAt = time.Now()
}

// SetSheetURL stores the published spreadsheet link.
func (r *Run) SetSheetURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SheetURL = url
	r.UpdatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID        string    `json:"run_id"`
	Trigger   Trigger   `json:"trigger"`
	Status    RunStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
	Dir       string    `json:"dir,omitempty"`
	Report    string    `json:"report,omitempty"`
	SheetURL  string    `json:"sheet_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Run) snapshotLocked() RunSnapshot {
	errs := make([]string, len(r.errors))
	copy(errs, r.errors)
	p := r.Progress
	p.Errors = errs
	return RunSnapshot{
		ID:        r.ID,
		Trigger:   r.Trigger,
		Status:    r.Status,
		Phase:     r.Phase,
		Progress:  p,
		Dir:       r.Dir,
		Report:    r.Report,
		SheetURL:  r.SheetURL,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RunStore is a thread-safe in-memory run registry with TTL eviction.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// Latest returns the most recently created run, or nil.
func (s *RunStore) Latest() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Run
	for _, r := range s.runs {
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest
}

// Cleanup removes finished runs older than the TTL.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, run := range s.runs {
		snap := run.Snapshot()
		if snap.Status.Terminal() && now.Sub(snap.UpdatedAt) > s.ttl {
			delete(s.runs, id)
		}
	}
}
