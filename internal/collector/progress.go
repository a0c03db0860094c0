package collector

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a background job tracked by the
// ProgressRegistry.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// Job kinds tracked process-wide, one Progress slot each.
const (
	JobCollectAll      = "collect-all"
	JobCatalogCollect  = "catalog-collect"
	JobScreeningCollect = "screening-collect"
)

// Progress is a throttled, queryable, cancellable snapshot of an in-flight
// background job. Callers poll Snapshot() rather than subscribing to
// events; cancellation is requested via Cancel() and observed
// cooperatively via CancelRequested().
type Progress struct {
	mu              sync.Mutex
	status          Status
	current         int
	total           int
	message         string
	phase           string
	cancelRequested bool
	startedAt       time.Time
	lastUpdate      time.Time
	minInterval     time.Duration
}

// NewProgress creates an idle Progress slot for a job with the given total
// unit count, throttled to at most one update per minInterval (except at
// completion, which always reports).
func NewProgress(total int) *Progress {
	return &Progress{
		status:      StatusIdle,
		total:       total,
		startedAt:   time.Now(),
		minInterval: 100 * time.Millisecond,
	}
}

// Start transitions the job to in_progress.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusInProgress
	p.startedAt = time.Now()
	p.lastUpdate = p.startedAt
}

// Report records current/total progress, subject to throttling.
func (p *Progress) Report(current int, phase, message string) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastUpdate) < p.minInterval && current != p.total {
		return
	}
	p.current = current
	p.phase = phase
	p.message = message
	p.lastUpdate = now
}

// ReportUnthrottled always records, bypassing the throttle. Used for phase
// transitions and the final completion report.
func (p *Progress) ReportUnthrottled(current int, phase, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.phase = phase
	p.message = message
	p.lastUpdate = time.Now()
}

// Finish marks the job completed, unless it was cancelled or errored
// in-flight, in which case that terminal status is preserved.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusInProgress {
		p.status = StatusCompleted
	}
	p.lastUpdate = time.Now()
}

// Fail marks the job errored.
func (p *Progress) Fail(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusError
	p.message = message
	p.lastUpdate = time.Now()
}

// Cancel requests cooperative cancellation. The running job observes this
// via CancelRequested() between tickers/sub-tasks and exits, marking the
// job cancelled.
func (p *Progress) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelRequested = true
}

// CancelRequested reports whether Cancel has been called for this run.
func (p *Progress) CancelRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelRequested
}

// MarkCancelled transitions the job to cancelled, called by the loop once
// it observes CancelRequested and exits.
func (p *Progress) MarkCancelled() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusCancelled
	p.lastUpdate = time.Now()
}

// Snapshot is a point-in-time, immutable view of a Progress.
type Snapshot struct {
	Status          Status        `json:"status"`
	Current         int           `json:"current"`
	Total           int           `json:"total"`
	Percent         float64       `json:"percent"`
	Phase           string        `json:"phase"`
	Message         string        `json:"message"`
	Elapsed         int64         `json:"elapsedMs"`
	CancelRequested bool          `json:"cancelRequested"`
}

// Snapshot returns the current state of the progress reporter.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pct float64
	if p.total > 0 {
		pct = 100 * float64(p.current) / float64(p.total)
		if pct > 100 {
			pct = 100
		}
	}
	return Snapshot{
		Status:          p.status,
		Current:         p.current,
		Total:           p.total,
		Percent:         pct,
		Phase:           p.phase,
		Message:         p.message,
		Elapsed:         time.Since(p.startedAt).Milliseconds(),
		CancelRequested: p.cancelRequested,
	}
}

// Registry holds one Progress slot per job kind (collect-all,
// catalog-collect, screening-collect), all addressable process-wide by
// polling consumers.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Progress
}

// NewRegistry creates an empty job registry; every kind starts idle until
// Begin is first called for it.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Progress)}
}

// Begin creates and registers a fresh Progress for the given job kind,
// replacing any previous (necessarily completed/cancelled/errored) slot.
func (r *Registry) Begin(kind string, total int) *Progress {
	p := NewProgress(total)
	p.Start()
	r.mu.Lock()
	r.jobs[kind] = p
	r.mu.Unlock()
	return p
}

// Get returns the current Progress for a job kind, if any job of that kind
// has ever run.
func (r *Registry) Get(kind string) (*Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.jobs[kind]
	return p, ok
}

// Snapshot returns the current snapshot for a job kind, or an idle zero
// value if the job has never run.
func (r *Registry) Snapshot(kind string) Snapshot {
	p, ok := r.Get(kind)
	if !ok {
		return Snapshot{Status: StatusIdle}
	}
	return p.Snapshot()
}

// CancelByKind requests cooperative cancellation of the currently running
// job of the given kind, if any.
func (r *Registry) CancelByKind(kind string) bool {
	p, ok := r.Get(kind)
	if !ok {
		return false
	}
	p.Cancel()
	return true
}
