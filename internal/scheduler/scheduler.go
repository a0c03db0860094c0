// Package scheduler wraps robfig/cron to fire the collection jobs on a
// KST-calendar schedule: daily prices/flows/news, weekday-only fundamentals,
// and a weekly catalog refresh. It never runs collection itself, only calls
// through the Job interface, and skips a fire if that job kind is already
// running (collection is non-reentrant, see internal/collector).
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of scheduled work. Run executes it once and returns
// any error encountered; the scheduler skips a fire while the job's
// previous run is still in progress.
type Job interface {
	Run() error
	Name() string
}

// JobState is the queryable status of one registered job.
type JobState struct {
	Name               string    `json:"name"`
	Schedule           string    `json:"schedule"`
	LastRun            time.Time `json:"lastRun,omitempty"`
	LastErr            string    `json:"lastError,omitempty"`
	NextRun            time.Time `json:"nextRun,omitempty"`
	Running            bool      `json:"running"`
}

// Scheduler manages background jobs on KST-anchored cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	loc  *time.Location

	mu      sync.Mutex
	entries map[string]*jobEntry
}

type jobEntry struct {
	job      Job
	schedule string
	entryID  cron.EntryID
	running  bool
	lastRun  time.Time
	lastErr  error
}

// New creates a scheduler whose cron expressions are evaluated in the
// Asia/Seoul timezone, falling back to UTC if the zone database is
// unavailable.
func New(log zerolog.Logger) *Scheduler {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.UTC
		log.Warn().Err(err).Msg("Asia/Seoul zone unavailable, scheduler falling back to UTC")
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		log:     log.With().Str("component", "scheduler").Logger(),
		loc:     loc,
		entries: make(map[string]*jobEntry),
	}
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop drains any in-flight job fire and stops the cron loop.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers a job under a standard five/six-field cron expression,
// evaluated in the scheduler's timezone.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	entry := &jobEntry{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() { s.fire(entry) })
	if err != nil {
		return err
	}
	entry.entryID = id

	s.mu.Lock()
	s.entries[job.Name()] = entry
	s.mu.Unlock()

	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

func (s *Scheduler) fire(e *jobEntry) {
	s.mu.Lock()
	if e.running {
		s.mu.Unlock()
		s.log.Debug().Str("job", e.job.Name()).Msg("fire skipped, already running")
		return
	}
	e.running = true
	s.mu.Unlock()

	s.log.Debug().Str("job", e.job.Name()).Msg("running job")
	err := e.job.Run()

	s.mu.Lock()
	e.running = false
	e.lastRun = time.Now()
	e.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", e.job.Name()).Msg("job failed")
	} else {
		s.log.Debug().Str("job", e.job.Name()).Msg("job completed")
	}
}

// RunNow executes a job immediately, outside its schedule, subject to the
// same already-running skip as a cron fire.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	go s.fire(e)
	return true
}

// State reports the queryable status of every registered job.
func (s *Scheduler) State() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobState, 0, len(s.entries))
	for name, e := range s.entries {
		js := JobState{Name: name, Schedule: e.schedule, LastRun: e.lastRun, Running: e.running}
		if e.lastErr != nil {
			js.LastErr = e.lastErr.Error()
		}
		for _, ce := range s.cron.Entries() {
			if ce.ID == e.entryID {
				js.NextRun = ce.Next
			}
		}
		out = append(out, js)
	}
	return out
}

// IsCollecting reports whether any registered job is currently running.
func (s *Scheduler) IsCollecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.running {
			return true
		}
	}
	return false
}
