package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	name    string
	started chan struct{}
	release chan struct{}
	runs    int32
}

func (b *blockingJob) Name() string { return b.name }

func (b *blockingJob) Run() error {
	atomic.AddInt32(&b.runs, 1)
	close(b.started)
	<-b.release
	return nil
}

func TestScheduler_SkipsFireWhileJobStillRunning(t *testing.T) {
	s := New(zerolog.Nop())
	job := &blockingJob{name: "collect-all", started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, s.AddJob("@every 1h", job))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.fire(s.entries["collect-all"])
	}()

	<-job.started
	assert.True(t, s.IsCollecting())

	// A concurrent fire while the job is still running must be skipped.
	s.fire(s.entries["collect-all"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))

	close(job.release)
	wg.Wait()
	assert.False(t, s.IsCollecting())
}

func TestScheduler_StateReportsLastRun(t *testing.T) {
	s := New(zerolog.Nop())
	job := &blockingJob{name: "catalog-collect", started: make(chan struct{}), release: make(chan struct{})}
	close(job.release)
	require.NoError(t, s.AddJob("@every 1h", job))

	s.fire(s.entries["catalog-collect"])

	state := s.State()
	require.Len(t, state, 1)
	assert.Equal(t, "catalog-collect", state[0].Name)
	assert.WithinDuration(t, time.Now(), state[0].LastRun, 5*time.Second)
	assert.False(t, state[0].Running)
}
