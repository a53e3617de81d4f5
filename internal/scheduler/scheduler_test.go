package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
	"github.com/psatyajeet/farcaster-indexer/internal/ledger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	mu        sync.Mutex
	processed []domain.HashSet
	limits    []int
	hashes    [][]string
	err       error
	block     chan struct{}
	started   chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, processed domain.HashSet, limit int) (*domain.RunReport, error) {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	call := len(r.processed)
	r.processed = append(r.processed, processed)
	r.limits = append(r.limits, limit)

	report := &domain.RunReport{ID: "run"}
	if call < len(r.hashes) {
		report.Hashes = r.hashes[call]
	}
	if r.err != nil {
		report.Error = r.err.Error()
	}
	return report, r.err
}

func TestIndexJob_ThreadsDedupState(t *testing.T) {
	runner := &fakeRunner{hashes: [][]string{{"a", "b"}, {"c"}}}
	led := ledger.NewMemory(0)
	job := NewIndexJob(runner, led, 10000, discardLogger())

	var reports []*domain.RunReport
	job.Subscribe(func(r *domain.RunReport) { reports = append(reports, r) })

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, runner.processed, 2)
	assert.Empty(t, runner.processed[0])
	assert.Equal(t, domain.NewHashSet("a", "b"), runner.processed[1])
	assert.Equal(t, []int{10000, 10000}, runner.limits)
	assert.Equal(t, 3, led.Len())
	assert.Len(t, reports, 2)
	assert.Same(t, reports[1], job.Latest())
}

func TestIndexJob_RecordsHashesOnFailure(t *testing.T) {
	errTags := errors.New("upsert explicit tags: boom")
	runner := &fakeRunner{hashes: [][]string{{"a"}}, err: errTags}
	led := ledger.NewMemory(0)
	job := NewIndexJob(runner, led, 0, discardLogger())

	report, err := job.Run(context.Background())

	require.ErrorIs(t, err, errTags)
	require.NotNil(t, report)
	assert.True(t, report.Failed())
	assert.Equal(t, 1, led.Len())
	assert.Same(t, report, job.Latest())
}

func TestIndexJob_RejectsOverlap(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	job := NewIndexJob(runner, ledger.NewMemory(0), 0, discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()
	<-runner.started

	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.NoError(t, job.Execute(context.Background()))

	close(runner.block)
	require.NoError(t, <-done)
}

type failingLedger struct{}

func (failingLedger) Load(context.Context) (domain.HashSet, error) {
	return nil, errors.New("redis down")
}

func (failingLedger) Add(context.Context, []string) error { return nil }

func TestIndexJob_LedgerLoadFailure(t *testing.T) {
	runner := &fakeRunner{}
	job := NewIndexJob(runner, failingLedger{}, 0, discardLogger())

	_, err := job.Run(context.Background())

	require.Error(t, err)
	assert.Empty(t, runner.processed)
	assert.Nil(t, job.Latest())
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(discardLogger(), time.Minute)

	require.NoError(t, s.AddJob("index", "* * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.AddJob("backfill", "0 * * * *", func(context.Context) error { return nil }))
	assert.Error(t, s.AddJob("bad", "not a schedule", func(context.Context) error { return nil }))

	s.Start()
	defer s.Stop()

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "backfill", jobs[0].Name)
	assert.Equal(t, "index", jobs[1].Name)
	assert.False(t, jobs[1].NextRun.IsZero())
}

func TestScheduler_ExecuteAppliesTimeout(t *testing.T) {
	s := New(discardLogger(), 10*time.Millisecond)

	var deadline bool
	s.execute("index", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return errors.New("ignored")
	})

	assert.True(t, deadline)
}
