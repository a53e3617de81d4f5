package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
)

// ErrRunInProgress is returned when an index run is requested while another
// one is still running.
var ErrRunInProgress = errors.New("index run already in progress")

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context, processed domain.HashSet, limit int) (*domain.RunReport, error)
}

// Ledger holds the hashes persisted by earlier runs.
type Ledger interface {
	Load(ctx context.Context) (domain.HashSet, error)
	Add(ctx context.Context, hashes []string) error
}

// IndexJob threads dedup state through successive index runs. Runs never
// overlap: cron ticks and manual triggers share one lock.
type IndexJob struct {
	runner Runner
	ledger Ledger
	limit  int
	logger *slog.Logger

	running sync.Mutex

	mu        sync.RWMutex
	latest    *domain.RunReport
	listeners []func(*domain.RunReport)
}

// NewIndexJob creates an IndexJob. limit caps the casts fetched per run.
func NewIndexJob(runner Runner, ledger Ledger, limit int, logger *slog.Logger) *IndexJob {
	return &IndexJob{
		runner: runner,
		ledger: ledger,
		limit:  limit,
		logger: logger,
	}
}

// Subscribe registers fn to receive every finished run report.
func (j *IndexJob) Subscribe(fn func(*domain.RunReport)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.listeners = append(j.listeners, fn)
}

// Latest returns the most recent run report, or nil before the first run.
func (j *IndexJob) Latest() *domain.RunReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest
}

// Execute adapts Run to a scheduler Job.
func (j *IndexJob) Execute(ctx context.Context) error {
	_, err := j.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		j.logger.Info("index run skipped, previous run still in progress")
		return nil
	}
	return err
}

// Run loads the dedup state, runs the pipeline and records the persisted
// hashes. Hashes are recorded even when the run failed after writing casts.
func (j *IndexJob) Run(ctx context.Context) (*domain.RunReport, error) {
	if !j.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer j.running.Unlock()

	processed, err := j.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load processed hashes: %w", err)
	}

	report, runErr := j.runner.Run(ctx, processed, j.limit)
	if report == nil {
		return nil, runErr
	}

	if len(report.Hashes) > 0 {
		if err := j.ledger.Add(ctx, report.Hashes); err != nil {
			j.logger.Error("record processed hashes", "run_id", report.ID, "hashes", len(report.Hashes), "error", err)
		}
	}

	j.publish(report)
	return report, runErr
}

func (j *IndexJob) publish(report *domain.RunReport) {
	j.mu.Lock()
	j.latest = report
	listeners := make([]func(*domain.RunReport), len(j.listeners))
	copy(listeners, j.listeners)
	j.mu.Unlock()

	for _, fn := range listeners {
		fn(report)
	}
}
