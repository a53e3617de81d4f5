// Package ledger remembers which cast hashes earlier index runs persisted.
// The scheduler loads a snapshot before each run and records the run's
// hashes afterwards.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
)

// Memory is a process-local ledger. Entries older than the retention window
// are dropped on each write; a zero retention keeps everything.
type Memory struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(retention time.Duration) *Memory {
	return &Memory{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Load returns a snapshot of the recorded hashes. The caller owns it.
func (m *Memory) Load(_ context.Context) (domain.HashSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := make(domain.HashSet, len(m.seen))
	for h := range m.seen {
		set[h] = struct{}{}
	}
	return set, nil
}

// Add records hashes as persisted now.
func (m *Memory) Add(_ context.Context, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, h := range hashes {
		m.seen[h] = now
	}

	if m.retention > 0 {
		cutoff := now.Add(-m.retention)
		for h, at := range m.seen {
			if at.Before(cutoff) {
				delete(m.seen, h)
			}
		}
	}
	return nil
}

// Len returns the number of recorded hashes.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
