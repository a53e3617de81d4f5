package domain

import (
	"time"

	"github.com/google/uuid"
)

// SlowRunThreshold is the run duration above which a warning is logged.
const SlowRunThreshold = 60 * time.Second

// RunReport summarizes one pipeline run.
type RunReport struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	Fetched   int `json:"fetched"`
	Persisted int `json:"persisted"`

	ExplicitTags   int `json:"explicit_tags"`
	SuggestedTags  int `json:"suggested_tags"`
	ImplicitTags   int `json:"implicit_tags"`
	VocabularySize int `json:"vocabulary_size"`

	// Hashes lists every cast written by this run, including when a later
	// stage failed. Callers fold it into their dedup state.
	Hashes []string `json:"-"`

	Error string `json:"error,omitempty"`
}

func newRunReport(now time.Time) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		StartedAt: now.UTC(),
	}
}

// Failed reports whether the run ended with an error.
func (r *RunReport) Failed() bool {
	return r.Error != ""
}
