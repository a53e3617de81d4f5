package domain

import "errors"

var (
	// ErrMissingCasts is returned when an upstream page has no casts field.
	// The page contract is violated and nothing from the fetch is usable.
	ErrMissingCasts = errors.New("upstream page is missing casts")

	// ErrInvalidChunkSize is returned for a chunk size below 1.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)
