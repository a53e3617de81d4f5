package domain

import (
	"context"
	"fmt"
)

// UpsertInChunks writes records through upsert in sequential slices of at
// most chunkSize. It stops at the first rejected chunk and returns how many
// records were written before it, together with the error.
func UpsertInChunks[T any](ctx context.Context, records []T, chunkSize int, upsert func(context.Context, []T) error) (int, error) {
	if chunkSize < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}

	written := 0
	for start := 0; start < len(records); start += chunkSize {
		end := min(start+chunkSize, len(records))
		if err := upsert(ctx, records[start:end]); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}
