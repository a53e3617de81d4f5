package domain

import (
	"context"
	"fmt"
)

// VocabularyPageSize is the window used to read the tag vocabulary back.
const VocabularyPageSize = 1000

// LoadVocabulary reads every distinct explicit tag from store, one page at a
// time, until a short page is returned.
func LoadVocabulary(ctx context.Context, store CastStore, pageSize int) ([]string, error) {
	if pageSize < 1 {
		pageSize = VocabularyPageSize
	}

	seen := make(map[string]struct{})
	var vocabulary []string

	for offset := 0; ; offset += pageSize {
		page, err := store.ListTagVocabulary(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list tag vocabulary at offset %d: %w", offset, err)
		}
		for _, tag := range page {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			vocabulary = append(vocabulary, tag)
		}
		if len(page) < pageSize {
			return vocabulary, nil
		}
	}
}
