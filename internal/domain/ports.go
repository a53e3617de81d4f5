package domain

import "context"

// CastFetcher retrieves recent casts from the upstream feed.
type CastFetcher interface {
	// FetchCasts walks the feed from the newest page until the feed is
	// exhausted or limit casts were collected. A limit of 0 means no limit.
	// Every call starts a fresh walk.
	FetchCasts(ctx context.Context, limit int) ([]RawCast, error)
}

// CastStore defines persistence operations for casts and their tags. All
// writes are idempotent upserts on the table's conflict key.
type CastStore interface {
	// UpsertCasts inserts or overwrites casts keyed by hash.
	UpsertCasts(ctx context.Context, casts []FlattenedCast) error

	// UpsertCastTags inserts or overwrites tags keyed by (cast_hash, tag).
	UpsertCastTags(ctx context.Context, tags []CastTag) error

	// ListTagVocabulary returns one page of distinct explicit tag values in
	// a stable order.
	ListTagVocabulary(ctx context.Context, offset, limit int) ([]string, error)
}

// TagSuggester proposes tags for a cast's text. Implementations are
// optional; callers treat every error as "no suggestions".
type TagSuggester interface {
	SuggestTags(ctx context.Context, text string) ([]string, error)
}
