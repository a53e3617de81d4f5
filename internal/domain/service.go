package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultChunkSize is the number of rows sent per upsert call.
const DefaultChunkSize = 1000

// IndexOptions tunes an IndexService. Zero values select the defaults.
type IndexOptions struct {
	// ChunkSize bounds the rows per upsert call.
	ChunkSize int

	// Stopwords are ignored in addition to DefaultStoplist.
	Stopwords []string

	// Suggester is optional. When nil the suggestion stage is skipped.
	Suggester TagSuggester

	// SuggestMaxCasts caps the casts sent to Suggester per run.
	SuggestMaxCasts int
}

// IndexService is the core domain service. It runs the ingestion pipeline:
// fetch, dedup, normalize, persist casts, then extract and persist tags.
type IndexService struct {
	fetcher    CastFetcher
	store      CastStore
	suggester  TagSuggester
	extractor  *TagExtractor
	logger     *slog.Logger
	chunkSize  int
	suggestMax int
	now        func() time.Time
}

// NewIndexService creates an IndexService over the given collaborators.
func NewIndexService(fetcher CastFetcher, store CastStore, logger *slog.Logger, opts IndexOptions) (*IndexService, error) {
	if fetcher == nil || store == nil {
		return nil, fmt.Errorf("index service: fetcher and store are required")
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("index service: %w: %d", ErrInvalidChunkSize, opts.ChunkSize)
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &IndexService{
		fetcher:    fetcher,
		store:      store,
		suggester:  opts.Suggester,
		extractor:  NewTagExtractor(opts.Stopwords...),
		logger:     logger,
		chunkSize:  opts.ChunkSize,
		suggestMax: opts.SuggestMaxCasts,
		now:        time.Now,
	}, nil
}

// Run executes one pass of the pipeline. Casts whose hash is in processed
// are skipped; processed is only read. limit caps the casts fetched, 0
// means no cap.
//
// The returned report is never nil. Its Hashes field lists the casts
// written by this run even when a later stage failed, so the caller can
// extend its dedup state before retrying.
func (s *IndexService) Run(ctx context.Context, processed HashSet, limit int) (*RunReport, error) {
	report := newRunReport(s.now())
	logger := s.logger.With("run_id", report.ID)

	err := s.run(ctx, logger, processed, limit, report)

	report.Duration = s.now().Sub(report.StartedAt)
	if err != nil {
		report.Error = err.Error()
		logger.Error("index run failed", "error", err, "persisted", report.Persisted, "duration", report.Duration)
	} else {
		logger.Info("index run complete",
			"fetched", report.Fetched,
			"persisted", report.Persisted,
			"explicit_tags", report.ExplicitTags,
			"suggested_tags", report.SuggestedTags,
			"implicit_tags", report.ImplicitTags,
			"duration", report.Duration,
		)
	}
	if report.Duration > SlowRunThreshold {
		logger.Warn("index run exceeded threshold", "duration", report.Duration, "threshold", SlowRunThreshold)
	}

	recordRun(ctx, report)
	return report, err
}

func (s *IndexService) run(ctx context.Context, logger *slog.Logger, processed HashSet, limit int, report *RunReport) error {
	raw, err := s.fetcher.FetchCasts(ctx, limit)
	if err != nil {
		return fmt.Errorf("fetch casts: %w", err)
	}
	report.Fetched = len(raw)

	casts := NormalizeAll(Clean(raw, processed))
	logger.Debug("casts cleaned", "fetched", len(raw), "kept", len(casts))

	n, err := UpsertInChunks(ctx, casts, s.chunkSize, s.store.UpsertCasts)
	report.Persisted = n
	report.Hashes = make([]string, n)
	for i := range n {
		report.Hashes[i] = casts[i].Hash
	}
	if err != nil {
		return fmt.Errorf("upsert casts: %w", err)
	}

	explicit := s.extractor.ExplicitTags(casts)
	report.ExplicitTags, err = UpsertInChunks(ctx, explicit, s.chunkSize, s.store.UpsertCastTags)
	if err != nil {
		return fmt.Errorf("upsert explicit tags: %w", err)
	}

	taken := tagIndex(explicit)

	suggested := s.suggest(ctx, logger, casts, taken)
	report.SuggestedTags, err = UpsertInChunks(ctx, suggested, s.chunkSize, s.store.UpsertCastTags)
	if err != nil {
		return fmt.Errorf("upsert suggested tags: %w", err)
	}

	vocabulary, err := LoadVocabulary(ctx, s.store, VocabularyPageSize)
	if err != nil {
		logger.Warn("skipping implicit tags", "error", err)
		return nil
	}
	report.VocabularySize = len(vocabulary)

	implicit, err := s.extractor.ImplicitTags(casts, vocabulary)
	if err != nil {
		logger.Warn("skipping implicit tags", "error", err)
		return nil
	}
	implicit = dropTaken(implicit, taken)

	report.ImplicitTags, err = UpsertInChunks(ctx, implicit, s.chunkSize, s.store.UpsertCastTags)
	if err != nil {
		return fmt.Errorf("upsert implicit tags: %w", err)
	}
	return nil
}

// suggest asks the suggester for tags on at most suggestMax casts. Every
// failure is logged and treated as no suggestions.
func (s *IndexService) suggest(ctx context.Context, logger *slog.Logger, casts []FlattenedCast, taken map[string]map[string]struct{}) []CastTag {
	if s.suggester == nil || s.suggestMax <= 0 {
		return nil
	}

	var tags []CastTag
	asked := 0
	for _, c := range casts {
		if asked >= s.suggestMax {
			break
		}
		text := strings.TrimSpace(StripURLs(c.Text))
		if text == "" {
			continue
		}
		asked++

		suggestions, err := s.suggester.SuggestTags(ctx, text)
		if err != nil {
			logger.Warn("tag suggestion failed", "hash", c.Hash, "error", err)
			continue
		}

		seen, ok := taken[c.Hash]
		if !ok {
			seen = make(map[string]struct{})
			taken[c.Hash] = seen
		}
		tags = append(tags, s.extractor.SuggestedTags(c, suggestions, seen)...)
	}
	return tags
}

// tagIndex maps each cast hash to the lowercased tags it already has.
func tagIndex(tags []CastTag) map[string]map[string]struct{} {
	lower := cases.Lower(language.Und)
	idx := make(map[string]map[string]struct{})
	for _, t := range tags {
		seen, ok := idx[t.CastHash]
		if !ok {
			seen = make(map[string]struct{})
			idx[t.CastHash] = seen
		}
		seen[lower.String(t.Tag)] = struct{}{}
	}
	return idx
}

// dropTaken removes tags whose lowercased form is already on the same cast.
func dropTaken(tags []CastTag, taken map[string]map[string]struct{}) []CastTag {
	lower := cases.Lower(language.Und)
	kept := tags[:0]
	for _, t := range tags {
		if _, ok := taken[t.CastHash][lower.String(t.Tag)]; ok {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
