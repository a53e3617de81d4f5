// Package app builds the index pipeline from configuration, so every
// entry point fetches, filters and tags casts the same way.
package app

import (
	"fmt"
	"log/slog"

	"github.com/psatyajeet/farcaster-indexer/internal/config"
	"github.com/psatyajeet/farcaster-indexer/internal/domain"
	"github.com/psatyajeet/farcaster-indexer/internal/suggest"
	"github.com/psatyajeet/farcaster-indexer/internal/warpcast"
)

// NewFetcher returns the recent-casts client for cfg and rules.
func NewFetcher(cfg *config.Config, rules *config.Rules, logger *slog.Logger) *warpcast.Client {
	return warpcast.NewClient(warpcast.Options{
		FeedURL:     cfg.FeedURL,
		Timeout:     cfg.HTTPTimeout,
		SpamMarkers: rules.SpamMarkers,
		Logger:      logger,
	})
}

// IndexOptions maps cfg and rules to pipeline options. The suggester is
// only set when suggestions are enabled.
func IndexOptions(cfg *config.Config, rules *config.Rules) domain.IndexOptions {
	opts := domain.IndexOptions{
		ChunkSize: cfg.ChunkSize,
		Stopwords: rules.ExtraStopwords,
	}
	if cfg.SuggestionsEnabled() {
		opts.Suggester = suggest.NewAnthropicSuggester(cfg.AnthropicAPIKey, cfg.SuggestModel)
		opts.SuggestMaxCasts = cfg.SuggestMaxCasts
	}
	return opts
}

// NewIndexService wires the fetcher and store into an IndexService.
func NewIndexService(cfg *config.Config, rules *config.Rules, store domain.CastStore, logger *slog.Logger) (*domain.IndexService, error) {
	opts := IndexOptions(cfg, rules)
	if opts.Suggester != nil {
		logger.Info("tag suggestions enabled", "model", cfg.SuggestModel, "max_casts", cfg.SuggestMaxCasts)
	}

	service, err := domain.NewIndexService(NewFetcher(cfg, rules, logger), store, logger, opts)
	if err != nil {
		return nil, fmt.Errorf("create index service: %w", err)
	}
	return service, nil
}
