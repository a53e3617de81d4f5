package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/psatyajeet/farcaster-indexer/internal/app"
	"github.com/psatyajeet/farcaster-indexer/internal/config"
	"github.com/psatyajeet/farcaster-indexer/internal/domain"
	"github.com/psatyajeet/farcaster-indexer/internal/store"
)

// seedOptions are parsed next to the indexer configuration.
type seedOptions struct {
	SeedLimit int `long:"seed-limit" env:"SEED_LIMIT" default:"0" description:"Maximum casts fetched by the seed run (0 = whole feed)"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts seedOptions
	cfg, err := config.Load(os.Args[1:], &opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		return nil
	}
	if opts.SeedLimit < 0 {
		return fmt.Errorf("invalid seed limit %d: must not be negative", opts.SeedLimit)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	repo, err := store.Open(cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	if _, err := repo.Migrate(); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	service, err := app.NewIndexService(cfg, rules, repo, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Seeding %s store from %s...\n", cfg.StoreDriver, cfg.FeedURL)
	report, err := service.Run(ctx, domain.NewHashSet(), opts.SeedLimit)
	fmt.Printf("Fetched %d casts, persisted %d\n", report.Fetched, report.Persisted)
	fmt.Printf("Tags: %d explicit, %d suggested, %d implicit (vocabulary of %d)\n",
		report.ExplicitTags, report.SuggestedTags, report.ImplicitTags, report.VocabularySize)
	if err != nil {
		return err
	}
	fmt.Printf("Done in %s\n", report.Duration)

	return nil
}
