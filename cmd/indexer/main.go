package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/psatyajeet/farcaster-indexer/internal/app"
	"github.com/psatyajeet/farcaster-indexer/internal/config"
	"github.com/psatyajeet/farcaster-indexer/internal/domain"
	"github.com/psatyajeet/farcaster-indexer/internal/httpserver"
	"github.com/psatyajeet/farcaster-indexer/internal/ledger"
	"github.com/psatyajeet/farcaster-indexer/internal/scheduler"
	"github.com/psatyajeet/farcaster-indexer/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		return nil
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	repo, err := store.Open(cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	version, err := repo.Migrate()
	if err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	logger.Info("connected to store", "driver", repo.Dialect(), "schema_version", version)

	service, err := app.NewIndexService(cfg, rules, repo, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processed, ledgerCloser, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer ledgerCloser.Close()

	job := scheduler.NewIndexJob(service, processed, cfg.Limit, logger)

	hub := httpserver.NewHub(logger)
	job.Subscribe(func(r *domain.RunReport) { hub.Broadcast(r) })

	sched := scheduler.New(logger, cfg.RunTimeout)
	if err := sched.AddJob("index-casts", cfg.Schedule, job.Execute); err != nil {
		return err
	}

	server := httpserver.NewServer(httpserver.Options{
		Port:         cfg.Port,
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
	}, job, repo, sched, hub, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Catch up once before the first tick.
		runCtx, cancel := context.WithTimeout(gctx, cfg.RunTimeout)
		defer cancel()
		if err := job.Execute(runCtx); err != nil {
			logger.Error("initial index run failed", "error", err)
		}

		sched.Start()
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down http server", "error", err)
		}
		return nil
	})

	logger.Info("indexer started", "port", cfg.Port, "schedule", cfg.Schedule, "limit", cfg.Limit)

	return g.Wait()
}

// openLedger picks the Redis ledger when configured, otherwise an
// in-process one that is lost on restart.
func openLedger(ctx context.Context, cfg *config.Config) (scheduler.Ledger, io.Closer, error) {
	if cfg.RedisURL == "" {
		return ledger.NewMemory(cfg.LedgerRetention), io.NopCloser(nil), nil
	}

	r, err := ledger.NewRedis(ctx, cfg.RedisURL, ledger.DefaultKey, cfg.LedgerRetention)
	if err != nil {
		return nil, nil, fmt.Errorf("connect ledger: %w", err)
	}
	return r, r, nil
}
