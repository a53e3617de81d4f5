package httpserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
	"github.com/psatyajeet/farcaster-indexer/internal/scheduler"
	"github.com/psatyajeet/farcaster-indexer/internal/store"
)

// Indexer triggers index runs and reports the latest one.
type Indexer interface {
	Run(ctx context.Context) (*domain.RunReport, error)
	Latest() *domain.RunReport
}

// CastReader serves stored casts and tags.
type CastReader interface {
	Ping(ctx context.Context) error
	CastByHash(ctx context.Context, hash string) (*domain.FlattenedCast, error)
	TagsForCast(ctx context.Context, hash string) ([]domain.CastTag, error)
	TopTags(ctx context.Context, since time.Time, limit int) ([]store.TagCount, error)
}

// JobLister reports the scheduled jobs.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// Options configures a Server.
type Options struct {
	Port int

	// WriteTimeout bounds a response, including a manual index run.
	WriteTimeout time.Duration
}

// Server is the HTTP server exposing index runs and stored tags.
type Server struct {
	indexer    Indexer
	casts      CastReader
	jobs       JobLister
	hub        *Hub
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(opts Options, indexer Indexer, casts CastReader, jobs JobLister, hub *Hub, logger *slog.Logger) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		indexer: indexer,
		casts:   casts,
		jobs:    jobs,
		hub:     hub,
		logger:  logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with logging applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs/latest", s.handleLatestRun)
		r.Post("/runs", s.handleTriggerRun)
		r.Get("/runs/stream", s.hub.ServeHTTP)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/casts/{hash}", s.handleGetCast)
		r.Get("/casts/{hash}/tags", s.handleCastTags)
		r.Get("/tags/top", s.handleTopTags)
	})

	return withLogging(s.logger, r)
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and disconnects stream
// subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.casts.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	report := s.indexer.Latest()
	if report == nil {
		writeError(w, http.StatusNotFound, "NotFound", "no run has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.indexer.Run(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeError(w, http.StatusConflict, "RunInProgress", err.Error())
	case err != nil && report == nil:
		s.logger.Error("manual index run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "RunFailed", err.Error())
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "RunFailed",
			"message": err.Error(),
			"run":     report,
		})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.jobs.ListJobs()
	if jobs == nil {
		jobs = []scheduler.JobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetCast(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	cast, err := s.casts.CastByHash(r.Context(), hash)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "cast not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get cast", "hash", hash, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get cast")
		return
	}
	writeJSON(w, http.StatusOK, cast)
}

func (s *Server) handleCastTags(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	if _, err := s.casts.CastByHash(r.Context(), hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NotFound", "cast not found")
			return
		}
		s.logger.Error("failed to get cast", "hash", hash, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get cast")
		return
	}

	tags, err := s.casts.TagsForCast(r.Context(), hash)
	if err != nil {
		s.logger.Error("failed to get cast tags", "hash", hash, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get tags")
		return
	}
	if tags == nil {
		tags = []domain.CastTag{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cast_hash": hash,
		"tags":      tags,
	})
}

func (s *Server) handleTopTags(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", 24, 1, 24*30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	limit, err := intParam(r, "limit", 20, 1, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.casts.TopTags(r.Context(), since, limit)
	if err != nil {
		s.logger.Error("failed to get top tags", "hours", hours, "limit", limit, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get top tags")
		return
	}
	if counts == nil {
		counts = []store.TagCount{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since": since,
		"tags":  counts,
	})
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
