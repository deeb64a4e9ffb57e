// Package server exposes pipeline runs over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	gormdb "github.com/thebtf/graphtag/internal/db/gorm"
	"github.com/thebtf/graphtag/internal/pipeline"
	"github.com/thebtf/graphtag/internal/server/sse"
)

// RunStore is the read side of the run store used by the API.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*gormdb.Run, error)
	LatestRun(ctx context.Context) (*gormdb.Run, error)
	ListRuns(ctx context.Context, limit int) ([]gormdb.Run, error)
	Assignments(ctx context.Context, runID string) ([]gormdb.ClusterAssignment, error)
	Salience(ctx context.Context, runID string) ([]gormdb.TopicSalience, error)
}

// Trigger starts a pipeline run over the configured input directory.
type Trigger interface {
	RunDir(ctx context.Context) (*pipeline.Result, error)
}

// Service is the HTTP API around the pipeline runner and run store.
type Service struct {
	startTime      time.Time
	store          RunStore
	trigger        Trigger
	sseBroadcaster *sse.Broadcaster
	router         chi.Router
	server         *http.Server
	version        string
	ready          atomic.Bool
}

// New creates a service. store and trigger may be nil; the endpoints that
// need them then answer 503.
func New(version string, store RunStore, trigger Trigger, broadcaster *sse.Broadcaster) *Service {
	if broadcaster == nil {
		broadcaster = sse.NewBroadcaster()
	}
	s := &Service{
		version:        version,
		store:          store,
		trigger:        trigger,
		sseBroadcaster: broadcaster,
		router:         chi.NewRouter(),
		startTime:      time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the service router.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Broadcaster returns the SSE broadcaster that receives run events.
func (s *Service) Broadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// SetReady marks the service as able to serve run endpoints.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Get("/api/events", s.sseBroadcaster.HandleSSE)

	s.router.Route("/api/runs", func(r chi.Router) {
		r.Use(s.requireReady)
		r.Get("/", s.handleListRuns)
		r.Post("/", s.handleTriggerRun)
		r.Get("/latest", s.handleLatestRun)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/components", s.handleComponents)
		r.Get("/{id}/salience", s.handleSalience)
	})
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Service) Start(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("HTTP server listening")
		errCh <- s.server.ListenAndServe()
	}()
	s.SetReady(true)

	select {
	case err := <-errCh:
		s.SetReady(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

// requireReady rejects requests until the service is marked ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
