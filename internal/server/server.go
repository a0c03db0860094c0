// Package server implements the ApiFacade (C9): a chi-based HTTP/JSON API
// exposing the store, cache, collector, analytics, screener, and alerts
// components under /api, validating input, mapping domain errors to the
// taxonomy in internal/apperr, and honoring X-API-Key / X-No-Cache.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/kr-market-feed/internal/alerts"
	"github.com/aristath/kr-market-feed/internal/analytics"
	"github.com/aristath/kr-market-feed/internal/cache"
	"github.com/aristath/kr-market-feed/internal/collector"
	"github.com/aristath/kr-market-feed/internal/scheduler"
	"github.com/aristath/kr-market-feed/internal/screener"
	"github.com/aristath/kr-market-feed/internal/store"
	"github.com/aristath/kr-market-feed/internal/upstream"
)

// Config holds everything needed to wire the HTTP server.
type Config struct {
	Port      int
	Log       zerolog.Logger
	Store     *store.Store
	Cache     *cache.Cache
	Collector *collector.Collector
	Analytics *analytics.Service
	Screener  *screener.Service
	Alerts    *alerts.Service
	Scheduler *scheduler.Scheduler
	Upstream  upstream.Client
	APIKey    string
	DevMode   bool
}

// Server is the HTTP entry point for every component.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	store     *store.Store
	cache     *cache.Cache
	collector *collector.Collector
	analytics *analytics.Service
	screener  *screener.Service
	alerts    *alerts.Service
	scheduler *scheduler.Scheduler
	upstream  upstream.Client
	apiKey    string
	devMode   bool
}

// New builds a Server and registers every route.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		store:     cfg.Store,
		cache:     cfg.Cache,
		collector: cfg.Collector,
		analytics: cfg.Analytics,
		screener:  cfg.Screener,
		alerts:    cfg.Alerts,
		scheduler: cfg.Scheduler,
		upstream:  cfg.Upstream,
		apiKey:    cfg.APIKey,
		devMode:   cfg.DevMode,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-No-Cache"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		s.mountEtfRoutes(r)
		s.mountNewsRoutes(r)
		s.mountDataRoutes(r)
		s.mountSettingsRoutes(r)
		s.mountAlertRoutes(r)
		s.mountScannerRoutes(r)
		s.mountSimulationRoutes(r)
	})
}

// requireAPIKey gates write/admin endpoints behind X-API-Key. In dev mode
// (or when no key is configured) requests are accepted unconditionally.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.devMode || s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, apperrAuthRequired())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cached wraps a read handler in the response cache under the given TTL
// class, tagged by ticker so collection writes can invalidate it.
func (s *Server) cached(class cache.Class, handler http.HandlerFunc) http.HandlerFunc {
	return cache.Wrap(s.cache, class, nil, tickerTags, handler)
}

func tickerTags(r *http.Request) []string {
	if code := chi.URLParam(r, "ticker"); code != "" {
		return []string{"ticker:" + code}
	}
	return nil
}

// ListenAndServe starts the HTTP server, blocking until it exits or ctx is
// cancelled, in which case it shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
