// Package api provides the HTTP server of the bot.
//
// It exposes the Twilio webhook, a health probe, submission statistics, a stateless customs
// calculator and the Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/metrics"
	"github.com/iskan70/my-logistic-bot/internal/store"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
	// MaxRequestBytes caps JSON request bodies.
	MaxRequestBytes = 1 << 20
	// DefaultRecentSubmissions is how many records /api/stats lists without ?recent.
	DefaultRecentSubmissions = 10
	MaxRecentSubmissions     = 100
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	Catalog       *catalog.Catalog
	Stats         store.SubmissionRepo
	TwilioWebhook http.HandlerFunc
}

// Option defines a functional option for configuring the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithCatalog sets the catalogue used to resolve VAT regions in calculator requests.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Opts) {
		o.Catalog = c
	}
}

// WithStats enables GET /api/stats backed by repo.
func WithStats(repo store.SubmissionRepo) Option {
	return func(o *Opts) {
		o.Stats = repo
	}
}

// WithTwilioWebhook mounts h on POST /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) {
		o.TwilioWebhook = h
	}
}

// Server is the HTTP API server.
type Server struct {
	addr    string
	cat     *catalog.Catalog
	stats   store.SubmissionRepo
	router  chi.Router
	started time.Time
}

// NewServer builds the router. Routes whose backing component is not configured are not mounted.
func NewServer(opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}

	s := &Server{
		addr:    cfg.Addr,
		cat:     cfg.Catalog,
		stats:   cfg.Stats,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/api/customs/calc", s.calcHandler)
	if s.stats != nil {
		r.Get("/api/stats", s.statsHandler)
	}
	if cfg.TwilioWebhook != nil {
		r.Post("/webhook/twilio", cfg.TwilioWebhook)
	}
	s.router = r

	slog.Debug("Server created", "addr", s.addr, "stats", s.stats != nil, "twilio_webhook", cfg.TwilioWebhook != nil)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		return err
	}
	return nil
}
