// Package server exposes the parser and formatter over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// MaxBodyBytes limits the size of a request body.
const MaxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server struct {
	addr     string
	cache    *cache.Cache
	format   format.Rule
	rule     *token.Rule
	watchDir string
	logger   *slog.Logger
	notifier *Notifier
	started  time.Time
}

// Config holds configuration for the server.
type Config struct {
	Addr   string
	Cache  *cache.Cache
	Format format.Rule
	Rule   *token.Rule
	// WatchDir, when set, is reformatted on change and reported on
	// /v1/events.
	WatchDir string
	Logger   *slog.Logger
}

// NewServer creates a new server instance. A nil cache gets a fresh
// in-memory cache for Rule.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rule := cfg.Rule
	if rule == nil {
		rule = token.DefaultRule()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.New(cache.Options{Rule: rule, Source: "serve", Logger: logger})
	}
	return &Server{
		addr:     cfg.Addr,
		cache:    c,
		format:   cfg.Format,
		rule:     rule,
		watchDir: cfg.WatchDir,
		logger:   logger,
		notifier: NewNotifier(),
		started:  time.Now(),
	}
}

// Notifier returns the server's watcher event notifier.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// Handler returns the router with all routes and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(
				middleware.AllowContentType("application/json"),
				middleware.Timeout(30*time.Second),
			)
			r.Post("/parse", s.handleParse)
			r.Post("/format", s.handleFormat(false))
			r.Post("/unformat", s.handleFormat(true))
			r.Post("/params", s.handleParams)
		})
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Serve starts the server and blocks until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is canceled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watchDir != "" {
		w := NewWatcher(s.watchDir, s.reformat, s.logger)
		eg.Go(func() error {
			return w.Run(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// reformat formats a changed file and broadcasts the outcome.
func (s *Server) reformat(path string) {
	ev := FormatFile(format.New(s.format, s.rule), path)
	switch {
	case ev.Fault != nil:
		s.logger.Warn("failed to format file", "path", path, "error", ev.Fault.Message)
	case ev.Changed:
		s.logger.Info("formatted file", "path", path)
	}
	s.notifier.Broadcast(ev)
}

// requestLogger logs each request through the server's logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
