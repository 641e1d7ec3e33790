// Package server exposes the scrape pipeline and the fragment store over a
// local HTTP API. Clients that cannot drive the overlay (editor plugins,
// scripts) talk to it instead.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chathud/internal/dispatch"
	"chathud/internal/hud"
	"chathud/internal/logging"
	"chathud/internal/metrics"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Counter reports how many fragments are stored. *store.LocalStore
// implements it.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Service *dispatch.Service
	Cache   *hud.Cache
	Store   Counter
	Logger  *zap.Logger
}

// Server serves the API on one listener.
type Server struct {
	deps   Deps
	logger *zap.Logger
}

// New creates a server. A nil logger is replaced by a no-op one.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{deps: deps, logger: deps.Logger}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	metrics.RegisterScrapeMetrics()

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch", s.handleDispatch)
		r.Get("/sites", s.handleSites)
		r.Post("/sites/{site}/scrape", s.handleScrape)
		r.Post("/schemas/check", s.handleCheckSchemas)
		r.Get("/page", s.handleGrab)
		r.Get("/fragments", s.handleFragments)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Server("server stopped")
	return <-errCh
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		)
	})
}
