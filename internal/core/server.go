// Package core provides the ops HTTP chassis for the pipeline daemon: a chi
// router carrying health, metrics, stats and the real-time event stream.
// It enforces the cross-cutting concerns (panic recovery, request IDs,
// request logging, error rendering) before requests reach a handler.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eventpipe/internal/types"
)

// shutdownTimeout bounds how long Serve waits for in-flight requests once
// its context is cancelled.
const shutdownTimeout = 5 * time.Second

// StatsFunc returns the JSON-encodable runtime snapshot served at /stats.
type StatsFunc func() any

// Server holds the handlers the ops router dispatches to. Optional fields
// left nil are answered with 404.
type Server struct {
	Logger       types.Logger
	HealthProbes []HealthProbe

	// Stats backs GET /stats.
	Stats StatsFunc
	// Metrics backs GET /metrics, typically promhttp.HandlerFor.
	Metrics http.Handler
	// Stream backs GET /ws, the WebSocket fan-out hub.
	Stream http.Handler

	router *chi.Mux
}

// NewServer returns a Server with an empty router. Callers set the optional
// handlers and then call MountRoutes.
func NewServer(logger types.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
// A failure to bind is returned immediately.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("ops server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("ops server shutdown failed", "error", err)
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	s.Logger.Info("ops server stopped")
	return nil
}
