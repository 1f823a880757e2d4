package core

import (
	"net/http"

	"github.com/google/uuid"

	"eventpipe/internal/types"
)

// MountRoutes registers the middleware chain and the ops endpoints.
//
// Order: Recoverer is outermost so it sees every panic; RequestID runs before
// RequestLogger so log lines carry the ID.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/stats", s.HandleStats)
	s.router.Get("/metrics", s.optional(s.Metrics))
	s.router.Get("/ws", s.optional(s.Stream))
}

// HandleStats serves the pipeline snapshot.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		s.notConfigured(w, r)
		return
	}
	JSON(w, r, http.StatusOK, s.Stats())
}

func (s *Server) optional(h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			s.notConfigured(w, r)
			return
		}
		h.ServeHTTP(w, r)
	}
}

func (s *Server) notConfigured(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppError(types.ErrCodeEndpointNotConfigured, "endpoint not configured", nil).
		WithDetails(map[string]any{"path": r.URL.Path}))
}

// RequestIDMiddleware propagates X-Request-Id or generates one, stores it in
// the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
