package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/repository"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// authMiddleware resolves the bearer API key to its owning user. Keys
// are stored hashed; the raw key never touches the database.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			auth = r.Header.Get("X-API-Key")
		}
		if strings.HasPrefix(auth, "Bearer ") {
			auth = strings.TrimPrefix(auth, "Bearer ")
		}

		if auth == "" {
			s.sendError(w, http.StatusUnauthorized, "API key required")
			return
		}

		key, err := s.apiKeys.GetByHash(repository.HashKey(auth))
		if err != nil {
			s.logger.Error("API key lookup failed", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Authentication failed")
			return
		}
		if key == nil || !key.Active {
			s.logger.Warn("unauthorized API request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			s.sendError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		// Update last used asynchronously to keep it off the request path
		go func() {
			if err := s.apiKeys.UpdateLastUsed(key.ID); err != nil {
				s.logger.Warn("failed to update API key last used", "error", err)
			}
		}()

		ctx := context.WithValue(r.Context(), ctxKeyUserID, key.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated user's id from the request context.
func userID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}
