package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error      string             `json:"error"`
	Violations []engine.Violation `json:"violations,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// BackupResponse is the response for GET /api/v1/backups/{id}
type BackupResponse struct {
	ID         string          `json:"id"`
	InstanceID string          `json:"instance_id"`
	TemplateID string          `json:"template_id"`
	Data       json.RawMessage `json:"data"` // remote custom formats as captured
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).String(),
	})
}

// handleUpdates handles GET /api/v1/updates
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CheckForUpdates(r.Context(), userID(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

// handleHistoryGet handles GET /api/v1/history/{id}
func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	h, err := s.deploys.GetHistory(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load deployment record", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load deployment record")
		return
	}
	if h == nil {
		s.sendError(w, http.StatusNotFound, "Deployment record not found")
		return
	}
	if !s.ownsTemplate(w, r, h.TemplateID) {
		return
	}
	s.sendJSON(w, http.StatusOK, h)
}

// handleBackupGet handles GET /api/v1/backups/{id}
func (s *Server) handleBackupGet(w http.ResponseWriter, r *http.Request) {
	b, err := s.deploys.GetBackup(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load backup", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load backup")
		return
	}
	if b == nil {
		s.sendError(w, http.StatusNotFound, "Backup not found")
		return
	}
	if !s.ownsTemplate(w, r, b.TemplateID) {
		return
	}

	s.sendJSON(w, http.StatusOK, BackupResponse{
		ID:         b.ID,
		InstanceID: b.InstanceID,
		TemplateID: b.TemplateID,
		Data:       json.RawMessage(b.Data),
		CreatedAt:  b.CreatedAt,
		ExpiresAt:  b.ExpiresAt,
	})
}

// ownsTemplate checks that the template behind an audit record belongs
// to the caller. Soft-deleted templates still anchor their history, so
// the deletion marker is ignored here. Writes the response on failure.
func (s *Server) ownsTemplate(w http.ResponseWriter, r *http.Request, templateID string) bool {
	tpl, err := s.templates.GetByID(templateID)
	if err != nil {
		s.logger.Error("failed to load template", "template_id", templateID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load template")
		return false
	}
	if tpl == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return false
	}
	if tpl.UserID != userID(r) {
		s.sendError(w, http.StatusForbidden, "Not your template")
		return false
	}
	return true
}

// writeEngineError maps engine failure classes to HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotAuthorized):
		s.sendError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrServiceMismatch):
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrUnreachable):
		s.sendError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		s.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeConfig parses a template's config blob for a response,
// substituting an empty config on corruption.
func (s *Server) decodeConfig(tpl *models.Template) models.TemplateConfig {
	cfg, err := tpl.DecodeConfig()
	if err != nil {
		s.logger.Warn("corrupt template config, serving empty",
			"template_id", tpl.ID, "error", err)
		return models.TemplateConfig{}
	}
	return cfg
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
