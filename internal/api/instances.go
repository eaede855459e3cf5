package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

// InstanceResponse is an instance row without its remote API key.
type InstanceResponse struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Service   models.Service `json:"service"`
	BaseURL   string         `json:"base_url"`
	Enabled   bool           `json:"enabled"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// InstanceListResponse is the response for GET /api/v1/instances
type InstanceListResponse struct {
	Instances []InstanceResponse `json:"instances"`
	Total     int                `json:"total"`
}

// InstanceCreateRequest is the request body for POST /api/v1/instances
type InstanceCreateRequest struct {
	Label   string         `json:"label"`
	Service models.Service `json:"service"`
	BaseURL string         `json:"base_url"`
	APIKey  string         `json:"api_key"`
	Enabled *bool          `json:"enabled"`
}

// InstanceUpdateRequest is the request body for PUT /api/v1/instances/{id}.
// Absent fields keep their stored value.
type InstanceUpdateRequest struct {
	Label   *string `json:"label"`
	BaseURL *string `json:"base_url"`
	APIKey  *string `json:"api_key"`
	Enabled *bool   `json:"enabled"`
}

// InstanceTestResponse is the response for POST /api/v1/instances/{id}/test
type InstanceTestResponse struct {
	Reachable bool   `json:"reachable"`
	AppName   string `json:"app_name,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OverrideSetRequest is the request body for PUT .../overrides/{trashID}
type OverrideSetRequest struct {
	Score int `json:"score"`
}

// OverrideListResponse is the response for GET /api/v1/instances/{id}/overrides
type OverrideListResponse struct {
	Overrides map[string]int `json:"overrides"`
}

func instanceResponse(in *models.Instance) InstanceResponse {
	return InstanceResponse{
		ID:        in.ID,
		Label:     in.Label,
		Service:   in.Service,
		BaseURL:   in.BaseURL,
		Enabled:   in.Enabled,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
}

// getOwnedInstance loads an instance for a handler, writing the error
// response itself when the instance is missing or foreign.
func (s *Server) getOwnedInstance(w http.ResponseWriter, r *http.Request) *models.Instance {
	in, err := s.instances.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load instance", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load instance")
		return nil
	}
	if in == nil {
		s.sendError(w, http.StatusNotFound, "Instance not found")
		return nil
	}
	if in.UserID != userID(r) {
		s.sendError(w, http.StatusForbidden, "Not your instance")
		return nil
	}
	return in
}

// handleInstanceList handles GET /api/v1/instances
func (s *Server) handleInstanceList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.InstanceListFilter{
		UserID:  userID(r),
		Service: models.Service(q.Get("service")),
		Limit:   intParam(q.Get("limit"), 50),
		Offset:  intParam(q.Get("offset"), 0),
	}

	instances, total, err := s.instances.List(filter)
	if err != nil {
		s.logger.Error("failed to list instances", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list instances")
		return
	}

	resp := InstanceListResponse{
		Instances: make([]InstanceResponse, len(instances)),
		Total:     total,
	}
	for i := range instances {
		resp.Instances[i] = instanceResponse(&instances[i])
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleInstanceCreate handles POST /api/v1/instances
func (s *Server) handleInstanceCreate(w http.ResponseWriter, r *http.Request) {
	var req InstanceCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Label == "" {
		s.sendError(w, http.StatusBadRequest, "label is required")
		return
	}
	if !req.Service.Valid() {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid service %q", req.Service))
		return
	}
	if req.BaseURL == "" {
		s.sendError(w, http.StatusBadRequest, "base_url is required")
		return
	}
	if req.APIKey == "" {
		s.sendError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	in := &models.Instance{
		UserID:  userID(r),
		Label:   req.Label,
		Service: req.Service,
		BaseURL: strings.TrimRight(req.BaseURL, "/"),
		APIKey:  req.APIKey,
		Enabled: enabled,
	}

	if err := s.instances.Create(in); err != nil {
		s.logger.Error("failed to create instance", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create instance")
		return
	}

	s.logger.Info("instance created", "instance_id", in.ID, "label", in.Label, "service", in.Service)
	s.sendJSON(w, http.StatusCreated, instanceResponse(in))
}

// handleInstanceGet handles GET /api/v1/instances/{id}
func (s *Server) handleInstanceGet(w http.ResponseWriter, r *http.Request) {
	in := s.getOwnedInstance(w, r)
	if in == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, instanceResponse(in))
}

// handleInstanceUpdate handles PUT /api/v1/instances/{id}
func (s *Server) handleInstanceUpdate(w http.ResponseWriter, r *http.Request) {
	in := s.getOwnedInstance(w, r)
	if in == nil {
		return
	}

	var req InstanceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Label != nil {
		if *req.Label == "" {
			s.sendError(w, http.StatusBadRequest, "label must not be empty")
			return
		}
		in.Label = *req.Label
	}
	if req.BaseURL != nil {
		if *req.BaseURL == "" {
			s.sendError(w, http.StatusBadRequest, "base_url must not be empty")
			return
		}
		in.BaseURL = strings.TrimRight(*req.BaseURL, "/")
	}
	if req.APIKey != nil {
		in.APIKey = *req.APIKey
	}
	if req.Enabled != nil {
		in.Enabled = *req.Enabled
	}

	if err := s.instances.Update(in); err != nil {
		s.logger.Error("failed to update instance", "instance_id", in.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update instance")
		return
	}

	s.sendJSON(w, http.StatusOK, instanceResponse(in))
}

// handleInstanceDelete handles DELETE /api/v1/instances/{id}
func (s *Server) handleInstanceDelete(w http.ResponseWriter, r *http.Request) {
	in := s.getOwnedInstance(w, r)
	if in == nil {
		return
	}

	if err := s.instances.Delete(in.ID); err != nil {
		s.logger.Error("failed to delete instance", "instance_id", in.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete instance")
		return
	}

	s.logger.Info("instance deleted", "instance_id", in.ID, "label", in.Label)
	w.WriteHeader(http.StatusNoContent)
}

// instanceTestTimeout caps the connectivity probe.
const instanceTestTimeout = 10 * time.Second

// handleInstanceTest handles POST /api/v1/instances/{id}/test
func (s *Server) handleInstanceTest(w http.ResponseWriter, r *http.Request) {
	in := s.getOwnedInstance(w, r)
	if in == nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), instanceTestTimeout)
	defer cancel()

	status, err := s.clients(in).SystemStatus(ctx)
	if err != nil {
		s.logger.Warn("instance unreachable", "instance_id", in.ID, "error", err)
		s.sendJSON(w, http.StatusBadGateway, InstanceTestResponse{
			Reachable: false,
			Error:     err.Error(),
		})
		return
	}

	s.sendJSON(w, http.StatusOK, InstanceTestResponse{
		Reachable: true,
		AppName:   status.AppName,
		Version:   status.Version,
	})
}

// handleOverrideList handles GET /api/v1/instances/{id}/overrides
func (s *Server) handleOverrideList(w http.ResponseWriter, r *http.Request) {
	in := s.getOwnedInstance(w, r)
	if in == nil {
		return
	}

	overrides, err := s.overrides.GetForInstance(in.ID)
	if err != nil {
		s.logger.Error("failed to list score overrides", "instance_id", in.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list score overrides")
		return
	}
	s.sendJSON(w, http.StatusOK, OverrideListResponse{Overrides: overrides})
}

// handleOverrideSet handles PUT /api/v1/instances/{id}/overrides/{trashID}
func (s *Server) handleOverrideSet(w http.ResponseWriter, r *http.Request) {
	in := s.getOwnedInstance(w, r)
	if in == nil {
		return
	}
	trashID := chi.URLParam(r, "trashID")

	var req OverrideSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.overrides.Set(in.ID, trashID, req.Score); err != nil {
		s.logger.Error("failed to set score override", "instance_id", in.ID, "trash_id", trashID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to set score override")
		return
	}

	s.logger.Info("score override set", "instance_id", in.ID, "trash_id", trashID, "score", req.Score)
	s.sendJSON(w, http.StatusOK, models.ScoreOverride{
		InstanceID: in.ID,
		TrashID:    trashID,
		Score:      req.Score,
	})
}

// handleOverrideDelete handles DELETE /api/v1/instances/{id}/overrides/{trashID}
func (s *Server) handleOverrideDelete(w http.ResponseWriter, r *http.Request) {
	in := s.getOwnedInstance(w, r)
	if in == nil {
		return
	}
	trashID := chi.URLParam(r, "trashID")

	if err := s.overrides.Delete(in.ID, trashID); err != nil {
		s.logger.Error("failed to delete score override", "instance_id", in.ID, "trash_id", trashID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete score override")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
