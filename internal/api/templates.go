package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

// TemplateResponse is a template row with its config blob decoded.
type TemplateResponse struct {
	ID                   string                  `json:"id"`
	Name                 string                  `json:"name"`
	Description          string                  `json:"description,omitempty"`
	Service              models.Service          `json:"service"`
	TrashVersion         string                  `json:"trash_version,omitempty"`
	HasUserModifications bool                    `json:"has_user_modifications"`
	SyncStrategy         models.SyncStrategy     `json:"sync_strategy"`
	SourceProfileID      string                  `json:"source_profile_id,omitempty"`
	SourceProfileName    string                  `json:"source_profile_name,omitempty"`
	Config               models.TemplateConfig   `json:"config"`
	ChangeLog            []models.ChangeLogEntry `json:"change_log,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
	DeletedAt            *time.Time              `json:"deleted_at,omitempty"`
}

// TemplateListResponse is the response for GET /api/v1/templates
type TemplateListResponse struct {
	Templates []TemplateResponse `json:"templates"`
	Total     int                `json:"total"`
}

// TemplateCreateRequest is the request body for POST /api/v1/templates
type TemplateCreateRequest struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	Service           models.Service         `json:"service"`
	SyncStrategy      models.SyncStrategy    `json:"sync_strategy"`
	SourceProfileID   string                 `json:"source_profile_id"`
	SourceProfileName string                 `json:"source_profile_name"`
	Config            *models.TemplateConfig `json:"config"`
}

// TemplateUpdateRequest is the request body for PUT /api/v1/templates/{id}.
// Absent fields keep their stored value.
type TemplateUpdateRequest struct {
	Name              *string                `json:"name"`
	Description       *string                `json:"description"`
	SyncStrategy      *models.SyncStrategy   `json:"sync_strategy"`
	SourceProfileID   *string                `json:"source_profile_id"`
	SourceProfileName *string                `json:"source_profile_name"`
	Config            *models.TemplateConfig `json:"config"`
}

// DeployRequest is the request body for POST /api/v1/templates/{id}/deploy
type DeployRequest struct {
	InstanceIDs []string                         `json:"instance_ids"`
	Resolutions map[string]engine.ConflictChoice `json:"resolutions,omitempty"`
}

// HistoryListResponse is the response for GET /api/v1/templates/{id}/history
type HistoryListResponse struct {
	History []models.DeployHistory `json:"history"`
	Total   int                    `json:"total"`
}

// MappingListResponse is the response for GET /api/v1/templates/{id}/mappings
type MappingListResponse struct {
	Mappings []models.ProfileMapping `json:"mappings"`
}

func (s *Server) templateResponse(tpl *models.Template, withChangeLog bool) TemplateResponse {
	resp := TemplateResponse{
		ID:                   tpl.ID,
		Name:                 tpl.Name,
		Description:          tpl.Description,
		Service:              tpl.Service,
		TrashVersion:         tpl.TrashVersion,
		HasUserModifications: tpl.HasUserModifications,
		SyncStrategy:         tpl.SyncStrategy,
		SourceProfileID:      tpl.SourceProfileID,
		SourceProfileName:    tpl.SourceProfileName,
		Config:               s.decodeConfig(tpl),
		CreatedAt:            tpl.CreatedAt,
		UpdatedAt:            tpl.UpdatedAt,
		DeletedAt:            tpl.DeletedAt,
	}
	if withChangeLog {
		entries, err := tpl.DecodeChangeLog()
		if err != nil {
			s.logger.Warn("corrupt template change log, serving empty",
				"template_id", tpl.ID, "error", err)
		}
		resp.ChangeLog = entries
	}
	return resp
}

// getOwnedTemplate loads a template for a handler, writing the error
// response itself when the template is missing, deleted or foreign.
func (s *Server) getOwnedTemplate(w http.ResponseWriter, r *http.Request, includeDeleted bool) *models.Template {
	tpl, err := s.templates.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load template")
		return nil
	}
	if tpl == nil || (tpl.DeletedAt != nil && !includeDeleted) {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return nil
	}
	if tpl.UserID != userID(r) {
		s.sendError(w, http.StatusForbidden, "Not your template")
		return nil
	}
	return tpl
}

// handleTemplateList handles GET /api/v1/templates
func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TemplateListFilter{
		UserID:         userID(r),
		Service:        models.Service(q.Get("service")),
		Search:         q.Get("search"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		Limit:          intParam(q.Get("limit"), 50),
		Offset:         intParam(q.Get("offset"), 0),
	}

	templates, total, err := s.templates.List(filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	resp := TemplateListResponse{
		Templates: make([]TemplateResponse, len(templates)),
		Total:     total,
	}
	for i := range templates {
		resp.Templates[i] = s.templateResponse(&templates[i], false)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleTemplateCreate handles POST /api/v1/templates
func (s *Server) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !req.Service.Valid() {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid service %q", req.Service))
		return
	}
	if !validStrategy(req.SyncStrategy) {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid sync_strategy %q", req.SyncStrategy))
		return
	}

	cfg := models.TemplateConfig{}
	if req.Config != nil {
		cfg = *req.Config
	}
	if violations := engine.ValidateConfig(cfg); len(violations) > 0 {
		s.sendJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:      "template config is invalid",
			Violations: violations,
		})
		return
	}

	tpl := &models.Template{
		UserID:            userID(r),
		Name:              req.Name,
		Description:       req.Description,
		Service:           req.Service,
		SyncStrategy:      req.SyncStrategy,
		SourceProfileID:   req.SourceProfileID,
		SourceProfileName: req.SourceProfileName,
	}
	if err := tpl.EncodeConfig(cfg); err != nil {
		s.logger.Error("failed to encode template config", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to encode template config")
		return
	}

	if err := s.templates.Create(tpl); err != nil {
		s.logger.Error("failed to create template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	s.logger.Info("template created", "template_id", tpl.ID, "name", tpl.Name, "service", tpl.Service)
	s.sendJSON(w, http.StatusCreated, s.templateResponse(tpl, false))
}

// handleTemplateGet handles GET /api/v1/templates/{id}
func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	tpl := s.getOwnedTemplate(w, r, true)
	if tpl == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, s.templateResponse(tpl, true))
}

// handleTemplateUpdate handles PUT /api/v1/templates/{id}
func (s *Server) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	tpl := s.getOwnedTemplate(w, r, false)
	if tpl == nil {
		return
	}

	var req TemplateUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			s.sendError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		tpl.Name = *req.Name
	}
	if req.Description != nil {
		tpl.Description = *req.Description
	}
	if req.SyncStrategy != nil {
		if !validStrategy(*req.SyncStrategy) {
			s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid sync_strategy %q", *req.SyncStrategy))
			return
		}
		tpl.SyncStrategy = *req.SyncStrategy
	}
	if req.SourceProfileID != nil {
		tpl.SourceProfileID = *req.SourceProfileID
	}
	if req.SourceProfileName != nil {
		tpl.SourceProfileName = *req.SourceProfileName
	}
	if req.Config != nil {
		if violations := engine.ValidateConfig(*req.Config); len(violations) > 0 {
			s.sendJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:      "template config is invalid",
				Violations: violations,
			})
			return
		}
		if err := tpl.EncodeConfig(*req.Config); err != nil {
			s.logger.Error("failed to encode template config", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to encode template config")
			return
		}
		// A hand-edited config diverges from the pure catalog state until
		// the next sync reconciles it.
		tpl.HasUserModifications = true
	}

	if err := s.templates.Update(tpl); err != nil {
		s.logger.Error("failed to update template", "template_id", tpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	s.sendJSON(w, http.StatusOK, s.templateResponse(tpl, false))
}

// handleTemplateDelete handles DELETE /api/v1/templates/{id}
func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	tpl := s.getOwnedTemplate(w, r, false)
	if tpl == nil {
		return
	}

	if err := s.templates.SoftDelete(tpl.ID); err != nil {
		s.logger.Error("failed to delete template", "template_id", tpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	s.logger.Info("template deleted", "template_id", tpl.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleTemplateRestore handles POST /api/v1/templates/{id}/restore
func (s *Server) handleTemplateRestore(w http.ResponseWriter, r *http.Request) {
	tpl := s.getOwnedTemplate(w, r, true)
	if tpl == nil {
		return
	}
	if tpl.DeletedAt == nil {
		s.sendError(w, http.StatusConflict, "Template is not deleted")
		return
	}

	if err := s.templates.Restore(tpl.ID); err != nil {
		s.logger.Error("failed to restore template", "template_id", tpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to restore template")
		return
	}

	tpl.DeletedAt = nil
	s.sendJSON(w, http.StatusOK, s.templateResponse(tpl, false))
}

// handleTemplateSync handles POST /api/v1/templates/{id}/sync
func (s *Server) handleTemplateSync(w http.ResponseWriter, r *http.Request) {
	var opts engine.SyncOptions
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	res, err := s.engine.SyncTemplate(r.Context(), userID(r), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

// handleTemplateDiff handles GET /api/v1/templates/{id}/diff
func (s *Server) handleTemplateDiff(w http.ResponseWriter, r *http.Request) {
	diff, err := s.engine.Diff(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, diff)
}

// handleTemplateDeploy handles POST /api/v1/templates/{id}/deploy
func (s *Server) handleTemplateDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.InstanceIDs) == 0 {
		s.sendError(w, http.StatusBadRequest, "instance_ids is required")
		return
	}
	for id, choice := range req.Resolutions {
		if choice != engine.KeepExisting && choice != engine.Overwrite {
			s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid resolution %q for %s", choice, id))
			return
		}
	}

	templateID := chi.URLParam(r, "id")
	opts := engine.DeployOptions{Resolutions: req.Resolutions}

	if len(req.InstanceIDs) == 1 {
		res, err := s.engine.DeployOne(r.Context(), userID(r), templateID, req.InstanceIDs[0], opts)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.sendJSON(w, http.StatusOK, res)
		return
	}

	bulk := s.engine.DeployMany(r.Context(), userID(r), templateID, req.InstanceIDs, opts)
	s.sendJSON(w, http.StatusOK, bulk)
}

// handleTemplateHistory handles GET /api/v1/templates/{id}/history
func (s *Server) handleTemplateHistory(w http.ResponseWriter, r *http.Request) {
	tpl := s.getOwnedTemplate(w, r, true)
	if tpl == nil {
		return
	}

	q := r.URL.Query()
	filter := models.HistoryListFilter{
		TemplateID: tpl.ID,
		InstanceID: q.Get("instance_id"),
		Status:     models.DeployStatus(q.Get("status")),
		Limit:      intParam(q.Get("limit"), 50),
		Offset:     intParam(q.Get("offset"), 0),
	}

	history, total, err := s.deploys.ListHistory(filter)
	if err != nil {
		s.logger.Error("failed to list deployment history", "template_id", tpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list deployment history")
		return
	}

	s.sendJSON(w, http.StatusOK, HistoryListResponse{History: history, Total: total})
}

// handleMappingList handles GET /api/v1/templates/{id}/mappings
func (s *Server) handleMappingList(w http.ResponseWriter, r *http.Request) {
	tpl := s.getOwnedTemplate(w, r, true)
	if tpl == nil {
		return
	}

	mappings, err := s.mappings.ListByTemplate(tpl.ID)
	if err != nil {
		s.logger.Error("failed to list mappings", "template_id", tpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list mappings")
		return
	}
	s.sendJSON(w, http.StatusOK, MappingListResponse{Mappings: mappings})
}

// handleMappingDelete handles DELETE /api/v1/templates/{id}/mappings/{instanceID}
func (s *Server) handleMappingDelete(w http.ResponseWriter, r *http.Request) {
	tpl := s.getOwnedTemplate(w, r, true)
	if tpl == nil {
		return
	}
	instanceID := chi.URLParam(r, "instanceID")

	m, err := s.mappings.Get(tpl.ID, instanceID)
	if err != nil {
		s.logger.Error("failed to load mapping", "template_id", tpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load mapping")
		return
	}
	if m == nil {
		s.sendError(w, http.StatusNotFound, "Mapping not found")
		return
	}

	if err := s.mappings.Delete(tpl.ID, instanceID); err != nil {
		s.logger.Error("failed to delete mapping", "template_id", tpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete mapping")
		return
	}

	s.logger.Info("profile mapping unlinked", "template_id", tpl.ID, "instance_id", instanceID)
	w.WriteHeader(http.StatusNoContent)
}

func validStrategy(st models.SyncStrategy) bool {
	switch st {
	case "", models.SyncAuto, models.SyncManual, models.SyncNotify:
		return true
	}
	return false
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
