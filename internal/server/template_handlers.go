package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/entity"
)

type templateRequest struct {
	Name             string          `json:"name"`
	Description      *string         `json:"description"`
	ExtractionFields json.RawMessage `json:"extraction_fields"`
	CustomPrompt     *string         `json:"custom_prompt"`
	IsDefault        bool            `json:"is_default"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.ListTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(templates),
		"templates": templates,
	})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	fields, err := parseFieldSpecs(req.ExtractionFields)
	if err != nil {
		writeError(w, err)
		return
	}

	t := &entity.Template{
		ID:               uuid.New(),
		Name:             req.Name,
		Description:      req.Description,
		ExtractionFields: fields,
		CustomPrompt:     req.CustomPrompt,
		IsDefault:        req.IsDefault,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.templates.CreateTemplate(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info("template.created", "template_id", t.ID.String(), "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := s.templates.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := s.templates.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if len(req.ExtractionFields) > 0 {
		fields, err := parseFieldSpecs(req.ExtractionFields)
		if err != nil {
			writeError(w, err)
			return
		}
		t.ExtractionFields = fields
	}
	if req.CustomPrompt != nil {
		t.CustomPrompt = req.CustomPrompt
	}
	t.IsDefault = req.IsDefault

	if err := s.templates.UpdateTemplate(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.templates.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template_id": id, "deleted": true})
}

func templateID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid template id", common.ErrInvalidInput)
	}
	return id, nil
}
