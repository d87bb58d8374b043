package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleListMappingTemplates returns the saved mappings of a schema.
func (s *Server) handleListMappingTemplates(w http.ResponseWriter, r *http.Request) {
	schemaKey := chi.URLParam(r, "schemaKey")
	if _, err := s.service.Schema(schemaKey); err != nil {
		s.respondError(w, r, err)
		return
	}

	templates, err := s.service.ListMappingTemplates(r.Context(), schemaKey)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

// handleMatchMappingTemplates ranks saved mappings against comma-separated headers.
func (s *Server) handleMatchMappingTemplates(w http.ResponseWriter, r *http.Request) {
	schemaKey := chi.URLParam(r, "schemaKey")

	raw := r.URL.Query().Get("headers")
	if raw == "" {
		s.respondError(w, r, badRequest("missing headers parameter"))
		return
	}
	headers := strings.Split(raw, ",")
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	matches, err := s.service.MatchMappingTemplates(r.Context(), schemaKey, headers)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if matches == nil {
		matches = []core.TemplateMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// handleCreateMappingTemplate saves a mapping, either given directly or taken
// from a live session.
func (s *Server) handleCreateMappingTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SchemaKey string             `json:"schemaKey"`
		Name      string             `json:"name"`
		Mapping   core.ColumnMapping `json:"mapping"`
		SessionID string             `json:"sessionId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if req.SessionID != "" {
		active, err := s.service.Session(req.SessionID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		req.SchemaKey = active.SchemaKey
		req.Mapping = active.Importer.ColumnMapping()
	}
	if req.SchemaKey == "" {
		s.respondError(w, r, badRequest("schemaKey or sessionId is required"))
		return
	}
	if len(req.Mapping) == 0 {
		s.respondError(w, r, badRequest("mapping is required"))
		return
	}

	t, err := s.service.CreateMappingTemplate(r.Context(), req.SchemaKey, req.Name, req.Mapping)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handleDeleteMappingTemplate removes a saved mapping.
func (s *Server) handleDeleteMappingTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteMappingTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory returns recent imports of a schema. ?limit= caps the entries.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	schemaKey := chi.URLParam(r, "schemaKey")
	if _, err := s.service.Schema(schemaKey); err != nil {
		s.respondError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.service.ListHistory(r.Context(), schemaKey, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
