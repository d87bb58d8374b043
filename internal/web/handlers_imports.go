package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is allowed on top of the file size limit for form fields.
const multipartOverhead = 1 << 20

// maxJSONBody bounds mapping and selection request bodies.
const maxJSONBody = 1 << 20

// sessionView is the JSON representation of an import session.
type sessionView struct {
	ID              string               `json:"id"`
	SchemaKey       string               `json:"schemaKey"`
	Step            core.Step            `json:"step"`
	FileName        string               `json:"fileName"`
	Headers         []string             `json:"headers"`
	Mapping         core.ColumnMapping   `json:"mapping"`
	Conflicts       map[string][]string  `json:"conflicts,omitempty"`
	Metadata        core.SheetMetadata   `json:"metadata"`
	Fields          []core.ImportField   `json:"fields"`
	RequiredFields  []string             `json:"requiredFields"`
	CanProceed      bool                 `json:"canProceed"`
	TemplateMatches []core.TemplateMatch `json:"templateMatches,omitempty"`
	Counts          *core.PreviewCounts  `json:"counts,omitempty"`
	Preview         any                  `json:"preview,omitempty"`
	Summary         *core.ImportSummary  `json:"summary,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// newSessionView snapshots a session. Rows are only included with withRows.
func newSessionView(active *core.ActiveImport, withRows bool) sessionView {
	imp := active.Importer
	mapping := imp.ColumnMapping()

	v := sessionView{
		ID:             active.ID,
		SchemaKey:      active.SchemaKey,
		Step:           imp.Step(),
		FileName:       imp.FileName(),
		Headers:        imp.Headers(),
		Mapping:        mapping,
		Metadata:       imp.Metadata(),
		Fields:         imp.Fields(),
		RequiredFields: imp.RequiredFields(),
		CanProceed:     imp.CanProceedToPreview(),
		Summary:        imp.Summary(),
		CreatedAt:      active.CreatedAt,
	}
	if conflicts := mapping.Conflicts(); len(conflicts) > 0 {
		v.Conflicts = conflicts
	}
	if counts, ok := imp.PreviewCounts(); ok {
		v.Counts = &counts
		if withRows {
			v.Preview = imp.PreviewView()
		}
	}
	return v
}

// handleStartImport creates a session from a multipart upload (field "file").
// With applyTemplate=true the best matching saved mapping is applied.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	schemaKey := chi.URLParam(r, "schemaKey")

	file, fileName, err := s.formFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	defer file.Close()

	ctx := withClient(r.Context(), r)
	active, err := s.service.StartImport(ctx, schemaKey, fileName, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	view := newSessionView(active, false)
	view.TemplateMatches = s.matchTemplates(ctx, active, r.FormValue("applyTemplate") == "true")
	writeJSON(w, http.StatusCreated, view)
}

// handleProcessFile uploads a new file into a session that was reset.
func (s *Server) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	file, fileName, err := s.formFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	defer file.Close()

	ctx := withClient(r.Context(), r)
	active, err := s.service.ProcessFile(ctx, chi.URLParam(r, "sessionID"), fileName, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	view := newSessionView(active, false)
	view.TemplateMatches = s.matchTemplates(ctx, active, r.FormValue("applyTemplate") == "true")
	writeJSON(w, http.StatusOK, view)
}

// formFile parses a bounded multipart body and opens its "file" part. On
// success the caller removes r.MultipartForm and closes the file.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return nil, "", core.ErrFileTooLarge
		}
		return nil, "", badRequest("invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		return nil, "", core.ErrNoFile
	}
	return file, header.Filename, nil
}

// matchTemplates looks up saved mappings for the session's headers and, with
// apply, applies the best one. Lookup failures only cost the suggestions.
func (s *Server) matchTemplates(ctx context.Context, active *core.ActiveImport, apply bool) []core.TemplateMatch {
	logger := logging.FromContext(ctx)

	matches, err := s.service.MatchMappingTemplates(ctx, active.SchemaKey, active.Importer.Headers())
	if err != nil && !errors.Is(err, core.ErrPersistenceOff) {
		logger.Warn("mapping template lookup failed", "session_id", active.ID, "error", err)
	}
	if len(matches) > 0 && apply {
		best := matches[0].Template
		if err := active.Importer.UpdateColumnMapping(core.ApplyTemplate(best, active.Importer.Headers())); err != nil {
			logger.Warn("saved mapping not applied", "session_id", active.ID, "template", best.Name, "error", err)
		}
	}
	return matches
}

// handleGetImport returns a session. Preview rows are included unless rows=false.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	active, err := s.service.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(active, r.URL.Query().Get("rows") != "false"))
}

// handleDiscardImport removes a session.
func (s *Server) handleDiscardImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(chi.URLParam(r, "sessionID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateMapping replaces the column mapping.
func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mapping core.ColumnMapping `json:"mapping"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.withSession(w, r, func(active *core.ActiveImport) error {
		return active.Importer.UpdateColumnMapping(req.Mapping)
	})
}

// handleGeneratePreview classifies all rows. The response includes the rows.
func (s *Server) handleGeneratePreview(w http.ResponseWriter, r *http.Request) {
	active, err := s.service.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := active.Importer.GeneratePreview(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(active, true))
}

// handleToggleRow flips the selection of one valid row.
func (s *Server) handleToggleRow(w http.ResponseWriter, r *http.Request) {
	rowID := chi.URLParam(r, "rowID")
	s.withSession(w, r, func(active *core.ActiveImport) error {
		return active.Importer.ToggleRowSelection(rowID)
	})
}

// handleSelectRow sets one row's selection. Selecting a duplicate imports it anyway.
func (s *Server) handleSelectRow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selected *bool `json:"selected"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Selected == nil {
		s.respondError(w, r, badRequest("selected is required"))
		return
	}

	rowID := chi.URLParam(r, "rowID")
	s.withSession(w, r, func(active *core.ActiveImport) error {
		return active.Importer.SelectRow(rowID, *req.Selected)
	})
}

// handleSelectAll selects every valid row, or clears the selection.
func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selected bool `json:"selected"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.withSession(w, r, func(active *core.ActiveImport) error {
		return active.Importer.ToggleAllRowsSelection(req.Selected)
	})
}

// handleExecute submits the selected rows and returns the summary. When the
// backend rejects the submission the error body carries the summary too.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := withClient(r.Context(), r)

	summary, err := s.service.Execute(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		var subErr *core.SubmissionError
		if summary != nil && errors.As(err, &subErr) {
			s.respondErrorWithSummary(w, r, err, summary)
			return
		}
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleReset returns a session to the upload step.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(active *core.ActiveImport) error {
		return active.Importer.Reset()
	})
}

// withSession runs fn on the session of the request and responds with the
// session view without rows.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*core.ActiveImport) error) {
	active, err := s.service.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := fn(active); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(active, false))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid request body")
	}
	return nil
}
