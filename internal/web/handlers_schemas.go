package web

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// healthResponse reports liveness and import capacity.
type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
	RunningImports int    `json:"runningImports"`
	ImportSlots    int    `json:"importSlots"`
	Persistence    bool   `json:"persistence"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.service.LimiterStatus()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		ActiveSessions: s.service.ActiveSessions(),
		RunningImports: status.Active,
		ImportSlots:    status.MaxConcurrent,
		Persistence:    s.service.PersistenceEnabled(),
	})
}

// handleListSchemas returns every registered import schema.
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListSchemas())
}

// handleDownloadTemplate sends the .xlsx template of a schema.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	schemaKey := chi.URLParam(r, "schemaKey")

	// Buffer so that a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := s.service.WriteSchemaTemplate(&buf, schemaKey); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.xlsx"`, schemaKey))
	w.Write(buf.Bytes())
}
