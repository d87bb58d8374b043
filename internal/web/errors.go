package web

// errors.go turns service errors into JSON responses.
//
//  1. Handler calls respondError(w, r, err)
//  2. statusFor picks the HTTP status from the error type
//  3. core.MapError supplies the user message, action and code
//  4. The technical error is logged with the request id

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
// Code is machine-readable, Message and Action are for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// Summary describes a failed submission, including the backend's message.
	Summary *core.ImportSummary `json:"summary,omitempty"`
}

// errBadRequest marks malformed request bodies and parameters.
type errBadRequest struct {
	msg string
}

func (e *errBadRequest) Error() string { return e.msg }

func badRequest(msg string) error { return &errBadRequest{msg: msg} }

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorWithSummary(w, r, err, nil)
}

// respondErrorWithSummary is respondError for failed executions, whose
// summary is returned alongside the error.
func (s *Server) respondErrorWithSummary(w http.ResponseWriter, r *http.Request, err error, summary *core.ImportSummary) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	unexpected := !core.IsUserFacing(err)

	var bad *errBadRequest
	if errors.As(err, &bad) {
		userMsg = core.UserMessage{Message: bad.msg, Action: "Check the request and try again", Code: "REQ001"}
		unexpected = false
	}

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError || unexpected {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable && errors.Is(err, core.ErrTooManyImports) {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
		Summary: summary,
	})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var (
		bad        *errBadRequest
		emptyFile  *core.EmptyFileError
		mappingErr *core.MappingError
		noSel      *core.NoSelectionError
		stepErr    *core.StepError
		subErr     *core.SubmissionError
	)

	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSchemaNotFound),
		errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrRowNotFound),
		errors.Is(err, core.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrNoFile), errors.Is(err, core.ErrTemplateNameEmpty):
		return http.StatusBadRequest
	case errors.As(err, &emptyFile),
		errors.As(err, &mappingErr),
		errors.As(err, &noSel),
		errors.Is(err, core.ErrMappingIncomplete):
		return http.StatusUnprocessableEntity
	case errors.As(err, &stepErr),
		errors.Is(err, core.ErrImportInProgress),
		errors.Is(err, core.ErrTemplateExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports), errors.Is(err, core.ErrPersistenceOff):
		return http.StatusServiceUnavailable
	case errors.As(err, &subErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	msg := core.MapError(err)
	switch msg.Code {
	case "FILE002", "FILE003":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
