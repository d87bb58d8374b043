package core

import (
	"errors"
	"fmt"
)

var (
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrNoFile             = errors.New("no file provided")
	ErrImportInProgress   = errors.New("import in progress")
	ErrMappingIncomplete  = errors.New("mapping incomplete: map at least one identifying column")
	ErrRowNotFound        = errors.New("row not found")
	ErrSessionNotFound    = errors.New("import session not found")
	ErrSchemaNotFound     = errors.New("schema not found")
	ErrTemplateNotFound   = errors.New("mapping template not found")
	ErrTemplateExists     = errors.New("mapping template already exists")
	ErrTemplateNameEmpty  = errors.New("mapping template name is required")
	ErrPersistenceOff     = errors.New("database not configured")
	ErrNoSelection        = &NoSelectionError{}
	errBulkCreateNoResult = errors.New("bulk create returned no result")
)

// EmptyFileError reports a file without headers or data rows.
type EmptyFileError struct {
	Reason string
}

func (e *EmptyFileError) Error() string {
	return "empty file: " + e.Reason
}

// NoSelectionError is returned when an import is executed with no selected valid rows.
type NoSelectionError struct{}

func (e *NoSelectionError) Error() string {
	return "no selection: no valid rows selected for import"
}

// StepError is returned when an operation is attempted in the wrong session step.
type StepError struct {
	Op   string
	Step Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("invalid step: cannot %s during %s", e.Op, e.Step)
}

// MappingError reports a mapping that references unknown headers or fields.
type MappingError struct {
	Header string
	Field  string
}

func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid mapping: unknown field %q for column %q", e.Field, e.Header)
	}
	return fmt.Sprintf("invalid mapping: unknown column %q", e.Header)
}

// SubmissionError wraps a bulk-create failure. The summary returned alongside it
// is still populated.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "bulk create failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
