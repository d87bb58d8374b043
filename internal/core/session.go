package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// Importer is the schema-independent view of an import session used by the
// service and the HTTP layer.
type Importer interface {
	ID() string
	Step() Step
	FileName() string
	Headers() []string
	Metadata() SheetMetadata
	Fields() []ImportField
	RequiredFields() []string
	ColumnMapping() ColumnMapping
	CanProceedToPreview() bool

	ProcessFile(ctx context.Context, fileName string, r io.Reader) error
	UpdateColumnMapping(mapping ColumnMapping) error
	GeneratePreview() error
	ToggleRowSelection(rowID string) error
	SelectRow(rowID string, selected bool) error
	ToggleAllRowsSelection(selected bool) error
	ExecuteImport(ctx context.Context) (*ImportSummary, error)
	Reset() error

	// PreviewView returns the current preview as *ImportPreview[T], or nil.
	PreviewView() any
	PreviewCounts() (PreviewCounts, bool)
	Summary() *ImportSummary
	DownloadTemplate(w io.Writer, examples []map[string]string) error
}

// SessionOptions tunes a session.
type SessionOptions struct {
	MaxRows int

	// Logger should already carry the session's identifying attributes.
	Logger *slog.Logger
}

// Session drives one import from upload to summary.
//
//	upload -> analyzing -> mapping -> preview -> summary
//
// Reset returns to upload from any step unless an import is being executed.
// All methods are safe for concurrent use.
type Session[T any] struct {
	mu sync.Mutex

	id      string
	schema  ImportSchema[T]
	creator BulkCreator[T]
	opts    SessionOptions

	step      Step
	executing bool
	gen       uint64 // bumped by Reset
	fileName  string
	sheet     *SheetData
	mapping   ColumnMapping
	preview   *ImportPreview[T]
	summary   *ImportSummary
}

// NewSession returns a session in the upload step.
func NewSession[T any](id string, schema ImportSchema[T], creator BulkCreator[T], opts SessionOptions) *Session[T] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	return &Session[T]{
		id:      id,
		schema:  schema,
		creator: creator,
		opts:    opts,
		step:    StepUpload,
	}
}

var _ Importer = (*Session[struct{}])(nil)

func (s *Session[T]) ID() string { return s.id }

func (s *Session[T]) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session[T]) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

func (s *Session[T]) Headers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheet == nil {
		return nil
	}
	out := make([]string, len(s.sheet.Headers))
	copy(out, s.sheet.Headers)
	return out
}

func (s *Session[T]) Metadata() SheetMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheet == nil {
		return SheetMetadata{}
	}
	return s.sheet.Metadata
}

func (s *Session[T]) Fields() []ImportField { return s.schema.Fields }

func (s *Session[T]) RequiredFields() []string { return s.schema.RequiredFields }

func (s *Session[T]) ColumnMapping() ColumnMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping.Clone()
}

// Preview returns a copy of the current preview, or nil.
func (s *Session[T]) Preview() *ImportPreview[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview.Clone()
}

func (s *Session[T]) PreviewView() any {
	if p := s.Preview(); p != nil {
		return p
	}
	return nil
}

// PreviewCounts returns the counts of the current preview. ok is false
// when there is no preview.
func (s *Session[T]) PreviewCounts() (counts PreviewCounts, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return PreviewCounts{}, false
	}
	return s.preview.Counts(), true
}

func (s *Session[T]) Summary() *ImportSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return nil
	}
	out := *s.summary
	return &out
}

// ProcessFile reads the file, proposes a column mapping and moves to mapping.
// On failure the session stays in upload.
func (s *Session[T]) ProcessFile(ctx context.Context, fileName string, r io.Reader) error {
	s.mu.Lock()
	if s.step != StepUpload {
		step := s.step
		s.mu.Unlock()
		return &StepError{Op: "process file", Step: step}
	}
	s.step = StepAnalyzing
	s.fileName = fileName
	gen := s.gen
	s.mu.Unlock()

	logger := logging.ForRequest(ctx, s.opts.Logger)

	sheet, err := ReadSpreadsheet(r, fileName, s.opts.MaxRows)
	if err == nil {
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		logger.Info("import file discarded after reset", "file", fileName)
		return &StepError{Op: "process file", Step: s.step}
	}

	if err != nil {
		s.step = StepUpload
		s.fileName = ""
		logger.Warn("import file rejected",
			"file", fileName,
			"error", err,
		)
		return err
	}

	s.sheet = sheet
	s.mapping = AutoMapColumns(sheet.Headers, s.schema.Fields)
	s.step = StepMapping

	logger.Info("import file analyzed",
		"file", fileName,
		"format", sheet.Metadata.Format,
		"headers", len(sheet.Headers),
		"rows", len(sheet.Rows),
		"total_rows", sheet.Metadata.TotalRows,
		"large_dataset", sheet.Metadata.IsLargeDataset,
		"mapped_fields", len(s.mapping.MappedFields()),
	)
	return nil
}

// UpdateColumnMapping replaces the mapping. Headers missing from mapping are
// skipped. An existing preview is discarded and the session returns to mapping.
func (s *Session[T]) UpdateColumnMapping(mapping ColumnMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepMapping && s.step != StepPreview {
		return &StepError{Op: "update mapping", Step: s.step}
	}
	if s.executing {
		return ErrImportInProgress
	}

	normalized, err := normalizeMapping(s.sheet.Headers, mapping, s.schema.Fields)
	if err != nil {
		return err
	}

	s.mapping = normalized
	s.preview = nil
	s.step = StepMapping
	return nil
}

// CanProceedToPreview reports whether an identifying field is mapped. Schemas
// without identifying fields need at least one mapped column.
func (s *Session[T]) CanProceedToPreview() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canProceed()
}

func (s *Session[T]) canProceed() bool {
	if s.sheet == nil {
		return false
	}
	mapped := s.mapping.MappedFields()
	if len(s.schema.RequiredFields) == 0 {
		return len(mapped) > 0
	}
	for _, key := range mapped {
		for _, req := range s.schema.RequiredFields {
			if key == req {
				return true
			}
		}
	}
	return false
}

// GeneratePreview classifies every row and moves to preview.
func (s *Session[T]) GeneratePreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepMapping && s.step != StepPreview {
		return &StepError{Op: "generate preview", Step: s.step}
	}
	if s.executing {
		return ErrImportInProgress
	}
	if !s.canProceed() {
		return ErrMappingIncomplete
	}

	entities := ValidateRows(s.sheet.Rows, s.mapping, s.schema)
	entities = DetectDuplicates(entities, s.schema)
	s.preview = BuildPreview(entities, s.sheet.Metadata)
	s.step = StepPreview

	s.opts.Logger.Info("import preview generated",
		"rows", s.preview.TotalRows,
		"valid", s.preview.ValidRows,
		"invalid", s.preview.InvalidRows,
		"duplicate", s.preview.DuplicateRows,
		"empty", s.preview.EmptyRows,
	)
	return nil
}

// ToggleRowSelection flips the selection of a valid row. Rows of other
// statuses are left untouched.
func (s *Session[T]) ToggleRowSelection(rowID string) error {
	return s.editRows(func(p *ImportPreview[T]) error {
		row, ok := p.Row(rowID)
		if !ok {
			return ErrRowNotFound
		}
		if row.Status == StatusValid {
			row.Selected = !row.Selected
		}
		return nil
	})
}

// SelectRow sets a row's selection explicitly. Selecting a duplicate row
// overrides the duplicate finding and makes it valid again. Invalid and
// empty rows cannot be selected.
func (s *Session[T]) SelectRow(rowID string, selected bool) error {
	return s.editRows(func(p *ImportPreview[T]) error {
		row, ok := p.Row(rowID)
		if !ok {
			return ErrRowNotFound
		}
		switch row.Status {
		case StatusValid:
			row.Selected = selected
		case StatusDuplicate:
			if selected {
				row.Status = StatusValid
				row.Selected = true
			}
		}
		return nil
	})
}

// ToggleAllRowsSelection selects exactly the valid rows, or clears every selection.
func (s *Session[T]) ToggleAllRowsSelection(selected bool) error {
	return s.editRows(func(p *ImportPreview[T]) error {
		for i := range p.Rows {
			p.Rows[i].Selected = selected && p.Rows[i].Status == StatusValid
		}
		return nil
	})
}

func (s *Session[T]) editRows(edit func(p *ImportPreview[T]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepPreview || s.preview == nil {
		return &StepError{Op: "change selection", Step: s.step}
	}
	if s.executing {
		return ErrImportInProgress
	}
	if err := edit(s.preview); err != nil {
		return err
	}
	s.preview.Recount()
	return nil
}

// ExecuteImport submits the selected rows and moves to summary. When the
// backend fails the session stays in preview with the selection intact, and
// the returned summary describes the failed attempt.
func (s *Session[T]) ExecuteImport(ctx context.Context) (*ImportSummary, error) {
	s.mu.Lock()
	if s.step != StepPreview || s.preview == nil {
		step := s.step
		s.mu.Unlock()
		return nil, &StepError{Op: "execute import", Step: step}
	}
	if s.executing {
		s.mu.Unlock()
		return nil, ErrImportInProgress
	}
	snapshot := s.preview.Clone()
	s.executing = true
	s.mu.Unlock()

	logger := logging.ForRequest(ctx, s.opts.Logger)
	summary, err := ExecuteImport(ctx, snapshot, s.schema, s.creator)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.executing = false

	var subErr *SubmissionError
	switch {
	case err == nil:
		s.summary = summary
		s.step = StepSummary
		logger.Info("import executed",
			"submitted", summary.Submitted,
			"imported", summary.Imported,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
			"duration_ms", summary.Duration.Milliseconds(),
		)
	case errors.As(err, &subErr):
		logger.Error("import submission failed",
			"submitted", summary.Submitted,
			"error", subErr.Err,
		)
	}
	return summary, err
}

// Reset discards everything and returns to upload. A file still being
// analyzed is dropped when its analysis finishes.
func (s *Session[T]) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executing {
		return ErrImportInProgress
	}
	s.gen++
	s.step = StepUpload
	s.fileName = ""
	s.sheet = nil
	s.mapping = nil
	s.preview = nil
	s.summary = nil
	return nil
}

// DownloadTemplate writes an .xlsx template for the session's schema.
func (s *Session[T]) DownloadTemplate(w io.Writer, examples []map[string]string) error {
	return WriteTemplate(w,
		TemplateHeaders(s.schema.Fields, s.schema.RequiredFields),
		TemplateRows(s.schema.Fields, examples),
	)
}
