package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxBeginner is a DBTX that can also open transactions.
// Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// FieldType describes the expected kind of value for an import field.
// It is informational: clients use it for display and template hints.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// ImportField describes one target attribute of an import schema.
type ImportField struct {
	Key      string    `json:"key"`      // Machine name used in mappings
	Label    string    `json:"label"`    // Display name, also used for auto-mapping
	Required bool      `json:"required"` // Individually required
	Type     FieldType `json:"type"`

	// Validate returns an error message for a non-empty value, or "" when valid.
	// Type is not checked on its own; attach NumberValidator and friends for that.
	Validate func(value string) string `json:"-"`
}

// RowValidation is the result of a schema's row-level check.
type RowValidation struct {
	Errors   []string
	Warnings []string
}

// ImportSchema describes a target entity: its fields, which of them identify a row,
// which of them must be unique within a file, and how to build the domain value.
type ImportSchema[T any] struct {
	Fields []ImportField

	// RequiredFields is an OR-set: at least one must carry a value.
	RequiredFields []string

	// DuplicateCheckFields are checked in order; the first collision wins.
	DuplicateCheckFields []string

	// DuplicateValue returns the comparison value of a duplicate-check field,
	// typically the normalised form stored on the item. When nil or when it
	// returns "", the projected cell is compared instead.
	DuplicateValue func(item T, field string) string

	TransformRow func(mapped map[string]string) T
	ValidateRow  func(item T) RowValidation
	DisplayName  func(item T) string
}

// Field returns the field with the given key.
func (s ImportSchema[T]) Field(key string) (ImportField, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return ImportField{}, false
}

// label returns the display label for a field key, falling back to the key itself.
func (s ImportSchema[T]) label(key string) string {
	if f, ok := s.Field(key); ok && f.Label != "" {
		return f.Label
	}
	return key
}

// RowStatus classifies an import row.
type RowStatus string

const (
	StatusValid     RowStatus = "valid"
	StatusInvalid   RowStatus = "invalid"
	StatusDuplicate RowStatus = "duplicate"
	StatusEmpty     RowStatus = "empty"
)

// ImportEntity is one spreadsheet row's classified representation.
type ImportEntity[T any] struct {
	ID            string `json:"id"`
	OriginalIndex int    `json:"originalIndex"`
	Data          T      `json:"data"`

	// Values holds the projected, trimmed, non-blank values keyed by field key.
	Values map[string]string `json:"values"`

	Status          RowStatus `json:"status"`
	Errors          []string  `json:"errors"`
	Warnings        []string  `json:"warnings"`
	Selected        bool      `json:"selected"`
	DuplicateOf     string    `json:"duplicateOf,omitempty"`
	DuplicateFields []string  `json:"duplicateFields,omitempty"`
}

// RowNumber is the user-facing row number, counting the header as row 1.
func (e ImportEntity[T]) RowNumber() int {
	return e.OriginalIndex + 2
}

// SheetMetadata describes the file a session was built from.
type SheetMetadata struct {
	FileName       string `json:"fileName"`
	Format         string `json:"format"`
	TotalRows      int    `json:"totalRows"`
	IsLargeDataset bool   `json:"isLargeDataset"`
}

// ImportPreview is the classified row set plus aggregate counts.
type ImportPreview[T any] struct {
	Rows            []ImportEntity[T] `json:"rows"`
	TotalRows       int               `json:"totalRows"`
	ValidRows       int               `json:"validRows"`
	InvalidRows     int               `json:"invalidRows"`
	DuplicateRows   int               `json:"duplicateRows"`
	EmptyRows       int               `json:"emptyRows"`
	SelectedRows    int               `json:"selectedRows"`
	IsLargeDataset  bool              `json:"isLargeDataset"`
	SourceTotalRows int               `json:"sourceTotalRows"`
}

// BulkImportResult is what a bulk-create backend reports for one submission.
type BulkImportResult struct {
	TotalProcessed int      `json:"totalProcessed"`
	SuccessCount   int      `json:"successCount"`
	FailedCount    int      `json:"failedCount"`
	SkippedCount   int      `json:"skippedCount"`
	Errors         []string `json:"errors"`
	ImportedItems  []any    `json:"importedItems,omitempty"`
}

// BulkCreator persists a batch of validated items.
type BulkCreator[T any] interface {
	BulkCreate(ctx context.Context, items []T) (*BulkImportResult, error)
}

// BulkCreatorFunc adapts a function to BulkCreator.
type BulkCreatorFunc[T any] func(ctx context.Context, items []T) (*BulkImportResult, error)

// BulkCreate calls f(ctx, items).
func (f BulkCreatorFunc[T]) BulkCreate(ctx context.Context, items []T) (*BulkImportResult, error) {
	return f(ctx, items)
}

// RowIssue explains why a row was not imported.
type RowIssue struct {
	RowNumber       int      `json:"rowNumber"`
	RowID           string   `json:"rowId"`
	Name            string   `json:"name"`
	Errors          []string `json:"errors,omitempty"`
	DuplicateFields []string `json:"duplicateFields,omitempty"`
	DuplicateOf     string   `json:"duplicateOf,omitempty"`
}

// ImportSummary reports the outcome of an executed import.
type ImportSummary struct {
	Submitted        int           `json:"submitted"`
	Imported         int           `json:"imported"`
	Skipped          int           `json:"skipped"`
	Failed           int           `json:"failed"`
	Invalid          int           `json:"invalid"`
	Duplicate        int           `json:"duplicate"`
	Empty            int           `json:"empty"`
	Deselected       int           `json:"deselected"`
	ServerErrors     []string      `json:"serverErrors"`
	InvalidDetails   []RowIssue    `json:"invalidDetails"`
	DuplicateDetails []RowIssue    `json:"duplicateDetails"`
	Duration         time.Duration `json:"duration"`
	StartedAt        time.Time     `json:"startedAt"`
}

// Step is a stage of the import session state machine.
type Step string

const (
	StepUpload    Step = "upload"
	StepAnalyzing Step = "analyzing"
	StepMapping   Step = "mapping"
	StepPreview   Step = "preview"
	StepSummary   Step = "summary"
)
