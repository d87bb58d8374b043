package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExecuteImport submits the selected valid rows of preview to creator and
// returns a summary that accounts for every row of the preview.
//
// With nothing selected it returns ErrNoSelection without calling creator.
// When creator fails, the summary counts every submitted row as failed and is
// returned together with a *SubmissionError.
func ExecuteImport[T any](ctx context.Context, preview *ImportPreview[T], schema ImportSchema[T], creator BulkCreator[T]) (*ImportSummary, error) {
	if preview == nil {
		return nil, ErrNoSelection
	}

	items := preview.SelectedItems()
	if len(items) == 0 {
		return nil, ErrNoSelection
	}

	start := time.Now()
	summary := summarizeExcluded(preview, schema)
	summary.Submitted = len(items)
	summary.StartedAt = start

	result, err := creator.BulkCreate(ctx, items)
	if err == nil && result == nil {
		err = errBulkCreateNoResult
	}
	if err != nil {
		summary.Failed = len(items)
		summary.ServerErrors = []string{err.Error()}
		summary.Duration = time.Since(start)
		return summary, &SubmissionError{Err: err}
	}

	summary.Imported = result.SuccessCount
	summary.Failed = result.FailedCount
	summary.Skipped = result.SkippedCount
	summary.ServerErrors = append(summary.ServerErrors, result.Errors...)
	reconcile(summary)

	summary.Duration = time.Since(start)
	return summary, nil
}

// reconcile makes Imported + Failed + Skipped equal Submitted. Rows the backend
// did not account for are failed; over-reported counts are trimmed from
// skipped, then failed, then imported.
func reconcile(s *ImportSummary) {
	s.Imported = max(s.Imported, 0)
	s.Failed = max(s.Failed, 0)
	s.Skipped = max(s.Skipped, 0)

	accounted := s.Imported + s.Failed + s.Skipped
	switch {
	case accounted < s.Submitted:
		missing := s.Submitted - accounted
		s.Failed += missing
		s.ServerErrors = append(s.ServerErrors,
			fmt.Sprintf("%d of %d submitted rows were not reported by the server and are counted as failed", missing, s.Submitted))
	case accounted > s.Submitted:
		excess := accounted - s.Submitted
		s.ServerErrors = append(s.ServerErrors,
			fmt.Sprintf("server reported %d results for %d submitted rows", accounted, s.Submitted))
		for _, n := range []*int{&s.Skipped, &s.Failed, &s.Imported} {
			cut := min(*n, excess)
			*n -= cut
			excess -= cut
		}
	}
}

// summarizeExcluded fills the counts and row details of rows that were not submitted.
func summarizeExcluded[T any](preview *ImportPreview[T], schema ImportSchema[T]) *ImportSummary {
	s := &ImportSummary{
		ServerErrors:     []string{},
		InvalidDetails:   []RowIssue{},
		DuplicateDetails: []RowIssue{},
	}

	for _, row := range preview.Rows {
		switch row.Status {
		case StatusInvalid:
			s.Invalid++
			s.InvalidDetails = append(s.InvalidDetails, RowIssue{
				RowNumber: row.RowNumber(),
				RowID:     row.ID,
				Name:      displayName(row, schema),
				Errors:    row.Errors,
			})
		case StatusDuplicate:
			s.Duplicate++
			s.DuplicateDetails = append(s.DuplicateDetails, RowIssue{
				RowNumber:       row.RowNumber(),
				RowID:           row.ID,
				Name:            displayName(row, schema),
				DuplicateFields: row.DuplicateFields,
				DuplicateOf:     row.DuplicateOf,
			})
		case StatusEmpty:
			s.Empty++
		case StatusValid:
			if !row.Selected {
				s.Deselected++
			}
		}
	}
	return s
}

// displayName labels a row for humans: the schema's DisplayName, else the first
// mapped value in field order, else "Row <n>".
func displayName[T any](row ImportEntity[T], schema ImportSchema[T]) string {
	if schema.DisplayName != nil && row.Status != StatusEmpty {
		if name := strings.TrimSpace(schema.DisplayName(row.Data)); name != "" {
			return name
		}
	}
	for _, f := range schema.Fields {
		if v := row.Values[f.Key]; v != "" {
			return v
		}
	}
	return fmt.Sprintf("Row %d", row.RowNumber())
}
