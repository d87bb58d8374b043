package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

const sessionCSV = "Name,Email,Phone,Company,Notes\n" +
	"Jane,jane@x.com,,Acme,vip\n" +
	"John,JANE@x.com,,Acme,\n" +
	"Bob,,,Acme,\n" +
	",,,,only notes\n" +
	"Eve,eve@x.com,555,Acme,\n"

func newTestSession(t *testing.T, creator BulkCreator[testContact]) *Session[testContact] {
	t.Helper()
	if creator == nil {
		creator = &fakeCreator[testContact]{}
	}
	return NewSession("s-1", testSchema(), creator, SessionOptions{})
}

func processed(t *testing.T, creator BulkCreator[testContact]) *Session[testContact] {
	t.Helper()
	s := newTestSession(t, creator)
	if err := s.ProcessFile(context.Background(), "contacts.csv", strings.NewReader(sessionCSV)); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	return s
}

func previewed(t *testing.T, creator BulkCreator[testContact]) *Session[testContact] {
	t.Helper()
	s := processed(t, creator)
	if err := s.GeneratePreview(); err != nil {
		t.Fatalf("GeneratePreview: %v", err)
	}
	return s
}

func assertStep(t *testing.T, s Importer, want Step) {
	t.Helper()
	if got := s.Step(); got != want {
		t.Fatalf("Step = %s, want %s", got, want)
	}
}

// ============================================================================
// Happy Path
// ============================================================================

func TestSession_FullFlow(t *testing.T) {
	creator := &fakeCreator[testContact]{}
	s := newTestSession(t, creator)
	assertStep(t, s, StepUpload)

	if err := s.ProcessFile(context.Background(), "contacts.csv", strings.NewReader(sessionCSV)); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	assertStep(t, s, StepMapping)

	if s.FileName() != "contacts.csv" {
		t.Errorf("FileName = %q", s.FileName())
	}
	if got := s.ColumnMapping().AsMap(); got["Email"] != "email" || got["Notes"] != "" {
		t.Errorf("auto mapping = %v", got)
	}
	if !s.CanProceedToPreview() {
		t.Fatal("CanProceedToPreview = false with email mapped")
	}

	if err := s.GeneratePreview(); err != nil {
		t.Fatalf("GeneratePreview: %v", err)
	}
	assertStep(t, s, StepPreview)

	p := s.Preview()
	if p.TotalRows != 5 || p.ValidRows != 2 || p.DuplicateRows != 1 || p.InvalidRows != 1 || p.EmptyRows != 1 {
		t.Errorf("preview counts = %+v", p)
	}

	summary, err := s.ExecuteImport(context.Background())
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	assertStep(t, s, StepSummary)

	if summary.Submitted != 2 || summary.Imported != 2 || summary.Duplicate != 1 || summary.Invalid != 1 || summary.Empty != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if s.Summary() == nil || s.Summary().Imported != 2 {
		t.Errorf("Summary() = %+v", s.Summary())
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	assertStep(t, s, StepUpload)
	if s.Preview() != nil || s.Summary() != nil || s.Headers() != nil || s.FileName() != "" {
		t.Error("Reset should clear all session state")
	}
}

// ============================================================================
// Step Guards
// ============================================================================

func TestSession_ProcessFileFailureReturnsToUpload(t *testing.T) {
	s := newTestSession(t, nil)

	err := s.ProcessFile(context.Background(), "empty.csv", strings.NewReader("Name,Email\n"))
	var emptyErr *EmptyFileError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("err = %v, want *EmptyFileError", err)
	}
	assertStep(t, s, StepUpload)
	if s.FileName() != "" {
		t.Errorf("FileName = %q after failure", s.FileName())
	}

	if err := s.ProcessFile(context.Background(), "ok.csv", strings.NewReader(sessionCSV)); err != nil {
		t.Fatalf("retry ProcessFile: %v", err)
	}
	assertStep(t, s, StepMapping)
}

func TestSession_ProcessFileCancelled(t *testing.T) {
	s := newTestSession(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.ProcessFile(ctx, "ok.csv", strings.NewReader(sessionCSV)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	assertStep(t, s, StepUpload)
}

// gatedReader blocks its first Read until release is closed.
type gatedReader struct {
	started chan struct{}
	release chan struct{}
	r       io.Reader
	once    sync.Once
}

func (g *gatedReader) Read(p []byte) (int, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.r.Read(p)
}

func TestSession_ResetDuringAnalysis(t *testing.T) {
	s := newTestSession(t, nil)
	gate := &gatedReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		r:       strings.NewReader(sessionCSV),
	}

	done := make(chan error, 1)
	go func() { done <- s.ProcessFile(context.Background(), "slow.csv", gate) }()

	select {
	case <-gate.started:
	case <-time.After(time.Second):
		t.Fatal("analysis did not start")
	}
	assertStep(t, s, StepAnalyzing)

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	close(gate.release)

	var err error
	select {
	case err = <-done:
	case <-time.After(time.Second):
		t.Fatal("ProcessFile did not return")
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Errorf("ProcessFile = %v, want *StepError", err)
	}

	assertStep(t, s, StepUpload)
	if s.Headers() != nil || s.FileName() != "" || s.ColumnMapping() != nil {
		t.Errorf("reset was undone: headers %v file %q", s.Headers(), s.FileName())
	}

	if err := s.ProcessFile(context.Background(), "contacts.csv", strings.NewReader(sessionCSV)); err != nil {
		t.Fatalf("ProcessFile after reset: %v", err)
	}
	assertStep(t, s, StepMapping)
}

func TestSession_WrongStep(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Session[testContact]) error
	}{
		{"generate preview before upload", func(s *Session[testContact]) error { return s.GeneratePreview() }},
		{"update mapping before upload", func(s *Session[testContact]) error { return s.UpdateColumnMapping(nil) }},
		{"toggle before preview", func(s *Session[testContact]) error { return s.ToggleRowSelection("row-0") }},
		{"select all before preview", func(s *Session[testContact]) error { return s.ToggleAllRowsSelection(true) }},
		{"execute before preview", func(s *Session[testContact]) error {
			_, err := s.ExecuteImport(context.Background())
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stepErr *StepError
			if err := tt.run(newTestSession(t, nil)); !errors.As(err, &stepErr) {
				t.Errorf("err = %v, want *StepError", err)
			}
		})
	}

	t.Run("process file twice", func(t *testing.T) {
		s := processed(t, nil)
		var stepErr *StepError
		err := s.ProcessFile(context.Background(), "again.csv", strings.NewReader(sessionCSV))
		if !errors.As(err, &stepErr) || stepErr.Step != StepMapping {
			t.Errorf("err = %v, want *StepError during mapping", err)
		}
	})
}

// ============================================================================
// Mapping
// ============================================================================

func TestSession_UpdateMappingInvalidatesPreview(t *testing.T) {
	s := previewed(t, nil)

	mapping := s.ColumnMapping()
	mapping = append(mapping, ColumnAssignment{Header: "Notes", Field: "company"})
	if err := s.UpdateColumnMapping(mapping); err != nil {
		t.Fatalf("UpdateColumnMapping: %v", err)
	}
	assertStep(t, s, StepMapping)
	if s.Preview() != nil {
		t.Error("preview should be discarded after a mapping change")
	}
	if f, _ := s.ColumnMapping().Target("Notes"); f != "company" {
		t.Errorf("Notes mapped to %q, want company", f)
	}
}

func TestSession_UpdateMappingRejectsUnknown(t *testing.T) {
	s := processed(t, nil)
	before := s.ColumnMapping()

	err := s.UpdateColumnMapping(identityMapping("Fax", "phone"))
	var mErr *MappingError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *MappingError", err)
	}
	if !mappingEqual(s.ColumnMapping(), before) {
		t.Error("rejected mapping must not change the session")
	}
}

func mappingEqual(a, b ColumnMapping) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSession_CanProceedToPreview(t *testing.T) {
	s := processed(t, nil)

	// Only name and company mapped: no identifying field
	if err := s.UpdateColumnMapping(identityMapping("Name", "name", "Company", "company")); err != nil {
		t.Fatalf("UpdateColumnMapping: %v", err)
	}
	if s.CanProceedToPreview() {
		t.Error("CanProceedToPreview = true without email or phone")
	}
	if err := s.GeneratePreview(); !errors.Is(err, ErrMappingIncomplete) {
		t.Errorf("GeneratePreview err = %v, want ErrMappingIncomplete", err)
	}

	if err := s.UpdateColumnMapping(identityMapping("Phone", "phone")); err != nil {
		t.Fatalf("UpdateColumnMapping: %v", err)
	}
	if !s.CanProceedToPreview() {
		t.Error("CanProceedToPreview = false with phone mapped")
	}
}

func TestSession_CanProceedWithoutIdentifyingSet(t *testing.T) {
	schema := testSchema()
	schema.RequiredFields = nil
	s := NewSession("s-2", schema, BulkCreator[testContact](&fakeCreator[testContact]{}), SessionOptions{})
	if err := s.ProcessFile(context.Background(), "c.csv", strings.NewReader(sessionCSV)); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if !s.CanProceedToPreview() {
		t.Error("CanProceedToPreview = false with columns mapped")
	}
	if err := s.UpdateColumnMapping(nil); err != nil {
		t.Fatalf("UpdateColumnMapping: %v", err)
	}
	if s.CanProceedToPreview() {
		t.Error("CanProceedToPreview = true with nothing mapped")
	}
}

// ============================================================================
// Selection
// ============================================================================

func TestSession_Selection(t *testing.T) {
	s := previewed(t, nil)

	// row-0 valid, row-1 duplicate, row-2 invalid, row-3 empty, row-4 valid
	if err := s.ToggleRowSelection("row-0"); err != nil {
		t.Fatalf("ToggleRowSelection: %v", err)
	}
	if p := s.Preview(); p.Rows[0].Selected || p.SelectedRows != 1 {
		t.Errorf("after toggle: row-0 selected=%v SelectedRows=%d", p.Rows[0].Selected, p.SelectedRows)
	}

	if err := s.ToggleRowSelection("row-2"); err != nil {
		t.Fatalf("ToggleRowSelection invalid row: %v", err)
	}
	if s.Preview().Rows[2].Selected {
		t.Error("invalid row must not become selected")
	}

	if err := s.ToggleRowSelection("row-42"); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("err = %v, want ErrRowNotFound", err)
	}

	if err := s.ToggleAllRowsSelection(true); err != nil {
		t.Fatalf("ToggleAllRowsSelection: %v", err)
	}
	for _, row := range s.Preview().Rows {
		if row.Selected != (row.Status == StatusValid) {
			t.Errorf("%s status %s selected %v after select all", row.ID, row.Status, row.Selected)
		}
	}

	if err := s.ToggleAllRowsSelection(false); err != nil {
		t.Fatalf("ToggleAllRowsSelection: %v", err)
	}
	if p := s.Preview(); p.SelectedRows != 0 {
		t.Errorf("SelectedRows = %d after clearing", p.SelectedRows)
	}
	if _, err := s.ExecuteImport(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Errorf("ExecuteImport err = %v, want ErrNoSelection", err)
	}
	assertStep(t, s, StepPreview)
}

func TestSession_SelectDuplicateOverride(t *testing.T) {
	creator := &fakeCreator[testContact]{}
	s := previewed(t, creator)

	if err := s.SelectRow("row-1", true); err != nil {
		t.Fatalf("SelectRow: %v", err)
	}
	row := s.Preview().Rows[1]
	if row.Status != StatusValid || !row.Selected {
		t.Errorf("row-1 = %s selected %v, want valid and selected", row.Status, row.Selected)
	}

	if err := s.SelectRow("row-2", true); err != nil {
		t.Fatalf("SelectRow invalid: %v", err)
	}
	if s.Preview().Rows[2].Selected {
		t.Error("invalid row must stay unselected")
	}

	summary, err := s.ExecuteImport(context.Background())
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if summary.Submitted != 3 || summary.Duplicate != 0 {
		t.Errorf("summary = %+v, want 3 submitted and no duplicates", summary)
	}
}

// ============================================================================
// Execution
// ============================================================================

func TestSession_ExecuteFailureStaysInPreview(t *testing.T) {
	creator := &fakeCreator[testContact]{err: errors.New("upstream unavailable")}
	s := previewed(t, creator)
	if err := s.ToggleRowSelection("row-4"); err != nil {
		t.Fatal(err)
	}

	summary, err := s.ExecuteImport(context.Background())
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want *SubmissionError", err)
	}
	assertStep(t, s, StepPreview)

	if summary == nil || summary.Failed != 1 || summary.ServerErrors[0] != "upstream unavailable" {
		t.Errorf("summary = %+v", summary)
	}
	if s.Summary() != nil {
		t.Error("a failed attempt must not be stored as the session summary")
	}
	if p := s.Preview(); p.Rows[4].Selected || !p.Rows[0].Selected {
		t.Error("selection should be preserved after a failed attempt")
	}

	creator.mu.Lock()
	creator.err = nil
	creator.mu.Unlock()
	if _, err := s.ExecuteImport(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	assertStep(t, s, StepSummary)
}

func TestSession_ResetDuringExecution(t *testing.T) {
	creator := &fakeCreator[testContact]{
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	s := previewed(t, creator)

	done := make(chan error, 1)
	go func() {
		_, err := s.ExecuteImport(context.Background())
		done <- err
	}()

	select {
	case <-creator.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("creator was not called")
	}

	if err := s.Reset(); !errors.Is(err, ErrImportInProgress) {
		t.Errorf("Reset err = %v, want ErrImportInProgress", err)
	}
	if err := s.ToggleAllRowsSelection(false); !errors.Is(err, ErrImportInProgress) {
		t.Errorf("ToggleAllRowsSelection err = %v, want ErrImportInProgress", err)
	}
	if _, err := s.ExecuteImport(context.Background()); !errors.Is(err, ErrImportInProgress) {
		t.Errorf("second ExecuteImport err = %v, want ErrImportInProgress", err)
	}

	close(creator.block)
	if err := <-done; err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Errorf("Reset after execution: %v", err)
	}
}

// ============================================================================
// Misc
// ============================================================================

func TestSession_MaxRows(t *testing.T) {
	s := NewSession("s-3", testSchema(), BulkCreator[testContact](&fakeCreator[testContact]{}), SessionOptions{MaxRows: 2})
	if err := s.ProcessFile(context.Background(), "c.csv", strings.NewReader(sessionCSV)); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	meta := s.Metadata()
	if meta.TotalRows != 5 || !meta.IsLargeDataset {
		t.Errorf("Metadata = %+v", meta)
	}
	if err := s.GeneratePreview(); err != nil {
		t.Fatal(err)
	}
	if p := s.Preview(); p.TotalRows != 2 || p.SourceTotalRows != 5 || !p.IsLargeDataset {
		t.Errorf("preview = %+v", p)
	}
}

func TestSession_PreviewView(t *testing.T) {
	s := newTestSession(t, nil)
	if s.PreviewView() != nil {
		t.Error("PreviewView should be nil before preview")
	}

	s = previewed(t, nil)
	if _, ok := s.PreviewView().(*ImportPreview[testContact]); !ok {
		t.Errorf("PreviewView type = %T", s.PreviewView())
	}
}

func TestSession_DownloadTemplate(t *testing.T) {
	var buf bytes.Buffer
	if err := newTestSession(t, nil).DownloadTemplate(&buf, []map[string]string{{"email": "a@x.com"}}); err != nil {
		t.Fatalf("DownloadTemplate: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open template: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(TemplateSheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0][1] != "Email *" || rows[1][1] != "a@x.com" {
		t.Errorf("template rows = %q", rows)
	}
}
