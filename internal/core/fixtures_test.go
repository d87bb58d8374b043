package core

import (
	"context"
	"strings"
	"sync"
)

// testContact is the domain type used by most pipeline tests.
type testContact struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Age     float64
}

func testSchema() ImportSchema[testContact] {
	return ImportSchema[testContact]{
		Fields: []ImportField{
			{Key: "name", Label: "Name", Type: FieldString},
			{Key: "email", Label: "Email", Type: FieldString, Validate: func(v string) string {
				if !strings.Contains(v, "@") {
					return "Email is not a valid email address"
				}
				return ""
			}},
			{Key: "phone", Label: "Phone", Type: FieldString},
			{Key: "company", Label: "Company", Type: FieldString},
			{Key: "age", Label: "Age", Type: FieldNumber, Validate: NumberValidator("Age")},
		},
		RequiredFields:       []string{"email", "phone"},
		DuplicateCheckFields: []string{"email", "phone"},
		TransformRow: func(m map[string]string) testContact {
			age, _ := ParseNumber(m["age"])
			return testContact{
				Name:    m["name"],
				Email:   m["email"],
				Phone:   m["phone"],
				Company: m["company"],
				Age:     age,
			}
		},
		ValidateRow: func(c testContact) RowValidation {
			var rv RowValidation
			if c.Age > 150 {
				rv.Errors = append(rv.Errors, "Age must be 150 or less")
			}
			if c.Company == "" {
				rv.Warnings = append(rv.Warnings, "Company is empty")
			}
			return rv
		},
		DisplayName: func(c testContact) string { return c.Name },
	}
}

// identityMapping maps each header to the field of the same key.
func identityMapping(pairs ...string) ColumnMapping {
	m := make(ColumnMapping, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m = append(m, ColumnAssignment{Header: pairs[i], Field: pairs[i+1]})
	}
	return m
}

var contactMapping = identityMapping(
	"Name", "name",
	"Email", "email",
	"Phone", "phone",
	"Company", "company",
	"Age", "age",
)

func contactRow(name, email, phone string) map[string]string {
	return map[string]string{
		"Name":    name,
		"Email":   email,
		"Phone":   phone,
		"Company": "Acme",
		"Age":     "",
	}
}

// fakeCreator records submissions. With no result or error configured it
// reports every item as imported.
type fakeCreator[T any] struct {
	mu     sync.Mutex
	calls  int
	items  []T
	result *BulkImportResult
	err    error

	// block, when set, is waited on before returning.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeCreator[T]) BulkCreate(ctx context.Context, items []T) (*BulkImportResult, error) {
	f.mu.Lock()
	f.calls++
	f.items = append(f.items, items...)
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &BulkImportResult{TotalProcessed: len(items), SuccessCount: len(items), Errors: []string{}}, nil
}

func (f *fakeCreator[T]) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
