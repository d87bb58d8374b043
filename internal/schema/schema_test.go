package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// ============================================================================
// Field Validator Tests
// ============================================================================

func TestFieldValidators(t *testing.T) {
	tests := []struct {
		name    string
		check   func(string) string
		value   string
		wantErr string
	}{
		{"email ok", validEmail("Email"), "jane@example.com", ""},
		{"email invalid", validEmail("Email"), "jane.example.com", "Email is not a valid email address"},
		{"phone e164 with spaces", validPhone("Phone"), "+49 30 1234567", ""},
		{"phone 00 prefix", validPhone("Phone"), "0049 (30) 123-4567", ""},
		{"phone local", validPhone("Phone"), "030 1234567", ""},
		{"phone letters", validPhone("Phone"), "call me", "Phone is not a valid phone number"},
		{"phone too short", validPhone("Phone"), "123", "Phone is not a valid phone number"},
		{"url bare host", validURL("Website"), "acme.example.com", ""},
		{"url full", validURL("Website"), "http://acme.example.com/about", ""},
		{"url with space", validURL("Website"), "not a url", "Website is not a valid web address"},
		{"amount ok", validAmount("Price"), "$1,200.50", ""},
		{"amount zero", validAmount("Price"), "0", ""},
		{"amount negative", validAmount("Price"), "-3", "Price must not be negative"},
		{"amount accounting negative", validAmount("Price"), "(3.00)", "Price must not be negative"},
		{"amount text", validAmount("Price"), "free", "Price must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.value); got != tt.wantErr {
				t.Errorf("check(%q) = %q, want %q", tt.value, got, tt.wantErr)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+49 30 1234567", "+49301234567"},
		{"0049-30-1234567", "+49301234567"},
		{"(030) 123.45/67", "0301234567"},
		{" 0151 234 ", "0151234"},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"acme.example.com", "https://acme.example.com"},
		{"http://acme.example.com", "http://acme.example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ============================================================================
// Contact Schema Tests
// ============================================================================

func contactRow(values ...string) (map[string]string, core.ColumnMapping) {
	raw := make(map[string]string)
	var mapping core.ColumnMapping
	for i := 0; i+1 < len(values); i += 2 {
		raw[values[i]] = values[i+1]
		mapping = append(mapping, core.ColumnAssignment{Header: values[i], Field: values[i]})
	}
	return raw, mapping
}

func TestContactSchema_Rows(t *testing.T) {
	tests := []struct {
		name       string
		row        []string
		wantStatus core.RowStatus
		wantErr    string
		wantWarn   string
	}{
		{
			name:       "complete contact",
			row:        []string{"name", "Jane Doe", "email", "jane@example.com", "phone", "+49 30 1234567"},
			wantStatus: core.StatusValid,
		},
		{
			name:       "phone only",
			row:        []string{"phone", "0301234567"},
			wantStatus: core.StatusValid,
			wantWarn:   "Name is empty; the contact will be listed by email or phone",
		},
		{
			name:       "no identifying field",
			row:        []string{"company", "Acme"},
			wantStatus: core.StatusInvalid,
			wantErr:    "At least one of the following fields is required: Name, Email, Phone",
		},
		{
			name:       "bad email",
			row:        []string{"name", "Jane", "email", "jane-at-example"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Email is not a valid email address",
		},
		{
			name:       "bad birthday",
			row:        []string{"name", "Jane", "birthday", "someday"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Birthday must be a valid date",
		},
		{
			name:       "future birthday",
			row:        []string{"name", "Jane", "birthday", "2099-01-01"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Birthday cannot be in the future",
		},
		{
			name:       "bad newsletter flag",
			row:        []string{"name", "Jane", "newsletter", "maybe"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Newsletter must be yes or no",
		},
		{
			name:       "newsletter without email",
			row:        []string{"name", "Jane", "newsletter", "yes"},
			wantStatus: core.StatusValid,
			wantWarn:   "Newsletter opt-in without an email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, mapping := contactRow(tt.row...)
			e := core.ValidateRow(0, raw, mapping, ContactSchema)

			if e.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s (errors %q)", e.Status, tt.wantStatus, e.Errors)
			}
			if tt.wantErr != "" && !contains(e.Errors, tt.wantErr) {
				t.Errorf("Errors = %q, want %q", e.Errors, tt.wantErr)
			}
			if tt.wantWarn != "" && !contains(e.Warnings, tt.wantWarn) {
				t.Errorf("Warnings = %q, want %q", e.Warnings, tt.wantWarn)
			}
		})
	}
}

func TestTransformContact(t *testing.T) {
	c := transformContact(map[string]string{
		"name":       "Jane Doe",
		"phone":      "0049 30 1234567",
		"website":    "acme.example.com",
		"newsletter": "Yes",
		"birthday":   "1985-04-12",
	})

	if c.Phone != "+49301234567" {
		t.Errorf("Phone = %q", c.Phone)
	}
	if c.Website != "https://acme.example.com" {
		t.Errorf("Website = %q", c.Website)
	}
	if !c.Newsletter {
		t.Error("Newsletter = false, want true")
	}
	if c.Birthday == nil || c.Birthday.Format("2006-01-02") != "1985-04-12" {
		t.Errorf("Birthday = %v", c.Birthday)
	}
}

func TestValidateContact_FixedClock(t *testing.T) {
	orig := now
	now = func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = orig })

	d := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	rv := validateContact(Contact{Name: "Jane", Birthday: &d})
	if len(rv.Errors) != 1 {
		t.Errorf("Errors = %q, want one future birthday error", rv.Errors)
	}
}

func TestContactName(t *testing.T) {
	tests := []struct {
		c    Contact
		want string
	}{
		{Contact{Name: "Jane", Email: "j@x.com"}, "Jane"},
		{Contact{Email: "j@x.com", Phone: "123"}, "j@x.com"},
		{Contact{Phone: "123"}, "123"},
	}
	for _, tt := range tests {
		if got := contactName(tt.c); got != tt.want {
			t.Errorf("contactName(%+v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestContactDuplicates(t *testing.T) {
	rows := []map[string]string{
		{"name": "Jane", "email": "jane@example.com"},
		{"name": "Janet", "email": "JANE@example.com"},
		{"name": "Jim", "phone": "0301234567"},
		{"name": "Jimmy", "phone": "0301234567"},
	}
	_, mapping := contactRow("name", "", "email", "", "phone", "")

	entities := core.DetectDuplicates(core.ValidateRows(rows, mapping, ContactSchema), ContactSchema)
	want := []core.RowStatus{core.StatusValid, core.StatusDuplicate, core.StatusValid, core.StatusDuplicate}
	for i, e := range entities {
		if e.Status != want[i] {
			t.Errorf("row %d Status = %s, want %s", i, e.Status, want[i])
		}
	}
	if entities[3].DuplicateFields[0] != "phone" {
		t.Errorf("DuplicateFields = %v, want [phone]", entities[3].DuplicateFields)
	}
}

func TestContactDuplicates_NormalisedPhone(t *testing.T) {
	rows := []map[string]string{
		{"name": "Jane", "phone": "+49 30 1234567"},
		{"name": "Jane D.", "phone": "0049-30-1234567"},
		{"name": "Other", "phone": "+49 30 7654321"},
	}
	_, mapping := contactRow("name", "", "phone", "")

	entities := core.DetectDuplicates(core.ValidateRows(rows, mapping, ContactSchema), ContactSchema)
	want := []core.RowStatus{core.StatusValid, core.StatusDuplicate, core.StatusValid}
	for i, e := range entities {
		if e.Status != want[i] {
			t.Errorf("row %d Status = %s, want %s (data %+v)", i, e.Status, want[i], e.Data)
		}
	}
	if entities[1].DuplicateOf != "row-0" || entities[1].Selected {
		t.Errorf("row 1 DuplicateOf = %q Selected = %v", entities[1].DuplicateOf, entities[1].Selected)
	}
}

func TestContactDuplicateValue(t *testing.T) {
	c := Contact{Email: " Jane@Example.COM ", Phone: "+49301234567", Name: "Jane"}
	tests := []struct {
		field, want string
	}{
		{"email", "jane@example.com"},
		{"phone", "+49301234567"},
		{"name", ""},
	}
	for _, tt := range tests {
		if got := contactDuplicateValue(c, tt.field); got != tt.want {
			t.Errorf("contactDuplicateValue(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

// ============================================================================
// Article Schema Tests
// ============================================================================

func TestArticleSchema_Rows(t *testing.T) {
	tests := []struct {
		name       string
		row        []string
		wantStatus core.RowStatus
		wantErr    string
		wantWarn   string
	}{
		{
			name:       "complete article",
			row:        []string{"sku", "PIPE-15", "name", "Copper pipe", "price", "4.90", "cost", "2.10"},
			wantStatus: core.StatusValid,
		},
		{
			name:       "missing sku",
			row:        []string{"name", "Copper pipe"},
			wantStatus: core.StatusInvalid,
			wantErr:    "At least one of the following fields is required: SKU",
		},
		{
			name:       "missing name",
			row:        []string{"sku", "PIPE-15", "price", "1"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Article Name is required",
		},
		{
			name:       "negative price",
			row:        []string{"sku", "PIPE-15", "name", "Pipe", "price", "-1"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Price must not be negative",
		},
		{
			name:       "stock not a number",
			row:        []string{"sku", "PIPE-15", "name", "Pipe", "price", "1", "stock", "lots"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Stock Quantity must be a number",
		},
		{
			name:       "active not a flag",
			row:        []string{"sku", "PIPE-15", "name", "Pipe", "price", "1", "active", "sometimes"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Active must be yes or no",
		},
		{
			name:       "min above max",
			row:        []string{"sku", "PIPE-15", "name", "Pipe", "price", "1", "min_stock", "50", "max_stock", "10"},
			wantStatus: core.StatusInvalid,
			wantErr:    "Min Stock must not exceed Max Stock",
		},
		{
			name:       "no price",
			row:        []string{"sku", "PIPE-15", "name", "Pipe"},
			wantStatus: core.StatusValid,
			wantWarn:   "No price set",
		},
		{
			name:       "cost above price",
			row:        []string{"sku", "PIPE-15", "name", "Pipe", "price", "1", "cost", "2"},
			wantStatus: core.StatusValid,
			wantWarn:   "Cost is higher than price",
		},
		{
			name:       "negative stock",
			row:        []string{"sku", "PIPE-15", "name", "Pipe", "price", "1", "stock", "-4"},
			wantStatus: core.StatusValid,
			wantWarn:   "Stock is negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, mapping := contactRow(tt.row...)
			e := core.ValidateRow(0, raw, mapping, ArticleSchema)

			if e.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s (errors %q)", e.Status, tt.wantStatus, e.Errors)
			}
			if tt.wantErr != "" && !contains(e.Errors, tt.wantErr) {
				t.Errorf("Errors = %q, want %q", e.Errors, tt.wantErr)
			}
			if tt.wantWarn != "" && !contains(e.Warnings, tt.wantWarn) {
				t.Errorf("Warnings = %q, want %q", e.Warnings, tt.wantWarn)
			}
		})
	}
}

func TestTransformArticle_Defaults(t *testing.T) {
	a := transformArticle(map[string]string{"sku": "X1", "name": "Filter", "price": "12,50 €"})
	if a.Unit != DefaultUnit {
		t.Errorf("Unit = %q, want %q", a.Unit, DefaultUnit)
	}
	if !a.Active {
		t.Error("Active should default to true")
	}
	if a.Price == nil || *a.Price != 1250 {
		// ParseNumber treats the comma as a thousands separator
		t.Errorf("Price = %v", a.Price)
	}
	if a.Stock != nil {
		t.Errorf("Stock = %v, want nil", *a.Stock)
	}

	a = transformArticle(map[string]string{"sku": "X1", "active": "no"})
	if a.Active {
		t.Error("Active = true, want false")
	}
}

func TestArticleName(t *testing.T) {
	if got := articleName(Article{SKU: "X1", Name: "Filter"}); got != "Filter (X1)" {
		t.Errorf("articleName = %q", got)
	}
	if got := articleName(Article{SKU: "X1"}); got != "X1" {
		t.Errorf("articleName = %q", got)
	}
}

func TestAutoMap_ArticleHeaders(t *testing.T) {
	headers := []string{"SKU", "Name", "Stock", "Min Stock", "Max Stock", "Price"}
	want := map[string]string{
		"SKU": "sku", "Name": "name", "Stock": "stock",
		"Min Stock": "min_stock", "Max Stock": "max_stock", "Price": "price",
	}
	got := core.AutoMapColumns(headers, ArticleSchema.Fields).AsMap()
	for h, field := range want {
		if got[h] != field {
			t.Errorf("%q mapped to %q, want %q", h, got[h], field)
		}
	}
}

// ============================================================================
// Table Tests
// ============================================================================

func TestTables_ValuesMatchColumns(t *testing.T) {
	d := time.Date(1985, 4, 12, 0, 0, 0, 0, time.UTC)
	if n := len(contactTable.Values(Contact{Birthday: &d})); n != len(contactTable.Columns) {
		t.Errorf("contacts: %d values for %d columns", n, len(contactTable.Columns))
	}
	if n := len(articleTable.Values(Article{})); n != len(articleTable.Columns) {
		t.Errorf("articles: %d values for %d columns", n, len(articleTable.Columns))
	}
}

// ============================================================================
// Registration and Creator Tests
// ============================================================================

func TestRegistered(t *testing.T) {
	tests := []struct {
		key   string
		group string
	}{
		{"contacts", "CRM"},
		{"articles", "Inventory"},
	}
	for _, tt := range tests {
		def, ok := core.Get(tt.key)
		if !ok {
			t.Fatalf("schema %q not registered", tt.key)
		}
		if def.Info.Group != tt.group {
			t.Errorf("%s group = %q, want %q", tt.key, def.Info.Group, tt.group)
		}
		if len(def.Examples) == 0 {
			t.Errorf("%s has no examples", tt.key)
		}
		if len(def.Info.Fields) == 0 || len(def.Info.DuplicateCheckFields) == 0 {
			t.Errorf("%s info = %+v", tt.key, def.Info)
		}
	}
}

func TestExamplesAreValid(t *testing.T) {
	check := func(t *testing.T, fields []core.ImportField, examples []map[string]string, validate func(map[string]string) core.RowStatus) {
		t.Helper()
		for i, ex := range examples {
			for key := range ex {
				found := false
				for _, f := range fields {
					found = found || f.Key == key
				}
				if !found {
					t.Errorf("example %d uses unknown field %q", i, key)
				}
			}
			if status := validate(ex); status != core.StatusValid {
				t.Errorf("example %d status = %s", i, status)
			}
		}
	}

	identity := func(fields []core.ImportField) core.ColumnMapping {
		m := make(core.ColumnMapping, len(fields))
		for i, f := range fields {
			m[i] = core.ColumnAssignment{Header: f.Key, Field: f.Key}
		}
		return m
	}

	t.Run("contacts", func(t *testing.T) {
		mapping := identity(ContactSchema.Fields)
		check(t, ContactSchema.Fields, contactExamples, func(row map[string]string) core.RowStatus {
			return core.ValidateRow(0, row, mapping, ContactSchema).Status
		})
	})
	t.Run("articles", func(t *testing.T) {
		mapping := identity(ArticleSchema.Fields)
		check(t, ArticleSchema.Fields, articleExamples, func(row map[string]string) core.RowStatus {
			return core.ValidateRow(0, row, mapping, ArticleSchema).Status
		})
	})
}

func TestNewCreator(t *testing.T) {
	factory := newCreator(articleTable, "articles")

	t.Run("postgres without database", func(t *testing.T) {
		_, err := factory(core.Backend{Mode: config.BulkModePostgres})
		if !errors.Is(err, core.ErrPersistenceOff) {
			t.Errorf("err = %v, want ErrPersistenceOff", err)
		}
	})

	t.Run("http without endpoint", func(t *testing.T) {
		_, err := factory(core.Backend{Mode: config.BulkModeHTTP})
		if err == nil || !strings.Contains(err.Error(), "bulk endpoint not configured") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := factory(core.Backend{Mode: "ftp"})
		if err == nil || !strings.Contains(err.Error(), `unknown bulk mode "ftp"`) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("postgres", func(t *testing.T) {
		creator, err := factory(core.Backend{Mode: config.BulkModePostgres, DB: nilBeginner{}})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if _, ok := creator.(*store.TableCreator[Article]); !ok {
			t.Errorf("creator = %T, want *store.TableCreator[Article]", creator)
		}
	})
}

// nilBeginner satisfies core.TxBeginner; the creator is never used.
type nilBeginner struct{ core.TxBeginner }

// ============================================================================
// End-to-End Tests
// ============================================================================

func TestContactImport_HTTPBackend(t *testing.T) {
	var received struct {
		Items []Contact `json:"items"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/contacts/bulk" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(core.BulkImportResult{
			TotalProcessed: len(received.Items),
			SuccessCount:   len(received.Items),
		})
	}))
	defer server.Close()

	def, ok := core.Get("contacts")
	if !ok {
		t.Fatal("contacts not registered")
	}
	importer, err := def.NewImporter("s1", core.Backend{
		Mode:         config.BulkModeHTTP,
		BulkEndpoint: server.URL + "/api",
		HTTPClient:   server.Client(),
	}, core.SessionOptions{})
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}

	csv := "Name,E-Mail,Phone,City\n" +
		"Jane Doe,jane@example.com,+49 30 1234567,Berlin\n" +
		"Jane D.,JANE@example.com,,Berlin\n" +
		"Bob,not-an-email,,\n" +
		"Carl,,0301234999,Hamburg\n"

	ctx := context.Background()
	if err := importer.ProcessFile(ctx, "contacts.csv", strings.NewReader(csv)); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if !importer.CanProceedToPreview() {
		t.Fatalf("CanProceedToPreview = false, mapping %v", importer.ColumnMapping())
	}
	if err := importer.GeneratePreview(); err != nil {
		t.Fatalf("GeneratePreview: %v", err)
	}

	summary, err := importer.ExecuteImport(ctx)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if summary.Submitted != 2 || summary.Imported != 2 || summary.Duplicate != 1 || summary.Invalid != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(received.Items) != 2 || received.Items[0].Phone != "+49301234567" || received.Items[1].Name != "Carl" {
		t.Errorf("received = %+v", received.Items)
	}
}

func TestSchemaTemplates(t *testing.T) {
	for _, key := range []string{"contacts", "articles"} {
		def, _ := core.Get(key)
		var buf bytes.Buffer
		err := core.WriteTemplate(&buf,
			core.TemplateHeaders(def.Info.Fields, def.Info.RequiredFields),
			core.TemplateRows(def.Info.Fields, def.Examples),
		)
		if err != nil {
			t.Errorf("%s template: %v", key, err)
		}
		if buf.Len() == 0 {
			t.Errorf("%s template is empty", key)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
