package schema

import (
	"strings"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// Contact is a person or company contact of the CRM.
type Contact struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Company    string     `json:"company"`
	JobTitle   string     `json:"jobTitle"`
	Street     string     `json:"street"`
	PostalCode string     `json:"postalCode"`
	City       string     `json:"city"`
	Country    string     `json:"country"`
	Website    string     `json:"website"`
	Newsletter bool       `json:"newsletter"`
	Birthday   *time.Time `json:"birthday,omitempty"`
	Notes      string     `json:"notes"`
}

// ContactSchema identifies a contact by name, email or phone and rejects
// repeated email addresses and phone numbers within a file.
var ContactSchema = core.ImportSchema[Contact]{
	Fields: []core.ImportField{
		{Key: "name", Label: "Name", Type: core.FieldString},
		{Key: "email", Label: "Email", Type: core.FieldString, Validate: validEmail("Email")},
		{Key: "phone", Label: "Phone", Type: core.FieldString, Validate: validPhone("Phone")},
		{Key: "company", Label: "Company", Type: core.FieldString},
		{Key: "job_title", Label: "Job Title", Type: core.FieldString},
		{Key: "street", Label: "Street", Type: core.FieldString},
		{Key: "postal_code", Label: "Postal Code", Type: core.FieldString},
		{Key: "city", Label: "City", Type: core.FieldString},
		{Key: "country", Label: "Country", Type: core.FieldString},
		{Key: "website", Label: "Website", Type: core.FieldString, Validate: validURL("Website")},
		{Key: "newsletter", Label: "Newsletter", Type: core.FieldBoolean, Validate: core.BoolValidator("Newsletter")},
		{Key: "birthday", Label: "Birthday", Type: core.FieldDate, Validate: core.DateValidator("Birthday")},
		{Key: "notes", Label: "Notes", Type: core.FieldString},
	},
	RequiredFields:       []string{"name", "email", "phone"},
	DuplicateCheckFields: []string{"email", "phone"},
	DuplicateValue:       contactDuplicateValue,
	TransformRow:         transformContact,
	ValidateRow:          validateContact,
	DisplayName:          contactName,
}

// contactDuplicateValue compares the stored phone number, so differently
// formatted cells for the same number collide.
func contactDuplicateValue(c Contact, field string) string {
	switch field {
	case "email":
		return strings.ToLower(strings.TrimSpace(c.Email))
	case "phone":
		return c.Phone
	}
	return ""
}

func transformContact(m map[string]string) Contact {
	c := Contact{
		Name:       m["name"],
		Email:      m["email"],
		Phone:      m["phone"],
		Company:    m["company"],
		JobTitle:   m["job_title"],
		Street:     m["street"],
		PostalCode: m["postal_code"],
		City:       m["city"],
		Country:    m["country"],
		Notes:      m["notes"],
	}
	if m["phone"] != "" {
		c.Phone = NormalizePhone(m["phone"])
	}
	if m["website"] != "" {
		c.Website = NormalizeURL(m["website"])
	}
	c.Newsletter, _ = core.ParseBool(m["newsletter"])
	if d, ok := core.ParseDate(m["birthday"]); ok {
		c.Birthday = &d
	}
	return c
}

// now is replaced in tests.
var now = time.Now

func validateContact(c Contact) core.RowValidation {
	var rv core.RowValidation
	if c.Birthday != nil && c.Birthday.After(now()) {
		rv.Errors = append(rv.Errors, "Birthday cannot be in the future")
	}
	if c.Name == "" {
		rv.Warnings = append(rv.Warnings, "Name is empty; the contact will be listed by email or phone")
	}
	if c.Newsletter && c.Email == "" {
		rv.Warnings = append(rv.Warnings, "Newsletter opt-in without an email address")
	}
	return rv
}

func contactName(c Contact) string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Email != "":
		return c.Email
	default:
		return c.Phone
	}
}

var contactTable = store.Table[Contact]{
	Name: "contacts",
	Columns: []string{
		"name", "email", "phone", "company", "job_title", "street",
		"postal_code", "city", "country", "website", "newsletter", "birthday", "notes",
	},
	Values: func(c Contact) []any {
		return []any{
			c.Name, c.Email, c.Phone, c.Company, c.JobTitle, c.Street,
			c.PostalCode, c.City, c.Country, c.Website, c.Newsletter, c.Birthday, c.Notes,
		}
	},
}

var contactExamples = []map[string]string{
	{
		"name": "Jane Doe", "email": "jane.doe@example.com", "phone": "+49 30 1234567",
		"company": "Acme GmbH", "job_title": "Facility Manager", "street": "Hauptstraße 1",
		"postal_code": "10115", "city": "Berlin", "country": "DE", "website": "acme.example.com",
		"newsletter": "yes", "birthday": "1985-04-12",
	},
	{
		"name": "John Smith", "email": "john@example.org", "company": "Smith Plumbing",
		"city": "Hamburg", "newsletter": "no",
	},
}

func init() {
	def := core.Define(core.SchemaInfo{
		Key:         "contacts",
		Group:       "CRM",
		Label:       "Contacts",
		Description: "Customers and contact persons",
	}, ContactSchema, newCreator(contactTable, "contacts"))
	def.Examples = contactExamples
	core.Register(def)
}
