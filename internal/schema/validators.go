// Package schema defines the import schemas offered by the service and
// registers them with the core registry at init.
package schema

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/bulkapi"
	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/store"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// phoneCleaner strips the separators people type into phone numbers.
var phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "/", "")

// NormalizePhone removes separators and turns a 00 prefix into +.
func NormalizePhone(s string) string {
	s = phoneCleaner.Replace(strings.TrimSpace(s))
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	return s
}

// NormalizeURL adds an https scheme to bare host names.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s != "" && !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return s
}

func validEmail(label string) func(string) string {
	return func(v string) string {
		if validate.Var(v, "required,email") != nil {
			return fmt.Sprintf("%s is not a valid email address", label)
		}
		return ""
	}
}

// validPhone accepts E.164 numbers and local numbers of 6 to 15 digits.
func validPhone(label string) func(string) string {
	return func(v string) string {
		p := NormalizePhone(v)
		tag := "required,numeric,min=6,max=15"
		if strings.HasPrefix(p, "+") {
			tag = "required,e164"
		}
		if validate.Var(p, tag) != nil {
			return fmt.Sprintf("%s is not a valid phone number", label)
		}
		return ""
	}
}

func validURL(label string) func(string) string {
	return func(v string) string {
		if validate.Var(NormalizeURL(v), "required,http_url") != nil {
			return fmt.Sprintf("%s is not a valid web address", label)
		}
		return ""
	}
}

// validAmount accepts numbers of at least zero.
func validAmount(label string) func(string) string {
	return func(v string) string {
		n, ok := core.ParseNumber(v)
		if !ok {
			return fmt.Sprintf("%s must be a number", label)
		}
		if validate.Var(n, "gte=0") != nil {
			return fmt.Sprintf("%s must not be negative", label)
		}
		return ""
	}
}

// optionalNumber returns nil for values that do not parse.
func optionalNumber(s string) *float64 {
	n, ok := core.ParseNumber(s)
	if !ok {
		return nil
	}
	return &n
}

// newCreator picks the bulk creator for the configured backend mode.
func newCreator[T any](table store.Table[T], resource string) func(core.Backend) (core.BulkCreator[T], error) {
	return func(b core.Backend) (core.BulkCreator[T], error) {
		switch b.Mode {
		case config.BulkModeHTTP:
			if b.BulkEndpoint == "" {
				return nil, fmt.Errorf("bulk endpoint not configured for %s", resource)
			}
			return bulkapi.NewClient[T](b.BulkEndpoint, resource, b.BulkToken, b.HTTPClient), nil
		case config.BulkModePostgres, "":
			if b.DB == nil {
				return nil, core.ErrPersistenceOff
			}
			return store.NewTableCreator(b.DB, table), nil
		default:
			return nil, fmt.Errorf("unknown bulk mode %q", b.Mode)
		}
	}
}
