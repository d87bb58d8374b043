package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AutoMapColumns proposes a target field for every header.
//
// For each header the fields are walked in declaration order and the first one
// whose normalized label equals the header, whose normalized key equals the
// header, whose label is contained in the header, or which contains the header,
// wins. Headers without a match are skipped. Two headers may end up on the same
// field; projection then keeps the value of the later column.
func AutoMapColumns(headers []string, fields []ImportField) ColumnMapping {
	type normalizedField struct {
		key   string
		label string
		name  string
	}

	normalized := make([]normalizedField, len(fields))
	for i, f := range fields {
		normalized[i] = normalizedField{
			key:   f.Key,
			label: normalizeName(f.Label),
			name:  normalizeName(f.Key),
		}
	}

	mapping := make(ColumnMapping, 0, len(headers))
	for _, header := range headers {
		h := normalizeName(header)
		target := ""
		for _, f := range normalized {
			if matchesField(h, f.label, f.name) {
				target = f.key
				break
			}
		}
		mapping = append(mapping, ColumnAssignment{Header: header, Field: target})
	}
	return mapping
}

func matchesField(header, label, key string) bool {
	if header == "" {
		return false
	}
	if header == label || header == key {
		return true
	}
	if label == "" {
		return false
	}
	return strings.Contains(header, label) || strings.Contains(label, header)
}

// normalizeName lower-cases s, folds diacritics and keeps only letters and digits,
// so "E-Mail Adresse" and "Straße Nr." compare as "emailadresse" and "straßenr".
func normalizeName(s string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		s,
	)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
