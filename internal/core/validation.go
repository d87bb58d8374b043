package core

// validation.go classifies a single spreadsheet row against a schema.
//
// Classification happens in order:
//  1. Projection: mapped, trimmed, non-blank cells keyed by field
//  2. Empty check: a row with no mapped value is empty and nothing else runs
//  3. Identification: at least one of the schema's RequiredFields must be present
//  4. Field checks: individual required fields and per-field validators
//  5. Transform: the domain value is always built
//  6. Row check: the schema's ValidateRow, only for rows still valid
//
// ValidateRow never returns an error; problems are recorded on the entity.

import (
	"fmt"
	"strings"
)

// Projection is a raw row reduced to the values of mapped fields.
type Projection struct {
	Values           map[string]string
	IsEmpty          bool
	HasRequiredField bool
}

// ProjectRow applies mapping to raw. Cells are trimmed and blank ones are dropped.
// When two headers target the same field, the later header's value wins.
func ProjectRow(raw map[string]string, mapping ColumnMapping, requiredFields []string) Projection {
	values := make(map[string]string)
	for _, a := range mapping {
		if a.Field == "" {
			continue
		}
		v := strings.TrimSpace(raw[a.Header])
		if v == "" {
			continue
		}
		values[a.Field] = v
	}

	p := Projection{Values: values, IsEmpty: len(values) == 0}
	for _, key := range requiredFields {
		if values[key] != "" {
			p.HasRequiredField = true
			break
		}
	}
	return p
}

// ValidateRow builds the entity for the row at index.
func ValidateRow[T any](index int, raw map[string]string, mapping ColumnMapping, schema ImportSchema[T]) ImportEntity[T] {
	entity := ImportEntity[T]{
		ID:            fmt.Sprintf("row-%d", index),
		OriginalIndex: index,
		Status:        StatusValid,
	}

	proj := ProjectRow(raw, mapping, schema.RequiredFields)
	entity.Values = proj.Values

	if proj.IsEmpty {
		entity.Status = StatusEmpty
		entity.Errors = []string{"Row contains no data"}
		return entity
	}

	var errs []string

	inRequiredSet := make(map[string]bool, len(schema.RequiredFields))
	for _, key := range schema.RequiredFields {
		inRequiredSet[key] = true
	}
	if len(schema.RequiredFields) > 0 && !proj.HasRequiredField {
		labels := make([]string, len(schema.RequiredFields))
		for i, key := range schema.RequiredFields {
			labels[i] = schema.label(key)
		}
		errs = append(errs, "At least one of the following fields is required: "+strings.Join(labels, ", "))
	}

	for _, field := range schema.Fields {
		value, present := proj.Values[field.Key]
		if !present {
			if field.Required && !inRequiredSet[field.Key] {
				errs = appendUnique(errs, fmt.Sprintf("%s is required", field.Label))
			}
			continue
		}

		if field.Validate == nil {
			continue
		}
		if msg := field.Validate(value); msg != "" {
			errs = appendUnique(errs, msg)
		}
	}

	if schema.TransformRow != nil {
		entity.Data = schema.TransformRow(proj.Values)
	}

	if len(errs) == 0 && schema.ValidateRow != nil {
		rv := schema.ValidateRow(entity.Data)
		for _, e := range rv.Errors {
			errs = appendUnique(errs, e)
		}
		for _, w := range rv.Warnings {
			entity.Warnings = appendUnique(entity.Warnings, w)
		}
	}

	if len(errs) > 0 {
		entity.Status = StatusInvalid
		entity.Errors = errs
	}
	entity.Selected = entity.Status == StatusValid
	return entity
}

// ValidateRows classifies every row of a sheet.
func ValidateRows[T any](rows []map[string]string, mapping ColumnMapping, schema ImportSchema[T]) []ImportEntity[T] {
	entities := make([]ImportEntity[T], len(rows))
	for i, raw := range rows {
		entities[i] = ValidateRow(i, raw, mapping, schema)
	}
	return entities
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
