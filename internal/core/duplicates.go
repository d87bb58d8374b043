package core

import (
	"fmt"
	"strings"
)

type duplicateOwner struct {
	id        string
	rowNumber int
}

// DetectDuplicates marks rows that repeat an earlier row's value for one of the
// schema's DuplicateCheckFields. Values come from the schema's DuplicateValue
// hook when it has one, otherwise from the projected cell. Rows are visited in order; empty and invalid
// rows neither collide nor register keys. Only the first colliding field of a
// row is reported. Entities are updated in place and the slice is returned.
//
// Running it twice over the same rows gives the same result.
func DetectDuplicates[T any](entities []ImportEntity[T], schema ImportSchema[T]) []ImportEntity[T] {
	if len(schema.DuplicateCheckFields) == 0 {
		return entities
	}

	seen := make(map[string]duplicateOwner)

	for i := range entities {
		e := &entities[i]
		if e.Status == StatusEmpty || e.Status == StatusInvalid {
			continue
		}

		var keys []string
		collided := false
		for _, field := range schema.DuplicateCheckFields {
			value := strings.TrimSpace(e.Values[field])
			if value == "" {
				continue
			}
			key := field + ":" + strings.ToLower(schema.duplicateValue(e, field, value))

			if owner, ok := seen[key]; ok && owner.id != e.ID {
				e.Status = StatusDuplicate
				e.Selected = false
				e.DuplicateOf = owner.id
				e.DuplicateFields = []string{field}
				e.Warnings = appendUnique(e.Warnings, fmt.Sprintf(
					"Duplicate %s %q (same as row %d)", schema.label(field), value, owner.rowNumber))
				collided = true
				break
			}
			keys = append(keys, key)
		}

		if collided {
			continue
		}
		for _, key := range keys {
			seen[key] = duplicateOwner{id: e.ID, rowNumber: e.RowNumber()}
		}
	}

	return entities
}

func (s ImportSchema[T]) duplicateValue(e *ImportEntity[T], field, cell string) string {
	if s.DuplicateValue != nil {
		if v := strings.TrimSpace(s.DuplicateValue(e.Data, field)); v != "" {
			return v
		}
	}
	return cell
}
