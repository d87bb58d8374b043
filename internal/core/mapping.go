package core

// ColumnAssignment maps one source header to a field key. An empty Field skips the column.
type ColumnAssignment struct {
	Header string `json:"header"`
	Field  string `json:"field"`
}

// ColumnMapping is the ordered header-to-field assignment of one session.
// Order follows the file's header order, which makes projection deterministic.
type ColumnMapping []ColumnAssignment

// Target returns the field assigned to header.
func (m ColumnMapping) Target(header string) (string, bool) {
	for _, a := range m {
		if a.Header == header {
			return a.Field, true
		}
	}
	return "", false
}

// MappedFields returns the distinct field keys in use, in header order.
func (m ColumnMapping) MappedFields() []string {
	seen := make(map[string]bool, len(m))
	var fields []string
	for _, a := range m {
		if a.Field == "" || seen[a.Field] {
			continue
		}
		seen[a.Field] = true
		fields = append(fields, a.Field)
	}
	return fields
}

// Clone returns an independent copy.
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return nil
	}
	out := make(ColumnMapping, len(m))
	copy(out, m)
	return out
}

// AsMap returns the mapping keyed by header.
func (m ColumnMapping) AsMap() map[string]string {
	out := make(map[string]string, len(m))
	for _, a := range m {
		out[a.Header] = a.Field
	}
	return out
}

// Conflicts returns the field keys targeted by more than one header.
func (m ColumnMapping) Conflicts() map[string][]string {
	byField := make(map[string][]string)
	for _, a := range m {
		if a.Field != "" {
			byField[a.Field] = append(byField[a.Field], a.Header)
		}
	}
	for field, headers := range byField {
		if len(headers) < 2 {
			delete(byField, field)
		}
	}
	return byField
}

// normalizeMapping rebuilds an incoming mapping in header order. Every header
// is present in the result; headers the caller omitted are skipped. Unknown
// headers or field keys are rejected.
func normalizeMapping(headers []string, incoming ColumnMapping, fields []ImportField) (ColumnMapping, error) {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	validField := make(map[string]bool, len(fields))
	for _, f := range fields {
		validField[f.Key] = true
	}

	assigned := make(map[string]string, len(incoming))
	for _, a := range incoming {
		if !known[a.Header] {
			return nil, &MappingError{Header: a.Header}
		}
		if a.Field != "" && !validField[a.Field] {
			return nil, &MappingError{Header: a.Header, Field: a.Field}
		}
		assigned[a.Header] = a.Field
	}

	out := make(ColumnMapping, len(headers))
	for i, h := range headers {
		out[i] = ColumnAssignment{Header: h, Field: assigned[h]}
	}
	return out, nil
}
