package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TemplateMatchThreshold is the minimum score for a template to be suggested.
const TemplateMatchThreshold = 0.7

// MappingTemplate is a saved column mapping for files of a recurring layout.
type MappingTemplate struct {
	ID        string        `json:"id"`
	SchemaKey string        `json:"schemaKey"`
	Name      string        `json:"name"`
	Mapping   ColumnMapping `json:"mapping"`
	Headers   []string      `json:"headers"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// TemplateMatch is a template together with how well it fits a file's headers.
type TemplateMatch struct {
	Template   MappingTemplate `json:"template"`
	MatchScore float64         `json:"matchScore"`
}

// CreateMappingTemplate saves mapping under name for a schema.
func (s *Service) CreateMappingTemplate(ctx context.Context, schemaKey, name string, mapping ColumnMapping) (*MappingTemplate, error) {
	if s.db == nil {
		return nil, ErrPersistenceOff
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTemplateNameEmpty
	}
	def, err := s.Schema(schemaKey)
	if err != nil {
		return nil, err
	}

	headers := make([]string, len(mapping))
	for i, a := range mapping {
		headers[i] = a.Header
	}
	mapping, err = normalizeMapping(headers, mapping, def.Info.Fields)
	if err != nil {
		return nil, err
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("marshal mapping: %w", err)
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO mapping_templates (id, schema_key, name, column_mapping, headers)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, schema_key, name, column_mapping, headers, created_at, updated_at`,
		uuid.NewString(), schemaKey, name, mappingJSON, headersJSON,
	)
	t, err := scanTemplate(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %q", ErrTemplateExists, name)
		}
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// ListMappingTemplates returns all templates of a schema, by name.
func (s *Service) ListMappingTemplates(ctx context.Context, schemaKey string) ([]MappingTemplate, error) {
	if s.db == nil {
		return nil, ErrPersistenceOff
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, schema_key, name, column_mapping, headers, created_at, updated_at
		FROM mapping_templates
		WHERE schema_key = $1
		ORDER BY name`, schemaKey)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []MappingTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			continue // Skip templates with unreadable JSON
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// DeleteMappingTemplate removes a template.
func (s *Service) DeleteMappingTemplate(ctx context.Context, id string) error {
	if s.db == nil {
		return ErrPersistenceOff
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrTemplateNotFound
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM mapping_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// MatchMappingTemplates returns the templates of a schema whose headers are
// mostly present in headers, best match first.
func (s *Service) MatchMappingTemplates(ctx context.Context, schemaKey string, headers []string) ([]TemplateMatch, error) {
	templates, err := s.ListMappingTemplates(ctx, schemaKey)
	if err != nil {
		return nil, err
	}
	return rankTemplates(templates, headers), nil
}

func rankTemplates(templates []MappingTemplate, headers []string) []TemplateMatch {
	matches := []TemplateMatch{}
	for _, t := range templates {
		score := matchTemplateHeaders(headers, t.Headers)
		if score >= TemplateMatchThreshold {
			matches = append(matches, TemplateMatch{Template: t, MatchScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches
}

// matchTemplateHeaders calculates the share of template headers present in the file.
func matchTemplateHeaders(fileHeaders, templateHeaders []string) float64 {
	if len(templateHeaders) == 0 {
		return 0
	}

	fileSet := make(map[string]bool)
	for _, h := range fileHeaders {
		fileSet[strings.ToLower(strings.TrimSpace(h))] = true
	}

	matched := 0
	for _, h := range templateHeaders {
		if fileSet[strings.ToLower(strings.TrimSpace(h))] {
			matched++
		}
	}

	return float64(matched) / float64(len(templateHeaders))
}

// ApplyTemplate projects a template onto a file's headers. Headers are matched
// case-insensitively; headers the template does not know are skipped.
func ApplyTemplate(t MappingTemplate, headers []string) ColumnMapping {
	byHeader := make(map[string]string, len(t.Mapping))
	for _, a := range t.Mapping {
		byHeader[strings.ToLower(strings.TrimSpace(a.Header))] = a.Field
	}

	out := make(ColumnMapping, len(headers))
	for i, h := range headers {
		out[i] = ColumnAssignment{Header: h, Field: byHeader[strings.ToLower(strings.TrimSpace(h))]}
	}
	return out
}

func scanTemplate(row pgx.Row) (*MappingTemplate, error) {
	var (
		t           MappingTemplate
		mappingJSON []byte
		headersJSON []byte
	)
	if err := row.Scan(&t.ID, &t.SchemaKey, &t.Name, &mappingJSON, &headersJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(mappingJSON, &t.Mapping); err != nil {
		return nil, fmt.Errorf("unmarshal mapping: %w", err)
	}
	if err := json.Unmarshal(headersJSON, &t.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	return &t, nil
}
