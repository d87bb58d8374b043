package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit caps ListHistory when the caller passes no limit.
const DefaultHistoryLimit = 50

// HistoryEntry records one executed import.
type HistoryEntry struct {
	ID           string    `json:"id"`
	SchemaKey    string    `json:"schemaKey"`
	SessionID    string    `json:"sessionId"`
	FileName     string    `json:"fileName"`
	Submitted    int       `json:"submitted"`
	Imported     int       `json:"imported"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Invalid      int       `json:"invalid"`
	Duplicate    int       `json:"duplicate"`
	Empty        int       `json:"empty"`
	ServerErrors []string  `json:"serverErrors"`
	DurationMs   int64     `json:"durationMs"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// recordHistory stores the outcome of an executed import.
func (s *Service) recordHistory(ctx context.Context, active *ActiveImport, summary *ImportSummary) error {
	if s.db == nil {
		return ErrPersistenceOff
	}

	errorsJSON, err := json.Marshal(summary.ServerErrors)
	if err != nil {
		return fmt.Errorf("marshal server errors: %w", err)
	}

	client := RequestMetaFrom(ctx)
	if client.IPAddress == "" {
		client.IPAddress = active.client.IPAddress
	}
	if client.UserAgent == "" {
		client.UserAgent = active.client.UserAgent
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO import_history (
			id, schema_key, session_id, file_name,
			submitted, imported, skipped, failed, invalid, duplicate, empty,
			server_errors, duration_ms, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.NewString(), active.SchemaKey, active.ID, active.Importer.FileName(),
		summary.Submitted, summary.Imported, summary.Skipped, summary.Failed,
		summary.Invalid, summary.Duplicate, summary.Empty,
		errorsJSON, summary.Duration.Milliseconds(), client.IPAddress, client.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert import history: %w", err)
	}
	return nil
}

// ListHistory returns the most recent imports of a schema, newest first.
func (s *Service) ListHistory(ctx context.Context, schemaKey string, limit int) ([]HistoryEntry, error) {
	if s.db == nil {
		return nil, ErrPersistenceOff
	}
	if limit <= 0 || limit > 500 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, schema_key, session_id, file_name,
		       submitted, imported, skipped, failed, invalid, duplicate, empty,
		       server_errors, duration_ms, ip_address, user_agent, created_at
		FROM import_history
		WHERE schema_key = $1
		ORDER BY created_at DESC
		LIMIT $2`, schemaKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e          HistoryEntry
			errorsJSON []byte
		)
		if err := rows.Scan(
			&e.ID, &e.SchemaKey, &e.SessionID, &e.FileName,
			&e.Submitted, &e.Imported, &e.Skipped, &e.Failed, &e.Invalid, &e.Duplicate, &e.Empty,
			&errorsJSON, &e.DurationMs, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan import history: %w", err)
		}
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &e.ServerErrors); err != nil {
				return nil, fmt.Errorf("unmarshal server errors: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}

	return entries, nil
}
