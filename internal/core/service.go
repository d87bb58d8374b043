package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/google/uuid"
)

// Service owns the active import sessions and the persistence around them.
type Service struct {
	backend Backend
	db      DBTX
	cfg     *config.Config
	limiter *ImportLimiter
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*ActiveImport
}

// ActiveImport is a live session together with its bookkeeping.
type ActiveImport struct {
	ID        string
	SchemaKey string
	CreatedAt time.Time
	Importer  Importer

	lastSeen time.Time
	client   RequestMeta
}

// NewService creates a Service. backend.DB may be nil, in which case history
// and mapping templates report ErrPersistenceOff.
func NewService(backend Backend, cfg *config.Config) *Service {
	s := &Service{
		backend:  backend,
		cfg:      cfg,
		limiter:  NewImportLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		now:      time.Now,
		sessions: make(map[string]*ActiveImport),
	}
	if backend.DB != nil {
		s.db = backend.DB
	}
	return s
}

// ListSchemas returns information about all registered schemas.
func (s *Service) ListSchemas() []SchemaInfo {
	defs := All()
	infos := make([]SchemaInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Schema returns the definition registered under key.
func (s *Service) Schema(key string) (SchemaDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return SchemaDefinition{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, key)
	}
	return def, nil
}

// WriteSchemaTemplate writes the downloadable .xlsx template of a schema.
func (s *Service) WriteSchemaTemplate(w io.Writer, schemaKey string) error {
	def, err := s.Schema(schemaKey)
	if err != nil {
		return err
	}
	return WriteTemplate(w,
		TemplateHeaders(def.Info.Fields, def.Info.RequiredFields),
		TemplateRows(def.Info.Fields, def.Examples),
	)
}

// StartImport creates a session for schemaKey and processes the file. The
// session is only kept when the file could be read.
func (s *Service) StartImport(ctx context.Context, schemaKey, fileName string, r io.Reader) (*ActiveImport, error) {
	def, err := s.Schema(schemaKey)
	if err != nil {
		return nil, err
	}
	data, err := s.readUpload(fileName, r)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	importer, err := def.NewImporter(id, s.backend, SessionOptions{
		MaxRows: s.cfg.Upload.MaxRows,
		Logger:  slog.Default().With("session_id", id, "schema", schemaKey),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.analyze(ctx, importer, fileName, data); err != nil {
		return nil, err
	}

	now := s.now()
	active := &ActiveImport{
		ID:        id,
		SchemaKey: schemaKey,
		CreatedAt: now,
		Importer:  importer,
		lastSeen:  now,
		client:    RequestMetaFrom(ctx),
	}

	s.mu.Lock()
	s.sessions[id] = active
	s.mu.Unlock()

	logging.WithFields(ctx, "session_id", id, "schema", schemaKey).Info("import session started",
		"file", fileName,
		"bytes", len(data),
		"step", importer.Step(),
	)
	return active, nil
}

// ProcessFile analyzes a new file for an existing session, typically after a
// reset. The session must be in the upload step.
func (s *Service) ProcessFile(ctx context.Context, id, fileName string, r io.Reader) (*ActiveImport, error) {
	active, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	data, err := s.readUpload(fileName, r)
	if err != nil {
		return nil, err
	}
	if err := s.analyze(ctx, active.Importer, fileName, data); err != nil {
		return nil, err
	}

	logging.WithFields(ctx, "session_id", id, "schema", active.SchemaKey).Info("import file replaced",
		"file", fileName,
		"bytes", len(data),
	)
	return active, nil
}

// readUpload buffers an upload, enforcing the configured size limit.
func (s *Service) readUpload(fileName string, r io.Reader) ([]byte, error) {
	if r == nil || fileName == "" {
		return nil, ErrNoFile
	}
	data, err := io.ReadAll(io.LimitReader(r, s.cfg.Upload.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.Upload.MaxFileSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.cfg.Upload.MaxFileSize)
	}
	return data, nil
}

// analyze runs the importer's file processing under the limiter and the
// upload timeout.
func (s *Service) analyze(ctx context.Context, importer Importer, fileName string, data []byte) error {
	processCtx, cancel := context.WithTimeout(ctx, s.cfg.Upload.Timeout)
	defer cancel()

	return s.limiter.Run(processCtx, func() error {
		return importer.ProcessFile(processCtx, fileName, bytes.NewReader(data))
	})
}

// Session returns a live session and marks it as recently used.
func (s *Service) Session(id string) (*ActiveImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	active.lastSeen = s.now()
	return active, nil
}

// Execute runs the import of a session and records it in the history. The
// summary is returned even when the backend failed.
func (s *Service) Execute(ctx context.Context, id string) (*ImportSummary, error) {
	active, err := s.Session(id)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, s.cfg.Upload.Timeout)
	defer cancel()

	var summary *ImportSummary
	err = s.limiter.Run(execCtx, func() error {
		var execErr error
		summary, execErr = active.Importer.ExecuteImport(execCtx)
		return execErr
	})

	var subErr *SubmissionError
	if summary != nil && (err == nil || errors.As(err, &subErr)) {
		if histErr := s.recordHistory(ctx, active, summary); histErr != nil && !errors.Is(histErr, ErrPersistenceOff) {
			logging.WithFields(ctx, "session_id", id).Warn("failed to record import history", "error", histErr)
		}
	}
	return summary, err
}

// Discard removes a session.
func (s *Service) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle removes sessions unused for longer than the configured TTL.
// Sessions that are executing are kept. Returns the number removed.
func (s *Service) ExpireIdle() int {
	cutoff := s.now().Add(-s.cfg.Upload.SessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, active := range s.sessions {
		if active.lastSeen.After(cutoff) {
			continue
		}
		// Reset fails while an execution is in flight
		if err := active.Importer.Reset(); err != nil {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

// LimiterStatus returns the state of the import limiter.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running analyses and executions finish.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// PersistenceEnabled reports whether history and templates are available.
func (s *Service) PersistenceEnabled() bool {
	return s.db != nil
}
