package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/metrics"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Options configures a Service.
type Options struct {
	DuplicateMode        DuplicateMode
	FuzzyDistance        int
	MaxFileSize          int64
	MaxConcurrentUploads int
	MaxUploadWait        time.Duration
	SessionTTL           time.Duration
}

// Service owns the in-memory import sessions and exposes dataset operations.
type Service struct {
	catalog catalog.Catalog
	limiter *UploadLimiter
	opts    Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a Service over c.
func NewService(c catalog.Catalog, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.DuplicateMode == "" {
		opts.DuplicateMode = DuplicateExact
	}
	return &Service{
		catalog:  c,
		limiter:  NewUploadLimiter(opts.MaxConcurrentUploads, opts.MaxUploadWait),
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Catalog returns the underlying catalog.
func (s *Service) Catalog() catalog.Catalog { return s.catalog }

// ListKinds returns every registered import kind.
func (s *Service) ListKinds() []KindDefinition {
	return All()
}

// NewSession starts an import of the given kind.
func (s *Service) NewSession(kind string) (*Session, error) {
	def, ok := Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	sess := NewSession(uuid.NewString(), def, s.catalog, s.limiter, SessionOptions{
		Validator: ValidatorOptions{
			Mode:        s.opts.DuplicateMode,
			MaxDistance: s.opts.FuzzyDistance,
		},
		MaxFileSize: s.opts.MaxFileSize,
	})

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues(kind).Inc()
	metrics.ActiveSessions.Set(float64(n))
	slog.Debug("import session started", "session_id", sess.ID(), "kind", kind)
	return sess, nil
}

// StartImport creates a session and uploads f in one step. The session is
// returned even when parsing fails, so the caller can show the reason.
func (s *Service) StartImport(ctx context.Context, kind string, f tabular.RawFile, opts tabular.Options) (*Session, error) {
	sess, err := s.NewSession(kind)
	if err != nil {
		return nil, err
	}
	return sess, sess.Upload(ctx, f, opts)
}

// Session returns a live session by id.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Discard cancels the session if still open and forgets it.
func (s *Service) Discard(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	metrics.ActiveSessions.Set(float64(n))
	if !sess.Stage().Terminal() {
		_, _ = sess.Cancel()
	}
	return nil
}

// SessionCount returns the number of sessions held in memory.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// UploadLimiterStatus reports parse slot usage.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight parses finish or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ListDatasets returns every committed dataset.
func (s *Service) ListDatasets(ctx context.Context) ([]catalog.DatasetInfo, error) {
	return s.catalog.ListDatasets(ctx)
}

// GetDataset returns a dataset or ErrDatasetNotFound.
func (s *Service) GetDataset(ctx context.Context, id string) (*catalog.Dataset, error) {
	ds, err := s.catalog.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	return ds, nil
}

// SetReferenceDataset marks id as the reference dataset; "" clears it.
func (s *Service) SetReferenceDataset(ctx context.Context, id string) error {
	if id != "" {
		if _, err := s.GetDataset(ctx, id); err != nil {
			return err
		}
	}
	if err := s.catalog.SetReferenceDataset(ctx, id); err != nil {
		return fmt.Errorf("set reference dataset: %w", err)
	}
	slog.Info("reference dataset changed", "dataset_id", id)
	return nil
}

// ReferenceDataset returns the reference dataset id, or "".
func (s *Service) ReferenceDataset(ctx context.Context) (string, error) {
	return s.catalog.ReferenceDataset(ctx)
}

// ExportFormat selects the file type ExportDataset writes.
type ExportFormat string

const (
	ExportXLSX ExportFormat = "xlsx"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat resolves a format name. The empty name is xlsx.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(name))) {
	case "", ExportXLSX:
		return ExportXLSX, nil
	case ExportCSV:
		return ExportCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExportFormat, name)
}

// ExportDataset writes a dataset as an .xlsx workbook or UTF-8 CSV whose
// headers are the kind's canonical field names, so the file re-imports
// through AutoMap.
func (s *Service) ExportDataset(ctx context.Context, id string, format ExportFormat, w io.Writer) (*catalog.Dataset, error) {
	ds, err := s.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	def, ok := Get(ds.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, ds.Kind)
	}

	rows := make([][]string, len(ds.Rows))
	for i, r := range ds.Rows {
		rows[i] = RecordCells(def, r)
	}

	switch format {
	case ExportCSV:
		err = tabular.WriteDelimited(w, ',', def.Headers(), rows)
	case ExportXLSX, "":
		err = tabular.WriteSpreadsheet(w, def.Info.Key, def.Headers(), rows)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExportFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("export dataset %s: %w", id, err)
	}
	return ds, nil
}
