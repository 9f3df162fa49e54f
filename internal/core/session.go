package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/charset"
	"github.com/JonMunkholm/foodops/internal/metrics"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

// CancelledUnmatched is the result reason recorded when an operator cancels
// while unmatched entities are pending.
const CancelledUnmatched = "cancelled due to unmatched entities"

// SessionOptions configures a Session.
type SessionOptions struct {
	Validator ValidatorOptions
	// MaxFileSize is passed to the parser; zero uses tabular.DefaultMaxSize.
	MaxFileSize int64
}

// Session is one import from file selection to commit. It is held in memory
// only; the committed Dataset is the only persisted output.
//
// All methods are safe for concurrent use; a mutex serializes them, so no two
// stages of one session run at the same time. Cancellation through ctx is
// only observed when an operation starts.
type Session struct {
	mu sync.Mutex

	id        string
	def       KindDefinition
	catalog   catalog.Catalog
	committer *CommitExecutor
	limiter   *UploadLimiter
	opts      SessionOptions
	logger    *slog.Logger

	stage    Stage
	fileName string
	format   tabular.Format
	encoding charset.Encoding
	data     *tabular.Data
	mapping  ColumnMapping

	snapshot    *Snapshot
	records     []CandidateRecord
	unmatched   []UnmatchedEntity
	resolutions map[string]Resolution

	lastErr   string
	result    *CommitResult
	createdAt time.Time
	updatedAt time.Time
}

// NewSession starts a session for def in the upload stage. limiter may be nil.
func NewSession(id string, def KindDefinition, c catalog.Catalog, limiter *UploadLimiter, opts SessionOptions) *Session {
	now := time.Now()
	return &Session{
		id:          id,
		def:         def,
		catalog:     c,
		committer:   NewCommitExecutor(c),
		limiter:     limiter,
		opts:        opts,
		logger:      slog.With("session_id", id, "kind", def.Info.Key),
		stage:       StageUpload,
		mapping:     NewMapping(def),
		resolutions: make(map[string]Resolution),
		createdAt:   now,
		updatedAt:   now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Kind returns the session's import kind.
func (s *Session) Kind() KindDefinition { return s.def }

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// LastActivity returns when the session last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// enter checks ctx and that the session is in one of allowed. Caller holds mu.
func (s *Session) enter(ctx context.Context, op string, allowed ...Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.stage.Terminal() {
		return fmt.Errorf("%s: %w", op, ErrSessionClosed)
	}
	if !slices.Contains(allowed, s.stage) {
		return fmt.Errorf("%w: cannot %s in stage %s", ErrInvalidTransition, op, s.stage)
	}
	return nil
}

func (s *Session) transition(to Stage) {
	if s.stage != to {
		s.logger.Debug("import stage changed", "from", s.stage, "to", to)
	}
	s.stage = to
	s.updatedAt = time.Now()
}

// Upload parses f and auto-maps its columns. On a parse error the session
// stays in the upload stage with the reason recorded. Re-uploading from the
// mapping stage replaces the file.
func (s *Session) Upload(ctx context.Context, f tabular.RawFile, opts tabular.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(ctx, "upload", StageUpload, StageMapping); err != nil {
		return err
	}

	if s.limiter == nil {
		return s.parse(f, opts)
	}
	return s.limiter.Run(ctx, func() error { return s.parse(f, opts) })
}

// parse runs the adapter and moves to the mapping stage. Caller holds s.mu.
func (s *Session) parse(f tabular.RawFile, opts tabular.Options) error {
	if opts.MaxSize == 0 {
		opts.MaxSize = s.opts.MaxFileSize
	}

	start := time.Now()
	res, err := tabular.Parse(f, opts)
	if err != nil {
		s.lastErr = err.Error()
		s.transition(StageUpload)
		metrics.ParseFailures.WithLabelValues(parseFailureReason(err)).Inc()
		s.logger.Info("upload rejected", "file", f.Name, "error", err)
		return err
	}
	metrics.ParseDuration.WithLabelValues(string(res.Format)).Observe(time.Since(start).Seconds())

	s.fileName = f.Name
	s.format = res.Format
	s.encoding = res.Encoding
	s.data = &res.Data
	s.mapping = AutoMap(res.Headers, s.def)
	s.records = nil
	s.unmatched = nil
	s.lastErr = ""
	s.transition(StageMapping)

	s.logger.Info("file parsed",
		"file", f.Name,
		"format", res.Format,
		"encoding", res.Encoding,
		"columns", len(res.Headers),
		"rows", len(res.Rows),
		"mapping_complete", s.mapping.IsComplete(s.def.RequiredFields()),
	)
	return nil
}

func parseFailureReason(err error) string {
	switch {
	case errors.Is(err, tabular.ErrEmptyFile):
		return "empty"
	case errors.Is(err, tabular.ErrMalformedFile):
		return "malformed"
	case errors.Is(err, tabular.ErrFileTooLarge):
		return "too_large"
	}
	return "other"
}

// SetColumn maps field to a file column. It is a manual override and
// always wins over auto-mapping. idx may be Unset.
func (s *Session) SetColumn(field Field, idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(context.Background(), "set column", StageMapping); err != nil {
		return err
	}
	if idx != Unset && (idx < 0 || idx >= len(s.data.Headers)) {
		return fmt.Errorf("%w: %d (file has %d columns)", ErrColumnOutOfRange, idx, len(s.data.Headers))
	}
	if err := s.mapping.Override(field, idx); err != nil {
		return err
	}
	s.updatedAt = time.Now()
	return nil
}

// AutoMap re-runs automatic mapping, keeping manual overrides.
func (s *Session) AutoMap() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(context.Background(), "auto map", StageMapping); err != nil {
		return err
	}
	s.mapping = Remap(s.data.Headers, s.def, s.mapping)
	s.updatedAt = time.Now()
	return nil
}

// Mapping returns a copy of the current mapping.
func (s *Session) Mapping() ColumnMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping.Clone()
}

// MappingComplete reports whether preview can be generated.
func (s *Session) MappingComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping.IsComplete(s.def.RequiredFields())
}

// GeneratePreview projects and validates every row against a fresh catalog
// snapshot. It requires a complete mapping.
func (s *Session) GeneratePreview(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(ctx, "generate preview", StageMapping, StagePreview); err != nil {
		return err
	}
	if missing := s.mapping.Missing(s.def.RequiredFields()); len(missing) > 0 {
		return fmt.Errorf("%w (missing: %s)", ErrMappingIncomplete, joinFields(missing))
	}

	snap, err := LoadSnapshot(ctx, s.catalog, s.def.Info.Entity, s.def.Info.Reference)
	if err != nil {
		return err
	}

	records := Project(*s.data, s.mapping, s.def)
	NewValidator(s.def, snap, s.opts.Validator).ValidateAll(records)

	s.snapshot = snap
	s.records = records
	s.unmatched = nil
	s.resolutions = make(map[string]Resolution)
	s.transition(StagePreview)

	st := Stats(records)
	metrics.PreviewRows.WithLabelValues(s.def.Info.Key, "eligible").Add(float64(st.EligibleRows))
	metrics.PreviewRows.WithLabelValues(s.def.Info.Key, "error").Add(float64(st.ErrorRows))
	s.logger.Info("preview generated",
		"rows", st.TotalRows,
		"eligible", st.EligibleRows,
		"errors", st.ErrorRows,
		"duplicates", st.DuplicateRows,
	)
	return nil
}

func joinFields(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// BackToMapping discards the preview so the mapping can be changed.
func (s *Session) BackToMapping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(context.Background(), "return to mapping", StagePreview, StageReconciliationPending); err != nil {
		return err
	}
	s.records = nil
	s.unmatched = nil
	s.resolutions = make(map[string]Resolution)
	s.transition(StageMapping)
	return nil
}

// Records returns a copy of the candidate records.
func (s *Session) Records() []CandidateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CandidateRecord, len(s.records))
	for i, r := range s.records {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneRecord(r CandidateRecord) CandidateRecord {
	raw := make(map[Field]string, len(r.Raw))
	for f, v := range r.Raw {
		raw[f] = v
	}
	r.Raw = raw
	r.Errors = slices.Clone(r.Errors)
	return r
}

// Stats summarizes the current preview.
func (s *Session) Stats() PreviewStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats(s.records)
}

func (s *Session) record(i int) (*CandidateRecord, error) {
	if i < 0 || i >= len(s.records) {
		return nil, fmt.Errorf("%w: %d", ErrRecordNotFound, i)
	}
	return &s.records[i], nil
}

// SetSelected includes or excludes record i. Selecting a record with errors
// has no effect.
func (s *Session) SetSelected(i int, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(context.Background(), "change selection", StagePreview); err != nil {
		return err
	}
	rec, err := s.record(i)
	if err != nil {
		return err
	}
	rec.SetSelected(selected)
	s.updatedAt = time.Now()
	return nil
}

// SelectAll sets selection on every record without errors.
func (s *Session) SelectAll(selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(context.Background(), "change selection", StagePreview); err != nil {
		return err
	}
	for i := range s.records {
		s.records[i].SetSelected(selected)
	}
	s.updatedAt = time.Now()
	return nil
}

// EditRecord replaces mapped cell values of record i and re-validates the
// preview, since an edit can create or clear an in-file duplicate.
func (s *Session) EditRecord(i int, edits map[Field]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(context.Background(), "edit record", StagePreview); err != nil {
		return err
	}
	rec, err := s.record(i)
	if err != nil {
		return err
	}
	for f := range edits {
		if _, ok := s.def.Spec(f); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, f)
		}
	}

	for f, v := range edits {
		rec.Raw[f] = CleanCell(v)
	}
	rec.Record = projectRaw(rec.Raw, s.def)
	NewValidator(s.def, s.snapshot, s.opts.Validator).ValidateAll(s.records)
	s.updatedAt = time.Now()
	return nil
}

// Unmatched returns the entities pending reconciliation.
func (s *Session) Unmatched() []UnmatchedEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.unmatched)
}

// Resolutions returns the resolutions recorded so far, keyed by code.
func (s *Session) Resolutions() map[string]Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Resolution, len(s.resolutions))
	for _, u := range s.unmatched {
		if r, ok := s.resolutions[resolutionKey(u.ExternalCode)]; ok {
			out[u.ExternalCode] = r
		}
	}
	return out
}

// Resolve records how an unmatched code is handled.
func (s *Session) Resolve(code string, res Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(context.Background(), "resolve entity", StageReconciliationPending); err != nil {
		return err
	}

	key := resolutionKey(code)
	if !slices.ContainsFunc(s.unmatched, func(u UnmatchedEntity) bool { return resolutionKey(u.ExternalCode) == key }) {
		return fmt.Errorf("%w: %s", ErrNotUnmatched, code)
	}

	switch res.Action {
	case ResolveCreateNew:
		res.EntityID = ""
	case ResolveMapExisting:
		if s.snapshot.ByID(s.def.Info.Reference, res.EntityID) == nil {
			return fmt.Errorf("%w: %s %q", ErrUnknownEntity, s.def.Info.Reference, res.EntityID)
		}
	default:
		return fmt.Errorf("invalid request: unknown resolution action %q", res.Action)
	}

	s.resolutions[key] = res
	s.updatedAt = time.Now()
	return nil
}

// Commit writes the eligible records. From preview, a kind with references
// first checks for unmatched codes; if any exist the session moves to
// reconciliation_pending and an *UnresolvedError is returned. From
// reconciliation_pending every code must be resolved. A write failure moves
// the session to failed with its records intact; Commit may be called again
// from failed to retry.
func (s *Session) Commit(ctx context.Context, name string) (*CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(ctx, "commit", StagePreview, StageReconciliationPending, StageFailed); err != nil {
		return nil, err
	}

	ref := s.def.Info.Reference
	if ref != "" {
		if s.stage == StagePreview {
			s.unmatched = FindUnmatched(s.records, s.snapshot, ref)
			if len(s.unmatched) > 0 {
				s.transition(StageReconciliationPending)
				metrics.Commits.WithLabelValues(s.def.Info.Key, "blocked").Inc()
				err := CheckResolutions(s.unmatched, s.resolutions, s.snapshot, ref)
				s.logger.Info("commit blocked by unmatched entities", "unmatched", len(s.unmatched))
				return nil, err
			}
		}
		if err := CheckResolutions(s.unmatched, s.resolutions, s.snapshot, ref); err != nil {
			metrics.Commits.WithLabelValues(s.def.Info.Key, "blocked").Inc()
			return nil, err
		}
	}

	prev := s.stage
	s.transition(StageCommitting)

	res, err := s.committer.Commit(ctx, CommitRequest{
		Kind:        s.def,
		Records:     s.records,
		Unmatched:   s.unmatched,
		Resolutions: s.resolutions,
		Name:        name,
		Snapshot:    s.snapshot,
	})
	switch {
	case errors.Is(err, ErrNothingToCommit):
		s.transition(prev)
		metrics.Commits.WithLabelValues(s.def.Info.Key, "empty").Inc()
		return nil, err
	case err != nil:
		s.lastErr = err.Error()
		s.transition(StageFailed)
		metrics.Commits.WithLabelValues(s.def.Info.Key, "failed").Inc()
		s.logger.Error("commit failed", "error", err)
		return nil, err
	}

	s.result = res
	s.lastErr = ""
	s.transition(StageCommitted)
	metrics.Commits.WithLabelValues(s.def.Info.Key, "committed").Inc()
	return res, nil
}

// Cancel ends the session and discards its in-memory state. Cancelling with
// unmatched entities pending records CancelledUnmatched as the result.
func (s *Session) Cancel() (*CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage.Terminal() {
		return nil, fmt.Errorf("cancel: %w", ErrSessionClosed)
	}

	reason := "cancelled by operator"
	if s.stage == StageReconciliationPending {
		reason = CancelledUnmatched
	}
	s.result = &CommitResult{
		Cancelled: true,
		Reason:    reason,
		Skipped:   len(s.records),
	}
	s.lastErr = reason
	s.data = nil
	s.records = nil
	s.snapshot = nil
	s.transition(StageCancelled)

	s.logger.Info("import cancelled", "reason", reason, "unmatched", len(s.unmatched))
	return s.result, nil
}

// Result returns the terminal result, or nil before commit or cancel.
func (s *Session) Result() *CommitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}
