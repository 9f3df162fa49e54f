package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

// ============================================================================
// End-to-end scenarios
// ============================================================================

func TestSession_ProductImport(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemory()
	s := newTestSession(t, "product", cat, csvFile(
		"name,code,department,price,unit",
		"Tea,T1,Drinks,1.50,cup",
		"Cake,C1,Bakery,4,slice",
		"Juice,J1,Drinks,2.25,cup",
	))

	if s.Stage() != StageMapping {
		t.Fatalf("Stage = %s, want mapping", s.Stage())
	}
	if !s.MappingComplete() {
		t.Fatalf("auto-map incomplete: %+v", s.Mapping())
	}

	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatalf("GeneratePreview failed: %v", err)
	}
	st := s.Stats()
	if st.TotalRows != 3 || st.EligibleRows != 3 || st.SelectedRows != 3 {
		t.Fatalf("Stats = %+v, want 3 eligible", st)
	}

	res, err := s.Commit(ctx, "")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if s.Stage() != StageCommitted {
		t.Errorf("Stage = %s, want committed", s.Stage())
	}
	if res.Committed != 3 || res.Created[catalog.KindProduct] != 3 {
		t.Errorf("result = %+v, want 3 committed and 3 products created", res)
	}

	ds, _ := cat.GetDataset(ctx, res.DatasetID)
	if ds == nil || len(ds.Rows) != 3 {
		t.Fatalf("dataset = %+v", ds)
	}
	if s.Result() != res {
		t.Error("Result() should return the commit result")
	}
}

func TestSession_SalesWithUnmatchedCode(t *testing.T) {
	ctx := context.Background()
	cat := seededCatalog()
	s := newTestSession(t, "sale", cat, csvFile(
		"code,qty,price",
		"P1,2,3",
		"X9,1,5",
		"X9,4,5",
	))
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatalf("GeneratePreview failed: %v", err)
	}

	_, err := s.Commit(ctx, "")
	var ue *UnresolvedError
	if !errors.As(err, &ue) || len(ue.Codes) != 1 || ue.Codes[0] != "X9" {
		t.Fatalf("Commit = %v, want unresolved X9", err)
	}
	if s.Stage() != StageReconciliationPending {
		t.Fatalf("Stage = %s, want reconciliation_pending", s.Stage())
	}

	unmatched := s.Unmatched()
	if len(unmatched) != 1 || unmatched[0].ExternalCode != "X9" || unmatched[0].OccurrenceCount != 2 {
		t.Fatalf("Unmatched = %+v, want X9 x2", unmatched)
	}

	// Still blocked until resolved.
	if _, err := s.Commit(ctx, ""); !errors.Is(err, ErrUnresolvedEntities) {
		t.Fatalf("second Commit = %v, want ErrUnresolvedEntities", err)
	}
	if s.Stage() != StageReconciliationPending {
		t.Errorf("Stage = %s after blocked commit", s.Stage())
	}

	if err := s.Resolve("x9", Resolution{Action: ResolveCreateNew, Name: "Flat White"}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := s.Resolutions(); got["X9"].Action != ResolveCreateNew {
		t.Errorf("Resolutions = %+v", got)
	}

	res, err := s.Commit(ctx, "")
	if err != nil {
		t.Fatalf("Commit after resolution failed: %v", err)
	}
	if res.Committed != 3 {
		t.Errorf("Committed = %d, want 3", res.Committed)
	}

	x9, _ := cat.FindByCode(ctx, catalog.KindProduct, "X9")
	if x9 == nil || x9.Name != "Flat White" {
		t.Errorf("X9 = %+v, want created", x9)
	}
}

func TestSession_HeaderOnlyFileStaysInUpload(t *testing.T) {
	s := NewSession("s1", mustKind(t, "product"), catalog.NewMemory(), nil, SessionOptions{})

	err := s.Upload(context.Background(), csvFile("name,code,department,price"), tabular.DefaultOptions())
	if !errors.Is(err, tabular.ErrEmptyFile) {
		t.Fatalf("Upload = %v, want ErrEmptyFile", err)
	}
	if s.Stage() != StageUpload {
		t.Errorf("Stage = %s, want upload", s.Stage())
	}
	if v := s.View(); v.LastError == "" {
		t.Error("LastError should record the parse failure")
	}

	// A corrected file can be uploaded to the same session.
	if err := s.Upload(context.Background(), csvFile("name,code,department,price", "Tea,T1,Drinks,1"), tabular.DefaultOptions()); err != nil {
		t.Fatalf("second Upload failed: %v", err)
	}
	if s.Stage() != StageMapping || s.View().LastError != "" {
		t.Errorf("after retry: stage %s, lastError %q", s.Stage(), s.View().LastError)
	}
}

// ============================================================================
// State machine
// ============================================================================

func TestSession_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewSession("s1", mustKind(t, "product"), catalog.NewMemory(), nil, SessionOptions{})

	if err := s.GeneratePreview(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("GeneratePreview in upload = %v, want ErrInvalidTransition", err)
	}
	if _, err := s.Commit(ctx, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Commit in upload = %v, want ErrInvalidTransition", err)
	}
	if err := s.SetSelected(0, true); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SetSelected in upload = %v, want ErrInvalidTransition", err)
	}
	if err := s.Resolve("X", Resolution{Action: ResolveCreateNew}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resolve in upload = %v, want ErrInvalidTransition", err)
	}
}

func TestSession_MappingIncomplete(t *testing.T) {
	s := newTestSession(t, "product", catalog.NewMemory(), csvFile(
		"name,code,department,cost in cents",
		"Tea,T1,Drinks,150",
	))

	err := s.GeneratePreview(context.Background())
	if !errors.Is(err, ErrMappingIncomplete) {
		t.Fatalf("GeneratePreview = %v, want ErrMappingIncomplete", err)
	}
	if s.Stage() != StageMapping {
		t.Errorf("Stage = %s, want mapping", s.Stage())
	}

	if err := s.SetColumn(FieldPrice, 3); err != nil {
		t.Fatalf("SetColumn failed: %v", err)
	}
	if err := s.SetColumn(FieldPrice, 9); !errors.Is(err, ErrColumnOutOfRange) {
		t.Errorf("SetColumn(9) = %v, want ErrColumnOutOfRange", err)
	}
	if err := s.GeneratePreview(context.Background()); err != nil {
		t.Fatalf("GeneratePreview after manual mapping failed: %v", err)
	}
}

func TestSession_BackToMappingKeepsOverrides(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, "product", catalog.NewMemory(), csvFile(
		"name,code,department,price,list price",
		"Tea,T1,Drinks,1,2",
	))
	if err := s.SetColumn(FieldPrice, 4); err != nil {
		t.Fatalf("SetColumn failed: %v", err)
	}
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatalf("GeneratePreview failed: %v", err)
	}
	if err := s.BackToMapping(); err != nil {
		t.Fatalf("BackToMapping failed: %v", err)
	}
	if err := s.AutoMap(); err != nil {
		t.Fatalf("AutoMap failed: %v", err)
	}
	if got := s.Mapping().Index(FieldPrice); got != 4 {
		t.Errorf("price column = %d, want manual 4", got)
	}
	if len(s.Records()) != 0 {
		t.Error("records should be discarded when returning to mapping")
	}
}

func TestSession_SelectionAndEdits(t *testing.T) {
	ctx := context.Background()
	cat := seededCatalog()
	s := newTestSession(t, "product", cat, csvFile(
		"name,code,department,price",
		"Mocha,P1,Coffee,3",
		"Cake,C1,Bakery,oops",
		"Tea,T1,Drinks,1",
	))
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatalf("GeneratePreview failed: %v", err)
	}

	recs := s.Records()
	if !recs[0].Duplicate || recs[0].Selected {
		t.Errorf("row with existing code P1 = %+v, want flagged duplicate", recs[0])
	}
	if !recs[1].HasError {
		t.Errorf("row with bad price should have errors")
	}

	// Errored rows cannot be selected.
	if err := s.SetSelected(1, true); err != nil {
		t.Fatalf("SetSelected failed: %v", err)
	}
	if s.Records()[1].Selected {
		t.Error("errored row became selected")
	}

	if err := s.EditRecord(1, map[Field]string{FieldPrice: "4.5"}); err != nil {
		t.Fatalf("EditRecord failed: %v", err)
	}
	fixed := s.Records()[1]
	if fixed.HasError || !fixed.Selected || fixed.Record.Price.String() != "4.5" {
		t.Errorf("edited row = %+v", fixed)
	}

	if err := s.EditRecord(0, map[Field]string{FieldCode: "P7"}); err != nil {
		t.Fatalf("EditRecord(code) failed: %v", err)
	}
	if r := s.Records()[0]; r.HasError || !r.Selected {
		t.Errorf("row with new code = %+v, want eligible", r)
	}
	if err := s.EditRecord(0, map[Field]string{FieldQuantity: "1"}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("EditRecord(quantity) = %v, want ErrUnknownField", err)
	}
	if err := s.SetSelected(99, true); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("SetSelected(99) = %v, want ErrRecordNotFound", err)
	}

	if err := s.SelectAll(false); err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if _, err := s.Commit(ctx, ""); !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("Commit with nothing selected = %v, want ErrNothingToCommit", err)
	}
	if s.Stage() != StagePreview {
		t.Errorf("Stage = %s, want preview after empty commit", s.Stage())
	}

	if err := s.SetSelected(2, true); err != nil {
		t.Fatal(err)
	}
	res, err := s.Commit(ctx, "")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if res.Committed != 1 || res.Skipped != 2 {
		t.Errorf("result = %+v, want 1 committed", res)
	}
}

func TestSession_CancelWithUnmatched(t *testing.T) {
	ctx := context.Background()
	cat := seededCatalog()
	s := newTestSession(t, "sale", cat, csvFile("code,qty", "X9,1"))
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(ctx, ""); err == nil {
		t.Fatal("Commit should be blocked")
	}

	res, err := s.Cancel()
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !res.Cancelled || res.Reason != CancelledUnmatched {
		t.Errorf("result = %+v, want cancelled due to unmatched entities", res)
	}
	if s.Stage() != StageCancelled {
		t.Errorf("Stage = %s", s.Stage())
	}

	if _, err := s.Cancel(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Cancel = %v, want ErrSessionClosed", err)
	}
	if _, err := s.Commit(ctx, ""); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Commit after cancel = %v, want ErrSessionClosed", err)
	}

	if infos, _ := cat.ListDatasets(ctx); len(infos) != 0 {
		t.Errorf("cancelled session wrote %d datasets", len(infos))
	}
	if x9, _ := cat.FindByCode(ctx, catalog.KindProduct, "X9"); x9 != nil {
		t.Error("cancelled session created an entity")
	}
}

func TestSession_CommitFailureAndRetry(t *testing.T) {
	ctx := context.Background()
	cat := &flakyCatalog{Memory: catalog.NewMemory()}
	s := newTestSession(t, "product", cat, csvFile("name,code,department,price", "Tea,T1,Drinks,1"))
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatal(err)
	}

	cat.setFailing(true)
	if _, err := s.Commit(ctx, "batch"); !errors.Is(err, errStoreDown) {
		t.Fatalf("Commit = %v, want store error", err)
	}
	if s.Stage() != StageFailed {
		t.Fatalf("Stage = %s, want failed", s.Stage())
	}
	if len(s.Records()) != 1 {
		t.Error("records should survive a failed commit")
	}

	cat.setFailing(false)
	res, err := s.Commit(ctx, "batch")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if s.Stage() != StageCommitted || res.DatasetName != "batch" {
		t.Errorf("stage %s, result %+v", s.Stage(), res)
	}
}

func TestSession_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession("s1", mustKind(t, "product"), catalog.NewMemory(), nil, SessionOptions{})
	err := s.Upload(ctx, csvFile("name", "x"), tabular.DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Upload = %v, want context.Canceled", err)
	}
	if s.Stage() != StageUpload {
		t.Errorf("Stage = %s", s.Stage())
	}
}

func TestSession_UploadWaitsForLimiterSlot(t *testing.T) {
	ctx := context.Background()
	limiter := NewUploadLimiter(1, 20*time.Millisecond)
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	s := NewSession("s1", mustKind(t, "product"), catalog.NewMemory(), limiter, SessionOptions{})
	err := s.Upload(ctx, csvFile("name,code,department,price", "Tea,T1,Drinks,1"), tabular.DefaultOptions())
	if !errors.Is(err, ErrTooManyUploads) {
		t.Fatalf("Upload = %v, want ErrTooManyUploads", err)
	}
	if s.Stage() != StageUpload {
		t.Errorf("Stage = %s, want upload", s.Stage())
	}

	limiter.Release()
	if err := s.Upload(ctx, csvFile("name,code,department,price", "Tea,T1,Drinks,1"), tabular.DefaultOptions()); err != nil {
		t.Fatalf("Upload after release failed: %v", err)
	}
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0 after upload", got)
	}
}

func TestSession_RecordsPage(t *testing.T) {
	s := newTestSession(t, "product", catalog.NewMemory(), csvFile(
		"name,code,department,price",
		"A,1,D,1", "B,2,D,1", "C,3,D,1", "D,4,D,1", "E,5,D,1",
	))
	if err := s.GeneratePreview(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		offset, limit int
		wantLen       int
		wantFirst     int
	}{
		{0, 2, 2, 1},
		{4, 2, 1, 5},
		{10, 2, 0, 0},
		{0, 0, 5, 1},
	}
	for _, tt := range tests {
		page, total := s.RecordsPage(tt.offset, tt.limit)
		if total != 5 || len(page) != tt.wantLen {
			t.Errorf("RecordsPage(%d,%d) = %d rows of %d", tt.offset, tt.limit, len(page), total)
			continue
		}
		if tt.wantLen > 0 && page[0].Row != tt.wantFirst {
			t.Errorf("RecordsPage(%d,%d) first row = %d, want %d", tt.offset, tt.limit, page[0].Row, tt.wantFirst)
		}
	}
}
