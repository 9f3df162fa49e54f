package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

func TestService_Sessions(t *testing.T) {
	svc := NewService(catalog.NewMemory(), Options{})

	if _, err := svc.NewSession("invoice"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("NewSession(invoice) = %v, want ErrUnknownKind", err)
	}

	s, err := svc.NewSession("product")
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	got, err := svc.Session(s.ID())
	if err != nil || got != s {
		t.Fatalf("Session(%s) = %v, %v", s.ID(), got, err)
	}
	if svc.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, want 1", svc.SessionCount())
	}

	if err := svc.Discard(s.ID()); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if s.Stage() != StageCancelled {
		t.Errorf("discarded session stage = %s, want cancelled", s.Stage())
	}
	if _, err := svc.Session(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session after Discard = %v, want ErrSessionNotFound", err)
	}
	if err := svc.Discard(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Discard = %v, want ErrSessionNotFound", err)
	}
}

func TestService_ExpireSessions(t *testing.T) {
	svc := NewService(catalog.NewMemory(), Options{SessionTTL: time.Minute})

	idle, _ := svc.NewSession("product")
	fresh, _ := svc.NewSession("sale")

	// Only sessions idle longer than the TTL go.
	n := svc.ExpireSessions(time.Now().Add(30 * time.Second))
	if n != 0 {
		t.Fatalf("expired %d sessions before TTL", n)
	}

	_, _ = fresh.Cancel() // touches updatedAt
	n = svc.ExpireSessions(idle.LastActivity().Add(2 * time.Minute))
	if n != 2 {
		t.Errorf("expired %d, want 2", n)
	}
	if idle.Stage() != StageCancelled {
		t.Errorf("expired session stage = %s, want cancelled", idle.Stage())
	}
	if svc.SessionCount() != 0 {
		t.Errorf("SessionCount = %d, want 0", svc.SessionCount())
	}
}

func TestService_ExpireSessionsDoesNotBlockLookups(t *testing.T) {
	svc := NewService(catalog.NewMemory(), Options{
		MaxConcurrentUploads: 1,
		MaxUploadWait:        2 * time.Second,
	})
	if err := svc.limiter.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	busy, _ := svc.NewSession("product")
	other, _ := svc.NewSession("sale")

	// busy waits for an upload slot while holding its own lock.
	uploaded := make(chan error, 1)
	go func() {
		uploaded <- busy.Upload(context.Background(), csvFile("name,code,department,price", "Tea,T1,Drinks,1"), tabular.DefaultOptions())
	}()
	for busy.mu.TryLock() {
		busy.mu.Unlock()
		time.Sleep(time.Millisecond)
	}

	expired := make(chan int, 1)
	go func() { expired <- svc.ExpireSessions(time.Now().Add(time.Hour)) }()
	time.Sleep(20 * time.Millisecond)

	found := make(chan error, 1)
	go func() {
		_, err := svc.Session(other.ID())
		found <- err
	}()
	select {
	case err := <-found:
		if err != nil {
			t.Errorf("Session(other) = %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Session lookup blocked behind ExpireSessions")
	}

	svc.limiter.Release()
	if err := <-uploaded; err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if n := <-expired; n != 2 {
		t.Errorf("expired %d, want 2", n)
	}
}

func TestService_StartImport(t *testing.T) {
	svc := NewService(catalog.NewMemory(), Options{})

	s, err := svc.StartImport(context.Background(), "product", tabular.RawFile{Name: "notes.pdf", Data: []byte("%PDF-1.4")}, tabular.DefaultOptions())
	if !errors.Is(err, tabular.ErrMalformedFile) {
		t.Fatalf("StartImport = %v, want ErrMalformedFile", err)
	}
	if s == nil || s.Stage() != StageUpload {
		t.Fatalf("session should stay in upload, got %v", s)
	}
	if MapError(err).Code != "FILE002" {
		t.Errorf("code = %s, want FILE002", MapError(err).Code)
	}
}

func TestService_Datasets(t *testing.T) {
	ctx := context.Background()
	svc := NewService(catalog.NewMemory(), Options{})

	if _, err := svc.GetDataset(ctx, "missing"); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("GetDataset = %v, want ErrDatasetNotFound", err)
	}
	if err := svc.SetReferenceDataset(ctx, "missing"); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("SetReferenceDataset = %v, want ErrDatasetNotFound", err)
	}

	s, err := svc.StartImport(ctx, "sale", csvFile("code,qty,price", "P1,2,3"), tabular.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(ctx, ""); err == nil {
		t.Fatal("P1 is not in an empty catalog; commit should block")
	}
	if err := s.Resolve("P1", Resolution{Action: ResolveCreateNew}); err != nil {
		t.Fatal(err)
	}
	res, err := s.Commit(ctx, "week 1")
	if err != nil {
		t.Fatal(err)
	}

	infos, err := svc.ListDatasets(ctx)
	if err != nil || len(infos) != 1 || infos[0].RowCount != 1 {
		t.Fatalf("ListDatasets = %+v, %v", infos, err)
	}

	if err := svc.SetReferenceDataset(ctx, res.DatasetID); err != nil {
		t.Fatalf("SetReferenceDataset failed: %v", err)
	}
	if ref, _ := svc.ReferenceDataset(ctx); ref != res.DatasetID {
		t.Errorf("ReferenceDataset = %q, want %q", ref, res.DatasetID)
	}
	if err := svc.SetReferenceDataset(ctx, ""); err != nil {
		t.Fatalf("clearing reference failed: %v", err)
	}
	if ref, _ := svc.ReferenceDataset(ctx); ref != "" {
		t.Errorf("ReferenceDataset = %q after clear", ref)
	}
}

func TestService_ExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewService(catalog.NewMemory(), Options{})

	s, err := src.StartImport(ctx, "product", csvFile(
		"name,code,department,price,unit",
		"Tea,T1,Drinks,1.50,cup",
		"Cake,C1,Bakery,4,",
		"Juice,J1,Drinks,2.25,cup",
	), tabular.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := s.Commit(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	for _, format := range []ExportFormat{ExportXLSX, ExportCSV} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if _, err := src.ExportDataset(ctx, res.DatasetID, format, &buf); err != nil {
				t.Fatalf("ExportDataset failed: %v", err)
			}

			// Re-import into an empty catalog so nothing is a duplicate.
			dst := NewService(catalog.NewMemory(), Options{})
			file := tabular.RawFile{Name: "export." + string(format), Data: buf.Bytes()}
			s2, err := dst.StartImport(ctx, "product", file, tabular.DefaultOptions())
			if err != nil {
				t.Fatalf("re-import failed: %v", err)
			}
			if !s2.MappingComplete() {
				t.Fatalf("exported headers did not auto-map: %+v", s2.Mapping())
			}
			if err := s2.GeneratePreview(ctx); err != nil {
				t.Fatal(err)
			}
			res2, err := s2.Commit(ctx, "")
			if err != nil {
				t.Fatalf("re-import commit failed: %v", err)
			}
			if res2.Committed != res.Committed {
				t.Errorf("round trip committed %d, want %d", res2.Committed, res.Committed)
			}

			ds, _ := dst.GetDataset(ctx, res2.DatasetID)
			if got := ds.Rows[0].Price.String(); got != "1.5" {
				t.Errorf("price = %s, want 1.5", got)
			}
			if ds.Rows[1].Unit != "" {
				t.Errorf("blank unit came back as %q", ds.Rows[1].Unit)
			}
		})
	}

	if _, err := src.ExportDataset(ctx, res.DatasetID, "pdf", io.Discard); !errors.Is(err, ErrUnknownExportFormat) {
		t.Errorf("ExportDataset(pdf) = %v, want ErrUnknownExportFormat", err)
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ExportFormat
		wantErr bool
	}{
		{"", ExportXLSX, false},
		{"xlsx", ExportXLSX, false},
		{" CSV ", ExportCSV, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExportFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseExportFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseExportFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestService_UploadLimiterStatus(t *testing.T) {
	svc := NewService(catalog.NewMemory(), Options{MaxConcurrentUploads: 2})
	if st := svc.UploadLimiterStatus(); st.MaxConcurrent != 2 || st.Active != 0 {
		t.Errorf("status = %+v", st)
	}
	if err := svc.WaitForUploads(context.Background()); err != nil {
		t.Errorf("WaitForUploads = %v", err)
	}
}
