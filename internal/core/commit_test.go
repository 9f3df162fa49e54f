package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/foodops/internal/catalog"
)

func fixedClock(e *CommitExecutor) {
	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
}

func TestCommit_OnlyEligibleRows(t *testing.T) {
	ctx := context.Background()
	def := mustKind(t, "product")
	cat := catalog.NewMemory()

	records := projectRows(t, def, []string{"name", "code", "department", "price", "unit"},
		[]string{"Tea", "T1", "Drinks", "1.5", "cup"},
		[]string{"Cake", "C1", "Bakery", "bad", "slice"},
		[]string{"Juice", "J1", "Drinks", "2", "cup"},
	)
	NewValidator(def, nil, ValidatorOptions{}).ValidateAll(records)
	records[2].SetSelected(false)

	exec := NewCommitExecutor(cat)
	fixedClock(exec)
	res, err := exec.Commit(ctx, CommitRequest{Kind: def, Records: records})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if res.Committed != 1 || res.Skipped != 2 {
		t.Errorf("Committed = %d, Skipped = %d, want 1 and 2", res.Committed, res.Skipped)
	}
	if res.DatasetName != "Products 2024-05-01 09:30" {
		t.Errorf("DatasetName = %q", res.DatasetName)
	}
	if res.Created[catalog.KindProduct] != 1 || res.Created[catalog.KindDepartment] != 1 || res.Created[catalog.KindUnit] != 1 {
		t.Errorf("Created = %v", res.Created)
	}

	ds, _ := cat.GetDataset(ctx, res.DatasetID)
	if ds == nil || len(ds.Rows) != 1 || ds.Rows[0].Code != "T1" {
		t.Fatalf("dataset = %+v, want only T1", ds)
	}
	row := ds.Rows[0]
	if row.ID == "" || row.DepartmentID == "" || row.UnitID == "" {
		t.Errorf("row ids not linked: %+v", row)
	}

	tea, _ := cat.FindByCode(ctx, catalog.KindProduct, "t1")
	if tea == nil || tea.DepartmentID != row.DepartmentID {
		t.Errorf("product = %+v, want linked to department %s", tea, row.DepartmentID)
	}
	if cake, _ := cat.FindByCode(ctx, catalog.KindProduct, "C1"); cake != nil {
		t.Error("row with errors must not create an entity")
	}
}

func TestCommit_SharesDepartmentsAndUnits(t *testing.T) {
	ctx := context.Background()
	def := mustKind(t, "product")
	cat := catalog.NewMemory(catalog.Entity{ID: "d1", Kind: catalog.KindDepartment, Name: "Drinks"})

	records := projectRows(t, def, []string{"name", "code", "department", "price", "unit"},
		[]string{"Tea", "T1", "drinks", "1", "Cup"},
		[]string{"Juice", "J1", "Drinks", "2", "cup"},
	)
	res, err := NewCommitExecutor(cat).Commit(ctx, CommitRequest{Kind: def, Records: records})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if res.Created[catalog.KindDepartment] != 0 {
		t.Errorf("existing department recreated: %v", res.Created)
	}
	if res.Created[catalog.KindUnit] != 1 {
		t.Errorf("units created = %d, want 1", res.Created[catalog.KindUnit])
	}
	units, _ := cat.List(ctx, catalog.KindUnit)
	if len(units) != 1 {
		t.Errorf("units = %+v, want one", units)
	}
}

func TestCommit_NothingToCommit(t *testing.T) {
	def := mustKind(t, "product")
	records := projectRows(t, def, []string{"name", "code", "department", "price"},
		[]string{"Tea", "T1", "Drinks", "1"},
	)
	records[0].SetSelected(false)

	_, err := NewCommitExecutor(catalog.NewMemory()).Commit(context.Background(), CommitRequest{Kind: def, Records: records})
	if !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("Commit = %v, want ErrNothingToCommit", err)
	}
}

func TestCommit_Resolutions(t *testing.T) {
	ctx := context.Background()
	def := mustKind(t, "sale")
	cat := seededCatalog()

	records := projectRows(t, def, []string{"code", "quantity", "price", "name"},
		[]string{"P1", "2", "3", ""},
		[]string{"X9", "1", "4", "Flat White"},
		[]string{"LAT", "5", "2", ""},
	)
	unmatched := []UnmatchedEntity{
		{ExternalCode: "X9", ExternalName: "Flat White", OccurrenceCount: 1},
		{ExternalCode: "LAT", OccurrenceCount: 1},
	}
	resolutions := map[string]Resolution{
		"x9":  {Action: ResolveCreateNew},
		"lat": {Action: ResolveMapExisting, EntityID: "p2"},
	}

	res, err := NewCommitExecutor(cat).Commit(ctx, CommitRequest{
		Kind: def, Records: records, Unmatched: unmatched, Resolutions: resolutions, Name: "May sales",
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if res.Created[catalog.KindProduct] != 1 {
		t.Errorf("Created = %v, want one product", res.Created)
	}

	x9, _ := cat.FindByCode(ctx, catalog.KindProduct, "X9")
	if x9 == nil || x9.Name != "Flat White" {
		t.Fatalf("X9 = %+v, want created as Flat White", x9)
	}

	ds, _ := cat.GetDataset(ctx, res.DatasetID)
	want := []string{"p1", x9.ID, "p2"}
	for i, row := range ds.Rows {
		if row.ProductID != want[i] {
			t.Errorf("row %d ProductID = %q, want %q", i, row.ProductID, want[i])
		}
	}
	if got := ds.Rows[0].Amount.String(); got != "6" {
		t.Errorf("derived amount = %s, want 6", got)
	}
	if ds.Name != "May sales" {
		t.Errorf("Name = %q", ds.Name)
	}
}

func TestCommit_MissingResolution(t *testing.T) {
	def := mustKind(t, "sale")
	records := projectRows(t, def, []string{"code", "quantity"}, []string{"X9", "1"})

	_, err := NewCommitExecutor(seededCatalog()).Commit(context.Background(), CommitRequest{
		Kind:      def,
		Records:   records,
		Unmatched: []UnmatchedEntity{{ExternalCode: "X9"}},
	})
	if !errors.Is(err, ErrUnresolvedEntities) {
		t.Errorf("Commit = %v, want ErrUnresolvedEntities", err)
	}
}

func TestCommit_StoreFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	def := mustKind(t, "product")
	cat := &flakyCatalog{Memory: catalog.NewMemory()}
	cat.setFailing(true)

	records := projectRows(t, def, []string{"name", "code", "department", "price"},
		[]string{"Tea", "T1", "Drinks", "1"},
	)
	exec := NewCommitExecutor(cat)

	_, err := exec.Commit(ctx, CommitRequest{Kind: def, Records: records})
	var ce *CommitError
	if !errors.As(err, &ce) || !errors.Is(err, errStoreDown) {
		t.Fatalf("Commit = %v, want CommitError wrapping store error", err)
	}

	cat.setFailing(false)
	res, err := exec.Commit(ctx, CommitRequest{Kind: def, Records: records})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.Created[catalog.KindProduct] != 0 {
		t.Errorf("retry recreated the product: %v", res.Created)
	}
	products, _ := cat.List(ctx, catalog.KindProduct)
	if len(products) != 1 {
		t.Errorf("products = %d, want 1", len(products))
	}
}

// exactCodeCatalog compares codes byte for byte, like a store that only
// lower-cases them.
type exactCodeCatalog struct {
	*catalog.Memory
}

func (c exactCodeCatalog) FindByCode(ctx context.Context, kind catalog.Kind, code string) (*catalog.Entity, error) {
	list, err := c.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Code == code {
			return &list[i], nil
		}
	}
	return nil, nil
}

func TestCommit_MatchesCodesLikePreview(t *testing.T) {
	ctx := context.Background()
	// Arabic kaf and Arabic-Indic one in the catalog, keheh and ASCII in the file.
	cat := exactCodeCatalog{catalog.NewMemory(
		catalog.Entity{ID: "p1", Kind: catalog.KindProduct, Name: "Cheese", Code: "\u0643\u062f\u0661"},
	)}

	s := newTestSession(t, "sale", cat, csvFile("code,quantity", "\u06a9\u062f1,2"))
	if err := s.GeneratePreview(ctx); err != nil {
		t.Fatalf("GeneratePreview failed: %v", err)
	}
	if u := s.Unmatched(); len(u) != 0 {
		t.Fatalf("Unmatched = %+v, want none", u)
	}

	res, err := s.Commit(ctx, "")
	if err != nil {
		t.Fatalf("Commit = %v, want the code matched as in preview", err)
	}
	ds, _ := cat.GetDataset(ctx, res.DatasetID)
	if ds == nil || len(ds.Rows) != 1 || ds.Rows[0].ProductID != "p1" {
		t.Errorf("dataset = %+v, want one row linked to p1", ds)
	}
	if res.Created[catalog.KindProduct] != 0 {
		t.Errorf("Created = %v, want no products", res.Created)
	}
}
