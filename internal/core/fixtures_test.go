package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

// Test kinds mirror the production registrations closely enough to exercise
// entity creation, references and derived values.
func init() {
	Register(KindDefinition{
		Info: KindInfo{Key: "product", Label: "Products", Entity: catalog.KindProduct},
		Fields: []FieldSpec{
			{Field: FieldName, Required: true, Synonyms: []string{"نام"}},
			{Field: FieldCode, Required: true, Synonyms: []string{"کد", "sku"}},
			{Field: FieldDepartment, Required: true, Synonyms: []string{"بخش", "category"}},
			{Field: FieldPrice, Required: true, Bound: BoundNonNegative, Synonyms: []string{"قیمت", "unit price"}},
			{Field: FieldUnit, Synonyms: []string{"واحد"}},
			{Field: FieldDescription},
		},
	})
	Register(KindDefinition{
		Info: KindInfo{Key: "sale", Label: "Sales", Reference: catalog.KindProduct},
		Fields: []FieldSpec{
			{Field: FieldCode, Required: true, Synonyms: []string{"کد"}},
			{Field: FieldQuantity, Required: true, Bound: BoundPositive, Synonyms: []string{"qty", "تعداد"}},
			{Field: FieldName},
			{Field: FieldPrice, Bound: BoundNonNegative},
			{Field: FieldAmount, Bound: BoundNonNegative},
			{Field: FieldDate},
		},
		Finalize: func(r *catalog.Record) {
			if r.Amount.IsZero() {
				r.Amount = r.Price.Mul(r.Quantity)
			}
		},
	})
}

func mustKind(t testing.TB, key string) KindDefinition {
	t.Helper()
	def, ok := Get(key)
	if !ok {
		t.Fatalf("kind %q not registered", key)
	}
	return def
}

func csvFile(lines ...string) tabular.RawFile {
	return tabular.RawFile{Name: "import.csv", Data: []byte(strings.Join(lines, "\n") + "\n")}
}

// seededCatalog holds products P1 and P2.
func seededCatalog() *catalog.Memory {
	return catalog.NewMemory(
		catalog.Entity{ID: "p1", Kind: catalog.KindProduct, Name: "Espresso", Code: "P1"},
		catalog.Entity{ID: "p2", Kind: catalog.KindProduct, Name: "Latte", Code: "P2"},
	)
}

// flakyCatalog fails dataset inserts while failing is set.
type flakyCatalog struct {
	*catalog.Memory

	mu      sync.Mutex
	failing bool
}

var errStoreDown = errors.New("connection reset by peer")

func (c *flakyCatalog) setFailing(v bool) {
	c.mu.Lock()
	c.failing = v
	c.mu.Unlock()
}

func (c *flakyCatalog) InsertDataset(ctx context.Context, ds catalog.Dataset) (string, error) {
	c.mu.Lock()
	failing := c.failing
	c.mu.Unlock()
	if failing {
		return "", errStoreDown
	}
	return c.Memory.InsertDataset(ctx, ds)
}

// newTestSession returns a session of kind over c, already uploaded with f.
func newTestSession(t *testing.T, kind string, c catalog.Catalog, f tabular.RawFile) *Session {
	t.Helper()
	s := NewSession("test-session", mustKind(t, kind), c, nil, SessionOptions{})
	if err := s.Upload(context.Background(), f, tabular.DefaultOptions()); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	return s
}
