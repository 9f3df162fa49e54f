// Package catalog defines the persisted catalog the importer reads from and
// writes to: products, materials, units, departments and imported datasets.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the type of a catalog entity.
type Kind string

const (
	KindProduct    Kind = "product"
	KindMaterial   Kind = "material"
	KindUnit       Kind = "unit"
	KindDepartment Kind = "department"
)

// Kinds lists every entity kind.
var Kinds = []Kind{KindProduct, KindMaterial, KindUnit, KindDepartment}

// ErrNotFound is returned by operations that require an existing row.
var ErrNotFound = errors.New("not found")

// Entity is one catalog row. Units and departments only use Name.
type Entity struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Name         string          `json:"name"`
	Code         string          `json:"code,omitempty"`
	DepartmentID string          `json:"departmentId,omitempty"`
	UnitID       string          `json:"unitId,omitempty"`
	Price        decimal.Decimal `json:"price"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Record is one canonical imported row as stored inside a Dataset.
type Record struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Code         string          `json:"code,omitempty"`
	Department   string          `json:"department,omitempty"`
	DepartmentID string          `json:"departmentId,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	UnitID       string          `json:"unitId,omitempty"`
	ProductID    string          `json:"productId,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Quantity     decimal.Decimal `json:"quantity"`
	Date         *time.Time      `json:"date,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// Dataset is the persisted output of one committed import. Append-only.
type Dataset struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	ImportedAt time.Time `json:"importedAt"`
	Rows       []Record  `json:"rows"`
	Reference  bool      `json:"reference"`
}

// DatasetInfo is the list view of a Dataset.
type DatasetInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	ImportedAt time.Time `json:"importedAt"`
	RowCount   int       `json:"rowCount"`
	Reference  bool      `json:"reference"`
}

// Catalog is the store consumed by the import pipeline. Lookups by code and
// name are case-insensitive and return (nil, nil) when nothing matches.
type Catalog interface {
	List(ctx context.Context, kind Kind) ([]Entity, error)
	Get(ctx context.Context, kind Kind, id string) (*Entity, error)
	FindByCode(ctx context.Context, kind Kind, code string) (*Entity, error)
	FindByName(ctx context.Context, kind Kind, name string) (*Entity, error)
	// Create assigns an id when e.ID is empty and returns the stored entity.
	Create(ctx context.Context, e Entity) (Entity, error)

	InsertDataset(ctx context.Context, ds Dataset) (string, error)
	// SetReferenceDataset marks id as the single reference dataset; "" clears it.
	SetReferenceDataset(ctx context.Context, id string) error
	ReferenceDataset(ctx context.Context) (string, error)
	ListDatasets(ctx context.Context) ([]DatasetInfo, error)
	GetDataset(ctx context.Context, id string) (*Dataset, error)
}
