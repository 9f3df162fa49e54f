// Package pgstore implements catalog.Catalog on PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/foodops/internal/catalog"
)

//go:embed schema.sql
var schemaSQL string

// Store is a catalog.Catalog backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ catalog.Catalog = (*Store)(nil)

// New returns a Store using pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the catalog tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate catalog schema: %w", err)
	}
	return nil
}

const entityColumns = `id::text, kind, name, code, coalesce(department_id::text, ''), coalesce(unit_id::text, ''), price::text, created_at`

func scanEntity(row pgx.CollectableRow) (catalog.Entity, error) {
	var (
		e     catalog.Entity
		kind  string
		price string
	)
	if err := row.Scan(&e.ID, &kind, &e.Name, &e.Code, &e.DepartmentID, &e.UnitID, &price, &e.CreatedAt); err != nil {
		return e, err
	}
	e.Kind = catalog.Kind(kind)
	p, err := decimal.NewFromString(price)
	if err != nil {
		return e, fmt.Errorf("entity %s price %q: %w", e.ID, price, err)
	}
	e.Price = p
	return e, nil
}

func (s *Store) List(ctx context.Context, kind catalog.Kind) ([]catalog.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM catalog_entities WHERE kind = $1 ORDER BY created_at, name`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	entities, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return entities, nil
}

func (s *Store) findOne(ctx context.Context, kind catalog.Kind, where string, arg any) (*catalog.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM catalog_entities WHERE kind = $1 AND `+where+` ORDER BY created_at LIMIT 1`,
		string(kind), arg)
	if err != nil {
		return nil, err
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Get(ctx context.Context, kind catalog.Kind, id string) (*catalog.Entity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	e, err := s.findOne(ctx, kind, `id = $2`, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return e, nil
}

func (s *Store) FindByCode(ctx context.Context, kind catalog.Kind, code string) (*catalog.Entity, error) {
	if code == "" {
		return nil, nil
	}
	e, err := s.findOne(ctx, kind, `lower(code) = lower($2)`, code)
	if err != nil {
		return nil, fmt.Errorf("find %s by code: %w", kind, err)
	}
	return e, nil
}

func (s *Store) FindByName(ctx context.Context, kind catalog.Kind, name string) (*catalog.Entity, error) {
	if name == "" {
		return nil, nil
	}
	e, err := s.findOne(ctx, kind, `lower(name) = lower($2)`, name)
	if err != nil {
		return nil, fmt.Errorf("find %s by name: %w", kind, err)
	}
	return e, nil
}

func nullableUUID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) Create(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	if e.Kind == "" {
		return e, fmt.Errorf("create entity: kind is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO catalog_entities (id, kind, name, code, department_id, unit_id, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)`,
		e.ID, string(e.Kind), e.Name, e.Code,
		nullableUUID(e.DepartmentID), nullableUUID(e.UnitID),
		e.Price.String(), e.CreatedAt)
	if err != nil {
		return e, fmt.Errorf("create %s %q: %w", e.Kind, e.Name, err)
	}
	return e, nil
}

func (s *Store) InsertDataset(ctx context.Context, ds catalog.Dataset) (string, error) {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	rows := ds.Rows
	if rows == nil {
		rows = []catalog.Record{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (id, name, kind, imported_at, row_count, rows)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ds.ID, ds.Name, ds.Kind, ds.ImportedAt, len(rows), rows)
	if err != nil {
		return "", fmt.Errorf("insert dataset %q: %w", ds.Name, err)
	}
	return ds.ID, nil
}

func (s *Store) SetReferenceDataset(ctx context.Context, id string) error {
	if id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("dataset %s: %w", id, catalog.ErrNotFound)
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE datasets SET is_reference = false WHERE is_reference`); err != nil {
			return fmt.Errorf("clear reference dataset: %w", err)
		}
		if id == "" {
			return nil
		}
		tag, err := tx.Exec(ctx, `UPDATE datasets SET is_reference = true WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("set reference dataset: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("dataset %s: %w", id, catalog.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ReferenceDataset(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id::text FROM datasets WHERE is_reference`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reference dataset: %w", err)
	}
	return id, nil
}

func (s *Store) ListDatasets(ctx context.Context) ([]catalog.DatasetInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, name, kind, imported_at, row_count, is_reference FROM datasets ORDER BY imported_at`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.DatasetInfo, error) {
		var d catalog.DatasetInfo
		err := row.Scan(&d.ID, &d.Name, &d.Kind, &d.ImportedAt, &d.RowCount, &d.Reference)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return infos, nil
}

func (s *Store) GetDataset(ctx context.Context, id string) (*catalog.Dataset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var ds catalog.Dataset
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, kind, imported_at, rows, is_reference FROM datasets WHERE id = $1`, id,
	).Scan(&ds.ID, &ds.Name, &ds.Kind, &ds.ImportedAt, &ds.Rows, &ds.Reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return &ds, nil
}
