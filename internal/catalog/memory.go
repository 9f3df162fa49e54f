package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/foodops/internal/textnorm"
)

// Memory is an in-process Catalog. It backs tests, dry runs and the
// "memory" catalog backend.
type Memory struct {
	mu        sync.RWMutex
	entities  map[Kind][]Entity
	datasets  []Dataset
	reference string
	now       func() time.Time
}

// NewMemory returns an empty catalog, optionally seeded with entities.
func NewMemory(seed ...Entity) *Memory {
	m := &Memory{
		entities: make(map[Kind][]Entity),
		now:      time.Now,
	}
	for _, e := range seed {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		m.entities[e.Kind] = append(m.entities[e.Kind], e)
	}
	return m
}

func (m *Memory) List(_ context.Context, kind Kind) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entities[kind]), nil
}

func (m *Memory) Get(_ context.Context, kind Kind, id string) (*Entity, error) {
	return m.find(kind, func(e Entity) bool { return e.ID == id }), nil
}

func (m *Memory) FindByCode(_ context.Context, kind Kind, code string) (*Entity, error) {
	key := textnorm.Key(code)
	if key == "" {
		return nil, nil
	}
	return m.find(kind, func(e Entity) bool { return textnorm.Key(e.Code) == key }), nil
}

func (m *Memory) FindByName(_ context.Context, kind Kind, name string) (*Entity, error) {
	key := textnorm.Key(name)
	if key == "" {
		return nil, nil
	}
	return m.find(kind, func(e Entity) bool { return textnorm.Key(e.Name) == key }), nil
}

func (m *Memory) find(kind Kind, match func(Entity) bool) *Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entities[kind] {
		if match(e) {
			return &e
		}
	}
	return nil
}

func (m *Memory) Create(_ context.Context, e Entity) (Entity, error) {
	if e.Kind == "" {
		return Entity{}, fmt.Errorf("create entity: kind is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.Kind] = append(m.entities[e.Kind], e)
	return e, nil
}

func (m *Memory) InsertDataset(_ context.Context, ds Dataset) (string, error) {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	ds.Reference = false
	ds.Rows = slices.Clone(ds.Rows)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets = append(m.datasets, ds)
	return ds.ID, nil
}

func (m *Memory) SetReferenceDataset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" && m.datasetIndex(id) < 0 {
		return fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	m.reference = id
	return nil
}

func (m *Memory) ReferenceDataset(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reference, nil
}

func (m *Memory) ListDatasets(_ context.Context) ([]DatasetInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]DatasetInfo, len(m.datasets))
	for i, ds := range m.datasets {
		infos[i] = DatasetInfo{
			ID:         ds.ID,
			Name:       ds.Name,
			Kind:       ds.Kind,
			ImportedAt: ds.ImportedAt,
			RowCount:   len(ds.Rows),
			Reference:  ds.ID == m.reference,
		}
	}
	return infos, nil
}

func (m *Memory) GetDataset(_ context.Context, id string) (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.datasetIndex(id)
	if i < 0 {
		return nil, nil
	}
	ds := m.datasets[i]
	ds.Rows = slices.Clone(ds.Rows)
	ds.Reference = ds.ID == m.reference
	return &ds, nil
}

func (m *Memory) datasetIndex(id string) int {
	return slices.IndexFunc(m.datasets, func(ds Dataset) bool { return ds.ID == id })
}
