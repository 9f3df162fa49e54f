package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/metrics"
	"github.com/JonMunkholm/foodops/internal/textnorm"
)

// CommitRequest is the input of CommitExecutor.Commit.
type CommitRequest struct {
	Kind        KindDefinition
	Records     []CandidateRecord
	Unmatched   []UnmatchedEntity
	Resolutions map[string]Resolution // keyed by normalized code
	Name        string                // dataset name; generated when empty

	// Snapshot is the catalog view the preview matched against. Codes are
	// looked up there first so commit matches exactly what the preview did.
	Snapshot *Snapshot
}

// CommitExecutor writes approved records to the catalog.
type CommitExecutor struct {
	catalog catalog.Catalog
	now     func() time.Time
}

// NewCommitExecutor returns an executor writing to c.
func NewCommitExecutor(c catalog.Catalog) *CommitExecutor {
	return &CommitExecutor{catalog: c, now: time.Now}
}

// Commit applies create-new resolutions, creates the catalog entities the
// rows need and inserts one Dataset holding every eligible record. Only
// records that are selected and error-free are written. Entities created by
// an earlier failed attempt are found by code and reused, so a retry does
// not create them twice.
func (e *CommitExecutor) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	start := time.Now()
	def := req.Kind

	var rows []catalog.Record
	for i := range req.Records {
		if req.Records[i].Eligible() {
			rows = append(rows, req.Records[i].Record)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNothingToCommit
	}

	cache := newEntityCache(e.catalog, req.Snapshot)
	result := &CommitResult{
		Committed: len(rows),
		Skipped:   len(req.Records) - len(rows),
		Created:   make(map[catalog.Kind]int),
	}

	if ref := def.Info.Reference; ref != "" {
		if err := e.applyResolutions(ctx, cache, ref, req); err != nil {
			return nil, err
		}
		for i := range rows {
			id, err := cache.lookup(ctx, ref, rows[i].Code)
			if err != nil {
				return nil, &CommitError{Op: "resolve reference", Err: err}
			}
			if id == "" {
				return nil, &UnresolvedError{Codes: []string{rows[i].Code}}
			}
			rows[i].ProductID = id
		}
	}

	if kind := def.Info.Entity; kind != "" {
		for i := range rows {
			if err := e.createEntity(ctx, cache, kind, &rows[i]); err != nil {
				return nil, err
			}
		}
	}

	for k, n := range cache.created {
		result.Created[k] = n
		metrics.EntitiesCreated.WithLabelValues(string(k)).Add(float64(n))
	}

	now := e.now()
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("%s %s", def.Info.Label, now.Format("2006-01-02 15:04"))
	}
	ds := catalog.Dataset{
		ID:         uuid.NewString(),
		Name:       name,
		Kind:       def.Info.Key,
		ImportedAt: now,
		Rows:       rows,
	}
	id, err := e.catalog.InsertDataset(ctx, ds)
	if err != nil {
		return nil, &CommitError{Op: "insert dataset", Err: err}
	}

	result.DatasetID = id
	result.DatasetName = name
	result.ImportedAt = now
	result.Duration = time.Since(start)

	slog.Info("import committed",
		"kind", def.Info.Key,
		"dataset_id", id,
		"rows", result.Committed,
		"skipped", result.Skipped,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// applyResolutions creates entities marked create_new and records every
// resolution in the cache, so rows referencing those codes resolve.
func (e *CommitExecutor) applyResolutions(ctx context.Context, cache *entityCache, kind catalog.Kind, req CommitRequest) error {
	var unresolved []string
	for _, u := range req.Unmatched {
		res, ok := req.Resolutions[resolutionKey(u.ExternalCode)]
		if !ok {
			unresolved = append(unresolved, u.ExternalCode)
			continue
		}

		switch res.Action {
		case ResolveMapExisting:
			cache.put(kind, u.ExternalCode, res.EntityID)
		case ResolveCreateNew:
			name := res.Name
			if name == "" {
				name = u.ExternalName
			}
			if name == "" {
				name = u.ExternalCode
			}
			if _, err := cache.ensure(ctx, catalog.Entity{Kind: kind, Name: name, Code: u.ExternalCode}); err != nil {
				return &CommitError{Op: "create " + string(kind), Err: err}
			}
		default:
			unresolved = append(unresolved, u.ExternalCode)
		}
	}
	if len(unresolved) > 0 {
		return &UnresolvedError{Codes: unresolved}
	}
	return nil
}

// createEntity creates the department and unit rec names when missing,
// then the entity itself.
func (e *CommitExecutor) createEntity(ctx context.Context, cache *entityCache, kind catalog.Kind, rec *catalog.Record) error {
	if rec.Department != "" {
		id, err := cache.ensureNamed(ctx, catalog.KindDepartment, rec.Department)
		if err != nil {
			return &CommitError{Op: "create department", Err: err}
		}
		rec.DepartmentID = id
	}
	if rec.Unit != "" {
		id, err := cache.ensureNamed(ctx, catalog.KindUnit, rec.Unit)
		if err != nil {
			return &CommitError{Op: "create unit", Err: err}
		}
		rec.UnitID = id
	}

	id, err := cache.ensure(ctx, catalog.Entity{
		Kind:         kind,
		Name:         rec.Name,
		Code:         rec.Code,
		DepartmentID: rec.DepartmentID,
		UnitID:       rec.UnitID,
		Price:        rec.Price,
	})
	if err != nil {
		return &CommitError{Op: "create " + string(kind), Err: err}
	}
	rec.ID = id
	return nil
}

// entityCache resolves entities by code or name once per commit and counts
// what it had to create.
type entityCache struct {
	catalog catalog.Catalog
	snap    *Snapshot
	ids     map[catalog.Kind]map[string]string
	created map[catalog.Kind]int
}

func newEntityCache(c catalog.Catalog, snap *Snapshot) *entityCache {
	return &entityCache{
		catalog: c,
		snap:    snap,
		ids:     make(map[catalog.Kind]map[string]string),
		created: make(map[catalog.Kind]int),
	}
}

func (c *entityCache) put(kind catalog.Kind, key, id string) {
	if c.ids[kind] == nil {
		c.ids[kind] = make(map[string]string)
	}
	c.ids[kind][textnorm.Key(key)] = id
}

func (c *entityCache) get(kind catalog.Kind, key string) (string, bool) {
	id, ok := c.ids[kind][textnorm.Key(key)]
	return id, ok
}

// lookup returns the id of the entity of kind with code, or "". The
// snapshot is consulted before the catalog since stores may compare codes
// less loosely than textnorm.Key.
func (c *entityCache) lookup(ctx context.Context, kind catalog.Kind, code string) (string, error) {
	if id, ok := c.get(kind, code); ok {
		return id, nil
	}
	if e := c.snap.ByCode(kind, code); e != nil {
		c.put(kind, code, e.ID)
		return e.ID, nil
	}
	found, err := c.catalog.FindByCode(ctx, kind, code)
	if err != nil || found == nil {
		return "", err
	}
	c.put(kind, code, found.ID)
	return found.ID, nil
}

// ensure returns the id of the entity with e's code, creating it if needed.
func (c *entityCache) ensure(ctx context.Context, e catalog.Entity) (string, error) {
	if e.Code != "" {
		id, err := c.lookup(ctx, e.Kind, e.Code)
		if err != nil || id != "" {
			return id, err
		}
	}

	created, err := c.catalog.Create(ctx, e)
	if err != nil {
		return "", err
	}
	c.created[e.Kind]++
	if e.Code != "" {
		c.put(e.Kind, e.Code, created.ID)
	}
	return created.ID, nil
}

// ensureNamed is ensure for kinds identified by name (units, departments).
func (c *entityCache) ensureNamed(ctx context.Context, kind catalog.Kind, name string) (string, error) {
	if id, ok := c.get(kind, name); ok {
		return id, nil
	}
	found, err := c.catalog.FindByName(ctx, kind, name)
	if err != nil {
		return "", err
	}
	if found != nil {
		c.put(kind, name, found.ID)
		return found.ID, nil
	}

	created, err := c.catalog.Create(ctx, catalog.Entity{Kind: kind, Name: name})
	if err != nil {
		return "", err
	}
	c.created[kind]++
	c.put(kind, name, created.ID)
	return created.ID, nil
}
