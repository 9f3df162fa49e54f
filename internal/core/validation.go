package core

// validation.go checks projected records before they can be committed.
//
// Validation happens at two levels:
//  1. Field checks: required fields, number and date formats, numeric bounds
//  2. Duplicate checks: against the catalog snapshot and within the file
//
// A record with any error stays in the preview with HasError set and is
// never eligible for commit.

import (
	"context"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/textnorm"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   Field  // Canonical field, empty for row-level errors
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// DuplicateMode selects how names are compared against the catalog. Codes
// always use exact case-insensitive comparison.
type DuplicateMode string

const (
	// DuplicateExact flags equal names after normalization and case folding.
	DuplicateExact DuplicateMode = "exact"
	// DuplicateContains also flags names containing, or contained in, an existing name.
	DuplicateContains DuplicateMode = "contains"
	// DuplicateFuzzy also flags names within a Levenshtein distance.
	DuplicateFuzzy DuplicateMode = "fuzzy"
)

// ParseDuplicateMode resolves a configured mode name.
func ParseDuplicateMode(s string) (DuplicateMode, error) {
	switch m := DuplicateMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", DuplicateExact:
		return DuplicateExact, nil
	case DuplicateContains, DuplicateFuzzy:
		return m, nil
	}
	return "", fmt.Errorf("unknown duplicate mode %q (use exact, contains or fuzzy)", s)
}

// Snapshot is a read-only copy of catalog entities taken when a preview is
// generated. Concurrent commits from other sessions are not reflected.
type Snapshot struct {
	entities map[catalog.Kind][]catalog.Entity
}

// LoadSnapshot lists the given kinds from c.
func LoadSnapshot(ctx context.Context, c catalog.Catalog, kinds ...catalog.Kind) (*Snapshot, error) {
	s := &Snapshot{entities: make(map[catalog.Kind][]catalog.Entity)}
	for _, k := range kinds {
		if k == "" {
			continue
		}
		list, err := c.List(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("load %s catalog: %w", k, err)
		}
		s.entities[k] = list
	}
	return s, nil
}

// Entities returns the entities of kind.
func (s *Snapshot) Entities(kind catalog.Kind) []catalog.Entity {
	if s == nil {
		return nil
	}
	return s.entities[kind]
}

// ByCode returns the entity of kind with code, or nil.
func (s *Snapshot) ByCode(kind catalog.Kind, code string) *catalog.Entity {
	key := textnorm.Key(code)
	if key == "" {
		return nil
	}
	for i, e := range s.Entities(kind) {
		if textnorm.Key(e.Code) == key {
			return &s.entities[kind][i]
		}
	}
	return nil
}

// ByID returns the entity of kind with id, or nil.
func (s *Snapshot) ByID(kind catalog.Kind, id string) *catalog.Entity {
	for i, e := range s.Entities(kind) {
		if e.ID == id {
			return &s.entities[kind][i]
		}
	}
	return nil
}

// ValidatorOptions configures duplicate detection.
type ValidatorOptions struct {
	Mode DuplicateMode
	// MaxDistance is the Levenshtein threshold for DuplicateFuzzy.
	MaxDistance int
}

// Validator validates records of one import kind against a catalog snapshot.
type Validator struct {
	def      KindDefinition
	snapshot *Snapshot
	opts     ValidatorOptions
}

// NewValidator creates a validator. A nil snapshot disables catalog checks.
func NewValidator(def KindDefinition, snapshot *Snapshot, opts ValidatorOptions) *Validator {
	if opts.Mode == "" {
		opts.Mode = DuplicateExact
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = 2
	}
	return &Validator{def: def, snapshot: snapshot, opts: opts}
}

// Validate returns every problem with rec. Duplicates exclude the entity
// with rec.Record.ID so an edited entity does not collide with itself.
func (v *Validator) Validate(rec *CandidateRecord) []ValidationError {
	var errs []ValidationError

	for _, spec := range v.def.Fields {
		raw := rec.Raw[spec.Field]
		if raw == "" {
			if spec.Required {
				errs = append(errs, ValidationError{Field: spec.Field, Message: "required field is empty"})
			}
			continue
		}
		if err := validateValue(spec, raw); err != nil {
			errs = append(errs, *err)
		}
	}

	if dup := v.duplicateOf(rec.Record); dup != nil {
		errs = append(errs, *dup)
	}
	return errs
}

// validateValue checks the format and bounds of a non-empty cell.
func validateValue(spec FieldSpec, raw string) *ValidationError {
	switch spec.Field.Type() {
	case TypeNumeric:
		d, ok := ParseDecimal(raw)
		if !ok {
			return &ValidationError{Field: spec.Field, Value: raw, Message: "invalid number format"}
		}
		switch spec.Bound {
		case BoundNonNegative:
			if d.IsNegative() {
				return &ValidationError{Field: spec.Field, Value: raw, Message: "must be zero or greater"}
			}
		case BoundPositive:
			if !d.IsPositive() {
				return &ValidationError{Field: spec.Field, Value: raw, Message: "must be greater than zero"}
			}
		}
	case TypeDate:
		if _, ok := ParseDate(raw); !ok {
			return &ValidationError{Field: spec.Field, Value: raw, Message: "invalid date format (use YYYY-MM-DD or similar)"}
		}
	}
	return nil
}

// duplicateOf reports a catalog entity that rec collides with by code or name.
func (v *Validator) duplicateOf(rec catalog.Record) *ValidationError {
	kind := v.def.Info.Entity
	if kind == "" || v.snapshot == nil {
		return nil
	}

	code := textnorm.Key(rec.Code)
	name := textnorm.Key(rec.Name)
	for _, e := range v.snapshot.Entities(kind) {
		if rec.ID != "" && e.ID == rec.ID {
			continue
		}
		if code != "" && textnorm.Key(e.Code) == code {
			return &ValidationError{
				Field:   FieldCode,
				Value:   rec.Code,
				Message: fmt.Sprintf("duplicate: %s with code %q already exists (%s)", kind, e.Code, e.Name),
			}
		}
		if name != "" && v.namesCollide(name, textnorm.Key(e.Name)) {
			return &ValidationError{
				Field:   FieldName,
				Value:   rec.Name,
				Message: fmt.Sprintf("duplicate: %s named %q already exists", kind, e.Name),
			}
		}
	}
	return nil
}

func (v *Validator) namesCollide(a, b string) bool {
	if b == "" {
		return false
	}
	if a == b {
		return true
	}
	switch v.opts.Mode {
	case DuplicateContains:
		return strings.Contains(a, b) || strings.Contains(b, a)
	case DuplicateFuzzy:
		return fuzzy.LevenshteinDistance(a, b) <= v.opts.MaxDistance
	}
	return false
}

// ValidateAll validates every record, flags repeated codes within the file
// and updates selection: rows with errors are deselected, rows whose errors
// were fixed are selected again, other rows keep the operator's choice.
func (v *Validator) ValidateAll(records []CandidateRecord) {
	seen := make(map[string]int)
	for i := range records {
		rec := &records[i]
		hadError := rec.HasError

		errs := v.Validate(rec)
		rec.Duplicate = false
		for _, e := range errs {
			if strings.HasPrefix(e.Message, "duplicate:") {
				rec.Duplicate = true
			}
		}

		if v.def.Info.Entity != "" {
			if code := textnorm.Key(rec.Record.Code); code != "" {
				if first, ok := seen[code]; ok {
					errs = append(errs, ValidationError{
						Field:   FieldCode,
						Value:   rec.Record.Code,
						Message: fmt.Sprintf("duplicate: code repeated in file (first seen on row %d)", first),
					})
					rec.Duplicate = true
				} else {
					seen[code] = rec.Row
				}
			}
		}

		rec.Errors = nil
		for _, e := range errs {
			rec.Errors = append(rec.Errors, e.Error())
		}
		rec.HasError = len(errs) > 0

		switch {
		case rec.HasError:
			rec.Selected = false
		case hadError:
			rec.Selected = true
		}
	}
}

// Stats counts records by status.
func Stats(records []CandidateRecord) PreviewStats {
	st := PreviewStats{TotalRows: len(records)}
	for i := range records {
		r := &records[i]
		if r.HasError {
			st.ErrorRows++
		} else {
			st.EligibleRows++
		}
		if r.Eligible() {
			st.SelectedRows++
		}
		if r.Duplicate {
			st.DuplicateRows++
			for _, e := range r.Errors {
				if strings.Contains(e, "repeated in file") {
					st.DuplicateInFile++
					break
				}
			}
		}
	}
	return st
}
