package core

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/foodops/internal/textnorm"
)

// Unset marks a field with no column.
const Unset = -1

// ColumnMapping maps every field of one import kind to a file column index
// or Unset. It is exhaustive: every field of the kind has an entry.
type ColumnMapping struct {
	Columns map[Field]int  `json:"columns"`
	Manual  map[Field]bool `json:"manual,omitempty"`
}

// NewMapping returns a mapping with every field of def unset.
func NewMapping(def KindDefinition) ColumnMapping {
	m := ColumnMapping{
		Columns: make(map[Field]int, len(def.Fields)),
		Manual:  make(map[Field]bool),
	}
	for _, s := range def.Fields {
		m.Columns[s.Field] = Unset
	}
	return m
}

// Index returns the column for f, or Unset.
func (m ColumnMapping) Index(f Field) int {
	idx, ok := m.Columns[f]
	if !ok {
		return Unset
	}
	return idx
}

// IsSet reports whether f has a column.
func (m ColumnMapping) IsSet(f Field) bool {
	return m.Index(f) != Unset
}

// Override records an operator choice for f. Overrides survive re-running
// AutoMap. idx may be Unset to explicitly leave a field unmapped.
func (m ColumnMapping) Override(f Field, idx int) error {
	if _, ok := m.Columns[f]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	if idx < Unset {
		return fmt.Errorf("%w: %d", ErrColumnOutOfRange, idx)
	}
	m.Columns[f] = idx
	m.Manual[f] = true
	return nil
}

// Clone returns an independent copy.
func (m ColumnMapping) Clone() ColumnMapping {
	c := ColumnMapping{
		Columns: make(map[Field]int, len(m.Columns)),
		Manual:  make(map[Field]bool, len(m.Manual)),
	}
	for f, i := range m.Columns {
		c.Columns[f] = i
	}
	for f, v := range m.Manual {
		c.Manual[f] = v
	}
	return c
}

// IsComplete reports whether every required field has a column. Optional
// fields do not matter.
func (m ColumnMapping) IsComplete(required []Field) bool {
	return len(m.Missing(required)) == 0
}

// Missing returns the required fields that are unset, in the given order.
func (m ColumnMapping) Missing(required []Field) []Field {
	var out []Field
	for _, f := range required {
		if !m.IsSet(f) {
			out = append(out, f)
		}
	}
	return out
}

// AutoMap suggests a column for each field of def in definition order. A
// header equal to a synonym wins over one that merely contains it; otherwise
// the first header containing a synonym is used. Matching is
// case-insensitive on normalized text. A column already taken by an
// earlier field is skipped.
func AutoMap(headers []string, def KindDefinition) ColumnMapping {
	m := NewMapping(def)
	autoFill(m, headers, def, make(map[int]bool))
	return m
}

// Remap keeps every manual override from prev and auto-maps the remaining
// fields. Columns chosen manually are claimed first, so no auto-mapped field
// lands on one.
func Remap(headers []string, def KindDefinition, prev ColumnMapping) ColumnMapping {
	m := NewMapping(def)
	claimed := make(map[int]bool)
	for f, manual := range prev.Manual {
		if !manual {
			continue
		}
		if _, ok := m.Columns[f]; !ok {
			continue
		}
		idx := prev.Index(f)
		m.Columns[f] = idx
		m.Manual[f] = true
		if idx != Unset {
			claimed[idx] = true
		}
	}
	autoFill(m, headers, def, claimed)
	return m
}

// autoFill maps every non-manual field of def to the best unclaimed header.
func autoFill(m ColumnMapping, headers []string, def KindDefinition, claimed map[int]bool) {
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = textnorm.Key(h)
	}
	for _, spec := range def.Fields {
		if m.Manual[spec.Field] {
			continue
		}
		if idx := matchHeader(keys, spec.Synonyms, claimed); idx != Unset {
			m.Columns[spec.Field] = idx
			claimed[idx] = true
		}
	}
}

func matchHeader(keys, synonyms []string, claimed map[int]bool) int {
	syn := make([]string, 0, len(synonyms))
	for _, s := range synonyms {
		if k := textnorm.Key(s); k != "" {
			syn = append(syn, k)
		}
	}

	for i, k := range keys {
		if claimed[i] || k == "" {
			continue
		}
		for _, s := range syn {
			if k == s {
				return i
			}
		}
	}
	for i, k := range keys {
		if claimed[i] || k == "" {
			continue
		}
		for _, s := range syn {
			if strings.Contains(k, s) {
				return i
			}
		}
	}
	return Unset
}
