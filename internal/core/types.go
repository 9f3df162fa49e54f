package core

import (
	"time"

	"github.com/JonMunkholm/foodops/internal/catalog"
)

// Field is a canonical domain attribute an import kind can map a column to.
type Field string

const (
	FieldName        Field = "name"
	FieldCode        Field = "code"
	FieldDepartment  Field = "department"
	FieldUnit        Field = "unit"
	FieldPrice       Field = "price"
	FieldAmount      Field = "amount"
	FieldQuantity    Field = "quantity"
	FieldDate        Field = "date"
	FieldDescription Field = "description"
)

// AllFields is the closed set of canonical fields, in display order.
var AllFields = []Field{
	FieldName, FieldCode, FieldDepartment, FieldUnit,
	FieldPrice, FieldAmount, FieldQuantity, FieldDate, FieldDescription,
}

// ParseField resolves a field name.
func ParseField(s string) (Field, bool) {
	for _, f := range AllFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// FieldType is the value type of a canonical field.
type FieldType int

const (
	TypeText FieldType = iota
	TypeNumeric
	TypeDate
)

// Type returns the value type of f.
func (f Field) Type() FieldType {
	switch f {
	case FieldPrice, FieldAmount, FieldQuantity:
		return TypeNumeric
	case FieldDate:
		return TypeDate
	}
	return TypeText
}

// Bound restricts numeric fields.
type Bound int

const (
	BoundNone        Bound = iota
	BoundNonNegative       // >= 0
	BoundPositive          // > 0
)

// FieldSpec describes how an import kind uses one canonical field.
type FieldSpec struct {
	Field    Field
	Label    string // display name; defaults to the field name
	Required bool
	Bound    Bound
	Synonyms []string // header words matched by AutoMap, any script
}

// DisplayName returns Label, falling back to the field name.
func (s FieldSpec) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return string(s.Field)
}

// KindInfo contains display and catalog information about an import kind.
type KindInfo struct {
	Key   string // "product"
	Label string // "Products"
	// Entity is the catalog kind created for every committed row, empty when
	// rows only land in the dataset.
	Entity catalog.Kind
	// Reference is the catalog kind rows refer to by code, empty when the
	// kind has no references to reconcile.
	Reference catalog.Kind
}

// KindDefinition contains everything needed to import one kind of file.
type KindDefinition struct {
	Info   KindInfo
	Fields []FieldSpec
	// Finalize fills derived values after projection. Optional.
	Finalize func(*catalog.Record)
}

// Spec returns the definition's spec for f.
func (d KindDefinition) Spec(f Field) (FieldSpec, bool) {
	for _, s := range d.Fields {
		if s.Field == f {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the fields that must be mapped before preview.
func (d KindDefinition) RequiredFields() []Field {
	var out []Field
	for _, s := range d.Fields {
		if s.Required {
			out = append(out, s.Field)
		}
	}
	return out
}

// Headers returns the canonical column headers, used for exports that
// re-import through AutoMap.
func (d KindDefinition) Headers() []string {
	out := make([]string, len(d.Fields))
	for i, s := range d.Fields {
		out[i] = string(s.Field)
	}
	return out
}

// Stage is the position of a Session in its lifecycle.
type Stage string

const (
	StageUpload                Stage = "upload"
	StageMapping               Stage = "mapping"
	StagePreview               Stage = "preview"
	StageReconciliationPending Stage = "reconciliation_pending"
	StageCommitting            Stage = "committing"
	StageCommitted             Stage = "committed"
	StageFailed                Stage = "failed"
	StageCancelled             Stage = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageCommitted || s == StageCancelled
}

// PreviewStats summarizes a preview.
type PreviewStats struct {
	TotalRows       int `json:"totalRows"`
	EligibleRows    int `json:"eligibleRows"`
	SelectedRows    int `json:"selectedRows"`
	ErrorRows       int `json:"errorRows"`
	DuplicateRows   int `json:"duplicateRows"`
	DuplicateInFile int `json:"duplicateInFile"`
}

// UnmatchedEntity is a referenced code with no catalog match.
type UnmatchedEntity struct {
	ExternalCode    string           `json:"externalCode"`
	ExternalName    string           `json:"externalName,omitempty"`
	OccurrenceCount int              `json:"occurrenceCount"`
	Candidates      []catalog.Entity `json:"candidates,omitempty"`
}

// ResolutionAction is the operator's choice for an unmatched entity.
type ResolutionAction string

const (
	ResolveMapExisting ResolutionAction = "map_existing"
	ResolveCreateNew   ResolutionAction = "create_new"
)

// Resolution resolves one unmatched entity.
type Resolution struct {
	Action   ResolutionAction `json:"action"`
	EntityID string           `json:"entityId,omitempty"` // map_existing only
	Name     string           `json:"name,omitempty"`     // create_new; defaults to the external name
}

// CommitResult is the terminal outcome of a session.
type CommitResult struct {
	DatasetID   string               `json:"datasetId,omitempty"`
	DatasetName string               `json:"datasetName,omitempty"`
	ImportedAt  time.Time            `json:"importedAt,omitempty"`
	Committed   int                  `json:"committed"`
	Skipped     int                  `json:"skipped"`
	Created     map[catalog.Kind]int `json:"created,omitempty"`
	Cancelled   bool                 `json:"cancelled,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Duration    time.Duration        `json:"duration"`
}
