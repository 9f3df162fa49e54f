package core

import (
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

// CandidateRecord is one projected row awaiting approval.
type CandidateRecord struct {
	Row       int              `json:"row"` // 1-based data row number
	Raw       map[Field]string `json:"raw"`
	Record    catalog.Record   `json:"record"`
	Selected  bool             `json:"selected"`
	HasError  bool             `json:"hasError"`
	Errors    []string         `json:"errors,omitempty"`
	Duplicate bool             `json:"duplicate,omitempty"`
}

// Eligible reports whether the record will be committed.
func (r *CandidateRecord) Eligible() bool {
	return r.Selected && !r.HasError
}

// SetSelected changes selection. It is a no-op on records with errors.
func (r *CandidateRecord) SetSelected(v bool) {
	if r.HasError {
		return
	}
	r.Selected = v
}

// Project applies mapping to every data row. It never fails: numeric and
// date cells that do not parse become zero values and are reported later
// by the validator, which re-reads Raw.
func Project(data tabular.Data, mapping ColumnMapping, def KindDefinition) []CandidateRecord {
	records := make([]CandidateRecord, len(data.Rows))
	for i, row := range data.Rows {
		raw := make(map[Field]string, len(def.Fields))
		for _, spec := range def.Fields {
			idx := mapping.Index(spec.Field)
			if idx == Unset || idx >= len(row) {
				continue
			}
			raw[spec.Field] = CleanCell(row[idx])
		}
		records[i] = CandidateRecord{
			Row:      i + 1,
			Raw:      raw,
			Record:   projectRaw(raw, def),
			Selected: true,
		}
	}
	return records
}

// projectRaw builds the canonical record from mapped cell text.
func projectRaw(raw map[Field]string, def KindDefinition) catalog.Record {
	var rec catalog.Record
	for f, v := range raw {
		switch f {
		case FieldName:
			rec.Name = v
		case FieldCode:
			rec.Code = v
		case FieldDepartment:
			rec.Department = v
		case FieldUnit:
			rec.Unit = v
		case FieldDescription:
			rec.Description = v
		case FieldPrice:
			rec.Price, _ = ParseDecimal(v)
		case FieldAmount:
			rec.Amount, _ = ParseDecimal(v)
		case FieldQuantity:
			rec.Quantity, _ = ParseDecimal(v)
		case FieldDate:
			if t, ok := ParseDate(v); ok {
				rec.Date = &t
			}
		}
	}
	if def.Finalize != nil {
		def.Finalize(&rec)
	}
	return rec
}

// RecordCells renders rec as one export row in def's header order.
func RecordCells(def KindDefinition, rec catalog.Record) []string {
	cells := make([]string, len(def.Fields))
	for i, spec := range def.Fields {
		switch spec.Field {
		case FieldName:
			cells[i] = rec.Name
		case FieldCode:
			cells[i] = rec.Code
		case FieldDepartment:
			cells[i] = rec.Department
		case FieldUnit:
			cells[i] = rec.Unit
		case FieldDescription:
			cells[i] = rec.Description
		case FieldPrice:
			cells[i] = exportDecimal(spec, rec.Price)
		case FieldAmount:
			cells[i] = exportDecimal(spec, rec.Amount)
		case FieldQuantity:
			cells[i] = exportDecimal(spec, rec.Quantity)
		case FieldDate:
			cells[i] = FormatDate(rec.Date)
		}
	}
	return cells
}

// exportDecimal leaves optional zero values blank so they re-import as unset.
func exportDecimal(spec FieldSpec, d decimal.Decimal) string {
	if !spec.Required && d.IsZero() {
		return ""
	}
	return FormatDecimal(d)
}
