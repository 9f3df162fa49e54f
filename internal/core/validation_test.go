package core

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

func projectRows(t *testing.T, def KindDefinition, headers []string, rows ...[]string) []CandidateRecord {
	t.Helper()
	m := AutoMap(headers, def)
	return Project(tabular.Data{Headers: headers, Rows: rows}, m, def)
}

func loadSnapshot(t *testing.T, c catalog.Catalog, kinds ...catalog.Kind) *Snapshot {
	t.Helper()
	snap, err := LoadSnapshot(context.Background(), c, kinds...)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	return snap
}

func hasErrorContaining(rec CandidateRecord, substr string) bool {
	for _, e := range rec.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidator_FieldRules(t *testing.T) {
	def := mustKind(t, "product")
	headers := []string{"name", "code", "department", "price"}

	tests := []struct {
		name    string
		row     []string
		wantErr string // empty means valid
	}{
		{"valid", []string{"Tea", "T1", "Drinks", "12.50"}, ""},
		{"persian price", []string{"چای", "T2", "نوشیدنی", "۱۲٬۵۰۰"}, ""},
		{"zero price allowed", []string{"Water", "W1", "Drinks", "0"}, ""},
		{"missing name", []string{"", "T3", "Drinks", "1"}, "name: required field is empty"},
		{"missing department", []string{"Tea", "T4", "", "1"}, "department: required field is empty"},
		{"bad price", []string{"Tea", "T5", "Drinks", "abc"}, "price: invalid number format"},
		{"negative price", []string{"Tea", "T6", "Drinks", "-1"}, "price: must be zero or greater"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := projectRows(t, def, headers, tt.row)
			NewValidator(def, nil, ValidatorOptions{}).ValidateAll(records)
			rec := records[0]

			if tt.wantErr == "" {
				if rec.HasError {
					t.Fatalf("unexpected errors: %v", rec.Errors)
				}
				if !rec.Selected {
					t.Error("valid record should stay selected")
				}
				return
			}
			if !rec.HasError || !hasErrorContaining(rec, tt.wantErr) {
				t.Errorf("Errors = %v, want %q", rec.Errors, tt.wantErr)
			}
			if rec.Selected || rec.Eligible() {
				t.Error("record with errors must not be selected")
			}
		})
	}
}

func TestValidator_QuantityMustBePositive(t *testing.T) {
	def := mustKind(t, "sale")
	records := projectRows(t, def, []string{"code", "quantity", "date"},
		[]string{"P1", "0", ""},
		[]string{"P1", "2", "2024-13-40"},
		[]string{"P1", "3", "2024-01-05"},
	)
	NewValidator(def, nil, ValidatorOptions{}).ValidateAll(records)

	if !hasErrorContaining(records[0], "must be greater than zero") {
		t.Errorf("row 1 errors = %v", records[0].Errors)
	}
	if !hasErrorContaining(records[1], "invalid date") {
		t.Errorf("row 2 errors = %v", records[1].Errors)
	}
	if records[2].HasError {
		t.Errorf("row 3 errors = %v", records[2].Errors)
	}
}

func TestValidator_DuplicateCodeAgainstCatalog(t *testing.T) {
	def := mustKind(t, "product")
	snap := loadSnapshot(t, seededCatalog(), catalog.KindProduct)

	records := projectRows(t, def, []string{"name", "code", "department", "price"},
		[]string{"Americano", "p1", "Coffee", "3"},
		[]string{"Mocha", "P9", "Coffee", "4"},
	)
	NewValidator(def, snap, ValidatorOptions{}).ValidateAll(records)

	if !records[0].Duplicate || !hasErrorContaining(records[0], `duplicate: product with code "P1"`) {
		t.Errorf("row 1 = %+v, want duplicate of P1", records[0])
	}
	if records[1].HasError {
		t.Errorf("row 2 errors = %v", records[1].Errors)
	}
}

func TestValidator_DuplicateModes(t *testing.T) {
	def := mustKind(t, "product")
	snap := loadSnapshot(t, seededCatalog(), catalog.KindProduct)
	headers := []string{"name", "code", "department", "price"}

	tests := []struct {
		mode DuplicateMode
		name string
		want bool
	}{
		{DuplicateExact, "ESPRESSO", true},
		{DuplicateExact, "Espresso Double", false},
		{DuplicateContains, "Espresso Double", true},
		{DuplicateContains, "Mocha", false},
		{DuplicateFuzzy, "Expresso", true},
		{DuplicateFuzzy, "Cappuccino", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.name, func(t *testing.T) {
			records := projectRows(t, def, headers, []string{tt.name, "NEW", "Coffee", "1"})
			NewValidator(def, snap, ValidatorOptions{Mode: tt.mode}).ValidateAll(records)
			if records[0].Duplicate != tt.want {
				t.Errorf("Duplicate = %v, want %v (errors %v)", records[0].Duplicate, tt.want, records[0].Errors)
			}
		})
	}
}

func TestValidator_RepeatedCodeInFile(t *testing.T) {
	def := mustKind(t, "product")
	records := projectRows(t, def, []string{"name", "code", "department", "price"},
		[]string{"Tea", "T1", "Drinks", "1"},
		[]string{"Green Tea", "t1", "Drinks", "2"},
	)
	v := NewValidator(def, nil, ValidatorOptions{})
	v.ValidateAll(records)

	if records[0].HasError {
		t.Errorf("first occurrence should be valid: %v", records[0].Errors)
	}
	if !hasErrorContaining(records[1], "repeated in file (first seen on row 1)") {
		t.Errorf("second occurrence errors = %v", records[1].Errors)
	}

	st := Stats(records)
	if st.DuplicateInFile != 1 || st.ErrorRows != 1 || st.EligibleRows != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestValidator_SalesAllowRepeatedCodes(t *testing.T) {
	def := mustKind(t, "sale")
	records := projectRows(t, def, []string{"code", "quantity"},
		[]string{"P1", "1"},
		[]string{"P1", "2"},
	)
	NewValidator(def, nil, ValidatorOptions{}).ValidateAll(records)

	for i, r := range records {
		if r.HasError {
			t.Errorf("row %d errors = %v", i+1, r.Errors)
		}
	}
}

func TestValidator_FixedRowIsReselected(t *testing.T) {
	def := mustKind(t, "product")
	records := projectRows(t, def, []string{"name", "code", "department", "price"},
		[]string{"Tea", "T1", "Drinks", "bad"},
		[]string{"Cake", "C1", "Bakery", "4"},
	)
	v := NewValidator(def, nil, ValidatorOptions{})
	v.ValidateAll(records)

	records[1].SetSelected(false)
	records[0].SetSelected(true)
	if records[0].Selected {
		t.Fatal("SetSelected(true) on a record with errors must be a no-op")
	}

	records[0].Raw[FieldPrice] = "3"
	records[0].Record = projectRaw(records[0].Raw, def)
	v.ValidateAll(records)

	if !records[0].Selected || records[0].HasError {
		t.Errorf("fixed row = %+v, want selected without errors", records[0])
	}
	if records[1].Selected {
		t.Error("operator deselection should survive revalidation")
	}
}

func TestParseDuplicateMode(t *testing.T) {
	tests := []struct {
		in      string
		want    DuplicateMode
		wantErr bool
	}{
		{"", DuplicateExact, false},
		{"EXACT", DuplicateExact, false},
		{"contains", DuplicateContains, false},
		{" fuzzy ", DuplicateFuzzy, false},
		{"soundex", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDuplicateMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuplicateMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseDuplicateMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
