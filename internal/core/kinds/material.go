package kinds

import (
	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/core"
)

func init() {
	registerMaterials()
}

func registerMaterials() {
	core.Register(core.KindDefinition{
		Info: core.KindInfo{
			Key:    "material",
			Label:  "Materials",
			Entity: catalog.KindMaterial,
		},
		Fields: []core.FieldSpec{
			{Field: core.FieldName, Label: "Name", Required: true, Synonyms: nameWords},
			{Field: core.FieldCode, Label: "Code", Required: true, Synonyms: codeWords},
			{Field: core.FieldUnit, Label: "Unit", Required: true, Synonyms: unitWords},
			{Field: core.FieldPrice, Label: "Price", Required: true, Bound: core.BoundNonNegative, Synonyms: priceWords},
			// Pack size; blank means one unit.
			{Field: core.FieldAmount, Label: "Amount", Bound: core.BoundPositive, Synonyms: amountWords},
			{Field: core.FieldDepartment, Label: "Department", Synonyms: departmentWords},
			{Field: core.FieldDescription, Label: "Description", Synonyms: descriptionWords},
		},
	})
}
