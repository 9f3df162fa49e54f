package kinds

import (
	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/core"
)

func init() {
	registerProducts()
}

func registerProducts() {
	core.Register(core.KindDefinition{
		Info: core.KindInfo{
			Key:    "product",
			Label:  "Products",
			Entity: catalog.KindProduct,
		},
		Fields: []core.FieldSpec{
			{Field: core.FieldName, Label: "Name", Required: true, Synonyms: nameWords},
			{Field: core.FieldCode, Label: "Code", Required: true, Synonyms: codeWords},
			{Field: core.FieldDepartment, Label: "Department", Required: true, Synonyms: departmentWords},
			{Field: core.FieldPrice, Label: "Price", Required: true, Bound: core.BoundNonNegative, Synonyms: priceWords},
			{Field: core.FieldUnit, Label: "Unit", Required: true, Synonyms: unitWords},
			{Field: core.FieldDescription, Label: "Description", Synonyms: descriptionWords},
		},
	})
}
