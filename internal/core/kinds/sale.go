package kinds

import (
	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/core"
)

func init() {
	registerSales()
}

func registerSales() {
	core.Register(core.KindDefinition{
		Info: core.KindInfo{
			Key:       "sale",
			Label:     "Sales",
			Reference: catalog.KindProduct,
		},
		Fields: []core.FieldSpec{
			{Field: core.FieldCode, Label: "Product code", Required: true, Synonyms: codeWords},
			{Field: core.FieldQuantity, Label: "Quantity", Required: true, Bound: core.BoundPositive, Synonyms: quantityWords},
			{Field: core.FieldName, Label: "Product name", Synonyms: nameWords},
			{Field: core.FieldPrice, Label: "Price", Bound: core.BoundNonNegative, Synonyms: priceWords},
			{Field: core.FieldAmount, Label: "Amount", Bound: core.BoundNonNegative, Synonyms: amountWords},
			{Field: core.FieldDate, Label: "Date", Synonyms: dateWords},
		},
		Finalize: finalizeSale,
	})
}

// finalizeSale derives the line amount from price and quantity when the file
// leaves it blank.
func finalizeSale(rec *catalog.Record) {
	if rec.Amount.IsZero() && !rec.Price.IsZero() {
		rec.Amount = rec.Price.Mul(rec.Quantity)
	}
}
