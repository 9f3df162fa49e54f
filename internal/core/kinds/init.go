// Package kinds registers the import kinds with the core registry.
// Import this package for its side effects before starting sessions.
package kinds

// Each kind file registers itself from init().

// Shared header synonyms. Words are matched after normalization and case
// folding, so Persian letter variants and casing need no extra entries.
var (
	nameWords        = []string{"نام", "title", "product name", "نام کالا"}
	codeWords        = []string{"کد", "sku", "item code", "کد کالا"}
	departmentWords  = []string{"دپارتمان", "بخش", "category", "دسته"}
	unitWords        = []string{"واحد", "uom"}
	priceWords       = []string{"قیمت", "cost", "unit price", "فی"}
	amountWords      = []string{"مبلغ", "total"}
	quantityWords    = []string{"تعداد", "qty"}
	dateWords        = []string{"تاریخ"}
	descriptionWords = []string{"توضیحات", "notes", "شرح"}
)
