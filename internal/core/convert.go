package core

// convert.go turns normalized cell text into typed values.
//
// Files reaching the importer come from accounting exports, point-of-sale
// systems and hand-edited spreadsheets, so values arrive as:
//   - Persian or Arabic-Indic digits (folded to ASCII by textnorm)
//   - Currency symbols and words (Rial, Toman, $, €)
//   - Thousands separators in either convention (1,234.5 or 1.234,5)
//   - Accounting negatives "(123.45)"
//   - Excel formula prefixes (="value")
//
// Parse functions report ok=false instead of failing, so projection never
// stops on bad input; the validator turns ok=false into a row error.

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/foodops/internal/textnorm"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "2006-1-2", "2006/1/2",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00",
		"20060102",
	}
)

// currencyTokens are stripped from numeric cells. Words are matched after
// case folding.
var currencyTokens = []string{
	"$", "€", "£", "﷼",
	"ریال", "تومان", "rials", "rial", "tomans", "toman", "irr", "irt",
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// ParseDecimal parses a locale-tolerant number. Empty or unparsable input
// returns zero and ok=false.
func ParseDecimal(s string) (d decimal.Decimal, ok bool) {
	s = textnorm.Normalize(CleanCell(s))
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	lower := strings.ToLower(s)
	for _, tok := range currencyTokens {
		lower = strings.ReplaceAll(lower, tok, "")
	}
	s = strings.ReplaceAll(lower, " ", "")
	s = normalizeSeparators(s)

	if negative {
		s = "-" + strings.TrimPrefix(s, "-")
	}
	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeSeparators rewrites s so that '.' is the only decimal separator
// and thousands separators are gone. When both ',' and '.' appear, the last
// one is the decimal separator. A lone comma followed by exactly three
// digits is a thousands separator; any other lone comma is decimal.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")

	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)

	case lastDot >= 0 && strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// ParseDate parses a date in any of the supported layouts.
// Two-digit years are resolved using TwoDigitYearPivot.
func ParseDate(s string) (time.Time, bool) {
	s = textnorm.Normalize(CleanCell(s))
	if s == "" {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// FormatDecimal renders d for export. Zero renders as "0".
func FormatDecimal(d decimal.Decimal) string {
	return d.String()
}

// FormatDate renders t for export.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
