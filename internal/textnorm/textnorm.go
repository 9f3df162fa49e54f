// Package textnorm canonicalizes cell text coming out of uploaded files.
//
// Files produced on different systems spell the same Persian word with
// different code points (Arabic yeh vs Farsi yeh, Arabic-Indic vs ASCII
// digits) and often carry invisible marks. Normalize folds all of these to
// one spelling so that matching and numeric parsing see a single form.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// substitutions maps look-alike letters and foreign digit glyphs to their
// canonical forms. Targets never appear as keys.
var substitutions = map[rune]rune{
	'ي': 'ی', // Arabic yeh -> Farsi yeh
	'ى': 'ی', // alef maksura -> Farsi yeh
	'ك': 'ک', // Arabic kaf -> keheh
	'٫': '.', // Arabic decimal separator
	'٬': ',', // Arabic thousands separator
	'٪': '%', // Arabic percent sign
}

// invisible runes are removed outright.
var invisible = map[rune]bool{
	'\u200B': true, // zero width space
	'\u200C': true, // zero width non-joiner
	'\u200D': true, // zero width joiner
	'\u200E': true, // left-to-right mark
	'\u200F': true, // right-to-left mark
	'\u2060': true, // word joiner
	'\u061C': true, // Arabic letter mark
	'\uFEFF': true, // byte order mark
	'\u00AD': true, // soft hyphen
}

func mapRune(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	}
	if invisible[r] {
		return -1
	}
	if s, ok := substitutions[r]; ok {
		return s
	}
	return r
}

// Normalize returns the canonical form of s. It is total and idempotent,
// and leaves ASCII letters and digits untouched.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.Map(mapRune, s)
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}

// Key returns the comparison key for s: normalized and case-folded.
func Key(s string) string {
	return cases.Fold().String(Normalize(s))
}

// Equal reports whether a and b are the same after normalization and case folding.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}

// Row normalizes every cell of row in place and returns it.
func Row(row []string) []string {
	for i, c := range row {
		row[i] = Normalize(c)
	}
	return row
}
