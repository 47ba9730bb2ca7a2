package usecase

import (
	"regexp"
	"strings"
)

// Package-level compiled regex patterns for performance
var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9 ]`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)

	// Splits a measurement glued to its number: "6in" -> "6 in", "50ft" -> "50 ft".
	// Longer unit names come first so "lbs" is not consumed as "lb"+"s".
	numberUnitRegex = regexp.MustCompile(`\b([0-9]+)(inches|inch|in|feet|foot|ft|mm|cm|yd|oz|lbs|lb|kg|gal|qt|pt|ml|pcs|pc|pk|ea|m|g|l)\b`)

	// Joins a series designator to its number: "sch 40" -> "sch40",
	// "class 150" -> "class150". Keeps trade sizes as single tokens so that
	// "6in sch40" and "6 inch Schedule 40" normalize identically.
	seriesNumberRegex = regexp.MustCompile(`\b(sch|class|cl|type|grade|gr)\s+([0-9]+)\b`)
)

// unitStopWords are units of measure dropped from normalized text
var unitStopWords = map[string]bool{
	"in": true, "inch": true, "inches": true,
	"ft": true, "foot": true, "feet": true,
	"mm": true, "cm": true, "m": true, "yd": true,
	"oz": true, "lb": true, "lbs": true, "kg": true, "g": true,
	"gal": true, "gallon": true, "qt": true, "pt": true,
	"ml": true, "l": true, "liter": true,
	"ea": true, "pc": true, "pcs": true, "pk": true, "pack": true,
	"ct": true, "count": true,
}

// genericStopWords are filler words that carry no matching signal
var genericStopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"and": true, "or": true, "of": true,
	"for": true, "with": true, "per": true, "each": true,
}

// abbreviations canonicalizes industry spellings so that abbreviated RFQ
// text and full catalog names produce the same tokens
var abbreviations = map[string]string{
	"schedule":   "sch",
	"sched":      "sch",
	"cls":        "class",
	"stainless":  "ss",
	"galvanized": "galv",
}

// Normalize reduces free-text item descriptions and SKUs to a canonical
// form for token matching: lowercase, alphanumerics only, units and filler
// words removed, trade sizes kept as single tokens.
//
// Normalize is total (any input yields a string, possibly empty) and
// idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	out := strings.ToLower(text)
	out = nonAlphanumericRegex.ReplaceAllString(out, " ")
	out = multipleSpacesRegex.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)

	// "6in" -> "6 in" so the unit can be dropped as a stopword
	out = numberUnitRegex.ReplaceAllString(out, "$1 $2")

	words := strings.Fields(out)
	kept := words[:0]
	for _, w := range words {
		if canon, ok := abbreviations[w]; ok {
			w = canon
		}
		if unitStopWords[w] || genericStopWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	out = strings.Join(kept, " ")

	// "sch 40" -> "sch40" after stopword removal so the pair survives as one token
	out = seriesNumberRegex.ReplaceAllString(out, "$1$2")

	return strings.TrimSpace(out)
}

// NormalizeSKU canonicalizes a SKU or SKU hint for comparison: uppercase,
// trimmed, with internal whitespace removed.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.Join(strings.Fields(sku), ""))
}

// Tokens splits already-normalized text into its token set
func Tokens(norm string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(norm) {
		set[t] = true
	}
	return set
}
