package usecase

import (
	"strings"

	"github.com/quotedesk/backend/internal/domain"
)

// Scoring rule scores. Rules are tried in priority order and the first
// matching rule wins outright; scores are never blended.
const (
	scoreExactSKU     = 1.0
	scoreSubstringSKU = 0.85
)

// scoreRule identifies which rule produced a score
type scoreRule int

const (
	ruleNone scoreRule = iota
	ruleExactSKU
	ruleSubstringSKU
	ruleTokenOverlap
)

// Score rates one catalog candidate against a normalized query and an
// optional SKU hint. queryNorm must already be normalized (see Normalize);
// querySKU and the candidate SKU are compared case-insensitively.
//
// Returns the score in [0,1] and the rule that produced it.
func Score(queryNorm, querySKU string, candidate domain.CatalogProduct) (float64, scoreRule) {
	candSKU := NormalizeSKU(candidate.SKU)
	hintSKU := NormalizeSKU(querySKU)

	// Rule 1: exact SKU
	if hintSKU != "" && hintSKU == candSKU {
		return scoreExactSKU, ruleExactSKU
	}

	// Rule 2: SKU substring, either direction
	if hintSKU != "" && candSKU != "" &&
		(strings.Contains(candSKU, hintSKU) || strings.Contains(hintSKU, candSKU)) {
		return scoreSubstringSKU, ruleSubstringSKU
	}

	// Rule 3: Jaccard token overlap on the normalized name
	j := jaccard(Tokens(queryNorm), Tokens(Normalize(candidate.Name)))
	if j == 0 {
		return 0, ruleNone
	}
	return j, ruleTokenOverlap
}

// jaccard computes |intersection| / |union| over two token sets
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// betterCandidate reports whether candidate a beats candidate b at an equal
// score. Prefers the shorter name (the more canonical listing), then the
// lowest id, so repeated runs over the same catalog are deterministic.
func betterCandidate(a, b domain.CatalogProduct) bool {
	if len(a.Name) != len(b.Name) {
		return len(a.Name) < len(b.Name)
	}
	return a.ID < b.ID
}
