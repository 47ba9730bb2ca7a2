package usecase

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quotedesk/backend/internal/domain"
)

// Default cascade settings, overridable per organization
const (
	defaultConfidenceThreshold = 0.6
	defaultBatchWorkers        = 0 // 0 means runtime.NumCPU()
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	ConfidenceThreshold float64
	BatchWorkers        int
	EnableDebugLogging  bool
}

// MatchingService resolves raw RFQ line items against an organization's
// catalog. All methods are read-only against the snapshot; callers pass
// org-scoped data explicitly, the service holds no tenant state.
type MatchingService struct {
	confidenceThreshold float64
	batchWorkers        int
	enableDebugLogging  bool
	log                 zerolog.Logger
}

// NewMatchingService creates a matching service with the given configuration
func NewMatchingService(config MatchConfig, log zerolog.Logger) *MatchingService {
	threshold := config.ConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultConfidenceThreshold
	}

	workers := config.BatchWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &MatchingService{
		confidenceThreshold: threshold,
		batchWorkers:        workers,
		enableDebugLogging:  config.EnableDebugLogging,
		log:                 log,
	}
}

// Threshold returns the effective confidence floor: the organization's own
// setting when present, the configured default otherwise.
func (s *MatchingService) Threshold(org *domain.Organization) float64 {
	if org != nil && org.ConfidenceThreshold > 0 && org.ConfidenceThreshold <= 1 {
		return org.ConfidenceThreshold
	}
	return s.confidenceThreshold
}

// Match resolves one raw line item against the snapshot.
//
// Cascade order:
//  1. competitor cross-reference on the SKU hint (curated intent, score 1.0)
//  2. best catalog score at or above the confidence floor
//  3. no match, with the best below-floor candidate as a suggestion
//
// An empty catalog is not an error; every item resolves to MatchTypeNone.
func (s *MatchingService) Match(item domain.RawLineItem, snapshot *domain.CatalogSnapshot, threshold float64) domain.MatchResult {
	if threshold <= 0 || threshold > 1 {
		threshold = s.confidenceThreshold
	}
	if snapshot == nil {
		return domain.MatchResult{MatchType: domain.MatchTypeNone}
	}

	// Step 1: competitor cross-reference dominates catalog scoring
	if hint := NormalizeSKU(item.SKUHint); hint != "" {
		for _, ref := range snapshot.CompetitorRefs {
			if NormalizeSKU(ref.CompetitorSKU) == hint {
				id := ref.ProductID
				if s.enableDebugLogging {
					s.log.Debug().Str("skuHint", item.SKUHint).Uint("productId", id).
						Msg("competitor xref hit")
				}
				return domain.MatchResult{
					ProductID: &id,
					Score:     1.0,
					MatchType: domain.MatchTypeCompetitorXref,
				}
			}
		}
	}

	// Step 2: score every catalog product, keep the deterministic best
	queryNorm := Normalize(item.Name)
	var (
		best      *domain.CatalogProduct
		bestScore float64
		bestRule  scoreRule
	)
	for i := range snapshot.Products {
		cand := &snapshot.Products[i]
		score, rule := Score(queryNorm, item.SKUHint, *cand)
		if best == nil || score > bestScore ||
			(score == bestScore && betterCandidate(*cand, *best)) {
			best, bestScore, bestRule = cand, score, rule
		}
	}

	if best == nil || bestScore == 0 {
		return domain.MatchResult{MatchType: domain.MatchTypeNone}
	}

	if s.enableDebugLogging {
		s.log.Debug().Str("query", queryNorm).Str("bestSku", best.SKU).
			Float64("score", bestScore).Msg("cascade best candidate")
	}

	if bestScore >= threshold {
		id := best.ID
		// The label reports which rule fired, not the score value: a
		// name-token Jaccard of 1.0 is still fuzzy_token, only a SKU
		// equality hit is exact_sku.
		matchType := domain.MatchTypeFuzzyToken
		if bestRule == ruleExactSKU {
			matchType = domain.MatchTypeExactSKU
		}
		return domain.MatchResult{
			ProductID: &id,
			Score:     bestScore,
			MatchType: matchType,
		}
	}

	// Below the floor: never auto-applied, surfaced for manual review only
	return domain.MatchResult{
		MatchType: domain.MatchTypeNone,
		Suggestion: &domain.CandidateScore{
			ProductID: best.ID,
			SKU:       best.SKU,
			Name:      best.Name,
			Score:     bestScore,
		},
	}
}

// MatchBatch resolves a batch of raw line items in parallel. Each item's
// match is independent and read-only against the snapshot; results come
// back in input order. Respects ctx cancellation between items.
func (s *MatchingService) MatchBatch(ctx context.Context, items []domain.RawLineItem, snapshot *domain.CatalogSnapshot, threshold float64) ([]domain.MatchResult, error) {
	results := make([]domain.MatchResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	workers := s.batchWorkers
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.Match(items[i], snapshot, threshold)
			}
		}()
	}

	var err error
feed:
	for i := range items {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return results, nil
}

// Suggest returns the top-N scored catalog candidates for a free-text item
// name, highest score first, for the manual-review surface. Zero-score
// candidates are omitted.
func (s *MatchingService) Suggest(name, skuHint string, snapshot *domain.CatalogSnapshot, limit int) []domain.CandidateScore {
	if snapshot == nil || limit <= 0 {
		return nil
	}

	queryNorm := Normalize(name)
	scored := make([]domain.CandidateScore, 0, len(snapshot.Products))
	for _, cand := range snapshot.Products {
		score, _ := Score(queryNorm, skuHint, cand)
		if score == 0 {
			continue
		}
		scored = append(scored, domain.CandidateScore{
			ProductID: cand.ID,
			SKU:       cand.SKU,
			Name:      cand.Name,
			Score:     score,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if len(scored[i].Name) != len(scored[j].Name) {
			return len(scored[i].Name) < len(scored[j].Name)
		}
		return scored[i].ProductID < scored[j].ProductID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
