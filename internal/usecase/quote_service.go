package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quotedesk/backend/internal/domain"
)

// snapshotTTL bounds how stale a cached catalog snapshot may get before the
// matcher reloads it from the store
const defaultSnapshotTTL = 5 * time.Minute

// QuoteService orchestrates quote creation and mutation. Every mutation of a
// quote's item list goes through a per-quote lock and a full totals
// recompute; idempotency and customer dedup are delegated to the stores'
// unique constraints, with a lost race resolved by returning the winner.
type QuoteService struct {
	orgs      domain.OrganizationRepository
	catalog   domain.CatalogRepository
	customers domain.CustomerRepository
	quotes    domain.QuoteRepository
	cache     domain.CacheRepository

	matcher *MatchingService
	totals  *TotalsService

	snapshotTTL time.Duration
	log         zerolog.Logger

	// Serializes writers per quote aggregate. Matching stays parallel;
	// item-list and totals writes for one quote do not.
	quoteLocks sync.Map // map[uint]*sync.Mutex
}

// NewQuoteService creates the quote orchestration service
func NewQuoteService(
	orgs domain.OrganizationRepository,
	catalog domain.CatalogRepository,
	customers domain.CustomerRepository,
	quotes domain.QuoteRepository,
	cache domain.CacheRepository,
	matcher *MatchingService,
	totals *TotalsService,
	snapshotTTL time.Duration,
	log zerolog.Logger,
) *QuoteService {
	if snapshotTTL <= 0 {
		snapshotTTL = defaultSnapshotTTL
	}
	return &QuoteService{
		orgs:        orgs,
		catalog:     catalog,
		customers:   customers,
		quotes:      quotes,
		cache:       cache,
		matcher:     matcher,
		totals:      totals,
		snapshotTTL: snapshotTTL,
		log:         log,
	}
}

func (s *QuoteService) lockQuote(quoteID uint) func() {
	v, _ := s.quoteLocks.LoadOrStore(quoteID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Snapshot loads the org-scoped catalog view the matcher consumes, from
// cache when fresh, from the store otherwise.
func (s *QuoteService) Snapshot(ctx context.Context, orgID uint) (*domain.CatalogSnapshot, error) {
	if snap, err := s.cache.Get(ctx, orgID); err == nil && snap != nil {
		return snap, nil
	}

	products, err := s.catalog.ListProducts(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	refs, err := s.catalog.ListCompetitorRefs(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load competitor refs: %w", err)
	}

	snap := &domain.CatalogSnapshot{
		OrganizationID: orgID,
		Products:       products,
		CompetitorRefs: refs,
		LoadedAt:       time.Now(),
	}
	if err := s.cache.Set(ctx, snap, s.snapshotTTL); err != nil {
		s.log.Warn().Err(err).Uint("orgId", orgID).Msg("snapshot cache set failed")
	}
	return snap, nil
}

// CreateQuoteInput is the request to build a quote from extracted line items
type CreateQuoteInput struct {
	OrganizationID uint
	CustomerName   string
	CustomerEmail  string
	SourceEmailID  string
	TaxRate        *decimal.Decimal
	Items          []domain.RawLineItem
}

// CreateQuoteResult reports the created (or replayed) quote and per-item
// match outcomes
type CreateQuoteResult struct {
	Quote   *domain.Quote        `json:"quote"`
	Matches []domain.MatchResult `json:"matches,omitempty"`
	Created bool                 `json:"created"`
}

// CreateFromExtraction builds a quote from extracted RFQ line items: dedups
// the source email, finds or creates the customer, runs the matching
// cascade over the batch, and persists the quote with recomputed totals.
//
// Replays are not errors: a source email that was already processed returns
// the existing quote with Created=false.
func (s *QuoteService) CreateFromExtraction(ctx context.Context, in CreateQuoteInput) (*CreateQuoteResult, error) {
	if strings.TrimSpace(in.CustomerName) == "" {
		return nil, domain.NewValidationError("customerName", "must not be empty")
	}
	for _, item := range in.Items {
		if strings.TrimSpace(item.Name) == "" && strings.TrimSpace(item.SKUHint) == "" {
			return nil, domain.NewValidationError("items", "each item needs a name or a sku hint")
		}
	}

	org, err := s.orgs.GetByID(ctx, in.OrganizationID)
	if err != nil {
		return nil, err
	}

	// Idempotency check before any work; the unique constraint below
	// remains the authority if two requests race past this point.
	if in.SourceEmailID != "" {
		if existing, err := s.quotes.FindBySourceEmail(ctx, in.OrganizationID, in.SourceEmailID); err == nil && existing != nil {
			s.log.Info().Uint("orgId", in.OrganizationID).Str("sourceEmailId", in.SourceEmailID).
				Uint("quoteId", existing.ID).Msg("duplicate source email, returning existing quote")
			return &CreateQuoteResult{Quote: existing, Created: false}, nil
		}
	}

	customer, err := s.customers.FindOrCreate(ctx, in.OrganizationID, in.CustomerName, in.CustomerEmail)
	if err != nil {
		return nil, fmt.Errorf("customer dedup: %w", err)
	}

	snapshot, err := s.Snapshot(ctx, in.OrganizationID)
	if err != nil {
		return nil, err
	}

	matches, err := s.matcher.MatchBatch(ctx, in.Items, snapshot, s.matcher.Threshold(org))
	if err != nil {
		return nil, err
	}

	productsByID := make(map[uint]domain.CatalogProduct, len(snapshot.Products))
	for _, p := range snapshot.Products {
		productsByID[p.ID] = p
	}

	items := make([]domain.QuoteItem, 0, len(in.Items))
	for i, raw := range in.Items {
		items = append(items, buildQuoteItem(raw, matches[i], productsByID, i))
	}

	taxRate := s.totals.TaxRate(org)
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}
	totals, err := s.totals.Recompute(items, taxRate)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		Number:         newQuoteNumber(),
		OrganizationID: in.OrganizationID,
		CustomerID:     customer.ID,
		Status:         domain.QuoteStatusDraft,
		TaxRate:        taxRate,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.TaxAmount,
		Total:          totals.Total,
		Items:          items,
	}
	if in.SourceEmailID != "" {
		id := in.SourceEmailID
		quote.SourceEmailID = &id
	}

	persisted, created, err := s.quotes.CreateWithIdempotency(ctx, quote)
	if err != nil {
		return nil, err
	}
	if !created {
		return &CreateQuoteResult{Quote: persisted, Created: false}, nil
	}
	return &CreateQuoteResult{Quote: persisted, Matches: matches, Created: true}, nil
}

// buildQuoteItem turns a raw extracted line plus its match verdict into a
// quote line. Matched items take the catalog price; unmatched ones keep the
// extraction's description and price guess for manual completion.
func buildQuoteItem(raw domain.RawLineItem, match domain.MatchResult, products map[uint]domain.CatalogProduct, position int) domain.QuoteItem {
	item := domain.QuoteItem{
		Description: raw.Name,
		MatchType:   match.MatchType,
		MatchScore:  match.Score,
		Position:    position,
	}

	// Extraction may omit the quantity; default to one so the quote is
	// computable, the review surface prompts for the real value.
	if raw.Quantity != nil && raw.Quantity.IsPositive() {
		item.Quantity = *raw.Quantity
	} else {
		item.Quantity = decimal.NewFromInt(1)
	}

	if match.Matched() {
		item.ProductID = match.ProductID
		if product, ok := products[*match.ProductID]; ok {
			item.UnitPrice = product.UnitPrice
			if item.Description == "" {
				item.Description = product.Name
			}
		}
	} else if raw.UnitPriceGuess != nil && !raw.UnitPriceGuess.IsNegative() {
		item.UnitPrice = *raw.UnitPriceGuess
	}

	return item
}

// ItemInput is an add or edit of one quote line
type ItemInput struct {
	ProductID   *uint           `json:"productId,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// AddItem appends a line to the quote and persists the full recompute
func (s *QuoteService) AddItem(ctx context.Context, orgID, quoteID uint, in ItemInput) (*domain.Quote, error) {
	unlock := s.lockQuote(quoteID)
	defer unlock()

	quote, err := s.quotes.GetByID(ctx, orgID, quoteID)
	if err != nil {
		return nil, err
	}

	quote.Items = append(quote.Items, domain.QuoteItem{
		QuoteID:     quoteID,
		ProductID:   in.ProductID,
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		Position:    len(quote.Items),
	})
	return s.recomputeAndReplace(ctx, quote)
}

// UpdateItem edits one line and persists the full recompute
func (s *QuoteService) UpdateItem(ctx context.Context, orgID, quoteID, itemID uint, in ItemInput) (*domain.Quote, error) {
	unlock := s.lockQuote(quoteID)
	defer unlock()

	quote, err := s.quotes.GetByID(ctx, orgID, quoteID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range quote.Items {
		if quote.Items[i].ID == itemID {
			quote.Items[i].ProductID = in.ProductID
			quote.Items[i].Description = in.Description
			quote.Items[i].Quantity = in.Quantity
			quote.Items[i].UnitPrice = in.UnitPrice
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrQuoteItemNotFound
	}
	return s.recomputeAndReplace(ctx, quote)
}

// RemoveItem deletes one line and persists the full recompute
func (s *QuoteService) RemoveItem(ctx context.Context, orgID, quoteID, itemID uint) (*domain.Quote, error) {
	unlock := s.lockQuote(quoteID)
	defer unlock()

	quote, err := s.quotes.GetByID(ctx, orgID, quoteID)
	if err != nil {
		return nil, err
	}

	kept := quote.Items[:0]
	found := false
	for _, item := range quote.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		item.Position = len(kept)
		kept = append(kept, item)
	}
	if !found {
		return nil, domain.ErrQuoteItemNotFound
	}
	quote.Items = kept
	return s.recomputeAndReplace(ctx, quote)
}

// recomputeAndReplace derives totals from the full item list and persists
// items plus totals in one transaction. Caller holds the quote lock.
func (s *QuoteService) recomputeAndReplace(ctx context.Context, quote *domain.Quote) (*domain.Quote, error) {
	totals, err := s.totals.Recompute(quote.Items, quote.TaxRate)
	if err != nil {
		return nil, err
	}
	quote.Subtotal = totals.Subtotal
	quote.TaxAmount = totals.TaxAmount
	quote.Total = totals.Total

	if err := s.quotes.ReplaceItems(ctx, quote); err != nil {
		return nil, fmt.Errorf("persist quote items: %w", err)
	}
	return quote, nil
}

// AutoMatchResult reports the outcome of a batch auto-match pass
type AutoMatchResult struct {
	Quote     *domain.Quote `json:"quote"`
	Applied   int           `json:"applied"`
	Flagged   int           `json:"flagged"`
	FailedIDs []uint        `json:"failedIds,omitempty"`
}

// AutoMatchAll re-runs the cascade over every unmatched item of a quote and
// applies matches that clear the floor. Each item's write is independently
// atomic: a failure on one item keeps earlier applications and moves on.
// Items below the floor stay untouched and count as flagged for review.
func (s *QuoteService) AutoMatchAll(ctx context.Context, orgID, quoteID uint) (*AutoMatchResult, error) {
	unlock := s.lockQuote(quoteID)
	defer unlock()

	quote, err := s.quotes.GetByID(ctx, orgID, quoteID)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.Snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}

	productsByID := make(map[uint]domain.CatalogProduct, len(snapshot.Products))
	for _, p := range snapshot.Products {
		productsByID[p.ID] = p
	}
	threshold := s.matcher.Threshold(org)

	result := &AutoMatchResult{}
	for i := range quote.Items {
		item := &quote.Items[i]
		if item.ProductID != nil {
			continue
		}
		match := s.matcher.Match(domain.RawLineItem{Name: item.Description}, snapshot, threshold)
		if !match.Matched() {
			result.Flagged++
			continue
		}

		item.ProductID = match.ProductID
		item.MatchType = match.MatchType
		item.MatchScore = match.Score
		if product, ok := productsByID[*match.ProductID]; ok {
			item.UnitPrice = product.UnitPrice
		}
		if err := s.quotes.UpdateItem(ctx, item); err != nil {
			s.log.Error().Err(err).Uint("itemId", item.ID).Msg("auto-match item write failed")
			result.FailedIDs = append(result.FailedIDs, item.ID)
			continue
		}
		result.Applied++
	}

	// Totals always reflect the full list as it now stands, including any
	// items whose writes failed above.
	fresh, err := s.quotes.GetByID(ctx, orgID, quoteID)
	if err != nil {
		return nil, err
	}
	totals, err := s.totals.Recompute(fresh.Items, fresh.TaxRate)
	if err != nil {
		return nil, err
	}
	if err := s.quotes.UpdateTotals(ctx, orgID, quoteID, totals); err != nil {
		return nil, fmt.Errorf("persist totals: %w", err)
	}
	fresh.Subtotal = totals.Subtotal
	fresh.TaxAmount = totals.TaxAmount
	fresh.Total = totals.Total

	result.Quote = fresh
	return result, nil
}

// Get returns a quote with its margin flags
func (s *QuoteService) Get(ctx context.Context, orgID, quoteID uint) (*domain.Quote, []domain.MarginFlag, error) {
	quote, err := s.quotes.GetByID(ctx, orgID, quoteID)
	if err != nil {
		return nil, nil, err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]uint, 0, len(quote.Items))
	for _, item := range quote.Items {
		if item.ProductID != nil {
			ids = append(ids, *item.ProductID)
		}
	}
	products := map[uint]domain.CatalogProduct{}
	if len(ids) > 0 {
		products, err = s.catalog.GetProductsByIDs(ctx, orgID, ids)
		if err != nil {
			return nil, nil, err
		}
	}

	return quote, s.totals.MarginFlags(quote.Items, products, org), nil
}

// newQuoteNumber mints a human-shareable quote reference
func newQuoteNumber() string {
	return "Q-" + strings.ToUpper(uuid.NewString()[:8])
}
