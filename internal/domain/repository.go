package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for catalog snapshot caching
type CacheRepository interface {
	Get(ctx context.Context, orgID uint) (*CatalogSnapshot, error)
	Set(ctx context.Context, snapshot *CatalogSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, orgID uint) error
}

// OrganizationRepository defines persistence for organizations
type OrganizationRepository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id uint) (*Organization, error)
}

// CatalogRepository defines persistence for catalog products and
// competitor cross-references, always scoped to one organization
type CatalogRepository interface {
	UpsertProducts(ctx context.Context, orgID uint, products []CatalogProduct) (created, updated int, err error)
	ListProducts(ctx context.Context, orgID uint) ([]CatalogProduct, error)
	GetProduct(ctx context.Context, orgID, productID uint) (*CatalogProduct, error)
	GetProductsByIDs(ctx context.Context, orgID uint, ids []uint) (map[uint]CatalogProduct, error)
	UpsertCompetitorRefs(ctx context.Context, orgID uint, refs []CompetitorRef) (int, error)
	ListCompetitorRefs(ctx context.Context, orgID uint) ([]CompetitorRef, error)
}

// CustomerRepository defines persistence for customers. FindOrCreate must
// treat a unique-constraint violation as a lost race and return the winner.
type CustomerRepository interface {
	FindOrCreate(ctx context.Context, orgID uint, name, email string) (*Customer, error)
	GetByID(ctx context.Context, orgID, id uint) (*Customer, error)
}

// QuoteRepository defines persistence for quotes and their items
type QuoteRepository interface {
	// CreateWithIdempotency persists the quote and its ProcessedEmail marker
	// in one transaction. If the source email was already processed (or the
	// insert loses a race) it returns the existing quote and created=false.
	CreateWithIdempotency(ctx context.Context, quote *Quote) (result *Quote, created bool, err error)
	GetByID(ctx context.Context, orgID, quoteID uint) (*Quote, error)
	// ReplaceItems swaps the quote's full item list and totals atomically.
	// Item IDs are reassigned on every call, including for surviving lines;
	// callers must take item IDs from the returned quote state before the
	// next mutation, never from an earlier read.
	ReplaceItems(ctx context.Context, quote *Quote) error
	// UpdateItem saves a single item; used by batch auto-match where each
	// item's write is independently atomic
	UpdateItem(ctx context.Context, item *QuoteItem) error
	UpdateTotals(ctx context.Context, orgID, quoteID uint, totals QuoteTotals) error
	FindBySourceEmail(ctx context.Context, orgID uint, sourceEmailID string) (*Quote, error)
}
