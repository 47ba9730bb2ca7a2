package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote statuses
const (
	QuoteStatusDraft  = "draft"
	QuoteStatusSent   = "sent"
	QuoteStatusWon    = "won"
	QuoteStatusLost   = "lost"
	QuoteStatusClosed = "closed"
)

// MatchType tags how a raw line item was resolved against the catalog.
type MatchType string

const (
	// MatchTypeCompetitorXref means a curated competitor cross-reference hit
	MatchTypeCompetitorXref MatchType = "competitor_xref"
	// MatchTypeExactSKU means the SKU hint equals a catalog SKU
	MatchTypeExactSKU MatchType = "exact_sku"
	// MatchTypeFuzzyToken means token overlap on the product name won
	MatchTypeFuzzyToken MatchType = "fuzzy_token"
	// MatchTypeNone means no candidate cleared the confidence floor
	MatchTypeNone MatchType = "none"
)

// RawLineItem is one extracted RFQ line before matching. Quantity and
// UnitPriceGuess are nil when extraction could not read them; nil means
// "needs user input", never zero.
type RawLineItem struct {
	Name             string           `json:"name" binding:"required"`
	SKUHint          string           `json:"skuHint,omitempty"`
	Quantity         *decimal.Decimal `json:"quantity,omitempty"`
	UnitPriceGuess   *decimal.Decimal `json:"unitPriceGuess,omitempty"`
	SourceConfidence float64          `json:"sourceConfidence,omitempty"`
}

// CandidateScore is one scored catalog candidate, used for low-confidence
// suggestions surfaced to manual review.
type CandidateScore struct {
	ProductID uint    `json:"productId"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

// MatchResult is the matcher's verdict for one raw line item. When MatchType
// is MatchTypeNone, ProductID is nil and Score is 0; the best below-threshold
// candidate, if any, rides along in Suggestion for display only.
type MatchResult struct {
	ProductID  *uint           `json:"productId,omitempty"`
	Score      float64         `json:"score"`
	MatchType  MatchType       `json:"matchType"`
	Suggestion *CandidateScore `json:"suggestion,omitempty"`
}

// Matched reports whether the result resolved to a catalog product
func (r MatchResult) Matched() bool {
	return r.MatchType != MatchTypeNone && r.ProductID != nil
}

// QuoteItem is one line of a quote. TotalPrice is derived and recomputed on
// every mutation; a client-supplied value is never trusted.
type QuoteItem struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	QuoteID     uint             `gorm:"not null;index" json:"quoteId"`
	ProductID   *uint            `json:"productId,omitempty"`
	Description string           `gorm:"not null" json:"description"`
	Quantity    decimal.Decimal  `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	TotalPrice  decimal.Decimal  `gorm:"type:decimal(14,2);not null" json:"totalPrice"`
	MatchType   MatchType        `gorm:"size:32" json:"matchType,omitempty"`
	MatchScore  float64          `json:"matchScore,omitempty"`
	Position    int              `gorm:"not null" json:"position"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Quote is the aggregate root owning an ordered list of items. Subtotal,
// TaxAmount and Total are derived and recomputed whole on every item
// mutation, never patched incrementally.
type Quote struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Number         string          `gorm:"size:40;not null;uniqueIndex" json:"number"`
	OrganizationID uint            `gorm:"not null;index:idx_org_source_email,unique,priority:1" json:"organizationId"`
	CustomerID     uint            `gorm:"not null;index" json:"customerId"`
	Status         string          `gorm:"size:20;not null" json:"status"`
	SourceEmailID  *string         `gorm:"size:255;index:idx_org_source_email,unique,priority:2" json:"sourceEmailId,omitempty"`
	Items          []QuoteItem     `gorm:"foreignKey:QuoteID" json:"items"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"taxRate"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"taxAmount"`
	Total          decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ProcessedEmail is the persisted idempotency set: one quote per inbound
// email per organization. The unique index decides lost races.
type ProcessedEmail struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:idx_org_email,unique,priority:1" json:"organizationId"`
	SourceEmailID  string    `gorm:"size:255;not null;index:idx_org_email,unique,priority:2" json:"sourceEmailId"`
	QuoteID        uint      `gorm:"not null" json:"quoteId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// QuoteTotals is the output of a full recompute over a quote's items.
type QuoteTotals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
	Total     decimal.Decimal `json:"total"`
}

// MarginFlag marks one quote item whose margin fell below the threshold.
// Items whose linked product has no cost are never flagged.
type MarginFlag struct {
	ItemID    uint            `json:"itemId"`
	ProductID uint            `json:"productId"`
	MarginPct decimal.Decimal `json:"marginPct"`
}
