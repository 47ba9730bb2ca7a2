package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Organization is the tenant root. Matching and pricing thresholds are
// per-organization; a zero value falls back to the configured default.
type Organization struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	Name                string          `gorm:"not null;uniqueIndex" json:"name"`
	ConfidenceThreshold float64         `json:"confidenceThreshold"`
	MarginThreshold     float64         `json:"marginThreshold"`
	DefaultTaxRate      decimal.Decimal `gorm:"type:decimal(6,4)" json:"defaultTaxRate"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// CatalogProduct is one sellable item in an organization's catalog.
// SKU is unique within the organization; re-import upserts on (org, sku).
type CatalogProduct struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	OrganizationID uint             `gorm:"not null;index:idx_org_sku,unique,priority:1" json:"organizationId"`
	SKU            string           `gorm:"size:64;not null;index:idx_org_sku,unique,priority:2" json:"sku"`
	Name           string           `gorm:"not null" json:"name"`
	UnitPrice      decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	Cost           *decimal.Decimal `gorm:"type:decimal(12,2)" json:"cost,omitempty"`
	CompetitorSKU  string           `gorm:"size:64" json:"competitorSku,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// CompetitorRef maps a competitor's product code to one of the organization's
// own catalog products. Curated via bulk upload, read-only for the matcher.
type CompetitorRef struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:idx_org_comp_sku,unique,priority:1" json:"organizationId"`
	CompetitorSKU  string    `gorm:"size:64;not null;index:idx_org_comp_sku,unique,priority:2" json:"competitorSku"`
	ProductID      uint      `gorm:"not null" json:"productId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Customer is a quote recipient. NameNorm backs the dedup guard: the
// (organization, name_norm) unique index makes the persistence layer the
// arbiter when two identical customers race on insert.
type Customer struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:idx_org_customer,unique,priority:1" json:"organizationId"`
	Name           string    `gorm:"not null" json:"name"`
	NameNorm       string    `gorm:"size:255;not null;index:idx_org_customer,unique,priority:2" json:"-"`
	Email          string    `json:"email,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CatalogSnapshot is an org-scoped read-only view of the catalog plus its
// competitor cross-references, as consumed by the matching cascade.
type CatalogSnapshot struct {
	OrganizationID uint             `json:"organizationId"`
	Products       []CatalogProduct `json:"products"`
	CompetitorRefs []CompetitorRef  `json:"competitorRefs"`
	LoadedAt       time.Time        `json:"loadedAt"`
}
