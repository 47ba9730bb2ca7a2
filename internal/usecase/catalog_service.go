package usecase

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quotedesk/backend/internal/domain"
)

// CatalogService handles catalog imports and competitor cross-reference
// uploads. Writes invalidate the org's cached snapshot so the matcher sees
// the new data on its next batch.
type CatalogService struct {
	catalog domain.CatalogRepository
	cache   domain.CacheRepository
	log     zerolog.Logger
}

// NewCatalogService creates a catalog service
func NewCatalogService(catalog domain.CatalogRepository, cache domain.CacheRepository, log zerolog.Logger) *CatalogService {
	return &CatalogService{catalog: catalog, cache: cache, log: log}
}

// ImportSummary reports one catalog import run
type ImportSummary struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
}

// ImportCSV upserts catalog products from a CSV stream keyed on
// (organization, sku). Expected header: sku,name,unit_price[,cost][,competitor_sku].
// Rows with a missing sku/name or an unparsable price are skipped and
// reported, not fatal.
func (s *CatalogService) ImportCSV(ctx context.Context, orgID uint, r io.Reader) (*ImportSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, domain.NewValidationError("file", "empty CSV")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := headerIndex(header)
	if _, ok := col["sku"]; !ok {
		return nil, domain.NewValidationError("file", "missing sku column")
	}
	if _, ok := col["name"]; !ok {
		return nil, domain.NewValidationError("file", "missing name column")
	}
	if _, ok := col["unit_price"]; !ok {
		return nil, domain.NewValidationError("file", "missing unit_price column")
	}

	summary := &ImportSummary{}
	var products []domain.CatalogProduct
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		sku := strings.TrimSpace(field(rec, col, "sku"))
		name := strings.TrimSpace(field(rec, col, "name"))
		if sku == "" || name == "" {
			summary.Skipped = append(summary.Skipped, fmt.Sprintf("line %d: missing sku or name", line))
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(field(rec, col, "unit_price")))
		if err != nil || price.IsNegative() {
			summary.Skipped = append(summary.Skipped, fmt.Sprintf("line %d: bad unit_price", line))
			continue
		}

		product := domain.CatalogProduct{
			OrganizationID: orgID,
			SKU:            NormalizeSKU(sku),
			Name:           name,
			UnitPrice:      price,
			CompetitorSKU:  strings.TrimSpace(field(rec, col, "competitor_sku")),
		}
		if raw := strings.TrimSpace(field(rec, col, "cost")); raw != "" {
			cost, err := decimal.NewFromString(raw)
			if err != nil || cost.IsNegative() {
				summary.Skipped = append(summary.Skipped, fmt.Sprintf("line %d: bad cost", line))
				continue
			}
			product.Cost = &cost
		}
		products = append(products, product)
	}

	if len(products) > 0 {
		created, updated, err := s.catalog.UpsertProducts(ctx, orgID, products)
		if err != nil {
			return nil, fmt.Errorf("upsert products: %w", err)
		}
		summary.Created, summary.Updated = created, updated
	}

	if err := s.cache.Invalidate(ctx, orgID); err != nil {
		s.log.Warn().Err(err).Uint("orgId", orgID).Msg("snapshot invalidate failed")
	}
	s.log.Info().Uint("orgId", orgID).Int("created", summary.Created).
		Int("updated", summary.Updated).Int("skipped", len(summary.Skipped)).
		Msg("catalog import done")
	return summary, nil
}

// CompetitorRefInput is one cross-reference row in a bulk upload
type CompetitorRefInput struct {
	CompetitorSKU string `json:"competitorSku" binding:"required"`
	ProductID     uint   `json:"productId" binding:"required"`
}

// UploadCompetitorRefs bulk-upserts competitor cross-references. Every
// referenced product must belong to the organization.
func (s *CatalogService) UploadCompetitorRefs(ctx context.Context, orgID uint, refs []CompetitorRefInput) (int, error) {
	if len(refs) == 0 {
		return 0, domain.NewValidationError("refs", "must not be empty")
	}

	ids := make([]uint, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ProductID)
	}
	known, err := s.catalog.GetProductsByIDs(ctx, orgID, ids)
	if err != nil {
		return 0, err
	}

	rows := make([]domain.CompetitorRef, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref.CompetitorSKU) == "" {
			return 0, domain.NewValidationError("competitorSku", "must not be empty")
		}
		if _, ok := known[ref.ProductID]; !ok {
			return 0, fmt.Errorf("%w: id %d", domain.ErrProductNotFound, ref.ProductID)
		}
		rows = append(rows, domain.CompetitorRef{
			OrganizationID: orgID,
			CompetitorSKU:  NormalizeSKU(ref.CompetitorSKU),
			ProductID:      ref.ProductID,
		})
	}

	n, err := s.catalog.UpsertCompetitorRefs(ctx, orgID, rows)
	if err != nil {
		return 0, fmt.Errorf("upsert competitor refs: %w", err)
	}
	if err := s.cache.Invalidate(ctx, orgID); err != nil {
		s.log.Warn().Err(err).Uint("orgId", orgID).Msg("snapshot invalidate failed")
	}
	return n, nil
}

func headerIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func field(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}
