package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quotedesk/backend/internal/domain"
)

// CatalogStore persists catalog products and competitor cross-references.
// All queries are scoped by organization id; the store never infers the
// tenant from ambient state.
type CatalogStore struct {
	db *gorm.DB
}

// NewCatalogStore creates a catalog store
func NewCatalogStore(db *gorm.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// UpsertProducts inserts or updates products keyed on (organization, sku).
// Re-imports refresh name, prices and the competitor alias in place.
func (s *CatalogStore) UpsertProducts(ctx context.Context, orgID uint, products []domain.CatalogProduct) (created, updated int, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range products {
			products[i].OrganizationID = orgID

			var existing domain.CatalogProduct
			res := tx.Where("organization_id = ? AND sku = ?", orgID, products[i].SKU).First(&existing)
			switch {
			case res.Error == nil:
				products[i].ID = existing.ID
				products[i].CreatedAt = existing.CreatedAt
				if err := tx.Save(&products[i]).Error; err != nil {
					return err
				}
				updated++
			case errors.Is(res.Error, gorm.ErrRecordNotFound):
				if err := tx.Create(&products[i]).Error; err != nil {
					return err
				}
				created++
			default:
				return res.Error
			}
		}
		return nil
	})
	return created, updated, err
}

// ListProducts returns the organization's full catalog ordered by id
func (s *CatalogStore) ListProducts(ctx context.Context, orgID uint) ([]domain.CatalogProduct, error) {
	var products []domain.CatalogProduct
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("id").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct fetches one product within the organization
func (s *CatalogStore) GetProduct(ctx context.Context, orgID, productID uint) (*domain.CatalogProduct, error) {
	var product domain.CatalogProduct
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, productID).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs fetches a set of products by id, scoped to the organization
func (s *CatalogStore) GetProductsByIDs(ctx context.Context, orgID uint, ids []uint) (map[uint]domain.CatalogProduct, error) {
	var products []domain.CatalogProduct
	if err := s.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]domain.CatalogProduct, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// UpsertCompetitorRefs bulk-upserts cross-references keyed on
// (organization, competitor_sku); a re-upload repoints existing rows.
func (s *CatalogStore) UpsertCompetitorRefs(ctx context.Context, orgID uint, refs []domain.CompetitorRef) (int, error) {
	for i := range refs {
		refs[i].OrganizationID = orgID
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "competitor_sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id"}),
	}).Create(&refs)
	if res.Error != nil {
		return 0, res.Error
	}
	return len(refs), nil
}

// ListCompetitorRefs returns the organization's cross-references
func (s *CatalogStore) ListCompetitorRefs(ctx context.Context, orgID uint) ([]domain.CompetitorRef, error) {
	var refs []domain.CompetitorRef
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("id").
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}
