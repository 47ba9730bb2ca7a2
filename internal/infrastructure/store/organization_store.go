package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/quotedesk/backend/internal/domain"
)

// OrganizationStore persists organizations and their matching/pricing settings
type OrganizationStore struct {
	db *gorm.DB
}

// NewOrganizationStore creates an organization store
func NewOrganizationStore(db *gorm.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

// Create persists a new organization
func (s *OrganizationStore) Create(ctx context.Context, org *domain.Organization) error {
	return s.db.WithContext(ctx).Create(org).Error
}

// GetByID fetches one organization
func (s *OrganizationStore) GetByID(ctx context.Context, id uint) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.WithContext(ctx).First(&org, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}
