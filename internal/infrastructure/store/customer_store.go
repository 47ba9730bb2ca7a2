package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/quotedesk/backend/internal/domain"
	"github.com/quotedesk/backend/internal/usecase"
)

// CustomerStore persists customers. The (organization, name_norm) unique
// index is the real dedup guard: two concurrent creates for the same name
// race at the insert, and the loser gets the winner's row back.
type CustomerStore struct {
	db *gorm.DB
}

// NewCustomerStore creates a customer store
func NewCustomerStore(db *gorm.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// FindOrCreate returns the customer with the given normalized name, creating
// it when absent. A unique-constraint failure on insert means another
// request won the race; that is the expected outcome, not an error, and the
// winner's record is fetched and returned.
func (s *CustomerStore) FindOrCreate(ctx context.Context, orgID uint, name, email string) (*domain.Customer, error) {
	norm := usecase.Normalize(name)
	if norm == "" {
		return nil, domain.NewValidationError("name", "must not be empty after normalization")
	}

	var existing domain.Customer
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND name_norm = ?", orgID, norm).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	customer := domain.Customer{
		OrganizationID: orgID,
		Name:           name,
		NameNorm:       norm,
		Email:          email,
	}
	if err := s.db.WithContext(ctx).Create(&customer).Error; err != nil {
		// Lost the insert race; the unique index guarantees exactly one
		// row exists now, so return it.
		var winner domain.Customer
		if ferr := s.db.WithContext(ctx).
			Where("organization_id = ? AND name_norm = ?", orgID, norm).
			First(&winner).Error; ferr == nil {
			return &winner, nil
		}
		return nil, err
	}
	return &customer, nil
}

// GetByID fetches one customer within the organization
func (s *CustomerStore) GetByID(ctx context.Context, orgID, id uint) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
