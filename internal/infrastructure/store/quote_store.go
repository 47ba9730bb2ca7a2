package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/quotedesk/backend/internal/domain"
)

// QuoteStore persists quotes and their items. Item-list writes replace the
// whole list together with the recomputed totals in one transaction, so a
// reader never observes items and totals from different revisions.
type QuoteStore struct {
	db *gorm.DB
}

// NewQuoteStore creates a quote store
func NewQuoteStore(db *gorm.DB) *QuoteStore {
	return &QuoteStore{db: db}
}

// CreateWithIdempotency persists the quote and, when it has a source email,
// its ProcessedEmail marker in one transaction. The (organization,
// source_email_id) unique index arbitrates double submits: the loser's
// transaction rolls back and the winner's quote is returned with
// created=false.
func (s *QuoteStore) CreateWithIdempotency(ctx context.Context, quote *domain.Quote) (*domain.Quote, bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(quote).Error; err != nil {
			return err
		}
		if quote.SourceEmailID != nil {
			marker := domain.ProcessedEmail{
				OrganizationID: quote.OrganizationID,
				SourceEmailID:  *quote.SourceEmailID,
				QuoteID:        quote.ID,
			}
			if err := tx.Create(&marker).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return quote, true, nil
	}

	// A failed insert with a source email set is the expected loss of an
	// idempotency race; resolve to the winner's quote.
	if quote.SourceEmailID != nil {
		if winner, ferr := s.FindBySourceEmail(ctx, quote.OrganizationID, *quote.SourceEmailID); ferr == nil && winner != nil {
			return winner, false, nil
		}
	}
	return nil, false, err
}

// GetByID fetches a quote with its items in position order
func (s *QuoteStore) GetByID(ctx context.Context, orgID, quoteID uint) (*domain.Quote, error) {
	var quote domain.Quote
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		Where("organization_id = ? AND id = ?", orgID, quoteID).
		First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// ReplaceItems swaps the quote's item list and totals atomically. The old
// rows are deleted and the list re-inserted, so every item gets a fresh ID;
// callers work from the quote state this call leaves behind.
func (s *QuoteStore) ReplaceItems(ctx context.Context, quote *domain.Quote) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("quote_id = ?", quote.ID).Delete(&domain.QuoteItem{}).Error; err != nil {
			return err
		}
		for i := range quote.Items {
			quote.Items[i].ID = 0
			quote.Items[i].QuoteID = quote.ID
		}
		if len(quote.Items) > 0 {
			if err := tx.Create(&quote.Items).Error; err != nil {
				return err
			}
		}
		return tx.Model(&domain.Quote{}).
			Where("id = ?", quote.ID).
			Updates(map[string]any{
				"subtotal":   quote.Subtotal,
				"tax_amount": quote.TaxAmount,
				"total":      quote.Total,
			}).Error
	})
}

// UpdateItem saves one quote item; used by batch auto-match where each
// item's write stands alone
func (s *QuoteStore) UpdateItem(ctx context.Context, item *domain.QuoteItem) error {
	return s.db.WithContext(ctx).Save(item).Error
}

// UpdateTotals persists recomputed totals for a quote
func (s *QuoteStore) UpdateTotals(ctx context.Context, orgID, quoteID uint, totals domain.QuoteTotals) error {
	res := s.db.WithContext(ctx).Model(&domain.Quote{}).
		Where("organization_id = ? AND id = ?", orgID, quoteID).
		Updates(map[string]any{
			"subtotal":   totals.Subtotal,
			"tax_amount": totals.TaxAmount,
			"total":      totals.Total,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrQuoteNotFound
	}
	return nil
}

// FindBySourceEmail resolves a processed source email to its quote
func (s *QuoteStore) FindBySourceEmail(ctx context.Context, orgID uint, sourceEmailID string) (*domain.Quote, error) {
	var marker domain.ProcessedEmail
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND source_email_id = ?", orgID, sourceEmailID).
		First(&marker).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, orgID, marker.QuoteID)
}
