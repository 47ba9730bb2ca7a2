package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/quotedesk/backend/internal/domain"
)

// Default pricing settings, overridable per organization
var defaultMarginThreshold = decimal.NewFromFloat(0.15)

// moneyPlaces is the scale for all monetary amounts
const moneyPlaces = 2

// TotalsConfig holds configuration for the totals service
type TotalsConfig struct {
	MarginThreshold float64
	DefaultTaxRate  float64
}

// TotalsService recomputes quote totals and margin flags. All methods are
// pure: they validate, compute, and return, with no side effects beyond the
// mutated item TotalPrice fields the caller passed in.
type TotalsService struct {
	marginThreshold decimal.Decimal
	defaultTaxRate  decimal.Decimal
}

// NewTotalsService creates a totals service with the given configuration
func NewTotalsService(config TotalsConfig) *TotalsService {
	threshold := defaultMarginThreshold
	if config.MarginThreshold > 0 && config.MarginThreshold < 1 {
		threshold = decimal.NewFromFloat(config.MarginThreshold)
	}
	taxRate := decimal.Zero
	if config.DefaultTaxRate > 0 {
		taxRate = decimal.NewFromFloat(config.DefaultTaxRate)
	}
	return &TotalsService{marginThreshold: threshold, defaultTaxRate: taxRate}
}

// TaxRate returns the effective tax rate for an organization: the
// organization's own setting when present, the configured default otherwise.
func (s *TotalsService) TaxRate(org *domain.Organization) decimal.Decimal {
	if org != nil && org.DefaultTaxRate.IsPositive() {
		return org.DefaultTaxRate
	}
	return s.defaultTaxRate
}

// Recompute derives per-line totals and the quote's subtotal, tax amount and
// total from the full item list. It always runs over the whole list rather
// than patching totals incrementally, so delete+add sequences can never
// leave a stale amount behind.
//
// Per-line totals and the tax amount round half-up to two decimal places,
// matching invoicing convention. Rejects non-positive quantities and
// negative unit prices with a ValidationError before computing anything.
func (s *TotalsService) Recompute(items []domain.QuoteItem, taxRate decimal.Decimal) (domain.QuoteTotals, error) {
	if err := ValidateItems(items); err != nil {
		return domain.QuoteTotals{}, err
	}
	if taxRate.IsNegative() {
		return domain.QuoteTotals{}, domain.NewValidationError("taxRate", "must not be negative")
	}

	subtotal := decimal.Zero
	for i := range items {
		line := items[i].Quantity.Mul(items[i].UnitPrice).Round(moneyPlaces)
		items[i].TotalPrice = line
		subtotal = subtotal.Add(line)
	}

	taxAmount := subtotal.Mul(taxRate).Round(moneyPlaces)
	return domain.QuoteTotals{
		Subtotal:  subtotal,
		TaxAmount: taxAmount,
		Total:     subtotal.Add(taxAmount),
	}, nil
}

// ValidateItems rejects quantities that are not strictly positive and unit
// prices that are negative. Nothing is clamped; bad input fails loudly.
func ValidateItems(items []domain.QuoteItem) error {
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			return domain.NewValidationError("quantity", "must be greater than zero")
		}
		if item.UnitPrice.IsNegative() {
			return domain.NewValidationError("unitPrice", "must not be negative")
		}
	}
	return nil
}

// MarginFlags returns the items whose margin falls below the threshold.
// Margin is (unitPrice - cost) / unitPrice against the linked product's
// cost. A product without a cost means margin unknown, never flagged.
func (s *TotalsService) MarginFlags(items []domain.QuoteItem, products map[uint]domain.CatalogProduct, org *domain.Organization) []domain.MarginFlag {
	threshold := s.marginThreshold
	if org != nil && org.MarginThreshold > 0 && org.MarginThreshold < 1 {
		threshold = decimal.NewFromFloat(org.MarginThreshold)
	}

	var flags []domain.MarginFlag
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		product, ok := products[*item.ProductID]
		if !ok || product.Cost == nil {
			continue
		}
		if !item.UnitPrice.IsPositive() {
			// Selling at zero with a known cost is always below margin
			flags = append(flags, domain.MarginFlag{
				ItemID:    item.ID,
				ProductID: product.ID,
				MarginPct: decimal.Zero,
			})
			continue
		}
		marginPct := item.UnitPrice.Sub(*product.Cost).Div(item.UnitPrice)
		if marginPct.LessThan(threshold) {
			flags = append(flags, domain.MarginFlag{
				ItemID:    item.ID,
				ProductID: product.ID,
				MarginPct: marginPct,
			})
		}
	}
	return flags
}
