package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrganizationNotFound is returned when the organization does not exist
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrQuoteNotFound is returned when a quote cannot be found
	ErrQuoteNotFound = errors.New("quote not found")

	// ErrQuoteItemNotFound is returned when a quote item cannot be found
	ErrQuoteItemNotFound = errors.New("quote item not found")

	// ErrProductNotFound is returned when a catalog product cannot be found
	ErrProductNotFound = errors.New("catalog product not found")

	// ErrCustomerNotFound is returned when a customer cannot be found
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// ValidationError reports a rejected input field. Totals and quote mutations
// fail with it before any computation or write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
