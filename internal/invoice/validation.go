package invoice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/facturia/facturia/internal/shared"
)

// Domain errors for invoice drafts.
var (
	ErrNoItems           = errors.New("at least one item is required")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrNegativePrice     = errors.New("unit price cannot be negative")
	ErrEmptyItemName     = errors.New("item name is required")
	ErrInvalidPOS        = errors.New("point of sale must be positive")
	ErrInvalidClock      = errors.New("time must be HH:MM")
	ErrFutureProductDate = errors.New("the authority rejects product invoices dated in the future; change the concept to services or use today's date")
)

// Validate checks structural and business rules of a complete draft against
// the business-local date today. Structural problems wrap
// shared.ErrInvalidRequest; rule violations wrap shared.ErrValidationRejected.
func Validate(d Draft, today Date) error {
	if len(d.Items) == 0 {
		return fmt.Errorf("%w: %w", shared.ErrInvalidRequest, ErrNoItems)
	}
	for i, item := range d.Items {
		switch {
		case strings.TrimSpace(item.Name) == "":
			return fmt.Errorf("%w: item %d: %w", shared.ErrInvalidRequest, i+1, ErrEmptyItemName)
		case !item.Quantity.IsPositive():
			return fmt.Errorf("%w: item %d: %w", shared.ErrInvalidRequest, i+1, ErrInvalidQuantity)
		case item.UnitPrice.IsNegative():
			return fmt.Errorf("%w: item %d: %w", shared.ErrInvalidRequest, i+1, ErrNegativePrice)
		}
	}
	if d.PointOfSale <= 0 {
		return fmt.Errorf("%w: %w", shared.ErrInvalidRequest, ErrInvalidPOS)
	}
	if d.Time != "" && !ValidClock(d.Time) {
		return fmt.Errorf("%w: %w", shared.ErrInvalidRequest, ErrInvalidClock)
	}
	if d.Concept.Code() == ConceptCodeProducts && d.Date.After(today) {
		return fmt.Errorf("%w: %w", shared.ErrValidationRejected, ErrFutureProductDate)
	}
	return nil
}
