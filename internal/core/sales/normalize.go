package sales

import (
	"fmt"
	"strings"

	v1 "github.com/epione-lab/project-epione/internal/api/v1"
)

// ValidationError reports a single invalid field on a raw sale line-item.
// Recoverable: the caller decides whether to skip the record or abort the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sale record: %s %s", e.Field, e.Reason)
}

// Normalize validates a raw sale line-item and canonicalizes it into a Record.
// Pure transformation — no side effects, no defaults beyond UTC conversion.
// Returns a *ValidationError naming the offending field on any violation.
func Normalize(raw v1.Sale) (Record, error) {
	if strings.TrimSpace(raw.ProductID) == "" {
		return Record{}, &ValidationError{Field: "product_id", Reason: "must not be empty"}
	}
	if raw.Timestamp.IsZero() {
		return Record{}, &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if raw.Quantity <= 0 {
		return Record{}, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must be > 0, got %d", raw.Quantity)}
	}
	if raw.UnitPrice.IsNegative() {
		return Record{}, &ValidationError{Field: "unit_price", Reason: fmt.Sprintf("must be >= 0, got %s", raw.UnitPrice)}
	}

	return Record{
		ProductID:   strings.TrimSpace(raw.ProductID),
		Timestamp:   raw.Timestamp.UTC(),
		Quantity:    raw.Quantity,
		UnitPrice:   raw.UnitPrice,
		CustomerKey: raw.CustomerKey,
	}, nil
}
