package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is a validated, canonicalized sale line-item.
// Immutable once produced by Normalize — the aggregator reads it, never mutates it.
type Record struct {
	// ID is the server-assigned identifier for this line-item. Assigned at
	// ingest time; not part of the normalization contract.
	ID string

	// ProductID identifies the product sold. Non-empty after normalization.
	ProductID string

	// Timestamp is the sale instant, always UTC after normalization.
	Timestamp time.Time

	// Quantity is the number of units sold. Always > 0 after normalization.
	Quantity int64

	// UnitPrice is the per-unit price. Always >= 0 after normalization.
	UnitPrice decimal.Decimal

	// CustomerKey is an opaque optional customer identifier.
	CustomerKey string
}

// Revenue returns quantity * unitPrice in exact decimal arithmetic.
func (r Record) Revenue() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(r.Quantity))
}
