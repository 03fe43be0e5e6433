package v1

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is the raw point-of-sale line-item as submitted by a loader.
// It is the wire shape only — validation and canonicalization happen in the
// sales normalizer, which turns it into an immutable sales.Record.
type Sale struct {
	// ProductID identifies the product sold. Required, non-empty.
	ProductID string `json:"product_id"`

	// Timestamp is when the sale happened (client-side clock, any zone;
	// normalized to UTC).
	Timestamp time.Time `json:"timestamp"`

	// Quantity is the number of units sold. Must be > 0.
	Quantity int64 `json:"quantity"`

	// UnitPrice is the per-unit price. Must be >= 0. Exact decimal — never a float.
	UnitPrice decimal.Decimal `json:"unit_price"`

	// CustomerKey is an opaque, optional customer identifier. The engine does
	// no identity resolution on it.
	CustomerKey string `json:"customer_key,omitempty"`
}

// BatchRequest carries a batch of raw sales plus the caller's invalid-record policy.
type BatchRequest struct {
	Records []Sale `json:"records"`

	// OnInvalid selects what happens when a record fails validation:
	// "abort" (default) rejects the whole batch, "skip" drops the bad record
	// and continues. The policy belongs to the caller, not the engine.
	OnInvalid string `json:"on_invalid,omitempty"`
}

// BatchResponse reports the outcome of a batch ingest.
type BatchResponse struct {
	Accepted int          `json:"accepted"`
	Skipped  int          `json:"skipped"`
	Errors   []BatchError `json:"errors,omitempty"`
}

// BatchError ties a validation or ingest failure to the record index it came from.
type BatchError struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}
