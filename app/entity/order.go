package entity

import "time"

const (
	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
)

// Order is immutable once created except for the status flip to paid and
// the reconcile bookkeeping in LastCheckedAt.
type Order struct {
	ID uint64

	OrderID  string
	Provider int32

	UserID     string
	ResourceID string

	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string

	LastCheckedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
