package entity

import "time"

const UnlockStatusPaid = "paid"

// Unlock is unique on (ResourceID, PaymentID).
type Unlock struct {
	ID uint64

	UserID     string
	ResourceID string
	PaymentID  string
	OrderID    *string

	AmountMinor int64
	Currency    string
	Status      string

	CreatedAt time.Time
}
