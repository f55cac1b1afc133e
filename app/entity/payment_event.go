package entity

// PaymentEvent is an authenticated provider notification. It is never
// persisted verbatim.
type PaymentEvent struct {
	EventType string

	PaymentID string
	OrderID   string

	AmountMinor int64
	Currency    string

	UserID     string
	ResourceID string
}
