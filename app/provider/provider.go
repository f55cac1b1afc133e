package provider

import (
	"context"
	"errors"
)

const EventPaymentCaptured = "payment.captured"

var (
	ErrNotConfigured    = errors.New("provider is not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUpstream         = errors.New("provider request failed")
)

type CreateOrderInput struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type CreateOrderOutput struct {
	OrderID     string
	AmountMinor int64
	Currency    string
	Status      string
}

type WebhookEvent struct {
	EventType string

	PaymentID     string
	OrderID       string
	PaymentStatus string
	AmountMinor   int64
	Currency      string

	Notes map[string]string
}

type CapturedPayment struct {
	PaymentID   string
	OrderID     string
	AmountMinor int64
	Currency    string
	Notes       map[string]string
}

type Provider interface {
	Code() int32
	KeyID() string
	CreateOrder(ctx context.Context, input *CreateOrderInput) (*CreateOrderOutput, error)
	VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
	FetchCapturedPayment(ctx context.Context, orderID string) (*CapturedPayment, error)
}
