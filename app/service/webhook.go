package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
	"github.com/vibast-solutions/ms-go-unlocks/app/factory"
	"github.com/vibast-solutions/ms-go-unlocks/app/provider"
)

type WebhookOutcome int

const (
	OutcomeProcessed WebhookOutcome = iota + 1
	OutcomeIgnored
	OutcomeDuplicate
)

func (o WebhookOutcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type handleWebhookRequest interface {
	GetRequestId() string
	GetProvider() string
	GetSignature() string
	GetPayload() []byte
}

// HandleWebhook authenticates a provider notification and, for captured
// payments, applies the unlock. Redeliveries of an applied capture return
// OutcomeDuplicate without writing.
func (s *UnlockService) HandleWebhook(ctx context.Context, req handleWebhookRequest) (WebhookOutcome, error) {
	l := factory.LoggerWithRequestID(s.logger, req.GetRequestId())

	providerCode, err := provider.ParseCode(req.GetProvider())
	if err != nil {
		return 0, ErrProviderUnsupported
	}
	providerClient, err := s.providerReg.Get(providerCode)
	if err != nil {
		return 0, mapProviderError(err)
	}

	parsed, err := providerClient.VerifyAndParseWebhook(ctx, req.GetPayload(), strings.TrimSpace(req.GetSignature()))
	if err != nil {
		return 0, mapProviderError(err)
	}
	if parsed == nil {
		return 0, fmt.Errorf("%w: empty event", ErrInvalidPayload)
	}

	if parsed.EventType != provider.EventPaymentCaptured {
		l.WithField("event", parsed.EventType).Debug("Ignoring webhook event")
		return OutcomeIgnored, nil
	}

	event := paymentEventFromWebhook(parsed)
	if event.UserID == "" || event.ResourceID == "" {
		return 0, fmt.Errorf("%w: user_id or resource_id missing from notes", ErrInvalidPayload)
	}
	if event.PaymentID == "" {
		return 0, fmt.Errorf("%w: payment id missing", ErrInvalidPayload)
	}

	applied, err := s.applyCapture(ctx, event)
	if err != nil {
		return 0, err
	}

	l = l.WithField("payment_id", event.PaymentID).WithField("resource_id", event.ResourceID)
	if !applied {
		l.Info("Duplicate captured payment ignored")
		return OutcomeDuplicate, nil
	}
	l.Info("Captured payment applied")
	return OutcomeProcessed, nil
}

func paymentEventFromWebhook(parsed *provider.WebhookEvent) *entity.PaymentEvent {
	return &entity.PaymentEvent{
		EventType:   parsed.EventType,
		PaymentID:   strings.TrimSpace(parsed.PaymentID),
		OrderID:     strings.TrimSpace(parsed.OrderID),
		AmountMinor: parsed.AmountMinor,
		Currency:    parsed.Currency,
		UserID:      strings.TrimSpace(parsed.Notes[noteUserID]),
		ResourceID:  strings.TrimSpace(parsed.Notes[noteResourceID]),
	}
}
