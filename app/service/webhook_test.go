package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
	"github.com/vibast-solutions/ms-go-unlocks/app/provider"
)

const capturedBody = `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":49900,"currency":"INR","status":"captured","notes":{"user_id":"u1","resource_id":"c1"}}}}}`

func TestHandleWebhookAppliesCapturedPayment(t *testing.T) {
	svc, deps := newTestService(nil)
	deps.cache.items["u1"] = &entity.Entitlement{UserID: "u1", Plan: entity.PlanFree}

	outcome, err := svc.HandleWebhook(context.Background(), signedWebhook(capturedBody))
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}

	unlock := deps.store.unlocks["c1|pay_1"]
	if unlock == nil || unlock.UserID != "u1" || unlock.Status != entity.UnlockStatusPaid {
		t.Fatalf("unexpected unlock: %+v", unlock)
	}
	if unlock.OrderID == nil || *unlock.OrderID != "order_1" || unlock.AmountMinor != 49900 {
		t.Fatalf("unexpected unlock payment fields: %+v", unlock)
	}

	ent := deps.store.entitlements["u1"]
	if ent == nil || ent.Plan != entity.PlanPremium || ent.CampaignCount != 0 {
		t.Fatalf("unexpected entitlement: %+v", ent)
	}
	wantExpiry := testNow.Add(30 * 24 * time.Hour)
	if ent.SubscriptionExpiry == nil || !ent.SubscriptionExpiry.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, ent.SubscriptionExpiry)
	}
	if ent.SubscriptionExpiry.Location() != time.UTC {
		t.Fatal("expected expiry in UTC")
	}
	if _, cached := deps.cache.items["u1"]; cached {
		t.Fatal("expected cached entitlement to be invalidated")
	}
}

func TestHandleWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	svc, deps := newTestService(nil)
	req := signedWebhook(capturedBody)

	if _, err := svc.HandleWebhook(context.Background(), req); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	first := *deps.store.entitlements["u1"]
	writes := deps.store.writes

	svc.now = func() time.Time { return testNow.Add(time.Hour) }
	outcome, err := svc.HandleWebhook(context.Background(), req)
	if err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", outcome)
	}
	if len(deps.store.unlocks) != 1 {
		t.Fatalf("expected one unlock row, got %d", len(deps.store.unlocks))
	}
	if deps.store.writes != writes {
		t.Fatal("expected no writes on duplicate delivery")
	}
	if !deps.store.entitlements["u1"].SubscriptionExpiry.Equal(*first.SubscriptionExpiry) {
		t.Fatal("expected expiry unchanged by duplicate delivery")
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc, deps := newTestService(nil)
	req := signedWebhook(capturedBody)
	req.signature = provider.Sign(req.payload, "wrong-secret")

	if _, err := svc.HandleWebhook(context.Background(), req); !errors.Is(err, ErrCallbackRejected) {
		t.Fatalf("expected ErrCallbackRejected, got %v", err)
	}
	if deps.store.writes != 0 || len(deps.cache.invalidated) != 0 {
		t.Fatal("expected no state change for rejected webhook")
	}

	req.signature = ""
	if _, err := svc.HandleWebhook(context.Background(), req); !errors.Is(err, ErrCallbackRejected) {
		t.Fatalf("expected ErrCallbackRejected for missing signature, got %v", err)
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	svc, deps := newTestService(nil)

	for _, body := range []string{
		`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","notes":{"user_id":"u1","resource_id":"c1"}}}}}`,
		`{"event":"order.paid","payload":{}}`,
		`{"event":"payment.authorized"}`,
	} {
		outcome, err := svc.HandleWebhook(context.Background(), signedWebhook(body))
		if err != nil {
			t.Fatalf("expected no error for %s, got %v", body, err)
		}
		if outcome != OutcomeIgnored {
			t.Fatalf("expected ignored for %s, got %s", body, outcome)
		}
	}
	if deps.store.writes != 0 || len(deps.store.entitlements) != 0 {
		t.Fatal("expected no mutation for non-captured events")
	}
}

func TestHandleWebhookRequiresNotes(t *testing.T) {
	svc, deps := newTestService(nil)

	for _, body := range []string{
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","notes":{"user_id":"u1"}}}}}`,
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","notes":[]}}}}`,
		`{"event":"payment.captured","payload":{"payment":{"entity":{"notes":{"user_id":"u1","resource_id":"c1"}}}}}`,
	} {
		if _, err := svc.HandleWebhook(context.Background(), signedWebhook(body)); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload for %s, got %v", body, err)
		}
	}
	if deps.store.writes != 0 {
		t.Fatal("expected no writes for invalid payloads")
	}
}

func TestHandleWebhookMalformedJSON(t *testing.T) {
	svc, _ := newTestService(nil)
	if _, err := svc.HandleWebhook(context.Background(), signedWebhook(`{"event":`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestHandleWebhookMissingSecretIsConfigurationError(t *testing.T) {
	svc, _ := newTestService(provider.NewRazorpayProvider(provider.RazorpayConfig{}))
	if _, err := svc.HandleWebhook(context.Background(), signedWebhook(capturedBody)); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHandleWebhookUnsupportedProvider(t *testing.T) {
	svc, _ := newTestService(nil)
	req := signedWebhook(capturedBody)
	req.provider = "stripe"

	if _, err := svc.HandleWebhook(context.Background(), req); !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestHandleWebhookStoreFailureSurfaces(t *testing.T) {
	svc, deps := newTestService(nil)
	storeErr := errors.New("deadlock found")
	deps.store.applyErr = storeErr

	if _, err := svc.HandleWebhook(context.Background(), signedWebhook(capturedBody)); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(deps.cache.invalidated) != 0 {
		t.Fatal("expected cache untouched on failed apply")
	}
}
