package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
	"github.com/vibast-solutions/ms-go-unlocks/app/provider"
)

func TestRunReconcileBatchAppliesCapturedOrders(t *testing.T) {
	svc, deps := newTestService(nil)
	deps.orders.stale = []*entity.Order{
		{OrderID: "order_1", Provider: provider.CodeRazorpay, UserID: "u1", ResourceID: "c1", AmountMinor: 49900, Currency: "INR"},
		{OrderID: "order_2", Provider: provider.CodeRazorpay, UserID: "u2", ResourceID: "c2", AmountMinor: 49900, Currency: "INR"},
	}
	deps.provider.captured["order_1"] = &provider.CapturedPayment{PaymentID: "pay_1", OrderID: "order_1", AmountMinor: 49900, Currency: "INR", Notes: map[string]string{}}

	if err := svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(deps.provider.fetchCalled) != 2 {
		t.Fatalf("expected both orders checked, got %v", deps.provider.fetchCalled)
	}
	unlock := deps.store.unlocks["c1|pay_1"]
	if unlock == nil || unlock.UserID != "u1" {
		t.Fatalf("expected reconciled unlock from order fields, got %+v", unlock)
	}
	if _, ok := deps.store.entitlements["u2"]; ok {
		t.Fatal("expected uncaptured order to be left alone")
	}

	if err := svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if len(deps.store.unlocks) != 1 {
		t.Fatalf("expected reconcile to be idempotent, got %d unlocks", len(deps.store.unlocks))
	}
}

func TestRunReconcileBatchRotatesUnpaidOrders(t *testing.T) {
	svc, deps := newTestService(nil)
	svc.unlocksCfg.JobBatchSize = 3

	created := testNow.Add(-40 * time.Hour)
	for _, id := range []string{"order_a", "order_b", "order_c"} {
		deps.orders.stale = append(deps.orders.stale, &entity.Order{
			OrderID: id, Provider: provider.CodeRazorpay, UserID: "u-" + id, ResourceID: "c-" + id, CreatedAt: created,
		})
	}
	deps.orders.stale = append(deps.orders.stale, &entity.Order{
		OrderID: "order_paid", Provider: provider.CodeRazorpay, UserID: "u-paid", ResourceID: "c-paid", CreatedAt: testNow.Add(-time.Hour),
	})
	deps.provider.captured["order_paid"] = &provider.CapturedPayment{PaymentID: "pay_paid", OrderID: "order_paid", AmountMinor: 49900, Currency: "INR"}

	if err := svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	if len(deps.store.unlocks) != 0 {
		t.Fatalf("expected first batch to hold only unpaid orders, got %d unlocks", len(deps.store.unlocks))
	}
	if len(deps.orders.checked) != 3 {
		t.Fatalf("expected unpaid orders marked checked, got %v", deps.orders.checked)
	}

	svc.now = func() time.Time { return testNow.Add(5 * time.Minute) }
	if err := svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if deps.provider.fetchCalled[3] != "order_paid" {
		t.Fatalf("expected paid order to lead the second batch, got %v", deps.provider.fetchCalled)
	}
	if unlock := deps.store.unlocks["c-paid|pay_paid"]; unlock == nil || unlock.UserID != "u-paid" {
		t.Fatalf("expected paid order reconciled, got %+v", deps.store.unlocks)
	}
	for _, id := range deps.orders.checked {
		if id == "order_paid" {
			t.Fatal("expected applied order not to be marked checked")
		}
	}
}

func TestRunReconcileBatchKeepsGoingOnProviderError(t *testing.T) {
	svc, deps := newTestService(nil)
	deps.orders.stale = []*entity.Order{
		{OrderID: "order_1", Provider: provider.CodeRazorpay},
		{OrderID: "order_2", Provider: provider.CodeRazorpay},
	}
	deps.provider.fetchErr = provider.ErrUpstream

	err := svc.RunReconcileBatch(context.Background())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if len(deps.provider.fetchCalled) != 2 {
		t.Fatalf("expected every order attempted, got %v", deps.provider.fetchCalled)
	}
}

func TestRunExpireSubscriptionsBatch(t *testing.T) {
	svc, deps := newTestService(nil)

	lapsed := testNow.Add(-time.Minute)
	active := testNow.Add(time.Hour)
	deps.store.entitlements["lapsed"] = &entity.Entitlement{UserID: "lapsed", Plan: entity.PlanPremium, SubscriptionExpiry: &lapsed}
	deps.store.entitlements["active"] = &entity.Entitlement{UserID: "active", Plan: entity.PlanPremium, SubscriptionExpiry: &active}

	if err := svc.RunExpireSubscriptionsBatch(context.Background()); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if deps.store.entitlements["lapsed"].Plan != entity.PlanFree {
		t.Fatal("expected lapsed user downgraded")
	}
	if deps.store.entitlements["active"].Plan != entity.PlanPremium {
		t.Fatal("expected active user untouched")
	}
	if len(deps.cache.invalidated) != 1 || deps.cache.invalidated[0] != "lapsed" {
		t.Fatalf("expected cache invalidated for lapsed user, got %v", deps.cache.invalidated)
	}
}
