package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
	"github.com/vibast-solutions/ms-go-unlocks/app/provider"
	"github.com/vibast-solutions/ms-go-unlocks/config"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const testWebhookSecret = "whsec_test"

type fakeOrderRepo struct {
	orders    []*entity.Order
	createErr error
	stale     []*entity.Order
	checked   []string
}

func (r *fakeOrderRepo) Create(_ context.Context, order *entity.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	copyItem := *order
	r.orders = append(r.orders, &copyItem)
	return nil
}

// ListStaleCreated mirrors the SQL ordering: never-checked first, then by
// last check, then by creation time.
func (r *fakeOrderRepo) ListStaleCreated(_ context.Context, _, _ time.Time, limit int32) ([]*entity.Order, error) {
	items := append([]*entity.Order(nil), r.stale...)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.LastCheckedAt == nil) != (b.LastCheckedAt == nil) {
			return a.LastCheckedAt == nil
		}
		if a.LastCheckedAt != nil && !a.LastCheckedAt.Equal(*b.LastCheckedAt) {
			return a.LastCheckedAt.Before(*b.LastCheckedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeOrderRepo) MarkChecked(_ context.Context, orderID string, checkedAt time.Time) error {
	r.checked = append(r.checked, orderID)
	for _, order := range r.stale {
		if order.OrderID == orderID {
			at := checkedAt
			order.LastCheckedAt = &at
		}
	}
	return nil
}

type fakeStore struct {
	unlocks      map[string]*entity.Unlock
	entitlements map[string]*entity.Entitlement
	writes       int
	applyErr     error
	downgraded   []string
	afterFind    func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		unlocks:      map[string]*entity.Unlock{},
		entitlements: map[string]*entity.Entitlement{},
	}
}

func (s *fakeStore) ApplyUnlock(ctx context.Context, unlock *entity.Unlock, entitlement *entity.Entitlement) (bool, error) {
	if s.applyErr != nil {
		return false, s.applyErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return false, errors.New("store call without deadline")
	}
	key := unlock.ResourceID + "|" + unlock.PaymentID
	if _, ok := s.unlocks[key]; ok {
		return false, nil
	}
	u := *unlock
	e := *entitlement
	s.unlocks[key] = &u
	s.entitlements[entitlement.UserID] = &e
	s.writes += 2
	return true, nil
}

func (s *fakeStore) FindEntitlement(_ context.Context, userID string) (*entity.Entitlement, error) {
	item, ok := s.entitlements[userID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	if s.afterFind != nil {
		hook := s.afterFind
		s.afterFind = nil
		hook()
	}
	return &copyItem, nil
}

func (s *fakeStore) ListExpiredPremium(_ context.Context, now time.Time, _ int32) ([]*entity.Entitlement, error) {
	items := make([]*entity.Entitlement, 0)
	for _, item := range s.entitlements {
		if item.Plan == entity.PlanPremium && item.SubscriptionExpiry != nil && !item.SubscriptionExpiry.After(now) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

func (s *fakeStore) Downgrade(_ context.Context, userID string, now time.Time) (bool, error) {
	item, ok := s.entitlements[userID]
	if !ok || item.Plan != entity.PlanPremium {
		return false, nil
	}
	item.Plan = entity.PlanFree
	item.UpdatedAt = now
	s.writes++
	s.downgraded = append(s.downgraded, userID)
	return true, nil
}

// fakeCache keeps invalidated keys held, like the redis marker, so a late
// Set from a slow reader is dropped.
type fakeCache struct {
	items       map[string]*entity.Entitlement
	held        map[string]bool
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string]*entity.Entitlement{}, held: map[string]bool{}}
}

func (c *fakeCache) Get(_ context.Context, userID string) (*entity.Entitlement, error) {
	item, ok := c.items[userID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (c *fakeCache) Set(_ context.Context, entitlement *entity.Entitlement) error {
	if c.held[entitlement.UserID] {
		return nil
	}
	copyItem := *entitlement
	c.items[entitlement.UserID] = &copyItem
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	delete(c.items, userID)
	c.held[userID] = true
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type fakeProvider struct {
	keyID       string
	lastInput   *provider.CreateOrderInput
	createErr   error
	orderID     string
	captured    map[string]*provider.CapturedPayment
	fetchErr    error
	fetchCalled []string
}

func (p *fakeProvider) Code() int32 {
	return provider.CodeRazorpay
}

func (p *fakeProvider) KeyID() string {
	return p.keyID
}

func (p *fakeProvider) CreateOrder(_ context.Context, input *provider.CreateOrderInput) (*provider.CreateOrderOutput, error) {
	p.lastInput = input
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &provider.CreateOrderOutput{
		OrderID:     p.orderID,
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Status:      "created",
	}, nil
}

func (p *fakeProvider) VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*provider.WebhookEvent, error) {
	return provider.NewRazorpayProvider(provider.RazorpayConfig{WebhookSecret: testWebhookSecret}).
		VerifyAndParseWebhook(ctx, payload, signature)
}

func (p *fakeProvider) FetchCapturedPayment(_ context.Context, orderID string) (*provider.CapturedPayment, error) {
	p.fetchCalled = append(p.fetchCalled, orderID)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.captured[orderID], nil
}

func testUnlocksConfig() config.UnlocksConfig {
	return config.UnlocksConfig{
		Pricing: config.PricingConfig{
			CampaignUnlockAmount:      49900,
			CampaignUnlockCurrency:    "INR",
			CampaignUnlockDescription: "Lead magnet campaign unlock",
		},
		Plans: config.PlansConfig{
			Free:        config.PlanLimits{CampaignLimit: 1},
			Premium:     config.PlanLimits{CampaignLimit: 50},
			RenewalDays: 30,
		},
		StoreTimeout:        time.Second,
		ReconcileStaleAfter: 15 * time.Minute,
		ReconcileMaxAge:     48 * time.Hour,
		JobBatchSize:        10,
	}
}

type testDeps struct {
	orders   *fakeOrderRepo
	store    *fakeStore
	cache    *fakeCache
	provider *fakeProvider
}

func newTestService(p provider.Provider) (*UnlockService, *testDeps) {
	deps := &testDeps{
		orders: &fakeOrderRepo{},
		store:  newFakeStore(),
		cache:  newFakeCache(),
	}
	if p == nil {
		deps.provider = &fakeProvider{keyID: "rzp_test_key", orderID: "order_1", captured: map[string]*provider.CapturedPayment{}}
		p = deps.provider
	}

	svc := NewUnlockService(deps.orders, deps.store, deps.cache, provider.NewRegistry(p), testUnlocksConfig())
	svc.now = func() time.Time { return testNow }
	return svc, deps
}

type webhookRequest struct {
	provider  string
	signature string
	payload   []byte
}

func (r *webhookRequest) GetRequestId() string { return "req-1" }
func (r *webhookRequest) GetProvider() string  { return r.provider }
func (r *webhookRequest) GetSignature() string { return r.signature }
func (r *webhookRequest) GetPayload() []byte   { return r.payload }

func signedWebhook(body string) *webhookRequest {
	payload := []byte(body)
	return &webhookRequest{
		provider:  "razorpay",
		signature: provider.Sign(payload, testWebhookSecret),
		payload:   payload,
	}
}

type orderRequest struct {
	userID     string
	resourceID string
}

func (r *orderRequest) GetUserId() string     { return r.userID }
func (r *orderRequest) GetResourceId() string { return r.resourceID }
