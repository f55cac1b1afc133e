package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
	"github.com/vibast-solutions/ms-go-unlocks/app/factory"
	"github.com/vibast-solutions/ms-go-unlocks/app/provider"
	"github.com/vibast-solutions/ms-go-unlocks/config"
)

const (
	defaultBatchSize    = int32(100)
	defaultStoreTimeout = 5 * time.Second

	noteUserID     = "user_id"
	noteResourceID = "resource_id"

	receiptPrefix    = "camp_"
	receiptMaxLength = 40
)

type createOrderRequest interface {
	GetUserId() string
	GetResourceId() string
}

type orderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	ListStaleCreated(ctx context.Context, before, after time.Time, limit int32) ([]*entity.Order, error)
	MarkChecked(ctx context.Context, orderID string, checkedAt time.Time) error
}

type entitlementStore interface {
	ApplyUnlock(ctx context.Context, unlock *entity.Unlock, entitlement *entity.Entitlement) (bool, error)
	FindEntitlement(ctx context.Context, userID string) (*entity.Entitlement, error)
	ListExpiredPremium(ctx context.Context, now time.Time, limit int32) ([]*entity.Entitlement, error)
	Downgrade(ctx context.Context, userID string, now time.Time) (bool, error)
}

type entitlementCache interface {
	Get(ctx context.Context, userID string) (*entity.Entitlement, error)
	Set(ctx context.Context, entitlement *entity.Entitlement) error
	Invalidate(ctx context.Context, userID string) error
}

type UnlockService struct {
	orderRepo   orderRepository
	store       entitlementStore
	cache       entitlementCache
	providerReg *provider.Registry
	unlocksCfg  config.UnlocksConfig
	now         func() time.Time
	logger      logrus.FieldLogger
}

// OrderResult is what the checkout client needs to open the payment sheet.
type OrderResult struct {
	Order       *entity.Order
	KeyID       string
	Description string
}

type EntitlementStatus struct {
	Entitlement   *entity.Entitlement
	Plan          entity.Plan
	Active        bool
	CampaignLimit int32
}

func NewUnlockService(
	orderRepo orderRepository,
	store entitlementStore,
	cache entitlementCache,
	providerReg *provider.Registry,
	unlocksCfg config.UnlocksConfig,
) *UnlockService {
	return &UnlockService{
		orderRepo:   orderRepo,
		store:       store,
		cache:       cache,
		providerReg: providerReg,
		unlocksCfg:  unlocksCfg,
		now:         time.Now,
		logger:      factory.NewModuleLogger("unlocks-service"),
	}
}

func (s *UnlockService) CreateOrder(ctx context.Context, req createOrderRequest) (*OrderResult, error) {
	userID := strings.TrimSpace(req.GetUserId())
	resourceID := strings.TrimSpace(req.GetResourceId())
	if userID == "" || resourceID == "" {
		return nil, fmt.Errorf("%w: user_id and resource_id are required", ErrInvalidRequest)
	}

	pricing := s.unlocksCfg.Pricing
	if pricing.CampaignUnlockAmount <= 0 || strings.TrimSpace(pricing.CampaignUnlockCurrency) == "" {
		return nil, fmt.Errorf("%w: campaign unlock price missing", ErrNotConfigured)
	}

	providerClient, err := s.providerReg.Get(provider.CodeRazorpay)
	if err != nil {
		return nil, mapProviderError(err)
	}

	now := s.now().UTC()
	receipt := receiptToken(resourceID, now)
	out, err := providerClient.CreateOrder(ctx, &provider.CreateOrderInput{
		AmountMinor: pricing.CampaignUnlockAmount,
		Currency:    pricing.CampaignUnlockCurrency,
		Receipt:     receipt,
		Notes: map[string]string{
			noteUserID:     userID,
			noteResourceID: resourceID,
		},
	})
	if err != nil {
		return nil, mapProviderError(err)
	}

	order := &entity.Order{
		OrderID:     out.OrderID,
		Provider:    providerClient.Code(),
		UserID:      userID,
		ResourceID:  resourceID,
		AmountMinor: pricing.CampaignUnlockAmount,
		Currency:    strings.ToUpper(pricing.CampaignUnlockCurrency),
		Receipt:     receipt,
		Status:      entity.OrderStatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.persistOrder(ctx, order)

	return &OrderResult{
		Order:       order,
		KeyID:       providerClient.KeyID(),
		Description: pricing.CampaignUnlockDescription,
	}, nil
}

// The provider already holds the order, so a local write failure only
// costs reconciliation coverage.
func (s *UnlockService) persistOrder(ctx context.Context, order *entity.Order) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.orderRepo.Create(storeCtx, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.OrderID).Warn("Persist order failed")
	}
}

func (s *UnlockService) GetEntitlement(ctx context.Context, userID string) (*EntitlementStatus, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	now := s.now().UTC()
	item, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Entitlement cache read failed")
		item = nil
	}

	if item == nil {
		storeCtx, cancel := s.storeContext(ctx)
		item, err = s.store.FindEntitlement(storeCtx, userID)
		cancel()
		if err != nil {
			return nil, err
		}
		if item == nil {
			item = entity.FreeEntitlement(userID, now)
		} else if err := s.cache.Set(ctx, item); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Entitlement cache write failed")
		}
	}

	view := *item
	if view.CampaignCountPeriod != entity.CampaignPeriod(now) {
		view.CampaignCount = 0
		view.CampaignCountPeriod = entity.CampaignPeriod(now)
	}

	plan := view.EffectivePlan(now)
	return &EntitlementStatus{
		Entitlement:   &view,
		Plan:          plan,
		Active:        view.Active(now),
		CampaignLimit: s.unlocksCfg.Plans.Limits(string(plan)).CampaignLimit,
	}, nil
}

// applyCapture writes the unlock and the premium upgrade. It reports false
// when the capture was already applied.
func (s *UnlockService) applyCapture(ctx context.Context, event *entity.PaymentEvent) (bool, error) {
	now := s.now().UTC()
	expiry := now.Add(s.unlocksCfg.Plans.RenewalWindow())

	var orderID *string
	if event.OrderID != "" {
		id := event.OrderID
		orderID = &id
	}

	unlock := &entity.Unlock{
		UserID:      event.UserID,
		ResourceID:  event.ResourceID,
		PaymentID:   event.PaymentID,
		OrderID:     orderID,
		AmountMinor: event.AmountMinor,
		Currency:    strings.ToUpper(event.Currency),
		Status:      entity.UnlockStatusPaid,
		CreatedAt:   now,
	}
	entitlement := &entity.Entitlement{
		UserID:              event.UserID,
		Plan:                entity.PlanPremium,
		SubscriptionExpiry:  &expiry,
		CampaignCount:       0,
		CampaignCountPeriod: entity.CampaignPeriod(now),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	applied, err := s.store.ApplyUnlock(storeCtx, unlock, entitlement)
	if err != nil {
		return false, err
	}
	if applied {
		s.invalidateEntitlement(ctx, event.UserID)
	}
	return applied, nil
}

func (s *UnlockService) invalidateEntitlement(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Entitlement cache invalidation failed")
	}
}

func (s *UnlockService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.unlocksCfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *UnlockService) batchSize() int32 {
	if s.unlocksCfg.JobBatchSize > 0 {
		return s.unlocksCfg.JobBatchSize
	}
	return defaultBatchSize
}

func mapProviderError(err error) error {
	switch {
	case errors.Is(err, provider.ErrProviderNotSupported):
		return ErrProviderUnsupported
	case errors.Is(err, provider.ErrNotConfigured):
		return fmt.Errorf("%w: %w", ErrNotConfigured, err)
	case errors.Is(err, provider.ErrInvalidSignature):
		return ErrCallbackRejected
	case errors.Is(err, provider.ErrMalformedPayload):
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	case errors.Is(err, provider.ErrUpstream):
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	default:
		return err
	}
}

// receiptToken keeps the _<unix> suffix and shortens the resource id to fit
// the provider's receipt limit.
func receiptToken(resourceID string, now time.Time) string {
	suffix := "_" + strconv.FormatInt(now.Unix(), 10)
	return receiptPrefix + truncateRunes(resourceID, receiptMaxLength-len(receiptPrefix)-len(suffix)) + suffix
}

// truncateRunes cuts value to at most max bytes without splitting a rune.
func truncateRunes(value string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(value) <= max {
		return value
	}
	cut := 0
	for i := range value {
		if i > max {
			break
		}
		cut = i
	}
	return value[:cut]
}
