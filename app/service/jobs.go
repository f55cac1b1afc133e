package service

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
	"github.com/vibast-solutions/ms-go-unlocks/app/provider"
)

// RunReconcileBatch asks the provider about orders that never produced a
// webhook and applies any captured payment through the same idempotent path.
func (s *UnlockService) RunReconcileBatch(ctx context.Context) error {
	now := s.now().UTC()
	before := now.Add(-s.unlocksCfg.ReconcileStaleAfter)
	after := now.Add(-s.unlocksCfg.ReconcileMaxAge)

	storeCtx, cancel := s.storeContext(ctx)
	items, err := s.orderRepo.ListStaleCreated(storeCtx, before, after, s.batchSize())
	cancel()
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range items {
		if order == nil || strings.TrimSpace(order.OrderID) == "" {
			continue
		}

		applied, err := s.reconcileOrder(ctx, order)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
		if applied {
			continue
		}

		// Unpaid and failing orders move to the back of the queue so they
		// cannot hold the batch against newer orders.
		storeCtx, cancel := s.storeContext(ctx)
		err = s.orderRepo.MarkChecked(storeCtx, order.OrderID, now)
		cancel()
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *UnlockService) reconcileOrder(ctx context.Context, order *entity.Order) (bool, error) {
	providerClient, err := s.providerReg.Get(order.Provider)
	if err != nil {
		return false, mapProviderError(err)
	}

	captured, err := providerClient.FetchCapturedPayment(ctx, order.OrderID)
	if err != nil {
		return false, mapProviderError(err)
	}
	if captured == nil {
		return false, nil
	}

	applied, err := s.applyCapture(ctx, paymentEventFromCapture(order, captured))
	if err != nil {
		return false, err
	}
	if applied {
		s.logger.WithField("order_id", order.OrderID).WithField("payment_id", captured.PaymentID).Info("Reconciled captured payment")
	}
	return applied, nil
}

// RunExpireSubscriptionsBatch moves lapsed premium users back to free.
func (s *UnlockService) RunExpireSubscriptionsBatch(ctx context.Context) error {
	now := s.now().UTC()

	storeCtx, cancel := s.storeContext(ctx)
	items, err := s.store.ListExpiredPremium(storeCtx, now, s.batchSize())
	cancel()
	if err != nil {
		return err
	}

	var firstErr error
	for _, item := range items {
		if item == nil {
			continue
		}

		storeCtx, cancel := s.storeContext(ctx)
		downgraded, err := s.store.Downgrade(storeCtx, item.UserID, now)
		cancel()
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if downgraded {
			s.invalidateEntitlement(ctx, item.UserID)
		}
	}

	return firstErr
}

// Notes on the provider payment win over the local order row; the order
// only fills gaps.
func paymentEventFromCapture(order *entity.Order, captured *provider.CapturedPayment) *entity.PaymentEvent {
	event := &entity.PaymentEvent{
		EventType:   provider.EventPaymentCaptured,
		PaymentID:   captured.PaymentID,
		OrderID:     order.OrderID,
		AmountMinor: captured.AmountMinor,
		Currency:    captured.Currency,
		UserID:      strings.TrimSpace(captured.Notes[noteUserID]),
		ResourceID:  strings.TrimSpace(captured.Notes[noteResourceID]),
	}
	if event.UserID == "" {
		event.UserID = order.UserID
	}
	if event.ResourceID == "" {
		event.ResourceID = order.ResourceID
	}
	if event.AmountMinor == 0 {
		event.AmountMinor = order.AmountMinor
	}
	if event.Currency == "" {
		event.Currency = order.Currency
	}
	return event
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
