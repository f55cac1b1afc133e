package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-unlocks/app/service"
	"github.com/vibast-solutions/ms-go-unlocks/app/types"
)

func OrderResultToResponse(result *service.OrderResult) *types.CreateOrderResponse {
	if result == nil || result.Order == nil {
		return nil
	}

	return &types.CreateOrderResponse{
		OrderId:     result.Order.OrderID,
		KeyId:       result.KeyID,
		Amount:      result.Order.AmountMinor,
		Currency:    result.Order.Currency,
		Description: result.Description,
	}
}

func EntitlementStatusToResponse(status *service.EntitlementStatus) *types.EntitlementResponse {
	if status == nil || status.Entitlement == nil {
		return nil
	}

	item := status.Entitlement
	return &types.EntitlementResponse{
		UserId:              item.UserID,
		Plan:                string(status.Plan),
		Active:              status.Active,
		SubscriptionExpiry:  formatTimePtr(item.SubscriptionExpiry),
		CampaignCount:       item.CampaignCount,
		CampaignCountPeriod: item.CampaignCountPeriod,
		CampaignLimit:       status.CampaignLimit,
	}
}

func formatTimePtr(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(time.RFC3339)
	return &formatted
}
