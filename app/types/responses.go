package types

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateOrderResponse is shaped for the Razorpay checkout widget.
type CreateOrderResponse struct {
	OrderId     string `json:"orderId"`
	KeyId       string `json:"keyId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type EntitlementResponse struct {
	UserId              string  `json:"user_id"`
	Plan                string  `json:"plan"`
	Active              bool    `json:"active"`
	SubscriptionExpiry  *string `json:"subscription_expiry"`
	CampaignCount       int32   `json:"campaign_count"`
	CampaignCountPeriod string  `json:"campaign_count_period"`
	CampaignLimit       int32   `json:"campaign_limit"`
}
