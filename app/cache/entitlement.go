package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
)

const (
	entitlementKeyPrefix = "unlocks:entitlement:"

	// invalidatedMarker holds the key after a write so a reader that loaded
	// the row before the commit cannot put it back.
	invalidatedMarker     = "invalidated"
	defaultInvalidateHold = 30 * time.Second
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// EntitlementCache is a read-through cache for entitlement lookups. A nil
// client disables it.
type EntitlementCache struct {
	client redisClient
	ttl    time.Duration
	hold   time.Duration
}

type cachedEntitlement struct {
	UserID              string     `json:"user_id"`
	Plan                string     `json:"plan"`
	SubscriptionExpiry  *time.Time `json:"subscription_expiry,omitempty"`
	CampaignCount       int32      `json:"campaign_count"`
	CampaignCountPeriod string     `json:"campaign_count_period"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func NewEntitlementCache(client *redis.Client, ttl time.Duration) *EntitlementCache {
	c := newEntitlementCache(nil, ttl)
	if client != nil {
		c.client = client
	}
	return c
}

func newEntitlementCache(client redisClient, ttl time.Duration) *EntitlementCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EntitlementCache{client: client, ttl: ttl, hold: defaultInvalidateHold}
}

func (c *EntitlementCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *EntitlementCache) Get(ctx context.Context, userID string) (*entity.Entitlement, error) {
	if !c.Enabled() {
		return nil, nil
	}

	raw, err := c.client.Get(ctx, entitlementKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if string(raw) == invalidatedMarker {
		return nil, nil
	}

	var item cachedEntitlement
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	return &entity.Entitlement{
		UserID:              item.UserID,
		Plan:                entity.NormalizePlan(item.Plan),
		SubscriptionExpiry:  item.SubscriptionExpiry,
		CampaignCount:       item.CampaignCount,
		CampaignCountPeriod: item.CampaignCountPeriod,
		CreatedAt:           item.CreatedAt,
		UpdatedAt:           item.UpdatedAt,
	}, nil
}

func (c *EntitlementCache) Set(ctx context.Context, entitlement *entity.Entitlement) error {
	if !c.Enabled() || entitlement == nil {
		return nil
	}

	raw, err := json.Marshal(cachedEntitlement{
		UserID:              entitlement.UserID,
		Plan:                string(entitlement.Plan),
		SubscriptionExpiry:  entitlement.SubscriptionExpiry,
		CampaignCount:       entitlement.CampaignCount,
		CampaignCountPeriod: entitlement.CampaignCountPeriod,
		CreatedAt:           entitlement.CreatedAt,
		UpdatedAt:           entitlement.UpdatedAt,
	})
	if err != nil {
		return err
	}
	// SETNX leaves a live entry or an invalidation marker in place.
	return c.client.SetNX(ctx, entitlementKey(entitlement.UserID), raw, c.ttl).Err()
}

// Invalidate replaces the entry with a marker that reads as a miss and
// blocks Set until it expires.
func (c *EntitlementCache) Invalidate(ctx context.Context, userID string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Set(ctx, entitlementKey(userID), invalidatedMarker, c.hold).Err()
}

func entitlementKey(userID string) string {
	return entitlementKeyPrefix + userID
}
