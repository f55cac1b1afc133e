package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
)

type EntitlementRepository struct {
	db TxDB
}

func NewEntitlementRepository(db TxDB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// ApplyUnlock records the unlock, upgrades the entitlement and marks the
// originating order paid in a single transaction. It returns false without
// writing anything when the (resource_id, payment_id) pair was already
// recorded.
func (r *EntitlementRepository) ApplyUnlock(ctx context.Context, unlock *entity.Unlock, entitlement *entity.Entitlement) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO campaign_unlocks (
			user_id, resource_id, payment_id, order_id,
			amount_minor, currency, status, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		unlock.UserID,
		unlock.ResourceID,
		unlock.PaymentID,
		nullableStringValue(unlock.OrderID),
		unlock.AmountMinor,
		unlock.Currency,
		unlock.Status,
		unlock.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, nil
		}
		return false, err
	}
	if id, err := result.LastInsertId(); err == nil {
		unlock.ID = uint64(id)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_entitlements (
			user_id, plan, subscription_expiry, campaign_count, campaign_count_period,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			plan = VALUES(plan),
			subscription_expiry = VALUES(subscription_expiry),
			campaign_count = VALUES(campaign_count),
			campaign_count_period = VALUES(campaign_count_period),
			updated_at = VALUES(updated_at)
	`,
		entitlement.UserID,
		string(entitlement.Plan),
		nullableTimeValue(entitlement.SubscriptionExpiry),
		entitlement.CampaignCount,
		entitlement.CampaignCountPeriod,
		entitlement.CreatedAt,
		entitlement.UpdatedAt,
	); err != nil {
		return false, err
	}

	if unlock.OrderID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE payment_orders SET status = ?, updated_at = ?
			WHERE order_id = ? AND status <> ?
		`,
			entity.OrderStatusPaid,
			entitlement.UpdatedAt,
			*unlock.OrderID,
			entity.OrderStatusPaid,
		); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true

	return true, nil
}

func (r *EntitlementRepository) FindEntitlement(ctx context.Context, userID string) (*entity.Entitlement, error) {
	query := `
		SELECT user_id, plan, subscription_expiry, campaign_count, campaign_count_period, created_at, updated_at
		FROM user_entitlements
		WHERE user_id = ?
	`

	item, err := scanEntitlement(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *EntitlementRepository) ListExpiredPremium(ctx context.Context, now time.Time, limit int32) ([]*entity.Entitlement, error) {
	query := `
		SELECT user_id, plan, subscription_expiry, campaign_count, campaign_count_period, created_at, updated_at
		FROM user_entitlements
		WHERE plan = ?
		  AND subscription_expiry IS NOT NULL
		  AND subscription_expiry <= ?
		ORDER BY subscription_expiry ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, string(entity.PlanPremium), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Entitlement, 0)
	for rows.Next() {
		item, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// Downgrade moves a lapsed premium user back to free. It is a no-op (false)
// when the user renewed between listing and downgrading.
func (r *EntitlementRepository) Downgrade(ctx context.Context, userID string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_entitlements SET plan = ?, updated_at = ?
		WHERE user_id = ?
		  AND plan = ?
		  AND subscription_expiry IS NOT NULL
		  AND subscription_expiry <= ?
	`,
		string(entity.PlanFree),
		now,
		userID,
		string(entity.PlanPremium),
		now,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanEntitlement(row rowScanner) (*entity.Entitlement, error) {
	var (
		item   entity.Entitlement
		plan   string
		expiry sql.NullTime
	)
	if err := row.Scan(
		&item.UserID,
		&plan,
		&expiry,
		&item.CampaignCount,
		&item.CampaignCountPeriod,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.Plan = entity.NormalizePlan(plan)
	item.SubscriptionExpiry = timePtrFromNull(expiry)
	return &item, nil
}
