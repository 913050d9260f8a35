package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

var _ repository.SubscriptionRepository = (*SubscriptionDB)(nil)

type SubscriptionDB struct {
	conn *sql.DB
}

const subscriptionColumns = `id, user_id, customer_id, provider_subscription_id, plan, status, price_id,
	current_period_end, cancel_at_period_end, created_at, updated_at`

func (s *SubscriptionDB) GetByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := scanSubscription(s.conn.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("subscription", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting subscription of user %s: %w", userID, err)
	}
	return sub, nil
}

func (s *SubscriptionDB) GetByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error) {
	if customerID == "" {
		return nil, apperror.NotFound("subscription", "(empty customer)")
	}
	sub, err := scanSubscription(s.conn.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE customer_id = ?`, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("subscription for customer", customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting subscription of customer %s: %w", customerID, err)
	}
	return sub, nil
}

// Upsert writes sub keyed on UserID and fills ID and CreatedAt from the
// stored row.
func (s *SubscriptionDB) Upsert(ctx context.Context, sub *model.Subscription) error {
	if sub.ID == "" {
		sub.ID = xid.New().String()
	}
	now := time.Now().UTC()
	sub.UpdatedAt = now

	var periodEnd any
	if sub.CurrentPeriodEnd != nil {
		periodEnd = sub.CurrentPeriodEnd.UTC()
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			customer_id              = excluded.customer_id,
			provider_subscription_id = excluded.provider_subscription_id,
			plan                     = excluded.plan,
			status                   = excluded.status,
			price_id                 = excluded.price_id,
			current_period_end       = excluded.current_period_end,
			cancel_at_period_end     = excluded.cancel_at_period_end,
			updated_at               = excluded.updated_at`,
		sub.ID, sub.UserID, nullString(sub.CustomerID), sub.ProviderSubscriptionID, sub.Plan, sub.Status,
		sub.PriceID, periodEnd, sub.CancelAtPeriodEnd, now, now,
	)
	if isUniqueViolation(err) {
		return apperror.Conflict("subscription customer", sub.CustomerID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: upserting subscription of user %s: %w", sub.UserID, err)
	}

	err = s.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM subscriptions WHERE user_id = ?`, sub.UserID,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading back subscription of user %s: %w", sub.UserID, err)
	}
	return nil
}

func scanSubscription(row *sql.Row) (*model.Subscription, error) {
	var (
		sub        model.Subscription
		customerID sql.NullString
		periodEnd  sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.UserID, &customerID, &sub.ProviderSubscriptionID, &sub.Plan, &sub.Status,
		&sub.PriceID, &periodEnd, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.CustomerID = customerID.String
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		sub.CurrentPeriodEnd = &t
	}
	return &sub, nil
}
