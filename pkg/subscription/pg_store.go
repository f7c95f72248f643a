package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PGStore is the PostgreSQL Store implementation. Conditional writes
// are expressed as UPDATE ... WHERE version = $expected so concurrent
// transitions on the same user serialize through the version column
// without explicit locking.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const subscriptionColumns = `user_id, plan, status, trial_start, trial_end,
	current_period_start, current_period_end, cancel_at_period_end,
	external_subscription_ref, external_customer_ref, retention_days, version, updated_at`

func (s *PGStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)

	var sub Subscription
	err := row.Scan(
		&sub.UserID, &sub.Plan, &sub.Status, &sub.TrialStart, &sub.TrialEnd,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.ExternalSubscriptionRef, &sub.ExternalCustomerRef,
		&sub.RetentionDays, &sub.Version, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription %s: %w", userID, err)
	}

	return &sub, nil
}

func (s *PGStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12)`,
		sub.UserID, sub.Plan, sub.Status, sub.TrialStart, sub.TrialEnd,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.ExternalSubscriptionRef, sub.ExternalCustomerRef,
		sub.RetentionDays, sub.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSubscriptionAlreadyExists
		}
		return fmt.Errorf("create subscription %s: %w", sub.UserID, err)
	}

	sub.Version = 1
	return nil
}

func (s *PGStore) Update(ctx context.Context, sub *Subscription, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET
			plan = $2, status = $3, trial_start = $4, trial_end = $5,
			current_period_start = $6, current_period_end = $7,
			cancel_at_period_end = $8, external_subscription_ref = $9,
			external_customer_ref = $10, retention_days = $11,
			version = version + 1, updated_at = $12
		 WHERE user_id = $1 AND version = $13`,
		sub.UserID, sub.Plan, sub.Status, sub.TrialStart, sub.TrialEnd,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.ExternalSubscriptionRef, sub.ExternalCustomerRef,
		sub.RetentionDays, sub.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.UserID, err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing record so callers can
		// decide whether to retry the whole decision.
		if _, err := s.Get(ctx, sub.UserID); err != nil {
			return err
		}
		return ErrVersionConflict
	}

	sub.Version = expectedVersion + 1
	return nil
}
