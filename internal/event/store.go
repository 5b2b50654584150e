package event

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// ErrDuplicateCoupon is returned when an insert hits a unique constraint.
// The consumer treats it as success: the record was already applied.
var ErrDuplicateCoupon = errors.New("coupon already materialised")

// ErrCouponNotFound is returned when a redemption references a coupon row
// that does not exist in the relational store.
var ErrCouponNotFound = errors.New("coupon not found")

// PoolInterface defines the database operations needed by the store.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CouponStore materialises issuance facts into the relational store.
// Every write is idempotent: replaying any prefix of the log produces the
// same final state as replaying once.
type CouponStore struct {
	pool PoolInterface
}

// NewCouponStore creates a CouponStore with the given pool.
func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

// NewCouponStoreWithPool creates a CouponStore with a custom pool interface.
// This is primarily used for testing.
func NewCouponStoreWithPool(pool PoolInterface) *CouponStore {
	return &CouponStore{pool: pool}
}

// EnsureSchema creates the consumer-owned tables if they do not exist.
func EnsureSchema(ctx context.Context, pool PoolInterface) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertIssuedCoupon records one issued coupon.
// Returns ErrDuplicateCoupon when the (user_id, event_id) pair or the coupon
// id has already been materialised (duplicate delivery).
func (s *CouponStore) InsertIssuedCoupon(ctx context.Context, data *IssuedData) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_coupons (coupon_id, user_id, event_id, issued_at, is_used)
		 VALUES ($1, $2, $3, $4, FALSE)`,
		data.CouponID, data.UserID, data.EventID, data.IssuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCoupon
		}
		return fmt.Errorf("insert issued coupon: %w", err)
	}
	return nil
}

// MarkRedeemed flips the coupon row to used and records a usage row.
// Returns ErrCouponNotFound when the coupon row is missing and
// ErrDuplicateCoupon when the usage row already exists.
func (s *CouponStore) MarkRedeemed(ctx context.Context, data *RedeemedData) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_coupons SET is_used = TRUE, used_at = $1 WHERE coupon_id = $2`,
		data.RedeemedAt, data.CouponID)
	if err != nil {
		return fmt.Errorf("mark coupon redeemed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO coupon_usage (coupon_id, user_id, event_id, used_at)
		 VALUES ($1, $2, $3, $4)`,
		data.CouponID, data.UserID, data.EventID, data.RedeemedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCoupon
		}
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

// MarkExhausted zeroes the event's stock and deactivates it, creating the
// event row first if the event only ever lived in the cache.
func (s *CouponStore) MarkExhausted(ctx context.Context, data *ExhaustedData) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coupon_events (event_id, total_stock, remaining_stock, is_active)
		 VALUES ($1, 0, $2, FALSE)
		 ON CONFLICT (event_id)
		 DO UPDATE SET remaining_stock = $2, is_active = FALSE, updated_at = now()`,
		data.EventID, data.RemainingStock)
	if err != nil {
		return fmt.Errorf("mark event exhausted: %w", err)
	}
	return nil
}
