package event

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPool is a mock implementation of PoolInterface.
type mockPool struct {
	execFn func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)

	execCalls []string
}

func (m *mockPool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	m.execCalls = append(m.execCalls, sql)
	if m.execFn != nil {
		return m.execFn(ctx, sql, arguments...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("unexpected QueryRow")
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "user_coupons_pkey"}
}

func TestInsertIssuedCoupon(t *testing.T) {
	var gotArgs []any
	pool := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			gotArgs = arguments
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	store := NewCouponStoreWithPool(pool)

	issuedAt := time.Now().UTC()
	err := store.InsertIssuedCoupon(context.Background(), &IssuedData{
		UserID:   "u1",
		EventID:  "e1",
		CouponID: "coupon-1",
		IssuedAt: issuedAt,
	})

	require.NoError(t, err)
	require.Len(t, gotArgs, 4)
	assert.Equal(t, "coupon-1", gotArgs[0])
	assert.Equal(t, "u1", gotArgs[1])
	assert.Equal(t, "e1", gotArgs[2])
	assert.Equal(t, issuedAt, gotArgs[3])
}

func TestInsertIssuedCoupon_DuplicateDelivery(t *testing.T) {
	pool := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, uniqueViolation()
		},
	}
	store := NewCouponStoreWithPool(pool)

	err := store.InsertIssuedCoupon(context.Background(), &IssuedData{CouponID: "coupon-1"})
	assert.ErrorIs(t, err, ErrDuplicateCoupon)
}

func TestInsertIssuedCoupon_OtherErrorWrapped(t *testing.T) {
	dbErr := errors.New("connection lost")
	pool := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, dbErr
		},
	}
	store := NewCouponStoreWithPool(pool)

	err := store.InsertIssuedCoupon(context.Background(), &IssuedData{CouponID: "coupon-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrDuplicateCoupon)
}

func TestMarkRedeemed(t *testing.T) {
	pool := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE") {
				return pgconn.NewCommandTag("UPDATE 1"), nil
			}
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	store := NewCouponStoreWithPool(pool)

	err := store.MarkRedeemed(context.Background(), &RedeemedData{
		UserID:     "u1",
		EventID:    "e1",
		CouponID:   "coupon-1",
		RedeemedAt: time.Now().UTC(),
	})

	require.NoError(t, err)
	require.Len(t, pool.execCalls, 2, "flip the coupon row, then record usage")
	assert.Contains(t, pool.execCalls[0], "UPDATE user_coupons")
	assert.Contains(t, pool.execCalls[1], "INSERT INTO coupon_usage")
}

func TestMarkRedeemed_UnknownCoupon(t *testing.T) {
	pool := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	store := NewCouponStoreWithPool(pool)

	err := store.MarkRedeemed(context.Background(), &RedeemedData{CouponID: "ghost"})
	assert.ErrorIs(t, err, ErrCouponNotFound)
	assert.Len(t, pool.execCalls, 1, "no usage row for a coupon that does not exist")
}

func TestMarkRedeemed_DuplicateUsage(t *testing.T) {
	pool := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE") {
				return pgconn.NewCommandTag("UPDATE 1"), nil
			}
			return pgconn.CommandTag{}, uniqueViolation()
		},
	}
	store := NewCouponStoreWithPool(pool)

	err := store.MarkRedeemed(context.Background(), &RedeemedData{CouponID: "coupon-1"})
	assert.ErrorIs(t, err, ErrDuplicateCoupon)
}

func TestMarkExhausted(t *testing.T) {
	var gotArgs []any
	pool := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			gotArgs = arguments
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	store := NewCouponStoreWithPool(pool)

	err := store.MarkExhausted(context.Background(), &ExhaustedData{EventID: "e1", RemainingStock: 0})

	require.NoError(t, err)
	require.Len(t, pool.execCalls, 1)
	assert.Contains(t, pool.execCalls[0], "ON CONFLICT (event_id)", "replays upsert instead of duplicating the row")
	assert.Equal(t, []any{"e1", 0}, gotArgs)
}

func TestEnsureSchema(t *testing.T) {
	pool := &mockPool{}

	require.NoError(t, EnsureSchema(context.Background(), pool))
	require.Len(t, pool.execCalls, 1)
	assert.Contains(t, pool.execCalls[0], "CREATE TABLE IF NOT EXISTS user_coupons")
	assert.Contains(t, pool.execCalls[0], "CREATE TABLE IF NOT EXISTS coupon_usage")
	assert.Contains(t, pool.execCalls[0], "CREATE TABLE IF NOT EXISTS coupon_events")
}
