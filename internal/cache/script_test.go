package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/coupon-issuance-system/internal/model"
)

func newTestScript(t *testing.T) (*AdmissionScript, *CouponCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewAdmissionScript(rdb), NewCouponCache(rdb, testCacheConfig()), mr
}

func TestAdmission_StockNotInitialized(t *testing.T) {
	script, _, _ := newTestScript(t)

	res, err := script.Run(context.Background(), "unknown", "u1", "c1", 3600)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeStockNotInitialized, res.Outcome)
}

func TestAdmission_SuccessDecrementsAndRecords(t *testing.T) {
	script, cache, mr := newTestScript(t)
	ctx := context.Background()

	_, err := cache.InitializeStock(ctx, "e1", 3)
	require.NoError(t, err)

	res, err := script.Run(ctx, "e1", "u1", "coupon-1", 3600)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "coupon-1", res.CouponID)
	assert.Equal(t, 2, res.RemainingStock)

	// The same atomic step must have landed the participant insert and the
	// coupon cache write.
	participated, err := cache.IsUserParticipated(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.True(t, participated)

	cached, err := cache.GetUserCoupon(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "coupon-1", cached)

	assert.Greater(t, mr.TTL(StockKey("e1")).Seconds(), 0.0)
	assert.Greater(t, mr.TTL(ParticipantsKey("e1")).Seconds(), 0.0)
	assert.Greater(t, mr.TTL(UserCouponKey("u1", "e1")).Seconds(), 0.0)
}

func TestAdmission_DuplicateUser(t *testing.T) {
	script, cache, _ := newTestScript(t)
	ctx := context.Background()

	_, err := cache.InitializeStock(ctx, "e2", 10)
	require.NoError(t, err)

	first, err := script.Run(ctx, "e2", "u1", "coupon-1", 3600)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeSuccess, first.Outcome)
	assert.Equal(t, 9, first.RemainingStock)

	// Retry with a different candidate id: the second attempt must neither
	// decrement nor replace the assigned coupon.
	second, err := script.Run(ctx, "e2", "u1", "coupon-2", 3600)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAlreadyParticipated, second.Outcome)

	stock, _, err := cache.GetStock(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, 9, stock)

	cached, err := cache.GetUserCoupon(ctx, "u1", "e2")
	require.NoError(t, err)
	assert.Equal(t, "coupon-1", cached, "the originally assigned coupon must survive the retry")
}

func TestAdmission_Exhaustion(t *testing.T) {
	script, cache, _ := newTestScript(t)
	ctx := context.Background()

	_, err := cache.InitializeStock(ctx, "e3", 3)
	require.NoError(t, err)

	// Three distinct users drain the stock with remaining 2, 1, 0.
	for i, want := range []int{2, 1, 0} {
		user := fmt.Sprintf("u%d", i)
		res, err := script.Run(ctx, "e3", user, fmt.Sprintf("c%d", i), 3600)
		require.NoError(t, err)
		require.Equal(t, model.OutcomeSuccess, res.Outcome)
		assert.Equal(t, want, res.RemainingStock)
	}

	// A fourth user hits the floor.
	res, err := script.Run(ctx, "e3", "u9", "c9", 3600)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoStock, res.Outcome)

	stock, _, err := cache.GetStock(ctx, "e3")
	require.NoError(t, err)
	assert.Equal(t, 0, stock, "stock never goes negative")
}

// Conservation: |participants| + remaining = total at every observation
// point between atomic steps.
func TestAdmission_ConservationEquation(t *testing.T) {
	script, cache, _ := newTestScript(t)
	ctx := context.Background()

	const total = 5
	_, err := cache.InitializeStock(ctx, "e4", total)
	require.NoError(t, err)

	for i := 0; i < total+3; i++ {
		user := fmt.Sprintf("u%d", i)
		_, err := script.Run(ctx, "e4", user, fmt.Sprintf("c%d", i), 3600)
		require.NoError(t, err)

		count, err := cache.ParticipantCount(ctx, "e4")
		require.NoError(t, err)
		stock, _, err := cache.GetStock(ctx, "e4")
		require.NoError(t, err)
		assert.Equal(t, total, int(count)+stock)
	}
}

func TestDecodeAdmissionResult(t *testing.T) {
	testCases := []struct {
		name    string
		raw     interface{}
		want    *AdmissionResult
		wantErr bool
	}{
		{
			name: "success",
			raw:  []interface{}{int64(1), "SUCCESS", "coupon-1", int64(41)},
			want: &AdmissionResult{Outcome: model.OutcomeSuccess, CouponID: "coupon-1", RemainingStock: 41},
		},
		{
			name: "no_stock",
			raw:  []interface{}{int64(0), "NO_STOCK_AVAILABLE"},
			want: &AdmissionResult{Outcome: model.OutcomeNoStock},
		},
		{
			name: "already_participated",
			raw:  []interface{}{int64(0), "USER_ALREADY_PARTICIPATED"},
			want: &AdmissionResult{Outcome: model.OutcomeAlreadyParticipated},
		},
		{
			name: "not_initialized",
			raw:  []interface{}{int64(0), "STOCK_NOT_INITIALIZED"},
			want: &AdmissionResult{Outcome: model.OutcomeStockNotInitialized},
		},
		{
			name:    "unknown_reason",
			raw:     []interface{}{int64(0), "SOMETHING_ELSE"},
			wantErr: true,
		},
		{
			name:    "truncated_success",
			raw:     []interface{}{int64(1), "SUCCESS"},
			wantErr: true,
		},
		{
			name:    "not_an_array",
			raw:     "OK",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeAdmissionResult(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
