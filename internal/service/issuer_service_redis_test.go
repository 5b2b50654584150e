package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/coupon-issuance-system/internal/cache"
	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
)

// capturingPublisher records published events in order.
type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	kind     string
	userID   string
	couponID string
}

func (p *capturingPublisher) PublishIssued(ctx context.Context, userID, eventID, couponID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{kind: "issued", userID: userID, couponID: couponID})
	return nil
}

func (p *capturingPublisher) PublishRedeemed(ctx context.Context, userID, eventID, couponID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{kind: "redeemed", userID: userID, couponID: couponID})
	return nil
}

func (p *capturingPublisher) PublishExhausted(ctx context.Context, eventID string, remainingStock int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{kind: "exhausted"})
	return nil
}

func (p *capturingPublisher) snapshot() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capturedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func newRedisBackedService(t *testing.T) (*IssuerService, *cache.CouponCache, *capturingPublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.CacheConfig{
		StockTTL:      3600,
		CouponTTL:     3600,
		DefaultStock:  100,
		AutoSeed:      false,
		RepairRetries: 1,
	}
	couponCache := cache.NewCouponCache(rdb, cfg)
	publisher := &capturingPublisher{}
	svc := NewIssuerService(couponCache, cache.NewAdmissionScript(rdb), publisher, cfg)
	svc.repairBase = 0
	return svc, couponCache, publisher
}

// Oversubscription: many more users than stock. Exactly stock-many succeed,
// every winner gets a distinct coupon, and stock never goes negative.
func TestIssue_ConcurrentOversubscription(t *testing.T) {
	svc, couponCache, publisher := newRedisBackedService(t)
	ctx := context.Background()

	const stock = 10
	const users = 40
	_, err := svc.InitializeStock(ctx, "flash", stock)
	require.NoError(t, err)

	var wg sync.WaitGroup
	successes := make(chan string, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := svc.Issue(ctx, fmt.Sprintf("u%d", n), "flash")
			if err != nil {
				t.Error(err)
				return
			}
			if result.Success() {
				successes <- result.CouponID
			}
		}(i)
	}
	wg.Wait()
	svc.Close()
	close(successes)

	coupons := map[string]bool{}
	for id := range successes {
		require.NotEmpty(t, id)
		assert.False(t, coupons[id], "coupon %s issued twice", id)
		coupons[id] = true
	}
	assert.Len(t, coupons, stock, "exactly the stock count of issuances")

	remaining, known, err := couponCache.GetStock(ctx, "flash")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 0, remaining)

	count, err := couponCache.ParticipantCount(ctx, "flash")
	require.NoError(t, err)
	assert.Equal(t, int64(stock), count)

	issued := 0
	for _, e := range publisher.snapshot() {
		if e.kind == "issued" {
			issued++
		}
	}
	assert.Equal(t, stock, issued, "one log record per winner")
}

// One user hammering the endpoint wins at most once.
func TestIssue_ConcurrentSameUser(t *testing.T) {
	svc, _, publisher := newRedisBackedService(t)
	ctx := context.Background()

	_, err := svc.InitializeStock(ctx, "flash", 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Issue(ctx, "greedy", "flash")
			if err != nil {
				t.Error(err)
				return
			}
			if result.Success() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	svc.Close()

	assert.Equal(t, 1, wins)

	issued := 0
	for _, e := range publisher.snapshot() {
		if e.kind == "issued" {
			issued++
		}
	}
	assert.Equal(t, 1, issued)
}

// Draining the stock emits the issuance records first and the exhaustion
// record last.
func TestIssue_ExhaustionRecordFollowsFinalIssuance(t *testing.T) {
	svc, _, publisher := newRedisBackedService(t)
	ctx := context.Background()

	_, err := svc.InitializeStock(ctx, "small", 2)
	require.NoError(t, err)

	for _, user := range []string{"u1", "u2"} {
		result, err := svc.Issue(ctx, user, "small")
		require.NoError(t, err)
		require.True(t, result.Success())
	}
	svc.Close()

	events := publisher.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, "issued", events[0].kind)
	assert.Equal(t, "issued", events[1].kind)
	assert.Equal(t, "exhausted", events[2].kind, "exhaustion follows the issuance that drained the stock")
}

// End to end over the cache: the coupon the user looks up afterwards is the
// one issuance assigned, and redeeming it appends a redemption record.
func TestIssueThenRedeem(t *testing.T) {
	svc, _, publisher := newRedisBackedService(t)
	ctx := context.Background()

	_, err := svc.InitializeStock(ctx, "e1", 5)
	require.NoError(t, err)

	result, err := svc.Issue(ctx, "u1", "e1")
	require.NoError(t, err)
	require.True(t, result.Success())

	cached, err := svc.UserCoupon(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, result.CouponID, cached)

	redeemed, err := svc.Redeem(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, result.CouponID, redeemed)

	events := publisher.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "redeemed", events[1].kind)
	assert.Equal(t, result.CouponID, events[1].couponID)
}
