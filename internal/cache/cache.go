// Package cache owns the admission state in the KV store: the per-event
// stock counter, the participant set, the short-lived user-coupon cache and
// the repair queue. The accessors here are convenience reads and writes;
// participation authority is the admission script, never these wrappers.
package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
)

// CouponCache provides typed access to the admission state of coupon events.
// I/O failures are surfaced unwrapped; the coordinator decides policy.
type CouponCache struct {
	rdb redis.UniversalClient
	cfg config.CacheConfig
}

// NewCouponCache creates a CouponCache over the given client.
func NewCouponCache(rdb redis.UniversalClient, cfg config.CacheConfig) *CouponCache {
	return &CouponCache{rdb: rdb, cfg: cfg}
}

// InitializeStock sets the stock counter only if it is absent.
// Returns true iff this call created the key. The set-if-absent semantics
// resolve races between concurrent initializers: exactly one observes true.
func (c *CouponCache) InitializeStock(ctx context.Context, eventID string, stock int) (bool, error) {
	return c.rdb.SetNX(ctx, StockKey(eventID), stock, c.cfg.StockTTLDuration()).Result()
}

// GetStock reads the stock counter. The second return is false when the key
// is absent. This read never gates issuance; it reports status and decides
// whether to seed.
func (c *CouponCache) GetStock(ctx context.Context, eventID string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, StockKey(eventID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	stock, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return stock, true, nil
}

// SetStock overwrites the stock counter. Administrative re-seeding only.
func (c *CouponCache) SetStock(ctx context.Context, eventID string, stock int) error {
	return c.rdb.Set(ctx, StockKey(eventID), stock, c.cfg.StockTTLDuration()).Err()
}

// IsUserParticipated reports whether the user is in the participant set.
func (c *CouponCache) IsUserParticipated(ctx context.Context, eventID, userID string) (bool, error) {
	return c.rdb.SIsMember(ctx, ParticipantsKey(eventID), userID).Result()
}

// AddParticipant adds the user to the participant set and refreshes its TTL.
func (c *CouponCache) AddParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	added, err := c.rdb.SAdd(ctx, ParticipantsKey(eventID), userID).Result()
	if err != nil {
		return false, err
	}
	if added > 0 {
		if err := c.rdb.Expire(ctx, ParticipantsKey(eventID), c.cfg.StockTTLDuration()).Err(); err != nil {
			return false, err
		}
	}
	return added > 0, nil
}

// ParticipantCount returns the size of the participant set.
func (c *CouponCache) ParticipantCount(ctx context.Context, eventID string) (int64, error) {
	return c.rdb.SCard(ctx, ParticipantsKey(eventID)).Result()
}

// GetParticipants returns every admitted user id for the event.
func (c *CouponCache) GetParticipants(ctx context.Context, eventID string) ([]string, error) {
	return c.rdb.SMembers(ctx, ParticipantsKey(eventID)).Result()
}

// CacheUserCoupon records the coupon issued to a user.
func (c *CouponCache) CacheUserCoupon(ctx context.Context, userID, eventID, couponID string) error {
	return c.rdb.Set(ctx, UserCouponKey(userID, eventID), couponID, c.cfg.CouponTTLDuration()).Err()
}

// GetUserCoupon returns the cached coupon id for a user, or "" when absent.
func (c *CouponCache) GetUserCoupon(ctx context.Context, userID, eventID string) (string, error) {
	val, err := c.rdb.Get(ctx, UserCouponKey(userID, eventID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// InvalidateEventCache removes every key belonging to the event. User-coupon
// keys are derived from the participant set rather than a keyspace scan, so
// the whole deletion touches a single partition (all keys share the event's
// hash tag). A cluster-wide scan is forbidden here.
func (c *CouponCache) InvalidateEventCache(ctx context.Context, eventID string) (int64, error) {
	users, err := c.rdb.SMembers(ctx, ParticipantsKey(eventID)).Result()
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(users)+3)
	keys = append(keys, StockKey(eventID), ParticipantsKey(eventID), RepairKey(eventID))
	for _, userID := range users {
		keys = append(keys, UserCouponKey(userID, eventID))
	}

	return c.rdb.Del(ctx, keys...).Result()
}
