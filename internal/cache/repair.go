package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// The repair queue holds issuance events whose admission committed but whose
// publish to the log failed after bounded retries. Records wait here for an
// operator or sweeper; the queue key shares the event's hash tag so repair
// state lives next to the admission state it repairs.

// EnqueueRepair pushes a serialized event envelope onto the repair queue.
func (c *CouponCache) EnqueueRepair(ctx context.Context, eventID string, envelope []byte) error {
	return c.rdb.LPush(ctx, RepairKey(eventID), envelope).Err()
}

// DequeueRepair pops the oldest repair record, or ("", false, nil) when empty.
func (c *CouponCache) DequeueRepair(ctx context.Context, eventID string) (string, bool, error) {
	val, err := c.rdb.RPop(ctx, RepairKey(eventID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// RepairDepth returns the number of records waiting for repair.
func (c *CouponCache) RepairDepth(ctx context.Context, eventID string) (int64, error) {
	return c.rdb.LLen(ctx, RepairKey(eventID)).Result()
}
