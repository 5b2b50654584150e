package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/coupon-issuance-system/internal/model"
)

// admissionLua is the entire admission decision: the stock check, the
// duplicate-user check, the decrement, the participant insert and the
// coupon-id cache commit as one atomic step. All three keys share the
// event's hash tag, so the script runs on a single cluster slot.
//
// KEYS: [1] stock_key, [2] participants_key, [3] user_coupon_key
// ARGV: [1] user_id, [2] candidate_coupon_id, [3] ttl_seconds
// Returns: {0, reason} on failure, {1, 'SUCCESS', coupon_id, remaining} on success.
const admissionLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {0, 'STOCK_NOT_INITIALIZED'}
end

if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	return {0, 'USER_ALREADY_PARTICIPATED'}
end

local stock = tonumber(redis.call('GET', KEYS[1]))
if stock == nil or stock <= 0 then
	return {0, 'NO_STOCK_AVAILABLE'}
end

local ttl = tonumber(ARGV[3])
local remaining = redis.call('DECR', KEYS[1])
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('EXPIRE', KEYS[1], ttl)
redis.call('EXPIRE', KEYS[2], ttl)
redis.call('SET', KEYS[3], ARGV[2], 'EX', ttl)

return {1, 'SUCCESS', ARGV[2], remaining}
`

// admissionScript is loaded once; Run uses EVALSHA and falls back to EVAL
// when the store does not have the script cached.
var admissionScript = redis.NewScript(admissionLua)

// AdmissionResult is the decoded script return.
type AdmissionResult struct {
	Outcome        model.Outcome
	CouponID       string
	RemainingStock int
}

// AdmissionScript executes the atomic admission decision.
type AdmissionScript struct {
	rdb redis.UniversalClient
}

// NewAdmissionScript creates an AdmissionScript over the given client.
func NewAdmissionScript(rdb redis.UniversalClient) *AdmissionScript {
	return &AdmissionScript{rdb: rdb}
}

// Run admits the user for the event with candidateCouponID, or reports why
// not. Retrying the same (user, event) returns USER_ALREADY_PARTICIPATED,
// which callers treat as a safe duplicate; retrying with a different
// candidate id is the coordinator's responsibility to avoid.
func (s *AdmissionScript) Run(ctx context.Context, eventID, userID, candidateCouponID string, ttlSeconds int) (*AdmissionResult, error) {
	keys := []string{StockKey(eventID), ParticipantsKey(eventID), UserCouponKey(userID, eventID)}
	raw, err := admissionScript.Run(ctx, s.rdb, keys, userID, candidateCouponID, ttlSeconds).Result()
	if err != nil {
		return nil, err
	}
	return decodeAdmissionResult(raw)
}

// decodeAdmissionResult parses the script's array reply: 2 elements on
// failure, 4 on success.
func decodeAdmissionResult(raw interface{}) (*AdmissionResult, error) {
	reply, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("admission script: unexpected reply type %T", raw)
	}
	if len(reply) < 2 {
		return nil, fmt.Errorf("admission script: reply has %d elements", len(reply))
	}

	flag, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("admission script: unexpected flag type %T", reply[0])
	}
	reason, ok := reply[1].(string)
	if !ok {
		return nil, fmt.Errorf("admission script: unexpected reason type %T", reply[1])
	}

	if flag == 0 {
		switch outcome := model.Outcome(reason); outcome {
		case model.OutcomeAlreadyParticipated, model.OutcomeNoStock, model.OutcomeStockNotInitialized:
			return &AdmissionResult{Outcome: outcome}, nil
		default:
			return nil, fmt.Errorf("admission script: unknown failure reason %q", reason)
		}
	}

	if len(reply) != 4 {
		return nil, fmt.Errorf("admission script: success reply has %d elements", len(reply))
	}
	couponID, ok := reply[2].(string)
	if !ok {
		return nil, fmt.Errorf("admission script: unexpected coupon id type %T", reply[2])
	}
	remaining, ok := reply[3].(int64)
	if !ok {
		return nil, fmt.Errorf("admission script: unexpected remaining type %T", reply[3])
	}

	return &AdmissionResult{
		Outcome:        model.OutcomeSuccess,
		CouponID:       couponID,
		RemainingStock: int(remaining),
	}, nil
}
