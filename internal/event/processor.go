package event

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Store defines the relational writes the processor needs.
type Store interface {
	InsertIssuedCoupon(ctx context.Context, data *IssuedData) error
	MarkRedeemed(ctx context.Context, data *RedeemedData) error
	MarkExhausted(ctx context.Context, data *ExhaustedData) error
}

// DeadLetterer routes records the processor cannot interpret.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, key, value []byte) error
}

// Processor applies one log record to the relational store.
// Dispatch is by event type; every applier is idempotent, so duplicate
// delivery of any record is harmless.
type Processor struct {
	store Store
	dlq   DeadLetterer
}

// NewProcessor creates a Processor over the given store and dead-letter sink.
func NewProcessor(store Store, dlq DeadLetterer) *Processor {
	return &Processor{store: store, dlq: dlq}
}

// Process applies a single record. A nil return means the record is handled
// and its offset may be committed; an error means the batch must not be
// committed so the record is redelivered.
//
// Records that redelivery cannot fix do not fail the batch: duplicates are
// applied-already, undecodable or unknown records go to the dead-letter
// topic, and a redemption for a coupon the store has never seen is logged
// and skipped.
func (p *Processor) Process(ctx context.Context, key, value []byte) error {
	env, err := DecodeEnvelope(value)
	if err != nil {
		log.Error().Err(err).Str("key", string(key)).Msg("undecodable record, dead-lettering")
		return p.dlq.DeadLetter(ctx, key, value)
	}

	switch env.Type {
	case TypeIssued:
		data, err := env.Issued()
		if err != nil {
			log.Error().Err(err).Str("envelope_id", env.ID).Msg("bad issued payload, dead-lettering")
			return p.dlq.DeadLetter(ctx, key, value)
		}
		err = p.store.InsertIssuedCoupon(ctx, data)
		if errors.Is(err, ErrDuplicateCoupon) {
			log.Warn().Str("coupon_id", data.CouponID).Msg("duplicate issuance ignored")
			return nil
		}
		if err == nil {
			log.Info().
				Str("coupon_id", data.CouponID).
				Str("user_id", data.UserID).
				Str("event_id", data.EventID).
				Msg("coupon issuance materialised")
		}
		return err

	case TypeRedeemed:
		data, err := env.Redeemed()
		if err != nil {
			log.Error().Err(err).Str("envelope_id", env.ID).Msg("bad redeemed payload, dead-lettering")
			return p.dlq.DeadLetter(ctx, key, value)
		}
		err = p.store.MarkRedeemed(ctx, data)
		if errors.Is(err, ErrDuplicateCoupon) {
			log.Warn().Str("coupon_id", data.CouponID).Msg("duplicate redemption ignored")
			return nil
		}
		if errors.Is(err, ErrCouponNotFound) {
			log.Warn().Str("coupon_id", data.CouponID).Msg("redemption for unknown coupon skipped")
			return nil
		}
		return err

	case TypeExhausted:
		data, err := env.Exhausted()
		if err != nil {
			log.Error().Err(err).Str("envelope_id", env.ID).Msg("bad exhausted payload, dead-lettering")
			return p.dlq.DeadLetter(ctx, key, value)
		}
		if err := p.store.MarkExhausted(ctx, data); err != nil {
			return err
		}
		log.Info().Str("event_id", data.EventID).Msg("event marked exhausted")
		return nil

	default:
		log.Warn().Str("event_type", env.Type).Str("envelope_id", env.ID).Msg("unknown event type, dead-lettering")
		return p.dlq.DeadLetter(ctx, key, value)
	}
}
