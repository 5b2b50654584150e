// Package event carries issuance facts between the admission core and the
// relational store: typed envelopes, the Kafka publisher and the
// poll-process-commit consumer.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the coupon-events topic.
const (
	TypeIssued    = "coupon_issued"
	TypeRedeemed  = "coupon_redeemed"
	TypeExhausted = "stock_exhausted"
)

// Version is the envelope schema version.
const Version = "1.0"

// ErrUnknownEventType marks an envelope whose type has no handler. Such
// records are routed to the dead-letter topic, never silently dropped.
var ErrUnknownEventType = errors.New("unknown event type")

// Envelope is one immutable log record. Data holds the typed payload for
// the envelope's Type; serialisation happens only at the log boundary.
type Envelope struct {
	ID        string          `json:"event_id"`
	Type      string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
}

// IssuedData is the payload of a coupon_issued record.
type IssuedData struct {
	UserID   string    `json:"user_id"`
	EventID  string    `json:"event_id"`
	CouponID string    `json:"coupon_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// RedeemedData is the payload of a coupon_redeemed record.
type RedeemedData struct {
	UserID     string    `json:"user_id"`
	EventID    string    `json:"event_id"`
	CouponID   string    `json:"coupon_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// ExhaustedData is the payload of a stock_exhausted record.
type ExhaustedData struct {
	EventID        string    `json:"event_id"`
	RemainingStock int       `json:"remaining_stock"`
	ExhaustedAt    time.Time `json:"exhausted_at"`
}

// NewIssued builds a coupon_issued envelope.
func NewIssued(userID, eventID, couponID string) (*Envelope, error) {
	now := time.Now().UTC()
	return newEnvelope(TypeIssued, now, IssuedData{
		UserID:   userID,
		EventID:  eventID,
		CouponID: couponID,
		IssuedAt: now,
	})
}

// NewRedeemed builds a coupon_redeemed envelope.
func NewRedeemed(userID, eventID, couponID string) (*Envelope, error) {
	now := time.Now().UTC()
	return newEnvelope(TypeRedeemed, now, RedeemedData{
		UserID:     userID,
		EventID:    eventID,
		CouponID:   couponID,
		RedeemedAt: now,
	})
}

// NewExhausted builds a stock_exhausted envelope.
func NewExhausted(eventID string, remainingStock int) (*Envelope, error) {
	now := time.Now().UTC()
	if remainingStock < 0 {
		remainingStock = 0
	}
	return newEnvelope(TypeExhausted, now, ExhaustedData{
		EventID:        eventID,
		RemainingStock: remainingStock,
		ExhaustedAt:    now,
	})
}

func newEnvelope(eventType string, ts time.Time, data any) (*Envelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: ts,
		Version:   Version,
		Data:      payload,
	}, nil
}

// Encode serialises the envelope for the log.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses one log record back into an envelope.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Issued decodes the payload of a coupon_issued envelope.
func (e *Envelope) Issued() (*IssuedData, error) {
	if e.Type != TypeIssued {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, e.Type)
	}
	var data IssuedData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return &data, nil
}

// Redeemed decodes the payload of a coupon_redeemed envelope.
func (e *Envelope) Redeemed() (*RedeemedData, error) {
	if e.Type != TypeRedeemed {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, e.Type)
	}
	var data RedeemedData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return &data, nil
}

// Exhausted decodes the payload of a stock_exhausted envelope.
func (e *Envelope) Exhausted() (*ExhaustedData, error) {
	if e.Type != TypeExhausted {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, e.Type)
	}
	var data ExhaustedData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return &data, nil
}
