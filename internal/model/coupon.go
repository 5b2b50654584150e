package model

import "time"

// Outcome is the business result of one admission attempt. Business outcomes
// are structured results, not errors; infrastructure faults are errors.
type Outcome string

const (
	// OutcomeSuccess means the admission committed and a coupon was assigned.
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomeAlreadyParticipated means the user already holds a coupon for the event.
	OutcomeAlreadyParticipated Outcome = "USER_ALREADY_PARTICIPATED"
	// OutcomeNoStock means the stock counter was zero or below.
	OutcomeNoStock Outcome = "NO_STOCK_AVAILABLE"
	// OutcomeStockNotInitialized means the event has no stock key in the cache.
	OutcomeStockNotInitialized Outcome = "STOCK_NOT_INITIALIZED"
)

// IssuanceResult is the coordinator's answer to one issue request.
// RemainingStock is non-authoritative on failure outcomes: it is the latest
// cached value, reported for observability only.
type IssuanceResult struct {
	Outcome        Outcome
	CouponID       string
	RemainingStock int
	StockKnown     bool // false when the cache had no stock value to report
}

// Success reports whether the admission committed.
func (r *IssuanceResult) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// EventStatus is the cached view of one event, served by GET status.
type EventStatus struct {
	EventID           string `json:"event_id"`
	RemainingStock    int    `json:"remaining_stock"`
	TotalParticipants int    `json:"total_participants"`
	Status            string `json:"status"` // "active" or "sold_out"
}

// EventCacheStats is the admin view of one event's admission state,
// including the depth of its publish-repair queue.
type EventCacheStats struct {
	EventID           string `json:"event_id"`
	RemainingStock    int    `json:"remaining_stock"`
	StockInitialized  bool   `json:"stock_initialized"`
	TotalParticipants int64  `json:"total_participants"`
	RepairDepth       int64  `json:"repair_depth"`
}

// IssueCouponRequest is the DTO for POST /api/v1/coupons/issue.
type IssueCouponRequest struct {
	UserID  string `json:"user_id" validate:"required,notblank,max=255"`
	EventID string `json:"event_id" validate:"required,notblank,max=255"`
}

// RedeemCouponRequest is the DTO for POST /api/v1/coupons/redeem.
type RedeemCouponRequest struct {
	UserID  string `json:"user_id" validate:"required,notblank,max=255"`
	EventID string `json:"event_id" validate:"required,notblank,max=255"`
}

// IssueCouponResponse is the DTO returned for every issue attempt.
// Business failures are HTTP 200 with Success=false and a stable Code.
type IssueCouponResponse struct {
	Success        bool   `json:"success"`
	Code           string `json:"code,omitempty"`
	Message        string `json:"message"`
	CouponID       string `json:"coupon_id,omitempty"`
	RemainingStock *int   `json:"remaining_stock,omitempty"`
}

// UserCouponResponse is the DTO for the user coupon lookup.
type UserCouponResponse struct {
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
	CouponID string `json:"coupon_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// UserCoupon is one issued coupon as materialised in the relational store.
// At most one row exists per (user_id, event_id); coupon_id is globally unique.
type UserCoupon struct {
	CouponID string     `json:"coupon_id"`
	UserID   string     `json:"user_id"`
	EventID  string     `json:"event_id"`
	IssuedAt time.Time  `json:"issued_at"`
	IsUsed   bool       `json:"is_used"`
	UsedAt   *time.Time `json:"used_at,omitempty"`
}

// CouponEvent is the event master row in the relational store.
type CouponEvent struct {
	EventID        string    `json:"event_id"`
	TotalStock     int       `json:"total_stock"`
	RemainingStock int       `json:"remaining_stock"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"-"`
}
