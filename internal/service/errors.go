package service

import "errors"

var (
	// ErrAmbiguousTimeout is returned when the admission RPC failed, the
	// retry reported the user as already participated, and the user-coupon
	// cache could not resolve which coupon id the user holds. The caller may
	// retry; the admission script is idempotent per (user, event).
	ErrAmbiguousTimeout = errors.New("admission outcome unknown")

	// ErrInvalidStock is returned when an admin initializes an event with a
	// negative stock value.
	ErrInvalidStock = errors.New("initial stock must not be negative")

	// ErrNoCoupon is returned when a redemption is attempted by a user who
	// holds no coupon for the event.
	ErrNoCoupon = errors.New("no coupon issued for user and event")

	// ErrPublishFailed marks a failed append to the event log, as opposed to
	// a KV read fault. Handlers map the two to different error codes.
	ErrPublishFailed = errors.New("publish to event log failed")
)
