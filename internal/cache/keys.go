package cache

// Key grammar for the admission state. Every key of one event embeds the
// event id as a hash tag, so the stock counter, the participant set, the
// user-coupon cache and the repair queue all land in the same cluster slot.
// The admission script cannot run atomically on a clustered deployment
// unless the keys it touches are colocated.

// StockKey returns the key holding the remaining-stock counter.
func StockKey(eventID string) string {
	return "coupon:stock:{" + eventID + "}"
}

// ParticipantsKey returns the key holding the set of admitted user ids.
func ParticipantsKey(eventID string) string {
	return "coupon:participants:{" + eventID + "}"
}

// UserCouponKey returns the key caching the coupon id issued to one user.
func UserCouponKey(userID, eventID string) string {
	return "coupon:user:" + userID + ":{" + eventID + "}"
}

// RepairKey returns the key of the durable repair queue for failed publishes.
func RepairKey(eventID string) string {
	return "coupon:repair:{" + eventID + "}"
}
