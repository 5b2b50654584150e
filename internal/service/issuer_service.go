package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-issuance-system/internal/cache"
	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
	"github.com/fairyhunter13/coupon-issuance-system/internal/event"
	"github.com/fairyhunter13/coupon-issuance-system/internal/model"
)

// AdmissionCacheInterface defines the cache reads and writes the coordinator needs.
type AdmissionCacheInterface interface {
	InitializeStock(ctx context.Context, eventID string, stock int) (bool, error)
	GetStock(ctx context.Context, eventID string) (int, bool, error)
	ParticipantCount(ctx context.Context, eventID string) (int64, error)
	GetUserCoupon(ctx context.Context, userID, eventID string) (string, error)
	InvalidateEventCache(ctx context.Context, eventID string) (int64, error)
	EnqueueRepair(ctx context.Context, eventID string, envelope []byte) error
	RepairDepth(ctx context.Context, eventID string) (int64, error)
}

// AdmissionScriptInterface defines the atomic admission step.
type AdmissionScriptInterface interface {
	Run(ctx context.Context, eventID, userID, candidateCouponID string, ttlSeconds int) (*cache.AdmissionResult, error)
}

// EventPublisherInterface defines the durable log appends.
type EventPublisherInterface interface {
	PublishIssued(ctx context.Context, userID, eventID, couponID string) error
	PublishRedeemed(ctx context.Context, userID, eventID, couponID string) error
	PublishExhausted(ctx context.Context, eventID string, remainingStock int) error
}

// IssuerService orchestrates one issuance: seed the counter if configured,
// generate a candidate coupon id, run the admission script, publish the
// issuance fact, shape the response. The admission script is the only place
// the stock counter and participant set mutate; this service never gates
// issuance on its own reads.
type IssuerService struct {
	cache     AdmissionCacheInterface
	admission AdmissionScriptInterface
	publisher EventPublisherInterface
	cfg       config.CacheConfig

	repairBase time.Duration // first backoff of the publish repair loop
	repairWG   sync.WaitGroup
}

// NewIssuerService creates an IssuerService with the given collaborators.
func NewIssuerService(c AdmissionCacheInterface, a AdmissionScriptInterface, p EventPublisherInterface, cfg config.CacheConfig) *IssuerService {
	return &IssuerService{
		cache:      c,
		admission:  a,
		publisher:  p,
		cfg:        cfg,
		repairBase: time.Second,
	}
}

// Issue admits one user for one event.
//
// Business outcomes (already participated, no stock, uninitialized stock)
// come back as an IssuanceResult with the matching Outcome tag and a nil
// error; errors are reserved for infrastructure faults.
func (s *IssuerService) Issue(ctx context.Context, userID, eventID string) (*model.IssuanceResult, error) {
	if s.cfg.AutoSeed {
		if err := s.seedIfAbsent(ctx, eventID); err != nil {
			return nil, err
		}
	}

	// Candidate id for this attempt. The script assigns it only if this
	// attempt wins the admission; a lost or duplicate attempt never reuses
	// a fresh candidate as authoritative.
	couponID := uuid.NewString()
	ttl := int(s.cfg.StockTTLDuration() / time.Second)

	result, err := s.admission.Run(ctx, eventID, userID, couponID, ttl)
	if err != nil {
		// Transport error with no result: the admission may or may not have
		// committed. One retry with the same candidate id is safe because a
		// committed first attempt answers USER_ALREADY_PARTICIPATED.
		log.Warn().Err(err).Str("user_id", userID).Str("event_id", eventID).Msg("admission rpc failed, retrying once")
		result, err = s.admission.Run(ctx, eventID, userID, couponID, ttl)
		if err != nil {
			return nil, fmt.Errorf("admission script: %w", err)
		}
		if result.Outcome == model.OutcomeAlreadyParticipated {
			return s.resolveAmbiguousRetry(ctx, userID, eventID, couponID)
		}
	}

	if result.Outcome == model.OutcomeSuccess {
		s.afterAdmission(ctx, userID, eventID, result.CouponID, result.RemainingStock, true)
		return &model.IssuanceResult{
			Outcome:        model.OutcomeSuccess,
			CouponID:       result.CouponID,
			RemainingStock: result.RemainingStock,
			StockKnown:     true,
		}, nil
	}

	return s.failureResult(ctx, eventID, result.Outcome), nil
}

// seedIfAbsent provisions the default stock for events nobody initialized.
// Convenience for ephemeral test events; production stock arrives through
// the admin operation before traffic does.
func (s *IssuerService) seedIfAbsent(ctx context.Context, eventID string) error {
	_, known, err := s.cache.GetStock(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get stock: %w", err)
	}
	if known {
		return nil
	}
	created, err := s.cache.InitializeStock(ctx, eventID, s.cfg.DefaultStock)
	if err != nil {
		return fmt.Errorf("initialize stock: %w", err)
	}
	if created {
		log.Info().Str("event_id", eventID).Int("stock", s.cfg.DefaultStock).Msg("auto-seeded event stock")
	}
	return nil
}

// resolveAmbiguousRetry decides what ALREADY_PARTICIPATED on a post-failure
// retry means: the first attempt committed with our candidate id, an earlier
// request admitted the user with another id, or nothing can be proven.
func (s *IssuerService) resolveAmbiguousRetry(ctx context.Context, userID, eventID, candidateID string) (*model.IssuanceResult, error) {
	cached, err := s.cache.GetUserCoupon(ctx, userID, eventID)
	if err != nil || cached == "" {
		return nil, ErrAmbiguousTimeout
	}

	if cached == candidateID {
		// Our first attempt committed on the wire; the fact still needs to
		// reach the log. The losing retry never saw the script's remaining
		// count, so the stock read below is informational only and must not
		// trigger an exhaustion record.
		remaining, known, stockErr := s.cache.GetStock(ctx, eventID)
		if stockErr != nil {
			known = false
		}
		s.afterAdmission(ctx, userID, eventID, cached, remaining, false)
		return &model.IssuanceResult{
			Outcome:        model.OutcomeSuccess,
			CouponID:       cached,
			RemainingStock: remaining,
			StockKnown:     known,
		}, nil
	}

	res := s.failureResult(ctx, eventID, model.OutcomeAlreadyParticipated)
	res.CouponID = cached
	return res, nil
}

// afterAdmission publishes the issuance fact. The admission has already
// committed, so a publish failure never turns the response into a failure:
// it is logged and handed to the repair path.
//
// authoritative is true only when remaining came from the admission script
// itself. A non-authoritative zero (failed or absent stock read) must never
// produce a stock_exhausted record.
func (s *IssuerService) afterAdmission(ctx context.Context, userID, eventID, couponID string, remaining int, authoritative bool) {
	if err := s.publisher.PublishIssued(ctx, userID, eventID, couponID); err != nil {
		log.Error().
			Err(err).
			Str("coupon_id", couponID).
			Str("event_id", eventID).
			Msg("issuance publish failed after admission commit, scheduling repair")
		s.repairWG.Add(1)
		go s.repairPublish(userID, eventID, couponID)
	}

	if authoritative && remaining <= 0 {
		// Best effort: the consumer deactivates the event on this record,
		// but the admission state already prevents further issuance.
		if err := s.publisher.PublishExhausted(ctx, eventID, remaining); err != nil {
			log.Warn().Err(err).Str("event_id", eventID).Msg("exhausted publish failed")
		}
	}
}

// repairPublish retries a failed issuance publish with exponential backoff,
// then parks a durable repair record for a sweeper when retries exhaust.
func (s *IssuerService) repairPublish(userID, eventID, couponID string) {
	defer s.repairWG.Done()

	retryCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backoff := s.repairBase
retry:
	for attempt := 1; attempt <= s.cfg.RepairRetries; attempt++ {
		select {
		case <-retryCtx.Done():
			break retry
		case <-time.After(backoff):
		}
		backoff *= 2

		if err := s.publisher.PublishIssued(retryCtx, userID, eventID, couponID); err == nil {
			log.Info().Str("coupon_id", couponID).Int("attempt", attempt).Msg("issuance publish repaired")
			return
		}
	}

	ctx, enqueueCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer enqueueCancel()

	env, err := event.NewIssued(userID, eventID, couponID)
	if err != nil {
		log.Error().Err(err).Str("coupon_id", couponID).Msg("repair record build failed")
		return
	}
	payload, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("coupon_id", couponID).Msg("repair record encode failed")
		return
	}
	if err := s.cache.EnqueueRepair(ctx, eventID, payload); err != nil {
		log.Error().Err(err).Str("coupon_id", couponID).Msg("repair record enqueue failed, issuance missing from log")
		return
	}
	log.Warn().Str("coupon_id", couponID).Str("event_id", eventID).Msg("publish retries exhausted, durable repair record enqueued")
}

// failureResult shapes a business failure with the latest non-authoritative
// stock reading.
func (s *IssuerService) failureResult(ctx context.Context, eventID string, outcome model.Outcome) *model.IssuanceResult {
	remaining, known, err := s.cache.GetStock(ctx, eventID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("stock read for failure response failed")
		known = false
	}
	return &model.IssuanceResult{
		Outcome:        outcome,
		RemainingStock: remaining,
		StockKnown:     known,
	}
}

// Status reports the cached view of an event.
func (s *IssuerService) Status(ctx context.Context, eventID string) (*model.EventStatus, error) {
	stock, known, err := s.cache.GetStock(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	count, err := s.cache.ParticipantCount(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("participant count: %w", err)
	}

	status := "sold_out"
	if known && stock > 0 {
		status = "active"
	}
	return &model.EventStatus{
		EventID:           eventID,
		RemainingStock:    stock,
		TotalParticipants: int(count),
		Status:            status,
	}, nil
}

// UserCoupon returns the cached coupon id for a user, or "" when none exists.
func (s *IssuerService) UserCoupon(ctx context.Context, userID, eventID string) (string, error) {
	couponID, err := s.cache.GetUserCoupon(ctx, userID, eventID)
	if err != nil {
		return "", fmt.Errorf("get user coupon: %w", err)
	}
	return couponID, nil
}

// InitializeStock provisions an event's stock. Returns true iff this call
// created the counter; false means stock already existed and was untouched.
func (s *IssuerService) InitializeStock(ctx context.Context, eventID string, stock int) (bool, error) {
	if stock < 0 {
		return false, ErrInvalidStock
	}
	created, err := s.cache.InitializeStock(ctx, eventID, stock)
	if err != nil {
		return false, fmt.Errorf("initialize stock: %w", err)
	}
	if created {
		log.Info().Str("event_id", eventID).Int("stock", stock).Msg("event stock initialized")
	}
	return created, nil
}

// Redeem marks the user's coupon as used by appending a redemption fact to
// the log. Returns ErrNoCoupon when the user holds no coupon for the event.
// Unlike issuance, the log is the point of truth here: a failed publish
// means the redemption did not happen.
func (s *IssuerService) Redeem(ctx context.Context, userID, eventID string) (string, error) {
	couponID, err := s.cache.GetUserCoupon(ctx, userID, eventID)
	if err != nil {
		return "", fmt.Errorf("get user coupon: %w", err)
	}
	if couponID == "" {
		return "", ErrNoCoupon
	}
	if err := s.publisher.PublishRedeemed(ctx, userID, eventID, couponID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return couponID, nil
}

// EventStats reports an event's cached admission state for operators,
// including how many failed publishes are parked in its repair queue.
func (s *IssuerService) EventStats(ctx context.Context, eventID string) (*model.EventCacheStats, error) {
	stock, known, err := s.cache.GetStock(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	count, err := s.cache.ParticipantCount(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("participant count: %w", err)
	}
	depth, err := s.cache.RepairDepth(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("repair depth: %w", err)
	}
	return &model.EventCacheStats{
		EventID:           eventID,
		RemainingStock:    stock,
		StockInitialized:  known,
		TotalParticipants: count,
		RepairDepth:       depth,
	}, nil
}

// InvalidateEvent removes all cached admission state for an event.
func (s *IssuerService) InvalidateEvent(ctx context.Context, eventID string) (int64, error) {
	deleted, err := s.cache.InvalidateEventCache(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("invalidate event cache: %w", err)
	}
	log.Info().Str("event_id", eventID).Int64("keys", deleted).Msg("event cache invalidated")
	return deleted, nil
}

// Close waits for in-flight publish repairs to settle.
func (s *IssuerService) Close() {
	s.repairWG.Wait()
}
