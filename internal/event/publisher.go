package event

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
)

// Publisher appends issuance facts to the durable log.
//
// Delivery contract: acks from all in-sync replicas, idempotent producer
// (broker-side dedup of retries), at most one produce request in flight per
// broker so retries cannot reorder, bounded retries, snappy compression.
// Records are keyed by the coupon event id, which pins every fact of one
// event to a single partition and preserves admission commit order.
type Publisher struct {
	client  *kgo.Client
	topic   string
	timeout time.Duration
}

// NewPublisher connects a producer with the delivery contract above.
// The client is safe for concurrent use; one Publisher is shared per process.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	retries := cfg.ProduceRetries
	if retries < 3 {
		retries = 3
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BrokerList()...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.MaxProduceRequestsInflightPerBroker(1),
		kgo.RecordRetries(retries),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	log.Info().Strs("brokers", cfg.BrokerList()).Str("topic", cfg.Topic).Msg("kafka producer initialized")
	return &Publisher{
		client:  client,
		topic:   cfg.Topic,
		timeout: cfg.PublishTimeoutDuration(),
	}, nil
}

// PublishIssued appends a coupon_issued record for the given admission.
func (p *Publisher) PublishIssued(ctx context.Context, userID, eventID, couponID string) error {
	env, err := NewIssued(userID, eventID, couponID)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, eventID, env)
}

// PublishRedeemed appends a coupon_redeemed record.
func (p *Publisher) PublishRedeemed(ctx context.Context, userID, eventID, couponID string) error {
	env, err := NewRedeemed(userID, eventID, couponID)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, eventID, env)
}

// PublishExhausted appends a stock_exhausted record.
func (p *Publisher) PublishExhausted(ctx context.Context, eventID string, remainingStock int) error {
	env, err := NewExhausted(eventID, remainingStock)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, eventID, env)
}

// PublishEnvelope synchronously appends one envelope keyed by the coupon
// event id, waiting for broker acknowledgement before returning.
func (p *Publisher) PublishEnvelope(ctx context.Context, eventID string, env *Envelope) error {
	value, err := env.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(eventID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", env.Type, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
