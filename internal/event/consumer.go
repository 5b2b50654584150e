package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
)

// Consumer is the poll-process-commit loop. Auto-commit is disabled: offsets
// are committed only after every record in the batch has been applied, so a
// failed batch is redelivered from the last commit. Records of one partition
// are processed in order on a single goroutine, preserving per-event order
// for the relational writes.
type Consumer struct {
	client      *kgo.Client
	processor   *Processor
	pollRecords int
}

// NewConsumer joins the consumer group and wires the processor to the store.
func NewConsumer(cfg config.KafkaConfig, store Store) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BrokerList()...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(cfg.PollTimeout()),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}

	log.Info().
		Strs("brokers", cfg.BrokerList()).
		Str("topic", cfg.Topic).
		Str("group", cfg.ConsumerGroup).
		Msg("kafka consumer initialized")

	dlq := &dlqWriter{client: client, topic: cfg.DLQTopic}
	return &Consumer{
		client:      client,
		processor:   NewProcessor(store, dlq),
		pollRecords: cfg.PollRecords,
	}, nil
}

// Run polls until the context is cancelled or a batch fails. A batch failure
// returns with offsets uncommitted; the supervising process restarts the
// consumer, which rewinds to the last commit and redelivers the batch.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollRecords(ctx, c.pollRecords)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		applied, err := c.applyBatch(ctx, fetches)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().Err(err).Msg("batch failed, offsets not committed")
			return err
		}

		if applied == 0 {
			continue
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			log.Error().Err(err).Msg("offset commit failed")
			return err
		}
		log.Info().Int("records", applied).Msg("batch applied and committed")
	}
}

// applyBatch applies every record of one poll and reports how many it
// applied. A fetch error fails the whole batch even when records arrived
// alongside it: kgo has already marked those records consumed, so applying
// a later batch and committing would skip them forever instead of letting
// the restart rewind and redeliver.
func (c *Consumer) applyBatch(ctx context.Context, fetches kgo.Fetches) (int, error) {
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.Canceled) {
			return 0, context.Canceled
		}
		log.Error().Err(fe.Err).Str("topic", fe.Topic).Int32("partition", fe.Partition).Msg("fetch error")
		return 0, fmt.Errorf("fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err)
	}

	var failed error
	fetches.EachRecord(func(record *kgo.Record) {
		if failed != nil {
			return
		}
		if err := c.processor.Process(ctx, record.Key, record.Value); err != nil {
			failed = fmt.Errorf("apply record at %s[%d]@%d: %w",
				record.Topic, record.Partition, record.Offset, err)
		}
	})
	if failed != nil {
		return 0, failed
	}
	return fetches.NumRecords(), nil
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}

// dlqWriter produces uninterpretable records to the dead-letter topic using
// the consumer's own client.
type dlqWriter struct {
	client *kgo.Client
	topic  string
}

func (w *dlqWriter) DeadLetter(ctx context.Context, key, value []byte) error {
	record := &kgo.Record{Topic: w.topic, Key: key, Value: value}
	if err := w.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("dead-letter produce: %w", err)
	}
	return nil
}
