package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
)

// NewClient connects to the configured Redis deployment and verifies it with
// a ping, retrying with exponential backoff: 1s, 2s, 4s, 8s, 16s.
//
// One address means a standalone node, several mean a cluster. There is
// deliberately no fallback from cluster to standalone: the admission script
// depends on cluster semantics for its atomicity contract, so an unreachable
// cluster is a startup failure, not a degraded mode.
func NewClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.AddrList(),
		Password:    cfg.Password,
		PoolSize:    cfg.MaxConns,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
	})

	attempts := cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			log.Info().Strs("addrs", cfg.AddrList()).Msg("redis connection established")
			return client, nil
		}

		backoff := time.Duration(1<<attempt) * time.Second
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", attempts).
			Dur("next_retry_in", backoff).
			Msg("redis connection failed, retrying")

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", attempts, err)
}
