package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	DB     DBConfig
	Cache  CacheConfig
	Log    LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
	RequestTimeout  int    `envconfig:"REQUEST_TIMEOUT" default:"10"`  // seconds, per-issuance deadline
}

// RedisConfig holds the KV cluster seed addresses and client limits.
// A single address runs against a standalone node (dev); multiple addresses
// run under cluster semantics. There is no fallback between the two: if the
// configured deployment is unreachable at startup the process exits.
type RedisConfig struct {
	Addrs          string `envconfig:"REDIS_ADDRS" default:"localhost:6379"` // comma-separated host:port
	Password       string `envconfig:"REDIS_PASSWORD" default:""`
	MaxConns       int    `envconfig:"REDIS_MAX_CONNS" default:"50"`
	DialTimeout    int    `envconfig:"REDIS_DIAL_TIMEOUT" default:"10"` // seconds
	ScriptTimeout  int    `envconfig:"REDIS_SCRIPT_TIMEOUT" default:"3"`
	ConnectRetries int    `envconfig:"REDIS_CONNECT_RETRIES" default:"5"`
}

// AddrList splits the comma-separated seed addresses.
func (c RedisConfig) AddrList() []string {
	return splitList(c.Addrs)
}

// ScriptTimeoutDuration returns the per-script-call timeout as a duration.
func (c RedisConfig) ScriptTimeoutDuration() time.Duration {
	return time.Duration(c.ScriptTimeout) * time.Second
}

// KafkaConfig holds broker seeds and the topic/consumer-group contract.
type KafkaConfig struct {
	Brokers        string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"` // comma-separated host:port
	Topic          string `envconfig:"KAFKA_TOPIC" default:"coupon-events"`
	DLQTopic       string `envconfig:"KAFKA_DLQ_TOPIC" default:"coupon-events-dlq"`
	ConsumerGroup  string `envconfig:"KAFKA_CONSUMER_GROUP" default:"coupon-consumer-group"`
	PublishTimeout int    `envconfig:"KAFKA_PUBLISH_TIMEOUT" default:"10"` // seconds
	ProduceRetries int    `envconfig:"KAFKA_PRODUCE_RETRIES" default:"3"`
	PollRecords    int    `envconfig:"KAFKA_POLL_RECORDS" default:"100"`
	PollInterval   int    `envconfig:"KAFKA_POLL_INTERVAL_MS" default:"1000"` // milliseconds
}

// BrokerList splits the comma-separated broker addresses.
func (c KafkaConfig) BrokerList() []string {
	return splitList(c.Brokers)
}

// PublishTimeoutDuration returns the per-publish timeout as a duration.
func (c KafkaConfig) PublishTimeoutDuration() time.Duration {
	return time.Duration(c.PublishTimeout) * time.Second
}

// PollTimeout returns the consumer poll interval as a duration.
func (c KafkaConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// DBConfig holds database-related configuration for the consumer.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host            string `envconfig:"DB_HOST" default:"localhost"`
	Port            int    `envconfig:"DB_PORT" default:"5432"`
	User            string `envconfig:"DB_USER" default:"postgres"`
	Password        string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name            string `envconfig:"DB_NAME" default:"coupon_db"`
	SSLMode         string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns        int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns        int    `envconfig:"DB_MIN_CONNS" default:"5"`
	MaxConnLifetime int    `envconfig:"DB_MAX_CONN_LIFETIME" default:"3600"` // seconds, bounds connection age
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d&pool_max_conn_lifetime=%ds",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns, c.MaxConnLifetime)
}

// CacheConfig holds the admission-state TTLs and seeding policy.
// TTLs are safety nets against orphaned keys; correctness never depends on
// a key being evicted.
type CacheConfig struct {
	StockTTL      int  `envconfig:"CACHE_STOCK_TTL" default:"3600"`  // seconds
	CouponTTL     int  `envconfig:"CACHE_COUPON_TTL" default:"3600"` // seconds
	DefaultStock  int  `envconfig:"CACHE_DEFAULT_STOCK" default:"1000"`
	AutoSeed      bool `envconfig:"CACHE_AUTO_SEED" default:"true"` // disable in production
	RepairRetries int  `envconfig:"CACHE_REPAIR_RETRIES" default:"3"`
}

// StockTTLDuration returns the stock/participant TTL as a duration.
func (c CacheConfig) StockTTLDuration() time.Duration {
	return time.Duration(c.StockTTL) * time.Second
}

// CouponTTLDuration returns the user-coupon cache TTL as a duration.
func (c CacheConfig) CouponTTLDuration() time.Duration {
	return time.Duration(c.CouponTTL) * time.Second
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
