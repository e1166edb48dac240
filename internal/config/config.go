// Package config loads and validates gateway config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Buffer backpressure policies accepted by BUFFER_POLICY.
const (
	BufferPolicyReject     = "reject"
	BufferPolicyDropOldest = "drop_oldest"
)

// Config holds gateway configuration loaded from the environment.
type Config struct {
	// GatewayID identifies this gateway in batches, alerts, and control commands (e.g. gateway_001).
	GatewayID string `mapstructure:"GATEWAY_ID"`
	// HTTPAddr is the address the gateway HTTP server listens on (e.g. :8090).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// AuthorityURL is the central authority base URL (e.g. http://192.168.1.121:5002).
	AuthorityURL string `mapstructure:"AUTHORITY_URL"`
	// MQTTBrokerURL is the broker the gateway subscribes and publishes on (e.g. tcp://192.168.1.133:1883).
	MQTTBrokerURL string `mapstructure:"MQTT_BROKER_URL"`
	// MQTTUsername and MQTTPassword are optional broker credentials; empty disables auth.
	MQTTUsername string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword string `mapstructure:"MQTT_PASSWORD"`
	// MQTTClientID is the broker client id; defaults to GatewayID when empty.
	MQTTClientID string `mapstructure:"MQTT_CLIENT_ID"`
	// BatchSize is the max messages drained into one batch per flush cycle.
	BatchSize int `mapstructure:"BATCH_SIZE"`
	// FlushInterval is how often the buffer is drained (e.g. "2s").
	FlushInterval string `mapstructure:"FLUSH_INTERVAL"`
	// RetryInterval is how often persisted failed batches are re-attempted (e.g. "30s").
	RetryInterval string `mapstructure:"RETRY_INTERVAL"`
	// SyncInterval is how often the access registry is re-fetched from the authority (e.g. "60s").
	SyncInterval string `mapstructure:"SYNC_INTERVAL"`
	// TimestampSkewMax is the max accepted |now - message timestamp| (e.g. "300s").
	TimestampSkewMax string `mapstructure:"TIMESTAMP_SKEW_MAX"`
	// SequenceResetThreshold: sequence numbers strictly below this are treated as a device
	// restart and accepted even when not increasing. Ignored when ReplayStrict is true.
	SequenceResetThreshold int64 `mapstructure:"SEQUENCE_RESET_THRESHOLD"`
	// ReplayStrict rejects every non-increasing sequence number, with no restart allowance.
	ReplayStrict bool `mapstructure:"REPLAY_STRICT"`
	// BufferCapacity caps the in-memory buffer; 0 means unbounded.
	BufferCapacity int `mapstructure:"BUFFER_CAPACITY"`
	// BufferPolicy is what Enqueue does at capacity: "reject" or "drop_oldest".
	BufferPolicy string `mapstructure:"BUFFER_POLICY"`
	// RetryStorePath is the local file holding undelivered batches.
	RetryStorePath string `mapstructure:"RETRY_STORE_PATH"`
	// RetryMaxAge drops persisted batches older than this (e.g. "24h"); empty or "0" retries forever.
	RetryMaxAge string `mapstructure:"RETRY_MAX_AGE"`
	// RetryMaxAttempts drops persisted batches after this many failed redeliveries; 0 is unlimited.
	RetryMaxAttempts int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	// AlarmPollInterval is how often the authority's alarm state is polled (e.g. "3s").
	AlarmPollInterval string `mapstructure:"ALARM_POLL_INTERVAL"`

	// Events (optional). When Kafka brokers are set, the gateway emits security and
	// delivery events to Kafka in addition to the authority alert endpoint.
	// EventKafkaBrokers is a comma-separated list of broker addresses (e.g. "localhost:9092").
	EventKafkaBrokers string `mapstructure:"EVENT_KAFKA_BROKERS"`
	// EventKafkaTopic is the Kafka topic for gateway events (default iot-gateway-events).
	EventKafkaTopic string `mapstructure:"EVENT_KAFKA_TOPIC"`
	// EventKafkaGroupID is the consumer group used by the worker binary.
	EventKafkaGroupID string `mapstructure:"EVENT_KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes consumed events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// LogLevel is the zap log level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GATEWAY_ID", "gateway_001")
	v.SetDefault("HTTP_ADDR", ":8090")
	v.SetDefault("AUTHORITY_URL", "http://127.0.0.1:5002")
	v.SetDefault("MQTT_BROKER_URL", "tcp://127.0.0.1:1883")
	v.SetDefault("MQTT_USERNAME", "")
	v.SetDefault("MQTT_PASSWORD", "")
	v.SetDefault("MQTT_CLIENT_ID", "")
	v.SetDefault("BATCH_SIZE", 50)
	v.SetDefault("FLUSH_INTERVAL", "2s")
	v.SetDefault("RETRY_INTERVAL", "30s")
	v.SetDefault("SYNC_INTERVAL", "60s")
	v.SetDefault("TIMESTAMP_SKEW_MAX", "300s")
	v.SetDefault("SEQUENCE_RESET_THRESHOLD", 50)
	v.SetDefault("REPLAY_STRICT", false)
	v.SetDefault("BUFFER_CAPACITY", 10000)
	v.SetDefault("BUFFER_POLICY", BufferPolicyReject)
	v.SetDefault("RETRY_STORE_PATH", "failed_batches.json")
	v.SetDefault("RETRY_MAX_AGE", "0")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 0)
	v.SetDefault("ALARM_POLL_INTERVAL", "3s")
	v.SetDefault("EVENT_KAFKA_BROKERS", "")
	v.SetDefault("EVENT_KAFKA_TOPIC", "iot-gateway-events")
	v.SetDefault("EVENT_KAFKA_GROUP_ID", "iot-gateway-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GatewayID == "" {
		return nil, errors.New("config: GATEWAY_ID must be set")
	}
	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.AuthorityURL == "" {
		return nil, errors.New("config: AUTHORITY_URL must be set")
	}
	if cfg.MQTTBrokerURL == "" {
		return nil, errors.New("config: MQTT_BROKER_URL must be set")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("config: BATCH_SIZE must be positive")
	}
	if cfg.SequenceResetThreshold < 0 {
		return nil, errors.New("config: SEQUENCE_RESET_THRESHOLD must not be negative")
	}
	if cfg.BufferCapacity < 0 {
		return nil, errors.New("config: BUFFER_CAPACITY must not be negative")
	}
	if cfg.BufferPolicy != BufferPolicyReject && cfg.BufferPolicy != BufferPolicyDropOldest {
		return nil, fmt.Errorf("config: BUFFER_POLICY must be %q or %q", BufferPolicyReject, BufferPolicyDropOldest)
	}
	if cfg.RetryMaxAttempts < 0 {
		return nil, errors.New("config: RETRY_MAX_ATTEMPTS must not be negative")
	}
	if cfg.RetryStorePath == "" {
		return nil, errors.New("config: RETRY_STORE_PATH must be set")
	}

	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = cfg.GatewayID
	}

	return &cfg, nil
}

// FlushIntervalDuration parses FlushInterval as a time.Duration. Returns 2s if unset or invalid.
func (c *Config) FlushIntervalDuration() time.Duration {
	return parseDuration(c.FlushInterval, 2*time.Second)
}

// RetryIntervalDuration parses RetryInterval as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) RetryIntervalDuration() time.Duration {
	return parseDuration(c.RetryInterval, 30*time.Second)
}

// SyncIntervalDuration parses SyncInterval as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) SyncIntervalDuration() time.Duration {
	return parseDuration(c.SyncInterval, 60*time.Second)
}

// SkewMax parses TimestampSkewMax as a time.Duration. Returns 300s if unset or invalid.
func (c *Config) SkewMax() time.Duration {
	return parseDuration(c.TimestampSkewMax, 300*time.Second)
}

// RetryMaxAgeDuration parses RetryMaxAge as a time.Duration. Returns 0 (no expiry) if unset or invalid.
func (c *Config) RetryMaxAgeDuration() time.Duration {
	return parseDuration(c.RetryMaxAge, 0)
}

// AlarmPollIntervalDuration parses AlarmPollInterval as a time.Duration. Returns 3s if unset or invalid.
func (c *Config) AlarmPollIntervalDuration() time.Duration {
	return parseDuration(c.AlarmPollInterval, 3*time.Second)
}

// EventKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event emission is enabled (non-empty list) and to create the producer.
func (c *Config) EventKafkaBrokersList() []string {
	if c == nil || c.EventKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.EventKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" || s == "0" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
