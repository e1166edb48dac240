package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.GatewayID != "gateway_001" {
		t.Errorf("GatewayID = %q, want %q", cfg.GatewayID, "gateway_001")
	}
	if cfg.HTTPAddr != ":8090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8090")
	}
	if cfg.AuthorityURL != "http://127.0.0.1:5002" {
		t.Errorf("AuthorityURL = %q, want default", cfg.AuthorityURL)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.SequenceResetThreshold != 50 {
		t.Errorf("SequenceResetThreshold = %d, want 50", cfg.SequenceResetThreshold)
	}
	if cfg.ReplayStrict {
		t.Error("ReplayStrict should default to false")
	}
	if cfg.BufferCapacity != 10000 {
		t.Errorf("BufferCapacity = %d, want 10000", cfg.BufferCapacity)
	}
	if cfg.BufferPolicy != BufferPolicyReject {
		t.Errorf("BufferPolicy = %q, want %q", cfg.BufferPolicy, BufferPolicyReject)
	}
	if cfg.RetryStorePath != "failed_batches.json" {
		t.Errorf("RetryStorePath = %q, want %q", cfg.RetryStorePath, "failed_batches.json")
	}
	if cfg.EventKafkaTopic != "iot-gateway-events" {
		t.Errorf("EventKafkaTopic = %q, want %q", cfg.EventKafkaTopic, "iot-gateway-events")
	}
}

func TestLoad_MQTTClientIDDefaultsToGatewayID(t *testing.T) {
	os.Clearenv()
	os.Setenv("GATEWAY_ID", "gateway_007")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTClientID != "gateway_007" {
		t.Errorf("MQTTClientID = %q, want %q", cfg.MQTTClientID, "gateway_007")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GATEWAY_ID", "gateway_042")
	os.Setenv("BATCH_SIZE", "10")
	os.Setenv("BUFFER_POLICY", "drop_oldest")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GatewayID != "gateway_042" {
		t.Errorf("GatewayID = %q, want %q", cfg.GatewayID, "gateway_042")
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.BufferPolicy != BufferPolicyDropOldest {
		t.Errorf("BufferPolicy = %q, want %q", cfg.BufferPolicy, BufferPolicyDropOldest)
	}
}

func TestLoad_InvalidBufferPolicy(t *testing.T) {
	os.Clearenv()
	os.Setenv("BUFFER_POLICY", "spill-to-disk")

	if _, err := Load(); err == nil {
		t.Error("Load should fail for an unknown BUFFER_POLICY")
	}
}

func TestLoad_NegativeBatchSize(t *testing.T) {
	os.Clearenv()
	os.Setenv("BATCH_SIZE", "-1")

	if _, err := Load(); err == nil {
		t.Error("Load should fail for a non-positive BATCH_SIZE")
	}
}

func TestDurationAccessors_Defaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.FlushIntervalDuration(); got != 2*time.Second {
		t.Errorf("FlushIntervalDuration = %v, want 2s", got)
	}
	if got := cfg.RetryIntervalDuration(); got != 30*time.Second {
		t.Errorf("RetryIntervalDuration = %v, want 30s", got)
	}
	if got := cfg.SyncIntervalDuration(); got != 60*time.Second {
		t.Errorf("SyncIntervalDuration = %v, want 60s", got)
	}
	if got := cfg.SkewMax(); got != 300*time.Second {
		t.Errorf("SkewMax = %v, want 300s", got)
	}
	if got := cfg.RetryMaxAgeDuration(); got != 0 {
		t.Errorf("RetryMaxAgeDuration = %v, want 0", got)
	}
}

func TestDurationAccessors_Parsed(t *testing.T) {
	cfg := &Config{
		FlushInterval:    "500ms",
		RetryInterval:    "1m",
		SyncInterval:     "2m",
		TimestampSkewMax: "120s",
		RetryMaxAge:      "24h",
	}

	if got := cfg.FlushIntervalDuration(); got != 500*time.Millisecond {
		t.Errorf("FlushIntervalDuration = %v, want 500ms", got)
	}
	if got := cfg.RetryIntervalDuration(); got != time.Minute {
		t.Errorf("RetryIntervalDuration = %v, want 1m", got)
	}
	if got := cfg.SyncIntervalDuration(); got != 2*time.Minute {
		t.Errorf("SyncIntervalDuration = %v, want 2m", got)
	}
	if got := cfg.SkewMax(); got != 120*time.Second {
		t.Errorf("SkewMax = %v, want 120s", got)
	}
	if got := cfg.RetryMaxAgeDuration(); got != 24*time.Hour {
		t.Errorf("RetryMaxAgeDuration = %v, want 24h", got)
	}
}

func TestDurationAccessors_InvalidFallsBack(t *testing.T) {
	cfg := &Config{FlushInterval: "soon", RetryMaxAge: "-5m"}

	if got := cfg.FlushIntervalDuration(); got != 2*time.Second {
		t.Errorf("FlushIntervalDuration = %v, want fallback 2s", got)
	}
	if got := cfg.RetryMaxAgeDuration(); got != 0 {
		t.Errorf("RetryMaxAgeDuration = %v, want fallback 0", got)
	}
}

func TestEventKafkaBrokersList(t *testing.T) {
	cfg := &Config{EventKafkaBrokers: "localhost:9092, broker-2:9092 ,"}

	got := cfg.EventKafkaBrokersList()
	if len(got) != 2 {
		t.Fatalf("len(brokers) = %d, want 2", len(got))
	}
	if got[0] != "localhost:9092" {
		t.Errorf("brokers[0] = %q, want %q", got[0], "localhost:9092")
	}
	if got[1] != "broker-2:9092" {
		t.Errorf("brokers[1] = %q, want %q", got[1], "broker-2:9092")
	}
}

func TestEventKafkaBrokersList_Empty(t *testing.T) {
	cfg := &Config{}
	if got := cfg.EventKafkaBrokersList(); got != nil {
		t.Errorf("brokers = %v, want nil", got)
	}
}
