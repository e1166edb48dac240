// Package metrics declares the gateway's Prometheus instruments. They
// register into the default registry; the HTTP server exposes them on
// GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesAccepted counts messages that passed validation, by ingestion source.
	MessagesAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_accepted_total",
			Help: "Messages accepted into the buffer by ingestion source",
		},
		[]string{"source"},
	)

	// MessagesRejected counts validation failures by source and reason code.
	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_rejected_total",
			Help: "Messages rejected by validation, by source and reason",
		},
		[]string{"source", "reason"},
	)

	// BatchesDelivered counts batches the authority accepted, first try or retry.
	BatchesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_batches_delivered_total",
			Help: "Batches accepted by the central authority",
		},
	)

	// BatchesPersisted counts batches handed to the retry store after a
	// delivery failure.
	BatchesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_batches_persisted_total",
			Help: "Batches persisted locally after failed delivery",
		},
	)

	// BatchesRecovered counts persisted batches that a retry sweep delivered.
	BatchesRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_batches_recovered_total",
			Help: "Persisted batches successfully redelivered",
		},
	)

	// BatchesExpired counts persisted batches dropped by the expiry policy.
	BatchesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_batches_expired_total",
			Help: "Persisted batches dropped after exceeding retry age or attempts",
		},
	)

	// BufferDropped counts messages evicted by the drop_oldest policy.
	BufferDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_buffer_dropped_total",
			Help: "Accepted messages evicted by the drop_oldest buffer policy",
		},
	)

	// BufferDepth is the current number of buffered messages.
	BufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_buffer_depth",
			Help: "Messages currently buffered awaiting flush",
		},
	)

	// RetryStoreDepth is the current number of persisted batches.
	RetryStoreDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_retry_store_batches",
			Help: "Batches currently persisted in the retry store",
		},
	)

	// RegistryDevices is the device count after the last successful sync.
	RegistryDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_registry_devices",
			Help: "Device identities in the access cache",
		},
	)

	// AlarmActive is 1 while the authority reports an active alarm.
	AlarmActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_alarm_active",
			Help: "Whether the central authority reports an active alarm",
		},
	)

	// ControlCommands counts control commands by outcome.
	ControlCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_control_commands_total",
			Help: "Control commands forwarded to devices, by outcome",
		},
		[]string{"status"},
	)
)
