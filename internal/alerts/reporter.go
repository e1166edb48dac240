// Package alerts mirrors security-relevant rejections upstream. Every
// rejection becomes an alert POSTed to the central authority and, when a
// Kafka producer is configured, an event on the gateway event topic.
// Delivery is asynchronous and best-effort: a failed alert is logged, never
// retried, and never blocks ingestion.
package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/events"
	"zero-trust-iot/gateway/internal/validator"
)

// maxRawPayload caps how much of the offending payload rides along in an
// alert, enough for the authority to fingerprint malformed traffic.
const maxRawPayload = 200

// alertTimeout bounds one async alert post.
const alertTimeout = 2 * time.Second

// Sink delivers an alert to the central authority.
type Sink interface {
	PostAlert(ctx context.Context, event *events.Event) error
}

// Reporter builds and fires gateway events.
type Reporter struct {
	gatewayID string
	sink      Sink
	producer  events.Producer // nil when Kafka is not configured
	logger    *zap.Logger
	nowF      func() time.Time
}

// NewReporter returns a Reporter publishing alerts for gatewayID. producer
// may be nil.
func NewReporter(gatewayID string, sink Sink, producer events.Producer, logger *zap.Logger) *Reporter {
	return &Reporter{
		gatewayID: gatewayID,
		sink:      sink,
		producer:  producer,
		logger:    logger,
		nowF:      time.Now,
	}
}

// rejectedFields pulls the identifying fields out of a rejected payload.
// Decode errors are ignored; a payload too broken to parse is reported as
// unauthenticated.
type rejectedFields struct {
	DeviceID       string `json:"device_id"`
	UserID         string `json:"user_id"`
	SequenceNumber int64  `json:"sequence_number"`
}

// ReportRejection fires a security alert for a payload that failed
// validation. raw is the payload as received; err is the validation error.
func (r *Reporter) ReportRejection(raw []byte, err error) {
	var fields rejectedFields
	_ = json.Unmarshal(raw, &fields)
	if fields.DeviceID == "" {
		fields.DeviceID = "unauthenticated"
	}

	event := &events.Event{
		EventID:        uuid.New().String(),
		GatewayID:      r.gatewayID,
		DeviceID:       fields.DeviceID,
		UserID:         fields.UserID,
		EventType:      events.TypeSecurityAlert,
		Reason:         validator.Reason(err),
		SequenceNumber: fields.SequenceNumber,
		Timestamp:      r.nowF().Unix(),
		RawPayload:     truncate(raw, maxRawPayload),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := r.sink.PostAlert(ctx, event); err != nil {
			r.logger.Warn("security alert not delivered",
				zap.String("device_id", event.DeviceID),
				zap.String("reason", event.Reason),
				zap.Error(err))
		}
	}()
	events.EmitAsync(r.logger, r.producer, event)
}

// ReportDeliveryFailure emits a delivery-failure event for a batch the
// authority did not accept. Kafka only; the authority is unreachable when
// this fires.
func (r *Reporter) ReportDeliveryFailure(batchID string) {
	events.EmitAsync(r.logger, r.producer, &events.Event{
		EventID:   uuid.New().String(),
		GatewayID: r.gatewayID,
		EventType: events.TypeDeliveryFail,
		Reason:    "BATCH_DELIVERY_FAILED",
		BatchID:   batchID,
		Timestamp: r.nowF().Unix(),
	})
}

// ReportRetryExpired emits an event for a batch dropped by the retry expiry
// policy, surfacing permanently-failed data to an operator. Kafka only.
func (r *Reporter) ReportRetryExpired(batchID string) {
	events.EmitAsync(r.logger, r.producer, &events.Event{
		EventID:   uuid.New().String(),
		GatewayID: r.gatewayID,
		EventType: events.TypeRetryExpired,
		Reason:    "RETRY_BUDGET_EXHAUSTED",
		BatchID:   batchID,
		Timestamp: r.nowF().Unix(),
	})
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n])
}
