// Package ingest funnels raw device payloads from every transport through
// the validation chain into the buffer. MQTT and HTTP submissions share this
// path so a message is treated the same no matter how it arrived.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/buffer"
	"zero-trust-iot/gateway/internal/metrics"
	"zero-trust-iot/gateway/internal/validator"
)

// RejectionReporter hears about payloads the validation chain refused.
type RejectionReporter interface {
	ReportRejection(raw []byte, err error)
}

// Pipeline validates and buffers raw payloads.
type Pipeline struct {
	validator *validator.Validator
	buf       *buffer.Buffer
	reporter  RejectionReporter
	logger    *zap.Logger
}

func New(v *validator.Validator, buf *buffer.Buffer, reporter RejectionReporter, logger *zap.Logger) *Pipeline {
	return &Pipeline{validator: v, buf: buf, reporter: reporter, logger: logger}
}

// Ingest runs one raw payload through validation and into the buffer.
// source labels the transport ("mqtt" or "http") in metrics and logs.
// Validation failures are reported as security alerts before returning;
// a full buffer under the reject policy returns buffer.ErrFull and raises
// no alert.
func (p *Pipeline) Ingest(ctx context.Context, source string, raw []byte) error {
	msg, err := p.validator.Validate(ctx, raw)
	if err != nil {
		reason := validator.Reason(err)
		metrics.MessagesRejected.WithLabelValues(source, reason).Inc()
		p.reporter.ReportRejection(raw, err)
		p.logger.Warn("message rejected",
			zap.String("source", source),
			zap.String("reason", reason),
			zap.Error(err))
		return err
	}

	evicted, err := p.buf.Enqueue(msg)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues(source, "BUFFER_FULL").Inc()
		p.logger.Warn("buffer full, message rejected",
			zap.String("source", source),
			zap.String("device_id", msg.DeviceID))
		return err
	}
	if evicted != nil {
		metrics.BufferDropped.Inc()
		p.logger.Warn("buffer at capacity, oldest message dropped",
			zap.String("dropped_device_id", evicted.DeviceID),
			zap.Int64("dropped_seq_no", evicted.SequenceNumber))
	}

	metrics.MessagesAccepted.WithLabelValues(source).Inc()
	metrics.BufferDepth.Set(float64(p.buf.Len()))
	p.logger.Debug("message accepted",
		zap.String("source", source),
		zap.String("device_id", msg.DeviceID),
		zap.Int64("seq_no", msg.SequenceNumber))
	return nil
}
