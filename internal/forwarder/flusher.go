// Package forwarder moves accepted telemetry out of the gateway: it drains
// the in-memory buffer into fingerprinted batches, delivers them to the
// central authority, and hands failed batches to the retry store.
package forwarder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/buffer"
	"zero-trust-iot/gateway/internal/metrics"
	"zero-trust-iot/gateway/internal/retry"
	"zero-trust-iot/gateway/internal/telemetry"
)

// Deliverer sends one batch to the central authority.
type Deliverer interface {
	DeliverBatch(ctx context.Context, batch *telemetry.Batch) error
}

// FailureReporter hears about batches that could not be delivered and
// batches the retry policy gave up on.
type FailureReporter interface {
	ReportDeliveryFailure(batchID string)
	ReportRetryExpired(batchID string)
}

// Flusher owns the buffer-to-authority path.
type Flusher struct {
	gatewayID string
	batchSize int
	buf       *buffer.Buffer
	deliver   Deliverer
	store     *retry.Store
	reporter  FailureReporter
	logger    *zap.Logger
	nowF      func() time.Time
}

func New(gatewayID string, batchSize int, buf *buffer.Buffer, deliver Deliverer, store *retry.Store, reporter FailureReporter, logger *zap.Logger) *Flusher {
	return &Flusher{
		gatewayID: gatewayID,
		batchSize: batchSize,
		buf:       buf,
		deliver:   deliver,
		store:     store,
		reporter:  reporter,
		logger:    logger,
		nowF:      time.Now,
	}
}

// Flush drains up to one batch worth of messages and delivers them. An empty
// buffer sends nothing. Messages from a failed delivery are persisted for
// retry rather than returned to the buffer, so a cycle never loses data and
// never blocks ingestion longer than the drain itself. Returns the number of
// messages taken out of the buffer.
func (f *Flusher) Flush(ctx context.Context) int {
	msgs := f.buf.Drain(f.batchSize)
	metrics.BufferDepth.Set(float64(f.buf.Len()))
	if len(msgs) == 0 {
		return 0
	}

	batch, err := telemetry.NewBatch(f.gatewayID, msgs, f.nowF())
	if err != nil {
		// Messages already passed a JSON decode; an encoding failure
		// here has no retry path.
		f.logger.Error("batch fingerprint failed, dropping cycle",
			zap.Int("messages", len(msgs)),
			zap.Error(err))
		return len(msgs)
	}
	if err := f.deliver.DeliverBatch(ctx, batch); err != nil {
		f.logger.Warn("batch delivery failed, persisting for retry",
			zap.String("batch_id", batch.BatchID),
			zap.Int("batch_size", batch.BatchSize),
			zap.Error(err))
		if perr := f.store.Persist(batch); perr != nil {
			f.logger.Error("batch dropped: persist after delivery failure failed",
				zap.String("batch_id", batch.BatchID),
				zap.Error(perr))
		} else {
			metrics.BatchesPersisted.Inc()
			metrics.RetryStoreDepth.Set(float64(f.store.Len()))
		}
		f.reporter.ReportDeliveryFailure(batch.BatchID)
		return len(msgs)
	}

	metrics.BatchesDelivered.Inc()
	f.logger.Info("batch delivered",
		zap.String("batch_id", batch.BatchID),
		zap.Int("batch_size", batch.BatchSize))
	return len(msgs)
}

// FlushAll drains the buffer completely, one batch per cycle. Called at
// shutdown so already accepted messages are not lost.
func (f *Flusher) FlushAll(ctx context.Context) {
	for f.buf.Len() > 0 {
		if f.Flush(ctx) == 0 {
			return
		}
	}
}

// SweepRetries runs one retry cycle over the persisted batches and surfaces
// whatever the expiry policy dropped.
func (f *Flusher) SweepRetries(ctx context.Context) retry.SweepResult {
	res := f.store.Sweep(ctx, f.deliver)
	if res.Recovered > 0 {
		metrics.BatchesRecovered.Add(float64(res.Recovered))
	}
	for _, id := range res.Expired {
		f.reporter.ReportRetryExpired(id)
	}
	if n := len(res.Expired); n > 0 {
		metrics.BatchesExpired.Add(float64(n))
	}
	metrics.RetryStoreDepth.Set(float64(res.Remaining))
	return res
}
