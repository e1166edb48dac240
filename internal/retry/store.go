// Package retry persists undelivered batches to a local file and redelivers
// them on a sweep interval. Batches outlive gateway restarts; the expiry
// policy (max age, max attempts) decides when a batch stops being retried
// and is surfaced to an operator instead.
package retry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/telemetry"
)

// Record is one persisted batch with its failure bookkeeping.
type Record struct {
	Batch    *telemetry.Batch `json:"batch"`
	FailedAt int64            `json:"failed_at"`
	Attempts int              `json:"attempts"`
}

// Deliverer redelivers one batch to the central authority.
type Deliverer interface {
	DeliverBatch(ctx context.Context, batch *telemetry.Batch) error
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	// Recovered batches were accepted by the authority this cycle.
	Recovered int
	// Remaining batches are still persisted after the cycle.
	Remaining int
	// Expired holds the batch ids dropped by the expiry policy.
	Expired []string
}

// Store is a file-backed retry queue. Every mutation is a read-modify-write
// of the whole file under the store lock; the lock also covers a full sweep
// so a concurrent Persist can never be lost by the sweep's rewrite.
type Store struct {
	mu       sync.Mutex
	path     string
	maxAge   time.Duration // 0 = no age limit
	maxTries int           // 0 = unlimited attempts
	logger   *zap.Logger
	nowF     func() time.Time
}

// NewStore returns a Store writing to path. maxAge and maxTries of zero mean
// batches are retried forever.
func NewStore(path string, maxAge time.Duration, maxTries int, logger *zap.Logger) *Store {
	return &Store{
		path:     path,
		maxAge:   maxAge,
		maxTries: maxTries,
		logger:   logger,
		nowF:     time.Now,
	}
}

// Persist appends batch to the store file, tagged with the failure time.
// An unreadable store file is logged and overwritten rather than blocking
// persistence of new batches.
func (s *Store) Persist(batch *telemetry.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		s.logger.Error("retry store unreadable, starting fresh", zap.Error(err))
		records = nil
	}
	records = append(records, Record{
		Batch:    batch,
		FailedAt: s.nowF().Unix(),
	})
	if err := s.save(records); err != nil {
		return fmt.Errorf("persist batch %s: %w", batch.BatchID, err)
	}
	s.logger.Info("batch persisted for retry",
		zap.String("batch_id", batch.BatchID),
		zap.Int("pending", len(records)))
	return nil
}

// Len returns the number of persisted batches.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return 0
	}
	return len(records)
}

// Sweep attempts independent redelivery of every persisted batch and rewrites
// the store with only the still-failing subset. Batches past the expiry
// policy are dropped without an attempt and reported in the result. A failed
// rewrite is logged and deferred to the next cycle; redelivered batches may
// then be sent again, which the receiver deduplicates by batch id.
func (s *Store) Sweep(ctx context.Context, deliver Deliverer) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SweepResult
	records, err := s.load()
	if err != nil {
		s.logger.Error("retry store unreadable", zap.Error(err))
		return res
	}
	if len(records) == 0 {
		return res
	}

	s.logger.Info("retrying persisted batches", zap.Int("count", len(records)))
	now := s.nowF()
	still := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Batch == nil {
			continue
		}
		if s.expired(rec, now) {
			s.logger.Warn("batch dropped by retry expiry policy",
				zap.String("batch_id", rec.Batch.BatchID),
				zap.Int("attempts", rec.Attempts))
			res.Expired = append(res.Expired, rec.Batch.BatchID)
			continue
		}
		if ctx.Err() != nil {
			// Shutting down; keep the record untouched for the next run.
			still = append(still, rec)
			continue
		}
		if err := deliver.DeliverBatch(ctx, rec.Batch); err != nil {
			s.logger.Warn("batch retry failed",
				zap.String("batch_id", rec.Batch.BatchID),
				zap.Error(err))
			rec.Attempts++
			still = append(still, rec)
			continue
		}
		s.logger.Info("batch recovered", zap.String("batch_id", rec.Batch.BatchID))
		res.Recovered++
	}

	if err := s.save(still); err != nil {
		s.logger.Error("retry store rewrite failed", zap.Error(err))
	}
	res.Remaining = len(still)
	return res
}

func (s *Store) expired(rec Record, now time.Time) bool {
	if s.maxTries > 0 && rec.Attempts >= s.maxTries {
		return true
	}
	if s.maxAge > 0 && now.Sub(time.Unix(rec.FailedAt, 0)) > s.maxAge {
		return true
	}
	return false
}

func (s *Store) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return records, nil
}

func (s *Store) save(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
