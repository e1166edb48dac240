// Package worker schedules the gateway's background loops. Every task is
// cancellable through its context and can carry jitter so loops hitting the
// same upstream do not fire in lockstep.
package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner tracks the goroutines behind periodic tasks so shutdown can wait
// for in-flight cycles to finish.
type Runner struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Every runs fn once per interval until ctx is cancelled. A positive jitter
// adds a uniform random delay in [0, jitter] before each cycle. The first
// cycle waits a full interval; callers wanting an immediate run invoke fn
// themselves before scheduling.
func (r *Runner) Every(ctx context.Context, name string, interval, jitter time.Duration, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.logger.Info("periodic task started",
			zap.String("task", name),
			zap.Duration("interval", interval),
			zap.Duration("jitter", jitter))

		timer := time.NewTimer(withJitter(interval, jitter))
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("periodic task stopped", zap.String("task", name))
				return
			case <-timer.C:
				fn(ctx)
				timer.Reset(withJitter(interval, jitter))
			}
		}
	}()
}

// Wait blocks until every scheduled task has observed cancellation and
// returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func withJitter(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	return interval + time.Duration(rand.Int63n(int64(jitter)+1))
}
