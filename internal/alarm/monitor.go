// Package alarm mirrors the central authority's alarm state on the gateway
// so operators see raises and clears in the gateway's own logs and metrics.
package alarm

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/authority"
	"zero-trust-iot/gateway/internal/metrics"
)

// StatusFetcher reads the authority's current alarm state.
type StatusFetcher interface {
	FetchAlarmStatus(ctx context.Context) (*authority.AlarmStatus, error)
}

// Monitor polls the authority and tracks the last observed alarm state.
type Monitor struct {
	fetcher StatusFetcher
	logger  *zap.Logger

	mu     sync.Mutex
	active bool
	reason string
}

func NewMonitor(fetcher StatusFetcher, logger *zap.Logger) *Monitor {
	return &Monitor{fetcher: fetcher, logger: logger}
}

// Poll fetches the alarm state once, logs transitions, and updates the alarm
// gauge. An unreachable authority keeps the last observed state.
func (m *Monitor) Poll(ctx context.Context) {
	st, err := m.fetcher.FetchAlarmStatus(ctx)
	if err != nil {
		m.logger.Warn("alarm status poll failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	prevActive, prevReason := m.active, m.reason
	m.active, m.reason = st.Active, st.Reason
	m.mu.Unlock()

	if st.Active {
		metrics.AlarmActive.Set(1)
	} else {
		metrics.AlarmActive.Set(0)
	}

	switch {
	case st.Active && !prevActive:
		m.logger.Warn("authority alarm raised", zap.String("reason", st.Reason))
	case !st.Active && prevActive:
		m.logger.Info("authority alarm cleared")
	case st.Active && st.Reason != prevReason:
		m.logger.Warn("authority alarm reason changed", zap.String("reason", st.Reason))
	}
}

// Active reports the last observed alarm state and its reason.
func (m *Monitor) Active() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.reason
}
