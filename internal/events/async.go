package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not
// blocked. Use from message handlers for fire-and-forget, best-effort events;
// failures are logged at warn.
//
// producer and event may be nil; EmitAsync returns immediately without starting
// a goroutine. The goroutine uses context.Background() with emitTimeout so
// request cancellation does not abort an in-flight emit.
func EmitAsync(logger *zap.Logger, producer Producer, event *Event) {
	if producer == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := producer.Emit(ctx, event); err != nil && logger != nil {
			logger.Warn("async event emit failed",
				zap.String("event_type", event.EventType),
				zap.String("device_id", event.DeviceID),
				zap.Error(err))
		}
	}()
}
