// Package validator runs the gateway's ordered admission checks on raw device
// payloads: field presence, access resolution, timestamp skew, sensor ranges,
// and replay detection, in that order, short-circuiting on the first failure.
package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zero-trust-iot/gateway/internal/registry"
	"zero-trust-iot/gateway/internal/sequence"
	"zero-trust-iot/gateway/internal/telemetry"
)

var (
	// ErrTimestampSkew is returned when a non-zero timestamp is further from
	// gateway time than the configured skew.
	ErrTimestampSkew = errors.New("timestamp skew")
	// ErrOutOfRange is returned when a recognized sensor reading falls outside
	// its physical bounds.
	ErrOutOfRange = errors.New("sensor out of range")
)

// sensorRanges are the physical bounds enforced when the reading is present.
var sensorRanges = []struct {
	name     string
	min, max float64
}{
	{"temperature", 0, 100},
	{"humidity", 0, 100},
	{"vibration", 0, 10},
}

// AccessResolver decides whether a device/user pair may publish.
type AccessResolver interface {
	Authorize(ctx context.Context, deviceID, userID string) error
}

// SequenceChecker accepts or rejects a sequence number, recording accepted ones.
type SequenceChecker interface {
	CheckAndRecord(deviceID string, seq int64) error
}

// Validator validates raw device payloads into accepted messages.
type Validator struct {
	resolver AccessResolver
	tracker  SequenceChecker
	skewMax  time.Duration
	nowF     func() time.Time
}

// New returns a Validator enforcing the given max timestamp skew.
func New(resolver AccessResolver, tracker SequenceChecker, skewMax time.Duration) *Validator {
	return &Validator{
		resolver: resolver,
		tracker:  tracker,
		skewMax:  skewMax,
		nowF:     time.Now,
	}
}

// Validate parses and checks one raw payload. On success it returns the
// accepted message, with a zero timestamp stamped to gateway time. The replay
// check runs last so the sequence record only moves for messages that pass
// every other check.
func (v *Validator) Validate(ctx context.Context, raw []byte) (*telemetry.Message, error) {
	msg, err := telemetry.ParseMessage(raw)
	if err != nil {
		return nil, err
	}

	if err := v.resolver.Authorize(ctx, msg.DeviceID, msg.UserID); err != nil {
		return nil, err
	}

	now := v.nowF().Unix()
	if msg.Timestamp == 0 {
		msg.Timestamp = now
	} else {
		skew := now - msg.Timestamp
		if skew < 0 {
			skew = -skew
		}
		if time.Duration(skew)*time.Second > v.skewMax {
			return nil, fmt.Errorf("%w: %ds exceeds %s", ErrTimestampSkew, skew, v.skewMax)
		}
	}

	for _, r := range sensorRanges {
		value, present := msg.Sensors[r.name]
		if !present {
			continue
		}
		if value < r.min || value > r.max {
			return nil, fmt.Errorf("%w: %s %g outside [%g, %g]", ErrOutOfRange, r.name, value, r.min, r.max)
		}
	}

	if err := v.tracker.CheckAndRecord(msg.DeviceID, msg.SequenceNumber); err != nil {
		return nil, err
	}

	return msg, nil
}

// Reason maps a validation error to a stable reason code, used as the alert
// reason and as the rejection metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, telemetry.ErrMissingFields):
		return "MISSING_REQUIRED_FIELDS"
	case errors.Is(err, telemetry.ErrMalformed):
		return "MALFORMED_PAYLOAD"
	case errors.Is(err, registry.ErrUnauthorizedDevice):
		return "UNAUTHORIZED_DEVICE"
	case errors.Is(err, registry.ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrTimestampSkew):
		return "TIMESTAMP_SKEW"
	case errors.Is(err, ErrOutOfRange):
		return "SENSOR_OUT_OF_RANGE"
	case errors.Is(err, sequence.ErrReplay):
		return "REPLAY_ATTACK_DETECTED"
	default:
		return "VALIDATION_FAILED"
	}
}
