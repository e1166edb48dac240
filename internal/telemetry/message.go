// Package telemetry defines the messages devices publish and the batches the
// gateway forwards to the central authority.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// requiredKeys are the top-level keys every device payload must carry.
var requiredKeys = []string{"device_id", "user_id", "timestamp", "sequence_number", "sensors", "system"}

var (
	// ErrMalformed is returned for payloads that are not a valid JSON object
	// or that carry non-numeric readings.
	ErrMalformed = errors.New("malformed payload")
	// ErrMissingFields is returned when a required top-level key is absent.
	ErrMissingFields = errors.New("missing required fields")
)

// Message is a single telemetry reading published by a device. Sensor and
// system values are numeric readings keyed by name.
type Message struct {
	DeviceID       string             `json:"device_id"`
	UserID         string             `json:"user_id"`
	Timestamp      int64              `json:"timestamp"`
	SequenceNumber int64              `json:"sequence_number"`
	Sensors        map[string]float64 `json:"sensors"`
	System         map[string]float64 `json:"system"`
}

// ParseMessage decodes a raw device payload. Required keys are checked for
// presence before the typed decode so that a field carrying a zero value is
// distinguishable from a field that was never sent. A timestamp of zero is
// legal here; the validator stamps it on acceptance.
func ParseMessage(raw []byte) (*Message, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var missing []string
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &msg, nil
}
