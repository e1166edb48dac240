// Package sequence tracks per-device sequence numbers for replay detection.
package sequence

import (
	"errors"
	"fmt"
	"sync"
)

// ErrReplay is returned when a device presents a sequence number it already used.
var ErrReplay = errors.New("replay detected")

// Tracker records the last accepted sequence number per device. A device
// restarting its counter is tolerated: a number strictly below the reset
// threshold is accepted as a restart even though it is not increasing. An
// exact duplicate of the last number is always rejected. Strict mode drops
// the restart allowance and accepts only increasing numbers.
type Tracker struct {
	mu             sync.Mutex
	lastSeen       map[string]int64
	resetThreshold int64
	strict         bool
}

// NewTracker returns a Tracker with the given restart threshold. strict
// disables the restart allowance entirely.
func NewTracker(resetThreshold int64, strict bool) *Tracker {
	return &Tracker{
		lastSeen:       make(map[string]int64),
		resetThreshold: resetThreshold,
		strict:         strict,
	}
}

// CheckAndRecord accepts or rejects seq for deviceID, recording it when
// accepted. Run as the last validation stage so the recorded value only moves
// for messages that pass every other check.
func (t *Tracker) CheckAndRecord(deviceID string, seq int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, seen := t.lastSeen[deviceID]
	if !seen || seq > last {
		t.lastSeen[deviceID] = seq
		return nil
	}
	if !t.strict && seq < last && seq < t.resetThreshold {
		// Device restarted its counter.
		t.lastSeen[deviceID] = seq
		return nil
	}
	return fmt.Errorf("%w: device %s sent %d, last accepted %d", ErrReplay, deviceID, seq, last)
}

// LastSeen returns the last accepted sequence number for deviceID, with ok
// false for a device never seen.
func (t *Tracker) LastSeen(deviceID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastSeen[deviceID]
	return last, ok
}

// Devices returns the number of devices currently tracked.
func (t *Tracker) Devices() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}
