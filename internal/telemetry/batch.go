package telemetry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Batch is the delivery payload the gateway forwards to the authority: an
// ordered slice of accepted messages plus a fingerprint the receiver can
// recompute. Batches are immutable once built.
type Batch struct {
	GatewayID string     `json:"gateway_id"`
	BatchID   string     `json:"batch_id"`
	Timestamp int64      `json:"timestamp"`
	BatchSize int        `json:"batch_size"`
	BatchHash string     `json:"batch_hash"`
	Logs      []*Message `json:"logs"`
}

// NewBatch fingerprints messages and assembles the delivery payload. The
// batch id joins the gateway id, the creation unix time, and the first 8 hex
// chars of the fingerprint with underscores, which keeps ids unique per
// gateway and lets the receiver deduplicate redelivered batches.
func NewBatch(gatewayID string, messages []*Message, now time.Time) (*Batch, error) {
	hash, err := Fingerprint(messages)
	if err != nil {
		return nil, err
	}
	ts := now.Unix()
	return &Batch{
		GatewayID: gatewayID,
		BatchID:   fmt.Sprintf("%s_%d_%s", gatewayID, ts, hash[:8]),
		Timestamp: ts,
		BatchSize: len(messages),
		BatchHash: hash,
		Logs:      messages,
	}, nil
}

// Fingerprint returns the SHA-256 hex digest of the canonical JSON encoding
// of messages. Canonical form sorts object keys, so equal content always
// hashes equal regardless of map ordering.
func Fingerprint(messages []*Message) (string, error) {
	canonical, err := canonicalJSON(messages)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON re-encodes v through a generic value so JSON objects marshal
// with sorted keys. UseNumber keeps numeric literals intact; without it,
// sequence numbers above 2^53 would lose precision in the float64 round trip.
func canonicalJSON(v any) ([]byte, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
