// Package events defines gateway security and delivery events and the
// optional Kafka producer that emits them.
package events

// Event types emitted by the gateway.
const (
	TypeSecurityAlert = "SECURITY_ALERT"
	TypeDeliveryFail  = "DELIVERY_FAILURE"
	TypeRetryExpired  = "RETRY_EXPIRED"
)

// Event is the wire shape shared by the authority alert endpoint and the
// Kafka event topic. Timestamp is unix seconds.
type Event struct {
	EventID        string `json:"event_id"`
	GatewayID      string `json:"gateway_id,omitempty"`
	DeviceID       string `json:"device_id"`
	UserID         string `json:"user_id,omitempty"`
	EventType      string `json:"event_type"`
	Reason         string `json:"reason"`
	SequenceNumber int64  `json:"seq_no,omitempty"`
	BatchID        string `json:"batch_id,omitempty"`
	Timestamp      int64  `json:"timestamp"`
	// RawPayload carries up to the first 200 bytes of the offending payload,
	// enough for the authority to fingerprint malformed traffic.
	RawPayload string `json:"raw_payload,omitempty"`
}
