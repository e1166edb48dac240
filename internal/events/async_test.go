package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockProducer implements Producer for tests.
type mockProducer struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
}

func (m *mockProducer) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockProducer) Close() error { return nil }

func (m *mockProducer) emitted() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func TestEmitAsync_NilProducer(t *testing.T) {
	// Should not panic
	EmitAsync(zap.NewNop(), nil, &Event{EventType: TypeSecurityAlert})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	producer := &mockProducer{}

	EmitAsync(zap.NewNop(), producer, nil)
	time.Sleep(20 * time.Millisecond)

	if got := producer.emitted(); len(got) != 0 {
		t.Errorf("expected 0 events, got %d", len(got))
	}
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	producer := &mockProducer{}
	event := &Event{
		EventID:   "evt-1",
		DeviceID:  "temp_sensor_01",
		EventType: TypeSecurityAlert,
		Reason:    "REPLAY_ATTACK_DETECTED",
	}

	EmitAsync(zap.NewNop(), producer, event)
	time.Sleep(100 * time.Millisecond)

	got := producer.emitted()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].EventID != "evt-1" {
		t.Errorf("event id = %q, want %q", got[0].EventID, "evt-1")
	}
	if got[0].EventType != TypeSecurityAlert {
		t.Errorf("event type = %q, want %q", got[0].EventType, TypeSecurityAlert)
	}
}

func TestEmitAsync_ErrorDoesNotPanic(t *testing.T) {
	producer := &mockProducer{emitErr: errors.New("broker down")}

	EmitAsync(zap.NewNop(), producer, &Event{EventType: TypeDeliveryFail})
	time.Sleep(100 * time.Millisecond)
}

func TestEmitAsync_ConcurrentCallers(t *testing.T) {
	producer := &mockProducer{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(zap.NewNop(), producer, &Event{EventType: TypeSecurityAlert})
		}()
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	if got := producer.emitted(); len(got) != 10 {
		t.Errorf("expected 10 events, got %d", len(got))
	}
}

func TestNewKafkaProducer_UnconfiguredReturnsNil(t *testing.T) {
	p, err := NewKafkaProducer(nil, "iot-gateway-events")
	if err != nil {
		t.Fatalf("NewKafkaProducer: %v", err)
	}
	if p != nil {
		t.Error("expected nil producer when brokers are unset")
	}

	p, err = NewKafkaProducer([]string{"localhost:9092"}, "")
	if err != nil {
		t.Fatalf("NewKafkaProducer: %v", err)
	}
	if p != nil {
		t.Error("expected nil producer when topic is unset")
	}
}

func TestKafkaProducer_NilSafe(t *testing.T) {
	var p *KafkaProducer

	if err := p.Emit(context.Background(), &Event{}); err != nil {
		t.Errorf("nil producer Emit = %v, want nil", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close = %v, want nil", err)
	}
}
