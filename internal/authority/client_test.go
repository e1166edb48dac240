package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/events"
	"zero-trust-iot/gateway/internal/telemetry"
)

func testBatch(t *testing.T) *telemetry.Batch {
	t.Helper()
	batch, err := telemetry.NewBatch("gateway_001", []*telemetry.Message{
		{DeviceID: "esp8266_env_01", UserID: "user_1", Timestamp: 1700000000, SequenceNumber: 1},
	}, time.Unix(1700000100, 0))
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	return batch
}

func TestDeliverBatch_Success(t *testing.T) {
	var gotPath string
	var gotBatch telemetry.Batch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBatch)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	batch := testBatch(t)
	if err := c.DeliverBatch(context.Background(), batch); err != nil {
		t.Fatalf("DeliverBatch: %v", err)
	}
	if gotPath != "/api/logs" {
		t.Errorf("path = %q, want /api/logs", gotPath)
	}
	if gotBatch.BatchID != batch.BatchID {
		t.Errorf("batch_id = %q, want %q", gotBatch.BatchID, batch.BatchID)
	}
	if gotBatch.BatchSize != 1 {
		t.Errorf("batch_size = %d, want 1", gotBatch.BatchSize)
	}
}

func TestDeliverBatch_NonOKIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	err := c.DeliverBatch(context.Background(), testBatch(t))
	if !errors.Is(err, ErrServerRejected) {
		t.Errorf("err = %v, want ErrServerRejected", err)
	}
}

func TestDeliverBatch_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, zap.NewNop())
	if err := c.DeliverBatch(context.Background(), testBatch(t)); err == nil {
		t.Error("DeliverBatch should fail when the authority is unreachable")
	}
}

func TestFetchRegistry_BuildsMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/devices" {
			t.Errorf("path = %q, want /api/devices", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"id": "esp8266_env_01", "user_id": "user_1"},
			{"id": "esp8266_env_01", "user_id": "user_2"},
			{"id": "esp8266_env_02", "user_id": "user_3"},
			{"id": "incomplete_row"}, // no user_id, skipped
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	got, err := c.FetchRegistry(context.Background())
	if err != nil {
		t.Fatalf("FetchRegistry: %v", err)
	}
	want := map[string][]string{
		"esp8266_env_01": {"user_1", "user_2"},
		"esp8266_env_02": {"user_3"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("registry = %v, want %v", got, want)
	}
}

func TestFetchRegistry_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	if _, err := c.FetchRegistry(context.Background()); !errors.Is(err, ErrServerRejected) {
		t.Errorf("err = %v, want ErrServerRejected", err)
	}
}

func TestVerifyDevice_Authorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/devices/verify/esp8266_env_07/user_9" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"authorized": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	authorized, reason, err := c.VerifyDevice(context.Background(), "esp8266_env_07", "user_9")
	if err != nil {
		t.Fatalf("VerifyDevice: %v", err)
	}
	if !authorized {
		t.Error("authorized = false, want true")
	}
	if reason != "" {
		t.Errorf("reason = %q, want empty", reason)
	}
}

func TestVerifyDevice_RejectedWithReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"authorized": false, "reason": "device revoked"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	authorized, reason, err := c.VerifyDevice(context.Background(), "d", "u")
	if err != nil {
		t.Fatalf("VerifyDevice: %v", err)
	}
	if authorized {
		t.Error("authorized = true, want false")
	}
	if reason != "device revoked" {
		t.Errorf("reason = %q, want %q", reason, "device revoked")
	}
}

func TestVerifyDevice_ErrorStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	if _, _, err := c.VerifyDevice(context.Background(), "d", "u"); !errors.Is(err, ErrServerRejected) {
		t.Errorf("err = %v, want ErrServerRejected", err)
	}
}

func TestPostAlert_SendsEvent(t *testing.T) {
	var got events.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/alerts" {
			t.Errorf("path = %q, want /api/alerts", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	err := c.PostAlert(context.Background(), &events.Event{
		EventID:   "evt-1",
		DeviceID:  "esp8266_env_01",
		EventType: events.TypeSecurityAlert,
		Reason:    "REPLAY_ATTACK_DETECTED",
		Timestamp: 1700000000,
	})
	if err != nil {
		t.Fatalf("PostAlert: %v", err)
	}
	if got.EventID != "evt-1" || got.Reason != "REPLAY_ATTACK_DETECTED" {
		t.Errorf("alert = %+v", got)
	}
}

func TestFetchAlarmStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/alarm/status" {
			t.Errorf("path = %q, want /api/alarm/status", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"active": true, "reason": "vibration anomaly"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	status, err := c.FetchAlarmStatus(context.Background())
	if err != nil {
		t.Fatalf("FetchAlarmStatus: %v", err)
	}
	if !status.Active || status.Reason != "vibration anomaly" {
		t.Errorf("status = %+v", status)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, zap.NewNop())
	if err := c.DeliverBatch(ctx, testBatch(t)); err == nil {
		t.Error("DeliverBatch should fail with a cancelled context")
	}
}
