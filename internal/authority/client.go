// Package authority is the HTTP client for all central-authority egress:
// batch delivery, registry sync, live device verification, security alerts,
// and alarm status. Every call carries its own bounded timeout so a stalled
// authority can never block ingestion indefinitely.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/events"
	"zero-trust-iot/gateway/internal/telemetry"
)

// ErrServerRejected is returned when the authority answers with a non-success
// status. Distinguishes an explicit rejection from transport failures, which
// pass through wrapped.
var ErrServerRejected = errors.New("authority rejected")

// Per-call timeouts. Verification sits on the ingestion path and is bounded
// tighter than delivery; alerts are fire-and-forget and get the smallest.
const (
	deliverTimeout  = 5 * time.Second
	registryTimeout = 5 * time.Second
	verifyTimeout   = 3 * time.Second
	alertTimeout    = 2 * time.Second
	alarmTimeout    = 3 * time.Second
)

// AlarmStatus is the authority's current alarm state.
type AlarmStatus struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

// registryDevice is one row of the authority's device registry.
type registryDevice struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// Client talks to the central authority over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient returns a Client for the authority at baseURL (e.g.
// http://192.168.1.121:5002).
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
		logger:  logger,
	}
}

// DeliverBatch posts one batch to the authority's log endpoint. Only a 200
// counts as accepted; anything else is an error and the caller hands the
// batch to the retry store.
func (c *Client) DeliverBatch(ctx context.Context, batch *telemetry.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	status, err := c.postJSON(ctx, c.baseURL+"/api/logs", batch)
	if err != nil {
		return fmt.Errorf("deliver batch: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: batch delivery returned HTTP %d", ErrServerRejected, status)
	}
	return nil
}

// FetchRegistry retrieves the full device registry and folds it into a map of
// device id to authorized users. Rows missing an id or user are skipped.
func (c *Client) FetchRegistry(ctx context.Context) (map[string][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/devices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: registry returned HTTP %d", ErrServerRejected, resp.StatusCode)
	}

	var devices []registryDevice
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	out := make(map[string][]string, len(devices))
	skipped := 0
	for _, d := range devices {
		if d.ID == "" || d.UserID == "" {
			skipped++
			continue
		}
		out[d.ID] = append(out[d.ID], d.UserID)
	}
	if skipped > 0 {
		c.logger.Debug("registry rows without id or user skipped", zap.Int("skipped", skipped))
	}
	return out, nil
}

// VerifyDevice asks the authority whether userID may publish for deviceID.
// Returns the authority's verdict on a 200; any transport failure or other
// status is an error, which callers treat as a fail-secure deny.
func (c *Client) VerifyDevice(ctx context.Context, deviceID, userID string) (bool, string, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/devices/verify/%s/%s", c.baseURL, deviceID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("verify device: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, "", fmt.Errorf("%w: verification returned HTTP %d", ErrServerRejected, resp.StatusCode)
	}

	var verdict struct {
		Authorized bool   `json:"authorized"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, "", fmt.Errorf("decode verification: %w", err)
	}
	return verdict.Authorized, verdict.Reason, nil
}

// PostAlert sends one security alert. Best-effort; callers log and ignore the
// error.
func (c *Client) PostAlert(ctx context.Context, event *events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	status, err := c.postJSON(ctx, c.baseURL+"/api/alerts", event)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: alert returned HTTP %d", ErrServerRejected, status)
	}
	return nil
}

// FetchAlarmStatus polls the authority's alarm state.
func (c *Client) FetchAlarmStatus(ctx context.Context) (*AlarmStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, alarmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/alarm/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch alarm status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: alarm status returned HTTP %d", ErrServerRejected, resp.StatusCode)
	}

	var status AlarmStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode alarm status: %w", err)
	}
	return &status, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
