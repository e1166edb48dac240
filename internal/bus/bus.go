// Package bus connects the gateway to the MQTT broker. It ingests device
// telemetry from the shared data topic and publishes control commands back
// to per-device control topics.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/metrics"
)

// DataTopic is the wildcard topic devices publish telemetry on.
const DataTopic = "iot/devices/+/data"

const (
	dataQoS        = 1
	connectTimeout = 10 * time.Second
	publishTimeout = 2 * time.Second
	handleTimeout  = 5 * time.Second
)

// Ingestor accepts one raw payload from a transport.
type Ingestor interface {
	Ingest(ctx context.Context, source string, raw []byte) error
}

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	GatewayID string
}

// Bus owns the broker client. Subscription happens in the connect callback
// so it survives reconnects.
type Bus struct {
	client    mqtt.Client
	ingest    Ingestor
	gatewayID string
	logger    *zap.Logger
	nowF      func() time.Time
}

func New(opts Options, ingest Ingestor, logger *zap.Logger) *Bus {
	b := &Bus{
		ingest:    ingest,
		gatewayID: opts.GatewayID,
		logger:    logger,
		nowF:      time.Now,
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	b.client = mqtt.NewClient(co)
	return b
}

// Connect starts the broker connection. Connect retry is enabled, so a
// broker that is down at startup keeps being dialed in the background; the
// returned error then reports the timeout, not a dead bus.
func (b *Bus) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("broker not reachable within %s, retrying in background", connectTimeout)
	}
	return token.Error()
}

// Close disconnects from the broker after letting in-flight work quiesce.
func (b *Bus) Close() {
	b.client.Disconnect(250)
}

func (b *Bus) onConnect(c mqtt.Client) {
	b.logger.Info("mqtt connected, subscribing", zap.String("topic", DataTopic))
	if token := c.Subscribe(DataTopic, dataQoS, b.handleData); token.Wait() && token.Error() != nil {
		b.logger.Error("mqtt subscribe failed",
			zap.String("topic", DataTopic),
			zap.Error(token.Error()))
	}
}

func (b *Bus) handleData(_ mqtt.Client, msg mqtt.Message) {
	// The broker client reuses the payload buffer after the handler returns.
	raw := append([]byte(nil), msg.Payload()...)
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	// Rejections are logged and reported inside the pipeline.
	_ = b.ingest.Ingest(ctx, "mqtt", raw)
}

type controlCommand struct {
	Command   string `json:"command"`
	CommandID string `json:"command_id"`
	Timestamp int64  `json:"timestamp"`
	GatewayID string `json:"gateway_id"`
}

// PublishControl forwards a command to the device's control topic and
// returns that topic. A blank commandID gets a generated one so every
// command stays traceable end to end.
func (b *Bus) PublishControl(deviceID, command, commandID string) (string, error) {
	if commandID == "" {
		commandID = uuid.New().String()
	}
	topic := fmt.Sprintf("iot/devices/%s/control", deviceID)
	payload, err := json.Marshal(controlCommand{
		Command:   command,
		CommandID: commandID,
		Timestamp: b.nowF().Unix(),
		GatewayID: b.gatewayID,
	})
	if err != nil {
		return "", err
	}

	token := b.client.Publish(topic, dataQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		metrics.ControlCommands.WithLabelValues("timeout").Inc()
		return "", fmt.Errorf("publish to %s timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		metrics.ControlCommands.WithLabelValues("error").Inc()
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}

	metrics.ControlCommands.WithLabelValues("forwarded").Inc()
	b.logger.Info("control command forwarded",
		zap.String("device_id", deviceID),
		zap.String("command", command),
		zap.String("command_id", commandID),
		zap.String("topic", topic))
	return topic, nil
}
