// Package mqttbridge exposes the command channel and the telemetry stream
// over an MQTT broker.
//
// Topics, under a configurable prefix:
//
//	<prefix>/command    requests, same frames as the websocket channel
//	<prefix>/response   one response per request
//	<prefix>/telemetry  telemetry messages
//	<prefix>/status     "online", or "offline" via the broker's last will
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
)

// DefaultPrefix is the topic prefix when none is configured.
const DefaultPrefix = "raspclaws"

const (
	publishTimeout = 2 * time.Second
	commandTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second
)

// ErrNoBroker is returned when the config has no broker URL.
var ErrNoBroker = errors.New("mqttbridge: broker required")

// Config configures the bridge.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	Prefix   string
	ClientID string // generated when empty
	Username string
	Password string
	QoS      byte

	Logger *slog.Logger
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return ErrNoBroker
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqttbridge: qos %d", c.QoS)
	}
	return nil
}

// Handler runs one command frame.
type Handler interface {
	Dispatch(ctx context.Context, raw []byte) protocol.Response
}

// publisher is the part of mqtt.Client the bridge publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Stats are the bridge counters.
type Stats struct {
	Commands  uint64 `json:"commands"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

// Bridge connects a Handler and the telemetry stream to a broker.
type Bridge struct {
	cfg     Config
	handler Handler
	log     *slog.Logger
	client  mqtt.Client
	pub     publisher

	commands  atomic.Uint64
	published atomic.Uint64
	errors    atomic.Uint64
}

// New creates a bridge. Call Connect to start it.
func New(cfg Config, handler Handler) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "raspclaws-" + uuid.NewString()[:8]
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bridge{
		cfg:     cfg,
		handler: handler,
		log:     cfg.Logger.With("component", "mqtt", "broker", cfg.Broker),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetWill(b.topic("status"), "offline", 1, true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retryInterval)
	opts.OnConnect = b.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warn("mqtt connection lost", "error", err)
	}

	b.client = mqtt.NewClient(opts)
	b.pub = b.client
	return b, nil
}

func (b *Bridge) topic(name string) string {
	return b.cfg.Prefix + "/" + name
}

// Connect starts connecting. With connect-retry enabled the client keeps
// trying in the background; Connect returns once the first attempt
// finishes or ctx is done.
func (b *Bridge) Connect(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttbridge: connect: %w", err)
	}
	return nil
}

// onConnect subscribes on every (re)connect, since the broker may have
// dropped the session.
func (b *Bridge) onConnect(client mqtt.Client) {
	b.log.Info("mqtt connected", "client_id", b.cfg.ClientID)
	token := client.Subscribe(b.topic("command"), b.cfg.QoS, b.onCommand)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		b.errors.Add(1)
		b.log.Error("mqtt subscribe failed", "topic", b.topic("command"), "error", token.Error())
		return
	}
	b.publish("status", true, []byte("online"))
}

// onCommand runs a command frame and publishes the response.
func (b *Bridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	b.commands.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	resp := b.handler.Dispatch(ctx, msg.Payload())
	cancel()

	data, err := resp.Bytes()
	if err != nil {
		b.errors.Add(1)
		b.log.Error("encode response failed", "title", resp.Title, "error", err)
		return
	}
	if err := b.publish("response", false, data); err != nil {
		b.log.Warn("mqtt response not sent", "title", resp.Title, "error", err)
	}
}

// PublishTelemetry sends a telemetry message.
func (b *Bridge) PublishTelemetry(data protocol.TelemetryData) error {
	msg, err := protocol.NewTelemetryMessage(data)
	if err != nil {
		return err
	}
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}
	return b.publish("telemetry", false, raw)
}

func (b *Bridge) publish(name string, retained bool, payload []byte) error {
	token := b.pub.Publish(b.topic(name), b.cfg.QoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		b.errors.Add(1)
		return fmt.Errorf("mqttbridge: publish %s: timeout", name)
	}
	if err := token.Error(); err != nil {
		b.errors.Add(1)
		return fmt.Errorf("mqttbridge: publish %s: %w", name, err)
	}
	b.published.Add(1)
	return nil
}

// Stats returns a copy of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Commands:  b.commands.Load(),
		Published: b.published.Load(),
		Errors:    b.errors.Load(),
	}
}

// Close announces offline and disconnects.
func (b *Bridge) Close() error {
	if b.client.IsConnected() {
		b.publish("status", true, []byte("offline"))
	}
	b.client.Disconnect(250)
	b.log.Info("mqtt disconnected")
	return nil
}
