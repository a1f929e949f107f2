package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeToken completes immediately.
type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return fakeToken{err: p.err}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type echoHandler struct {
	got [][]byte
}

func (h *echoHandler) Dispatch(_ context.Context, raw []byte) protocol.Response {
	h.got = append(h.got, raw)
	return protocol.OK("echo", string(raw))
}

func newTestBridge(t *testing.T, h Handler) (*Bridge, *fakePublisher) {
	t.Helper()
	b, err := New(Config{Broker: "tcp://127.0.0.1:1883", Prefix: "robot1", Logger: quietLogger()}, h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pub := &fakePublisher{}
	b.pub = pub
	return b, pub
}

func TestConfigValidate(t *testing.T) {
	if _, err := New(Config{}, &echoHandler{}); !errors.Is(err, ErrNoBroker) {
		t.Errorf("no broker: got %v", err)
	}
	if _, err := New(Config{Broker: "tcp://x:1883", QoS: 3}, &echoHandler{}); err == nil {
		t.Error("qos 3 accepted")
	}

	b, err := New(Config{Broker: "tcp://x:1883"}, &echoHandler{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.cfg.Prefix != DefaultPrefix || b.cfg.ClientID == "" {
		t.Errorf("defaults: prefix=%q client=%q", b.cfg.Prefix, b.cfg.ClientID)
	}
}

func TestOnCommandPublishesResponse(t *testing.T) {
	h := &echoHandler{}
	b, pub := newTestBridge(t, h)

	b.onCommand(nil, fakeMessage{topic: "robot1/command", payload: []byte(`"police"`)})

	if len(h.got) != 1 || string(h.got[0]) != `"police"` {
		t.Fatalf("handler got %q", h.got)
	}
	if len(pub.sent) != 1 || pub.sent[0].topic != "robot1/response" {
		t.Fatalf("published: %+v", pub.sent)
	}
	var resp protocol.Response
	if err := json.Unmarshal(pub.sent[0].payload, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != protocol.StatusOK || resp.Data != `"police"` {
		t.Errorf("response: %+v", resp)
	}
	if s := b.Stats(); s.Commands != 1 || s.Published != 1 {
		t.Errorf("stats: %+v", s)
	}
}

func TestPublishTelemetry(t *testing.T) {
	b, pub := newTestBridge(t, &echoHandler{})

	if err := b.PublishTelemetry(protocol.TelemetryData{Seq: 4}); err != nil {
		t.Fatalf("PublishTelemetry: %v", err)
	}
	if pub.sent[0].topic != "robot1/telemetry" || pub.sent[0].retained {
		t.Errorf("published: %+v", pub.sent[0])
	}
	msg, err := protocol.ParseMessage(pub.sent[0].payload)
	if err != nil || msg.Type != protocol.TypeTelemetry {
		t.Fatalf("message: %+v, %v", msg, err)
	}

	pub.err = errors.New("not connected")
	if err := b.PublishTelemetry(protocol.TelemetryData{Seq: 5}); err == nil {
		t.Error("publish error not returned")
	}
	if b.Stats().Errors != 1 {
		t.Errorf("errors: %d", b.Stats().Errors)
	}
}
