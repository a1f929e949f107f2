package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Responses
// =============================================================================

// OK builds a success response.
func OK(title string, data interface{}) Response {
	return Response{Status: StatusOK, Title: title, Data: data}
}

// Error builds an error response carrying the error text.
func Error(title string, err error) Response {
	return Response{Status: StatusError, Title: title, Data: err.Error()}
}

// =============================================================================
// Command words
// =============================================================================

// Word returns the command word without arguments.
func (r *Request) Word() string {
	word, _, _ := strings.Cut(strings.TrimSpace(r.Command), " ")
	return word
}

// Args returns the whitespace-separated arguments after the command word.
func (r *Request) Args() []string {
	fields := strings.Fields(r.Command)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// IntArg parses argument i as an integer.
func (r *Request) IntArg(i int) (int, error) {
	args := r.Args()
	if i >= len(args) {
		return 0, fmt.Errorf("protocol: %s: missing argument %d", r.Word(), i+1)
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("protocol: %s: argument %d: %w", r.Word(), i+1, err)
	}
	return v, nil
}

// =============================================================================
// Authentication
// =============================================================================

// Handshake replies, kept verbatim for the browser client.
const (
	AuthAccepted = "congratulation, you have connect with server\r\nnow, you can do something else"
	AuthRejected = "sorry, the username or password is wrong, please submit again"
)

// ParseCredentials splits a "user:password" handshake frame.
func ParseCredentials(s string) (user, password string, ok bool) {
	return strings.Cut(s, ":")
}

// =============================================================================
// Telemetry stream
// =============================================================================

// NewTelemetryMessage creates a telemetry message
func NewTelemetryMessage(data TelemetryData) (*Message, error) {
	return NewMessage(TypeTelemetry, data)
}

// NewInfoMessage creates a host health message
func NewInfoMessage(data InfoData) (*Message, error) {
	return NewMessage(TypeInfo, data)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetTelemetryData extracts telemetry data from a message
func (m *Message) GetTelemetryData() (*TelemetryData, error) {
	var data TelemetryData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
