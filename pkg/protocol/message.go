// Package protocol defines the wire formats spoken over the command
// websocket, MQTT and the telemetry stream.
//
// Commands arrive either as a JSON string holding a command word with
// optional arguments ("lookleft", "SiLeft 3") or as a JSON object
// {"title": ..., "data": ...}. Every command gets a Response envelope.
// Telemetry is pushed as typed Messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the type of a telemetry stream message
type MessageType string

const (
	TypeTelemetry MessageType = "telemetry" // Engine positions and modes
	TypeInfo      MessageType = "info"      // Host health

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for telemetry stream messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// EngineTelemetry is one engine's state in a telemetry sample.
// Positions, Goals and Angles line up with Channels.
type EngineTelemetry struct {
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	Running   bool      `json:"running"`
	Channels  []int     `json:"channels"`
	Positions []int     `json:"positions"`
	Goals     []int     `json:"goals"`
	Angles    []float64 `json:"angles"`
}

// TelemetryData is one telemetry sample.
type TelemetryData struct {
	Seq     uint64            `json:"seq"`
	Engines []EngineTelemetry `json:"engines"`
	Light   string            `json:"light,omitempty"`
}

// InfoData is host health.
type InfoData struct {
	CPUTemp    float64 `json:"cpu_temp"`
	CPUPercent float64 `json:"cpu_percent"`
	RAMPercent float64 `json:"ram_percent"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// =============================================================================
// Command channel
// =============================================================================

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrEmpty is returned for a blank or null request.
var ErrEmpty = errors.New("protocol: empty request")

// Response is the envelope sent back for every command.
type Response struct {
	Status string      `json:"status"`
	Title  string      `json:"title"`
	Data   interface{} `json:"data"`
}

// Bytes returns the JSON-encoded response
func (r Response) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// Request is a decoded command. Exactly one of Command and Title is set.
type Request struct {
	Command string          // plain command word with arguments
	Title   string          // structured command title
	Data    json.RawMessage // structured command payload
}

// Structured is true for {"title", "data"} requests.
func (r *Request) Structured() bool {
	return r.Title != ""
}

// ParseRequest decodes a command frame. Text that is not JSON is taken as
// a plain command, the way older clients send it.
func ParseRequest(raw []byte) (*Request, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		cmd := string(raw)
		if cmd == "" {
			return nil, ErrEmpty
		}
		return &Request{Command: cmd}, nil
	}

	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, ErrEmpty
		}
		return &Request{Command: val}, nil
	case map[string]interface{}:
		var obj struct {
			Title string          `json:"title"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("protocol: parse request: %w", err)
		}
		if obj.Title == "" {
			return nil, fmt.Errorf("protocol: request object without title")
		}
		return &Request{Title: obj.Title, Data: obj.Data}, nil
	case nil:
		return nil, ErrEmpty
	default:
		return nil, fmt.Errorf("protocol: unsupported request %T", v)
	}
}

// ParseData unmarshals the structured payload.
func (r *Request) ParseData(v interface{}) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("protocol: %s: missing data", r.Title)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("protocol: %s: %w", r.Title, err)
	}
	return nil
}

// Structured servo command titles.
const (
	TitleServoGoal    = "servo_goal"
	TitleServoSpeed   = "servo_speed"
	TitleServoWiggle  = "servo_wiggle"
	TitleServoStop    = "servo_stop"
	TitleServoResume  = "servo_resume"
	TitleServoInit    = "servo_init"
	TitleServoRaw     = "servo_raw"
	TitleServoInitPos = "servo_init_pos"
	TitleFindColorSet = "findColorSet"
)

// ServoCommand is the payload of every servo_* request. Which fields
// matter depends on the title.
type ServoCommand struct {
	Group     string    `json:"group"`
	IDs       []int     `json:"ids,omitempty"`
	Angles    []float64 `json:"angles,omitempty"`
	Speeds    []float64 `json:"speeds,omitempty"`
	ID        int       `json:"id"`
	Value     int       `json:"value,omitempty"`
	Direction int       `json:"direction,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Move      bool      `json:"move,omitempty"`
}
