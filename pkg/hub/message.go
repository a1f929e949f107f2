// Package hub fans telemetry out to websocket subscribers using a
// channel-based register/unregister/broadcast loop.
package hub

import "github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"

// Message is one frame queued for every client. Binary frames carry raw
// bytes such as JPEG snapshots; everything else goes out as text.
type Message struct {
	Binary bool
	Data   []byte
}

// Text wraps pre-encoded JSON.
func Text(data []byte) Message {
	return Message{Data: data}
}

// Binary wraps raw bytes.
func Binary(data []byte) Message {
	return Message{Binary: true, Data: data}
}

// encode turns a protocol envelope into a text frame.
func encode(msg *protocol.Message, err error) (Message, error) {
	if err != nil {
		return Message{}, err
	}
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return Text(data), nil
}
