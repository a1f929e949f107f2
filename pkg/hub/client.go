package hub

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds client frames; subscribers only send pings.
	maxMessageSize = 4 * 1024
)

// Client is one subscriber connection.
type Client struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan Message // closed by the hub
	reply chan Message // pong replies, owned by the client
	quit  chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		send:  make(chan Message, 256), // Buffered channel for backpressure
		reply: make(chan Message, 4),
		quit:  make(chan struct{}),
	}
}

// Handler upgrades /ws/telemetry requests and serves them until the
// subscriber disconnects.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client := newClient(h, conn)
		if !h.join(client) {
			conn.Close()
			return
		}
		client.Run()
	})
}

// Run starts the client's read and write pumps
// This should be called in the websocket handler
func (c *Client) Run() {
	go c.writePump()
	c.readPump() // Blocks until connection closes
}

// readPump answers protocol pings and detects disconnection.
func (c *Client) readPump() {
	defer func() {
		close(c.quit)
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if pong, ok := pongFor(raw); ok {
			select {
			case c.reply <- pong:
			default:
			}
		}
	}
}

// pongFor builds the pong reply to a protocol ping frame.
func pongFor(raw []byte) (Message, bool) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil || msg.Type != protocol.TypePing {
		return Message{}, false
	}
	ping, err := msg.GetPingData()
	if err != nil {
		return Message{}, false
	}
	pong, err := encode(protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli()))
	return pong, err == nil
}

// writePump writes messages to the websocket connection
// Only this goroutine writes to the connection - no race conditions!
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(message); err != nil {
				return
			}

		case message := <-c.reply:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.write(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			return
		}
	}
}

func (c *Client) write(message Message) error {
	wsType := websocket.TextMessage
	if message.Binary {
		wsType = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(wsType, message.Data)
}
