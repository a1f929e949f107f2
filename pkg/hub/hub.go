package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
)

// Stats are the hub's counters.
type Stats struct {
	Clients   int    `json:"clients"`
	Broadcast uint64 `json:"broadcast"`
	Dropped   uint64 `json:"dropped"` // messages lost to a full broadcast queue
	Evicted   uint64 `json:"evicted"` // slow clients removed
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name string
	log  *slog.Logger

	// Owned by Run; mu only guards reads from other goroutines.
	clients map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	running   atomic.Bool
	sent      atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
	closeOnce sync.Once
}

// New creates a hub. A nil logger uses slog.Default.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		log:        logger.With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.closeOnce.Do(func() { close(h.done) })
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", "id", client.id, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", "id", client.id, "clients", count)

		case message := <-h.broadcast:
			h.sent.Add(1)
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Too slow to keep up.
					close(client.send)
					delete(h.clients, client)
					h.evicted.Add(1)
					h.log.Warn("dropped slow client", "id", client.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.log.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Text(data))
	return nil
}

// PublishTelemetry broadcasts a telemetry sample to every subscriber.
func (h *Hub) PublishTelemetry(data protocol.TelemetryData) error {
	msg, err := encode(protocol.NewTelemetryMessage(data))
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats returns a copy of the counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:   h.ClientCount(),
		Broadcast: h.sent.Load(),
		Dropped:   h.dropped.Load(),
		Evicted:   h.evicted.Load(),
	}
}

// join registers a client unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters a client unless the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
