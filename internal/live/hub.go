package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/14kear/live-voting/internal/metrics"
	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
)

type outbound struct {
	kind   string
	data   []byte
	target *Client
}

// Hub is the registry of live channels. Run owns the client set: registration,
// removal, broadcast and direct sends are all applied by that one goroutine in
// the order they were submitted, so removal never races with iteration.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	outbound   chan outbound
	done       chan struct{}

	// mu protects reads of the client set from outside Run.
	mu sync.RWMutex
}

func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:        log.With(slog.String("component", "live.hub")),
		metrics:    m,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan outbound),
		done:       make(chan struct{}),
	}
}

// Run processes hub requests until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.LiveConnections.Set(float64(count))
			h.log.Debug("client registered", slog.Int("connections", count))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.outbound:
			if msg.target != nil {
				if _, ok := h.clients[msg.target]; ok {
					h.deliver(msg.target, msg)
				}
				continue
			}
			for client := range h.clients {
				h.deliver(client, msg)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				client.kick()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.metrics.LiveConnections.Set(0)
			close(h.done)
			h.log.Info("hub stopped")
			return
		}
	}
}

// deliver never blocks. A full queue means the peer is not keeping up: the
// message is dropped for it and its connection is told to close, which
// unregisters it through its own read loop.
func (h *Hub) deliver(client *Client, msg outbound) {
	select {
	case client.send <- msg.data:
	default:
		h.metrics.BroadcastDrops.Inc()
		h.log.Warn("live channel send queue full, dropping message",
			slog.String("type", msg.kind),
			slog.String("user_id", client.userID),
		)
		client.kick()
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.LiveConnections.Set(float64(count))
		h.log.Debug("client unregistered", slog.Int("connections", count))
	}
}

// Register adds the client to every following broadcast. If the hub has
// stopped the client is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
		client.kick()
	}
}

// Unregister is safe to call any number of times.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends msg to every registered client, the originator included.
// Failures are per client and never reported to the caller.
func (h *Hub) Broadcast(msg any) {
	data, err := Encode(msg)
	if err != nil {
		h.log.Error("failed to encode broadcast", sl.Err(err))
		return
	}

	kind := typeOf(msg)
	select {
	case h.outbound <- outbound{kind: kind, data: data}:
		h.metrics.BroadcastsTotal.WithLabelValues(kind).Inc()
	case <-h.done:
	}
}

// SendTo delivers msg to a single client if it is still registered.
func (h *Hub) SendTo(client *Client, msg any) {
	data, err := Encode(msg)
	if err != nil {
		h.log.Error("failed to encode direct message", sl.Err(err))
		return
	}

	select {
	case h.outbound <- outbound{kind: typeOf(msg), data: data, target: client}:
	case <-h.done:
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
