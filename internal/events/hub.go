// Package events pushes index change notifications to websocket subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"docqa/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

/*
WEBSOCKET HUB

One goroutine owns the subscriber set. Connections register and unregister
through channels; published events are fanned out to every subscriber whose
filter matches. A subscriber whose send buffer is full is dropped instead of
blocking the hub.
*/

const (
	sendBufferSize = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub fans index events out to connected clients
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.IndexEvent
	mu         sync.RWMutex

	log     zerolog.Logger
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Client is one websocket subscriber
type Client struct {
	ID         string
	DocumentID *int64 // nil subscribes to every document
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *Hub
}

// NewHub creates a hub; call Start before publishing
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.IndexEvent, 256),
		log:        log,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start runs the hub event loop in its own goroutine
func (h *Hub) Start() {
	go h.run()
	h.log.Info().Msg("✓ Event hub started")
}

func (h *Hub) run() {
	defer close(h.stopped)

	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("client_id", c.ID).Int("clients", total).Msg("Subscriber connected")

		case c := <-h.unregister:
			h.remove(c)

		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

// remove drops a client and closes its send channel. Only the run loop calls it.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
	h.log.Debug().Str("client_id", c.ID).Int("clients", len(h.clients)).Msg("Subscriber disconnected")
}

func (h *Hub) fanOut(event models.IndexEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode event")
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if c.DocumentID != nil && *c.DocumentID != event.DocumentID {
			continue
		}
		select {
		case c.Send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Str("client_id", c.ID).Msg("⚠️  Subscriber buffer full, dropping connection")
		h.remove(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.Send)
		c.Conn.Close()
	}
	h.clients = make(map[*Client]bool)
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full or the hub is shut down the event is dropped.
func (h *Hub) Publish(event models.IndexEvent) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- event:
	default:
		h.log.Warn().Str("event_type", string(event.Type)).Int64("document_id", event.DocumentID).Msg("Event queue full, dropping event")
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and stops the loop
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		h.log.Info().Msg("🛑 Shutting down event hub...")
		close(h.done)
		<-h.stopped
		h.log.Info().Msg("✓ Event hub shutdown complete")
	})
}

func newClient(h *Hub, conn *websocket.Conn, documentID *int64) *Client {
	return &Client{
		ID:         ksuid.New().String(),
		DocumentID: documentID,
		Conn:       conn,
		Send:       make(chan []byte, sendBufferSize),
		hub:        h,
	}
}

// join registers the client unless the hub is already shut down
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ReadPump drains the connection so control frames (pong, close) are processed.
// Subscribers do not send data; anything they send is ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("client_id", c.ID).Msg("WebSocket read error")
			}
			return
		}
	}
}

// WritePump writes queued events and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
