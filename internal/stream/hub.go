package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pigeon-auction/internal/events"
	"pigeon-auction/internal/models"
	"pigeon-auction/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Message is what watchers of an auction receive
type Message struct {
	Type    string             `json:"type"`
	Payload models.BidAccepted `json:"payload"`
}

type client struct {
	hub       *Hub
	auctionID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub pushes accepted bids to websocket clients watching the same auction.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub. checkOrigin may be nil to accept any origin.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// PublishBidAccepted sends evt to every client of evt.AuctionID. Slow clients drop the message.
func (h *Hub) PublishBidAccepted(_ context.Context, evt models.BidAccepted) error {
	data, err := json.Marshal(Message{Type: events.EventBidAccepted, Payload: evt})
	if err != nil {
		return fmt.Errorf("stream: marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[evt.AuctionID] {
		select {
		case c.send <- data:
		default:
			utils.Warn("stream: dropping message for slow client", map[string]any{"auction_id": evt.AuctionID})
		}
	}
	return nil
}

// Watchers returns the number of clients watching auctionID
func (h *Hub) Watchers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[auctionID])
}

// ServeAuction upgrades the request and registers the connection as a watcher of auctionID.
func (h *Hub) ServeAuction(w http.ResponseWriter, r *http.Request, auctionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("stream: upgrade: %w", err)
	}

	c := &client{
		hub:       h,
		auctionID: auctionID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
	if !h.register(c) {
		conn.Close()
		return fmt.Errorf("stream: hub closed")
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, id)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.auctionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.auctionID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.auctionID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.auctionID)
	}
}

// readPump only keeps the connection alive; clients have nothing to say.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("stream: unexpected close", map[string]any{"auction_id": c.auctionID, "error": err.Error()})
			}
			return
		}
	}
}

func (c *client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ events.Publisher = (*Hub)(nil)
