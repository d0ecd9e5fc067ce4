package events

import (
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var errHubStopped = errors.New("hub stopped")

// Hub keeps the websocket observers of every auction and broadcasts events
// to them. Events addressed to one bidder only reach that bidder's
// connections.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Client]struct{} // auctionID -> clients

	register   chan *Client
	unregister chan *Client
	broadcast  chan model.Event
	stopped    chan struct{}

	upgrader websocket.Upgrader
}

// Client is one websocket connection watching a single auction
type Client struct {
	ID        string
	AuctionID string
	UserID    string
	conn      *websocket.Conn
	send      chan []byte
}

// NewHub creates a hub; call Run to start it
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan model.Event, 256),
		stopped:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run processes registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			h.closeAll()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// Publish queues events for broadcast
func (h *Hub) Publish(ctx context.Context, events ...model.Event) {
	for _, e := range events {
		select {
		case h.broadcast <- e:
		case <-h.stopped:
			return
		case <-ctx.Done():
			utils.Warn("hub: publish abandoned", map[string]any{"auction_id": e.AuctionID, "kind": e.Kind})
			return
		}
	}
}

// Serve upgrades the request and subscribes the connection to auctionID.
// userID may be empty for anonymous observers.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, auctionID, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:        utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- client:
	case <-h.stopped:
		_ = conn.Close()
		return errHubStopped
	}
	go client.writePump()
	go client.readPump(h)
	return nil
}

// SubscriberCount returns the number of clients watching an auction
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[auctionID])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subscribers[client.AuctionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subscribers[client.AuctionID] = set
	}
	set[client] = struct{}{}

	utils.Debug("hub: client subscribed", map[string]any{"client_id": client.ID, "auction_id": client.AuctionID})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked drops client and closes its send channel once.
// Caller must hold the write lock.
func (h *Hub) removeLocked(client *Client) {
	set, ok := h.subscribers[client.AuctionID]
	if !ok {
		return
	}
	if _, present := set[client]; !present {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.subscribers, client.AuctionID)
	}
	close(client.send)

	utils.Debug("hub: client unsubscribed", map[string]any{"client_id": client.ID, "auction_id": client.AuctionID})
}

func (h *Hub) broadcastEvent(event model.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		utils.Error("hub: failed to marshal event", map[string]any{"event_id": event.EventID, "error": err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for client := range h.subscribers[event.AuctionID] {
		if event.IsAddressed() && client.UserID != event.BidderID {
			continue
		}
		select {
		case client.send <- payload:
			count++
		default:
			// slow consumer
			h.removeLocked(client)
		}
	}

	utils.Debug("hub: broadcast event", map[string]any{"auction_id": event.AuctionID, "kind": event.Kind, "clients": count})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subscribers {
		for client := range set {
			h.removeLocked(client)
		}
	}
}

// writePump pumps messages from the send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client input and unregisters the client once the
// connection goes away
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stopped:
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Warn("hub: websocket read error", map[string]any{"client_id": c.ID, "error": err.Error()})
			}
			return
		}
	}
}
