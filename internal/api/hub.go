package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bargetrader/internal/book"
	"bargetrader/internal/eventlog"
	"bargetrader/internal/game"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Hub fans a round's event log out to the WebSocket clients watching it.
// Clients are grouped by session id.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	logger *slog.Logger
}

type Client struct {
	hub       *Hub
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// Message is what a client receives: an event from the round's log, or a
// state change carrying the round status.
type Message struct {
	Type   string          `json:"type"`
	Event  *eventlog.Event `json:"event,omitempty"`
	Status *game.Status    `json:"status,omitempty"`
	Quotes []book.Quote    `json:"quotes,omitempty"`
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		logger: logger,
	}
}

// Attach subscribes the hub to r's event log until r ends. Log listeners run
// under the log's lock, so delivery never blocks on a slow client.
func (h *Hub) Attach(r *game.Round) {
	cancel := r.Log().Subscribe(func(ev eventlog.Event) {
		h.Publish(r.ID, Message{Type: "event", Event: &ev})
	})
	r.OnEnd(func(r *game.Round) {
		cancel()
		status := r.Status()
		h.Publish(r.ID, Message{Type: "status", Status: &status})
	})
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[client.sessionID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[client.sessionID] = room
	}
	room[client] = true
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[client.sessionID]
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.sessionID)
	}
}

// Publish sends msg to every client of a session, dropping it for clients
// whose buffer is full.
func (h *Hub) Publish(sessionID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode hub message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[sessionID] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("websocket client lagging, message dropped", "session_id", sessionID)
		}
	}
}

// Send delivers msg to a single registered client.
func (h *Hub) Send(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode hub message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.rooms[client.sessionID][client] {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// Clients reports how many clients watch a session.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		for client := range room {
			close(client.send)
		}
		delete(h.rooms, id)
	}
}

func (c *Client) WritePump() {
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

// ReadPump discards client input and keeps the read deadline fresh on pongs.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
