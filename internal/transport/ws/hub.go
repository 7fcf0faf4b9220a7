package ws

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"guesswho/internal/notify"
)

// Message is the wire envelope. It only names the transition; clients re-fetch.
type Message struct {
	Type notify.Event `json:"type"`
}

// Hub manages WebSocket connections per session
type Hub struct {
	sessions map[string]map[*Connection]bool

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage

	log *logrus.Entry
}

// Connection represents a WebSocket connection observing one session
type Connection struct {
	SessionID string
	UserID    string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message for every connection of a session
type BroadcastMessage struct {
	SessionID string
	Message   *Message
}

// NewHub creates a hub and starts its loop
func NewHub() *Hub {
	h := &Hub{
		sessions:   make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		log:        logrus.WithField("component", "ws_hub"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[*Connection]bool)
			}
			h.sessions[conn.SessionID][conn] = true
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"session_id": conn.SessionID, "user_id": conn.UserID}).Debug("connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.sessions[conn.SessionID]; ok && conns[conn] {
				delete(conns, conn)
				close(conn.Send)
				if len(conns) == 0 {
					delete(h.sessions, conn.SessionID)
				}
				h.log.WithFields(logrus.Fields{"session_id": conn.SessionID, "user_id": conn.UserID}).Debug("connection released")
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, _ := json.Marshal(msg.Message)
			h.mu.RLock()
			for conn := range h.sessions[msg.SessionID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection and closes its send channel
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Deliver sends an event to every connection of the session (implements notify.Sink)
func (h *Hub) Deliver(sessionID string, event notify.Event) {
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message:   &Message{Type: event},
	}
}

// ConnectionCount reports how many connections observe the session
func (h *Hub) ConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
