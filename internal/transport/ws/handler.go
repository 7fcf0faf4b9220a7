package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"guesswho/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// TokenValidator turns a bearer token into caller claims
type TokenValidator interface {
	ValidateToken(token string) (*model.CallerClaims, error)
}

// SessionGuard decides whether a caller may observe a session
type SessionGuard interface {
	CanObserve(ctx context.Context, sessionID string, caller *model.CallerClaims) error
}

// Handler handles WebSocket and SSE subscriptions
type Handler struct {
	hub    *Hub
	stream *Stream
	auth   TokenValidator
	guard  SessionGuard
	log    *logrus.Entry
}

// NewHandler creates a new subscription handler
func NewHandler(hub *Hub, stream *Stream, auth TokenValidator, guard SessionGuard) *Handler {
	return &Handler{
		hub:    hub,
		stream: stream,
		auth:   auth,
		guard:  guard,
		log:    logrus.WithField("component", "ws_handler"),
	}
}

// authorize reads the token from the query string, since browsers cannot set
// headers on WebSocket or EventSource requests.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, sessionID string) (*model.CallerClaims, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return nil, false
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}

	if err := h.guard.CanObserve(r.Context(), sessionID, claims); err != nil {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return nil, false
	}
	return claims, true
}

// SessionWS handles GET /v1/ws/sessions/{sessionId}
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	claims, ok := h.authorize(w, r, sessionID)
	if !ok {
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &Connection{
		SessionID: sessionID,
		UserID:    claims.ExternalUserID,
		Send:      make(chan []byte, 256),
		Hub:       h.hub,
	}

	h.hub.Register(conn)

	h.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": claims.ExternalUserID}).Info("websocket connected")

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("websocket closed unexpectedly")
			}
			break
		}
		// Clients only listen; anything they send is ignored.
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
