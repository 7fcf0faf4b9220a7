package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"guesswho/internal/notify"
)

const sseBufferSize = 16

// Stream fans events out to Server-Sent Events subscribers.
type Stream struct {
	mu      sync.RWMutex
	clients map[string]map[chan notify.Event]struct{}
}

func NewStream() *Stream {
	return &Stream{clients: make(map[string]map[chan notify.Event]struct{})}
}

// Subscribe returns a channel of events for the session and the func that
// releases it. Callers must release, or the subscription leaks.
func (s *Stream) Subscribe(sessionID string) (<-chan notify.Event, func()) {
	ch := make(chan notify.Event, sseBufferSize)
	s.mu.Lock()
	if s.clients[sessionID] == nil {
		s.clients[sessionID] = make(map[chan notify.Event]struct{})
	}
	s.clients[sessionID][ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.clients[sessionID], ch)
			if len(s.clients[sessionID]) == 0 {
				delete(s.clients, sessionID)
			}
			s.mu.Unlock()
		})
	}
}

// Deliver implements notify.Sink. Slow subscribers miss events rather than
// blocking the relay.
func (s *Stream) Deliver(sessionID string, event notify.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.clients[sessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount reports how many SSE clients observe the session.
func (s *Stream) SubscriberCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[sessionID])
}

// SessionEvents handles GET /v1/sessions/{sessionId}/events
func (h *Handler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	if _, ok := h.authorize(w, r, sessionID); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering in nginx/proxies
	flusher.Flush()

	events, release := h.stream.Subscribe(sessionID)
	defer release()

	log := h.log.WithField("session_id", sessionID)
	log.Debug("sse client connected")

	keepAlive := time.NewTicker(pingPeriod)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("sse client disconnected")
			return
		case event := <-events:
			data, _ := json.Marshal(&Message{Type: event})
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

var _ notify.Sink = (*Stream)(nil)
var _ notify.Sink = (*Hub)(nil)
