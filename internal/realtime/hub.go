// Package realtime fans domain events out to every websocket connection in
// a user's room. The hub is a pure notification layer: nothing is queued or
// replayed, and a dropped connection never affects timer state. Clients
// recover missed events with a pull on reconnect.
package realtime

import (
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	apperrors "timetrack/internal/errors"
	"timetrack/internal/model"
)

// TokenVerifier resolves a bearer credential to a user id.
type TokenVerifier interface {
	ParseToken(token string) (string, *apperrors.APIError)
}

type Hub struct {
	verifier TokenVerifier
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub(verifier TokenVerifier, allowedOrigins []string) *Hub {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSpace(origin)] = struct{}{}
	}

	return &Hub{
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

// ServeHTTP authenticates the handshake credential, upgrades the connection
// and joins it to its user's room. An invalid or missing credential rejects
// the handshake with a reason instead of degrading to anonymous access.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		rejectHandshake(w, "missing credential")
		return
	}

	userID, apiErr := h.verifier.ParseToken(token)
	if apiErr != nil {
		rejectHandshake(w, apiErr.Message)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan model.Event, sendBuffer),
	}
	h.register(c)
	log.Printf("websocket connected: user=%s", userID)

	go c.writePump()
	go c.readPump()
}

// Broadcast delivers the event to every connection in the user's room,
// including the one that caused it. Connections that cannot keep up are
// dropped rather than buffered without bound.
func (h *Hub) Broadcast(userID string, event model.Event) {
	h.mu.RLock()
	var stale []*client
	for c := range h.rooms[userID] {
		select {
		case c.send <- event:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		log.Printf("websocket send buffer full, dropping: user=%s", c.userID)
		h.unregister(c)
	}
}

// ConnectionCount reports the number of live connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// CloseAll tears down every connection, used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range h.rooms {
		for c := range room {
			close(c.send)
			_ = c.conn.Close()
		}
	}
	h.rooms = make(map[string]map[*client]struct{})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.userID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.userID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.userID]
	if ok {
		if _, member := room[c]; member {
			delete(room, c)
			close(c.send)
			if len(room) == 0 {
				delete(h.rooms, c.userID)
			}
		}
	}
	h.mu.Unlock()

	_ = c.conn.Close()
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func rejectHandshake(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"` + reason + `"}}`))
}
