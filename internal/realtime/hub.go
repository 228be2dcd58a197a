package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/refresh"
)

const writeWait = 5 * time.Second

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

const TypeRefreshState = "refresh_state"

// StateView converts a controller state into the JSON shape sent to clients.
type StateView func(refresh.State) any

type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		log:     log.With().Str("component", "realtime").Logger(),
	}
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", n).Msg("Websocket client connected")
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendJSON writes to one client, serialised with broadcasts to the same connection.
func (h *Hub) SendJSON(conn *websocket.Conn, v any) error {
	h.mu.RLock()
	lock, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}
	lock.Lock()
	defer lock.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (h *Hub) BroadcastJSON(v any) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		if err := h.SendJSON(conn, v); err != nil {
			h.log.Debug().Err(err).Msg("Dropping websocket client")
			h.RemoveClient(conn)
		}
	}
}

// Forward broadcasts every state received on updates until ctx ends or the
// channel is closed.
func (h *Hub) Forward(ctx context.Context, updates <-chan refresh.State, view StateView) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			h.BroadcastJSON(Message{Type: TypeRefreshState, State: view(st)})
		}
	}
}
