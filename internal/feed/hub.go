// README: Websocket seat-availability feed; subscribers of a ride see remaining seats change live.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"seatshare/internal/events"
	"seatshare/internal/logging"
)

const writeWait = 5 * time.Second

// Update is the message pushed to subscribers.
type Update struct {
	RideID         string      `json:"ride_id"`
	Type           events.Type `json:"type"`
	SeatsRemaining *int        `json:"seats_remaining,omitempty"`
	At             time.Time   `json:"at"`
}

type client struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

type Hub struct {
	mu       sync.RWMutex
	conns    map[string][]*client
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		conns: make(map[string][]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logging.OrDiscard(log),
	}
}

// Subscribe upgrades the request and blocks until the client goes away.
func (h *Hub) Subscribe(rideID string, w http.ResponseWriter, r *http.Request) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{ws: ws}

	h.mu.Lock()
	h.conns[rideID] = append(h.conns[rideID], c)
	h.mu.Unlock()
	h.log.Debug("feed subscriber joined", "action", "feed_subscribe", "ride_id", rideID)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(rideID, c)
	_ = ws.Close()
	h.log.Debug("feed subscriber left", "action", "feed_unsubscribe", "ride_id", rideID)
	return nil
}

// Subscribers reports how many clients follow a ride.
func (h *Hub) Subscribers(rideID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[rideID])
}

// Publish implements events.Publisher. Only events that change what a
// subscriber sees are forwarded.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	if ev.RideID == "" || (ev.SeatsRemaining == nil && !terminal(ev.Type)) {
		return nil
	}
	h.mu.RLock()
	conns := append([]*client(nil), h.conns[ev.RideID]...)
	h.mu.RUnlock()

	msg := Update{RideID: ev.RideID, Type: ev.Type, SeatsRemaining: ev.SeatsRemaining, At: ev.OccurredAt}
	for _, c := range conns {
		if err := c.writeJSON(msg); err != nil {
			h.log.Warn("feed write failed", "action", "feed_write_failed", "ride_id", ev.RideID, "error", err)
		}
	}
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.conns {
		for _, c := range conns {
			_ = c.ws.Close()
		}
		delete(h.conns, id)
	}
	return nil
}

func (h *Hub) remove(rideID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[rideID]
	for i, cc := range conns {
		if cc == c {
			h.conns[rideID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[rideID]) == 0 {
		delete(h.conns, rideID)
	}
}

func terminal(t events.Type) bool {
	return t == events.RideCompleted || t == events.RideCancelled || t == events.RideDeleted
}
