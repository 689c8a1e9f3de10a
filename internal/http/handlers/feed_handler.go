// README: Feed handler; upgrades to a websocket streaming seat availability for one ride.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatshare/internal/http/middleware"
	"seatshare/internal/http/render"
	"seatshare/internal/logging"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/ride"
	"seatshare/internal/types"
)

// FeedSubscriber is implemented by feed.Hub.
type FeedSubscriber interface {
	Subscribe(rideID string, w http.ResponseWriter, r *http.Request) error
}

// RideReader resolves the ride a feed follows.
type RideReader interface {
	Get(ctx context.Context, actor identity.Actor, id types.ID) (*ride.Ride, error)
}

type FeedHandler struct {
	hub   FeedSubscriber
	rides RideReader
	log   *slog.Logger
}

func NewFeedHandler(hub FeedSubscriber, rides RideReader, log *slog.Logger) *FeedHandler {
	return &FeedHandler{hub: hub, rides: rides, log: logging.OrDiscard(log)}
}

// Ride subscribes to an existing ride; unknown or malformed ids are 404 before any upgrade.
func (h *FeedHandler) Ride(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), middleware.Actor(c), idParam(c))
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	// On upgrade failure the upgrader has already written the HTTP error.
	if err := h.hub.Subscribe(string(r.ID), c.Writer, c.Request); err != nil {
		h.log.Debug("feed upgrade failed", "action", "feed_error", "ride_id", string(r.ID), "error", err)
	}
}
