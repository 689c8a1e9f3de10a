// README: Booking handler (request seats, driver status changes, passenger cancel, reads).
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatshare/internal/http/middleware"
	"seatshare/internal/http/render"
	"seatshare/internal/modules/booking"
	"seatshare/internal/modules/identity"
	"seatshare/internal/types"
)

type BookingService interface {
	Create(ctx context.Context, cmd booking.CreateCommand) (*booking.Booking, error)
	Transition(ctx context.Context, cmd booking.TransitionCommand) (*booking.Booking, error)
	PassengerCancel(ctx context.Context, cmd booking.CancelCommand) (*booking.Booking, error)
	Get(ctx context.Context, actor identity.Actor, id types.ID) (*booking.Booking, error)
	History(ctx context.Context, actor identity.Actor, id types.ID) ([]booking.Event, error)
	ListMine(ctx context.Context, actor identity.Actor, p types.PageRequest) ([]booking.Booking, types.PageInfo, error)
}

type BookingHandler struct {
	svc BookingService
	log *slog.Logger
}

func NewBookingHandler(svc BookingService, log *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, log: log}
}

type createBookingRequest struct {
	RideID      string `json:"ride_id" binding:"required"`
	SeatsBooked int    `json:"seats_booked" binding:"required"`
}

// The status value itself is checked by the service so COMPLETED gets its own error.
type updateBookingRequest struct {
	Status types.BookingStatus `json:"status" binding:"required"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if err := bindJSON(c, &req); err != nil {
		render.Error(c, h.log, err)
		return
	}
	b, err := h.svc.Create(c.Request.Context(), booking.CreateCommand{
		Actor:       middleware.Actor(c),
		RideID:      types.ID(req.RideID),
		SeatsBooked: req.SeatsBooked,
	})
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusCreated, b)
}

// ListMine returns the caller's bookings as a passenger.
func (h *BookingHandler) ListMine(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	items, info, err := h.svc.ListMine(c.Request.Context(), middleware.Actor(c), page)
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.Page(c, http.StatusOK, items, info)
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), middleware.Actor(c), idParam(c))
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Events(c *gin.Context) {
	evs, err := h.svc.History(c.Request.Context(), middleware.Actor(c), idParam(c))
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	if evs == nil {
		evs = []booking.Event{}
	}
	render.JSON(c, http.StatusOK, gin.H{"data": evs})
}

// Update is the driver path: confirm or cancel.
func (h *BookingHandler) Update(c *gin.Context) {
	var req updateBookingRequest
	if err := bindJSON(c, &req); err != nil {
		render.Error(c, h.log, err)
		return
	}
	b, err := h.svc.Transition(c.Request.Context(), booking.TransitionCommand{
		Actor:     middleware.Actor(c),
		BookingID: idParam(c),
		Status:    req.Status,
	})
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusOK, b)
}

// Cancel is the passenger path.
func (h *BookingHandler) Cancel(c *gin.Context) {
	b, err := h.svc.PassengerCancel(c.Request.Context(), booking.CancelCommand{
		Actor:     middleware.Actor(c),
		BookingID: idParam(c),
	})
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusOK, b)
}
