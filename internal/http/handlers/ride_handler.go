// README: Ride handler (create, search, read, edit/transition, delete, per-ride bookings).
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"seatshare/internal/http/middleware"
	"seatshare/internal/http/render"
	"seatshare/internal/modules/booking"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/ride"
	"seatshare/internal/types"
)

type RideService interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Get(ctx context.Context, actor identity.Actor, id types.ID) (*ride.Ride, error)
	List(ctx context.Context, f ride.Filter) ([]ride.Ride, types.PageInfo, error)
	Update(ctx context.Context, cmd ride.UpdateCommand) (*ride.Ride, error)
	Delete(ctx context.Context, actor identity.Actor, id types.ID) error
}

// RideBookings is the slice of the booking service the ride routes need.
type RideBookings interface {
	ListForRide(ctx context.Context, actor identity.Actor, rideID types.ID, p types.PageRequest) ([]booking.Booking, types.PageInfo, error)
}

type RideHandler struct {
	rides    RideService
	bookings RideBookings
	log      *slog.Logger
}

func NewRideHandler(rides RideService, bookings RideBookings, log *slog.Logger) *RideHandler {
	return &RideHandler{rides: rides, bookings: bookings, log: log}
}

type createRideRequest struct {
	Origin        string    `json:"origin" binding:"required"`
	Destination   string    `json:"destination" binding:"required"`
	DepartureTime time.Time `json:"departure_time" binding:"required"`
	Capacity      int       `json:"capacity" binding:"required,min=1,max=8"`
	PricePerSeat  *int64    `json:"price_per_seat" binding:"required,min=0"`
}

type updateRideRequest struct {
	Origin        *string      `json:"origin" binding:"omitempty,min=1"`
	Destination   *string      `json:"destination" binding:"omitempty,min=1"`
	DepartureTime *time.Time   `json:"departure_time"`
	Capacity      *int         `json:"capacity" binding:"omitempty,min=1,max=8"`
	PricePerSeat  *int64       `json:"price_per_seat" binding:"omitempty,min=0"`
	Status        *ride.Status `json:"status" binding:"omitempty,oneof=ACTIVE IN_PROGRESS COMPLETED CANCELLED"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideRequest
	if err := bindJSON(c, &req); err != nil {
		render.Error(c, h.log, err)
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		Actor:         middleware.Actor(c),
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureTime: req.DepartureTime,
		Capacity:      req.Capacity,
		PricePerSeat:  *req.PricePerSeat,
	})
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusCreated, r)
}

// List searches ACTIVE rides by origin, destination and departure date.
func (h *RideHandler) List(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	date, err := parseDate(c, "date")
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	items, info, err := h.rides.List(c.Request.Context(), ride.Filter{
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
		Date:        date,
		Page:        page,
	})
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.Page(c, http.StatusOK, items, info)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), middleware.Actor(c), idParam(c))
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusOK, r)
}

func (h *RideHandler) Update(c *gin.Context) {
	var req updateRideRequest
	if err := bindJSON(c, &req); err != nil {
		render.Error(c, h.log, err)
		return
	}
	r, err := h.rides.Update(c.Request.Context(), ride.UpdateCommand{
		Actor:         middleware.Actor(c),
		RideID:        idParam(c),
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureTime: req.DepartureTime,
		Capacity:      req.Capacity,
		PricePerSeat:  req.PricePerSeat,
		Status:        req.Status,
	})
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusOK, r)
}

func (h *RideHandler) Delete(c *gin.Context) {
	if err := h.rides.Delete(c.Request.Context(), middleware.Actor(c), idParam(c)); err != nil {
		render.Error(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RideHandler) Bookings(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	items, info, err := h.bookings.ListForRide(c.Request.Context(), middleware.Actor(c), idParam(c), page)
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.Page(c, http.StatusOK, items, info)
}
