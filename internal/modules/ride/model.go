// README: Ride aggregate, lifecycle table and ownership errors.
package ride

import (
	"fmt"
	"time"

	"seatshare/internal/apperr"
	"seatshare/internal/modules/seats"
	"seatshare/internal/types"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal rides accept no new bookings and no further edits.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Ride struct {
	ID             types.ID    `json:"id"`
	DriverID       string      `json:"driver_id"`
	Origin         string      `json:"origin"`
	Destination    string      `json:"destination"`
	DepartureTime  time.Time   `json:"departure_time"`
	Capacity       int         `json:"capacity,omitempty"`
	PricePerSeat   types.Money `json:"price_per_seat"`
	Status         Status      `json:"status"`
	RemainingSeats int         `json:"remaining_seats"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Public hides the declared capacity; readers other than the driver only see remaining seats.
func (r Ride) Public() Ride {
	r.Capacity = 0
	return r
}

// Snapshot is a ride together with the seat footprint of its bookings.
type Snapshot struct {
	Ride        Ride
	Allocations []seats.Allocation
}

// Confirmed reports whether any confirmed booking holds seats on the ride.
func (s *Snapshot) Confirmed() bool {
	for _, a := range s.Allocations {
		if a.Status == types.BookingConfirmed && a.Seats > 0 {
			return true
		}
	}
	return false
}

// AllowedTransitions is the ride lifecycle as code.
var AllowedTransitions = map[Status][]Status{
	StatusActive:     {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type Filter struct {
	Origin      string
	Destination string
	// Date restricts results to departures on that UTC calendar day.
	Date *time.Time
	Page types.PageRequest
}

// SettledBooking is a booking moved by a ride reaching a terminal status.
type SettledBooking struct {
	ID          types.ID
	PassengerID string
	From        types.BookingStatus
	To          types.BookingStatus
}

var (
	ErrNotFound      = fmt.Errorf("%w: ride not found", apperr.ErrNotFound)
	ErrNotDriver     = fmt.Errorf("%w: only the ride's driver may do this", apperr.ErrNotAuthorized)
	ErrHasConfirmed  = fmt.Errorf("%w: ride has confirmed bookings", apperr.ErrInvalidState)
	ErrInvalidState  = fmt.Errorf("%w: ride status does not allow this", apperr.ErrInvalidState)
	ErrCapacityBelow = fmt.Errorf("%w: capacity below seats already held", apperr.ErrSeatConflict)
)
