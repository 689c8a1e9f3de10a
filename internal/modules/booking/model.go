// README: Booking aggregate, lifecycle table and guard errors.
package booking

import (
	"fmt"
	"time"

	"seatshare/internal/apperr"
	"seatshare/internal/modules/ride"
	"seatshare/internal/types"
)

// StatusNone is the from-status recorded for a booking's creation event.
const StatusNone types.BookingStatus = "NONE"

type Booking struct {
	ID          types.ID            `json:"id"`
	RideID      types.ID            `json:"ride_id"`
	PassengerID string              `json:"passenger_id"`
	DriverID    string              `json:"driver_id"`
	SeatsBooked int                 `json:"seats_booked"`
	TotalPrice  types.Money         `json:"total_price"`
	Status      types.BookingStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Event is one row of the booking's transition history.
type Event struct {
	ID         int64               `json:"id"`
	BookingID  types.ID            `json:"booking_id"`
	FromStatus types.BookingStatus `json:"from_status"`
	ToStatus   types.BookingStatus `json:"to_status"`
	ActorID    string              `json:"actor_id"`
	CreatedAt  time.Time           `json:"created_at"`
}

// RideRef is the part of a ride the booking lifecycle reads under the ride lock.
type RideRef struct {
	ID           types.ID
	DriverID     string
	Capacity     int
	PricePerSeat types.Money
	Status       ride.Status
}

// AllowedTransitions is the booking state flow as code. COMPLETED is only ever
// reached through ride completion.
var AllowedTransitions = map[types.BookingStatus][]types.BookingStatus{
	types.BookingPending:   {types.BookingConfirmed, types.BookingCancelled},
	types.BookingConfirmed: {types.BookingCancelled, types.BookingCompleted},
}

func CanTransition(from, to types.BookingStatus) bool {
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

var (
	ErrNotFound       = fmt.Errorf("%w: booking not found", apperr.ErrNotFound)
	ErrInvalidState   = fmt.Errorf("%w: booking status does not allow this", apperr.ErrInvalidState)
	ErrRideNotActive  = fmt.Errorf("%w: ride is not accepting bookings", apperr.ErrInvalidState)
	ErrNotDriver      = fmt.Errorf("%w: only the ride's driver may do this", apperr.ErrNotAuthorized)
	ErrNotPassenger   = fmt.Errorf("%w: only the booking's passenger may do this", apperr.ErrNotAuthorized)
	ErrNotParticipant = fmt.Errorf("%w: not a participant of this booking", apperr.ErrNotAuthorized)
	ErrDuplicate      = fmt.Errorf("%w: passenger already holds an open booking on this ride", apperr.ErrDuplicateBook)
	ErrDerivedOnly    = fmt.Errorf("%w: bookings complete only when their ride completes", apperr.ErrInvalidState)
	errSelfBooking    = apperr.Invalid("ride_id", "drivers cannot book their own ride")
	errSeatsRange     = apperr.Invalid("seats_booked", "must be between 1 and 8")
)
