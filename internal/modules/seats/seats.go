// README: Seat availability calculator; remaining seats are always derived, never stored.
package seats

import (
	"fmt"

	"seatshare/internal/apperr"
	"seatshare/internal/types"
)

// MaxPerRide bounds both ride capacity and seats per booking.
const MaxPerRide = 8

// Allocation is the seat footprint of one booking (or one status group of bookings).
type Allocation struct {
	Seats  int
	Status types.BookingStatus
}

// ErrInconsistent means the stored bookings already exceed the ride's capacity.
var ErrInconsistent = fmt.Errorf("%w: remaining seats computed negative", apperr.ErrInternal)

// Held sums the seats of open (pending or confirmed) allocations.
func Held(allocs []Allocation) int {
	held := 0
	for _, a := range allocs {
		if a.Status.IsOpen() {
			held += a.Seats
		}
	}
	return held
}

// Remaining returns capacity minus seats held by open bookings.
func Remaining(capacity int, allocs []Allocation) (int, error) {
	remaining := capacity - Held(allocs)
	if remaining < 0 {
		return 0, fmt.Errorf("%w (capacity=%d, held=%d)", ErrInconsistent, capacity, Held(allocs))
	}
	return remaining, nil
}

// Reserve checks that requested seats fit in what remains and returns the remainder afterwards.
func Reserve(capacity int, allocs []Allocation, requested int) (int, error) {
	remaining, err := Remaining(capacity, allocs)
	if err != nil {
		return 0, err
	}
	if requested > remaining {
		return remaining, fmt.Errorf("%w: requested %d, remaining %d", apperr.ErrSeatConflict, requested, remaining)
	}
	return remaining - requested, nil
}
