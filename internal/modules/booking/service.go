// README: Booking service implements the lifecycle transitions; every seat-consuming step runs under the ride lock.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"seatshare/internal/apperr"
	"seatshare/internal/events"
	"seatshare/internal/logging"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/ride"
	"seatshare/internal/modules/seats"
	"seatshare/internal/types"
)

// Tx is one transaction holding the ride's row lock.
type Tx interface {
	Ride() RideRef
	// Booking re-reads a booking of this ride inside the transaction.
	Booking(id types.ID) (*Booking, error)
	// Allocations returns the open seat footprint of the ride, leaving out exclude when set.
	Allocations(exclude types.ID) ([]seats.Allocation, error)
	HasOpen(passengerID string) (bool, error)
	Insert(b *Booking) error
	SetStatus(id types.ID, from, to types.BookingStatus, at time.Time) (bool, error)
	AppendEvent(e *Event) error
}

type Repository interface {
	WithRide(ctx context.Context, rideID types.ID, fn func(tx Tx) error) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	RideDriver(ctx context.Context, rideID types.ID) (string, error)
	ListForPassenger(ctx context.Context, passengerID string, p types.PageRequest) ([]Booking, int, error)
	ListForRide(ctx context.Context, rideID types.ID, p types.PageRequest) ([]Booking, int, error)
	Events(ctx context.Context, id types.ID) ([]Event, error)
}

type Quoter interface {
	Quote(seats int, pricePerSeat types.Money) (types.Money, error)
}

type Service struct {
	repo    Repository
	pricing Quoter
	pub     events.Publisher
	log     *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, pricing Quoter, pub events.Publisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = events.Nop()
	}
	return &Service{repo: repo, pricing: pricing, pub: pub, log: logging.OrDiscard(log), now: time.Now}
}

type CreateCommand struct {
	Actor       identity.Actor
	RideID      types.ID
	SeatsBooked int
}

type TransitionCommand struct {
	Actor     identity.Actor
	BookingID types.ID
	Status    types.BookingStatus
}

type CancelCommand struct {
	Actor     identity.Actor
	BookingID types.ID
}

// Create reserves seats as a PENDING booking. Every precondition is rechecked under
// the ride lock so concurrent requests never overbook.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if err := identity.RequireUser(cmd.Actor); err != nil {
		return nil, err
	}
	if cmd.SeatsBooked < 1 || cmd.SeatsBooked > seats.MaxPerRide {
		return nil, errSeatsRange
	}
	if !types.ValidID(string(cmd.RideID)) {
		return nil, ride.ErrNotFound
	}

	var (
		created   *Booking
		remaining int
	)
	err := s.repo.WithRide(ctx, cmd.RideID, func(tx Tx) error {
		ref := tx.Ride()
		if ref.DriverID == cmd.Actor.ID {
			return errSelfBooking
		}
		if ref.Status != ride.StatusActive {
			return ErrRideNotActive
		}
		open, err := tx.HasOpen(cmd.Actor.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrDuplicate
		}
		allocs, err := tx.Allocations("")
		if err != nil {
			return err
		}
		left, err := seats.Reserve(ref.Capacity, allocs, cmd.SeatsBooked)
		if err != nil {
			return err
		}
		total, err := s.pricing.Quote(cmd.SeatsBooked, ref.PricePerSeat)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrInternal, err)
		}

		now := s.now().UTC()
		b := &Booking{
			ID:          types.NewID(),
			RideID:      ref.ID,
			PassengerID: cmd.Actor.ID,
			DriverID:    ref.DriverID,
			SeatsBooked: cmd.SeatsBooked,
			TotalPrice:  total,
			Status:      types.BookingPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Insert(b); err != nil {
			return err
		}
		if err := tx.AppendEvent(&Event{
			BookingID:  b.ID,
			FromStatus: StatusNone,
			ToStatus:   types.BookingPending,
			ActorID:    cmd.Actor.ID,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		created, remaining = b, left
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		"action", "booking_created",
		"booking_id", string(created.ID),
		"ride_id", string(created.RideID),
		"passenger_id", created.PassengerID,
		"seats", created.SeatsBooked,
		"remaining", remaining,
	)
	s.emit(ctx, events.BookingCreated, cmd.Actor.ID, StatusNone, created, remaining)
	return created, nil
}

// Transition applies a driver-side status change: CONFIRMED or CANCELLED.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Booking, error) {
	switch cmd.Status {
	case types.BookingConfirmed:
		return s.Confirm(ctx, cmd.Actor, cmd.BookingID)
	case types.BookingCancelled:
		return s.DriverCancel(ctx, cmd.Actor, cmd.BookingID)
	case types.BookingCompleted:
		return nil, ErrDerivedOnly
	default:
		return nil, apperr.Invalid("status", "must be CONFIRMED or CANCELLED")
	}
}

// Confirm accepts a PENDING booking, first come first served over the seats left
// by the ride's other open bookings.
func (s *Service) Confirm(ctx context.Context, actor identity.Actor, id types.ID) (*Booking, error) {
	return s.driverStep(ctx, actor, id, types.BookingConfirmed, func(ref RideRef, b *Booking, others []seats.Allocation) (int, error) {
		if ref.Status != ride.StatusActive {
			return 0, ErrRideNotActive
		}
		return seats.Reserve(ref.Capacity, others, b.SeatsBooked)
	})
}

// DriverCancel rejects a PENDING booking or cancels a CONFIRMED one.
func (s *Service) DriverCancel(ctx context.Context, actor identity.Actor, id types.ID) (*Booking, error) {
	return s.driverStep(ctx, actor, id, types.BookingCancelled, func(ref RideRef, _ *Booking, others []seats.Allocation) (int, error) {
		return seats.Remaining(ref.Capacity, others)
	})
}

// PassengerCancel lets a passenger withdraw their own booking while it is PENDING.
func (s *Service) PassengerCancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	if err := identity.RequireUser(cmd.Actor); err != nil {
		return nil, err
	}
	b, err := s.lookup(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	var (
		updated   *Booking
		remaining int
	)
	err = s.repo.WithRide(ctx, b.RideID, func(tx Tx) error {
		cur, err := tx.Booking(b.ID)
		if err != nil {
			return err
		}
		if cur.PassengerID != cmd.Actor.ID {
			return ErrNotPassenger
		}
		if cur.Status != types.BookingPending {
			return ErrInvalidState
		}
		others, err := tx.Allocations(cur.ID)
		if err != nil {
			return err
		}
		left, err := seats.Remaining(tx.Ride().Capacity, others)
		if err != nil {
			return err
		}
		if err := s.apply(tx, cur, types.BookingCancelled, cmd.Actor.ID); err != nil {
			return err
		}
		updated, remaining = cur, left
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(cmd.Actor.ID, types.BookingPending, updated, remaining)
	s.emit(ctx, events.BookingCancelled, cmd.Actor.ID, types.BookingPending, updated, remaining)
	return updated, nil
}

// Get is visible to the booking's passenger, the ride's driver and admins.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id types.ID) (*Booking, error) {
	if actor.IsAnonymous() {
		return nil, identity.RequireUser(actor)
	}
	b, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != b.PassengerID && actor.ID != b.DriverID {
		return nil, ErrNotParticipant
	}
	return b, nil
}

// History returns the booking's transitions to the same readers Get allows.
func (s *Service) History(ctx context.Context, actor identity.Actor, id types.ID) ([]Event, error) {
	b, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, b.ID)
}

// ListMine pages through the caller's own bookings, newest first.
func (s *Service) ListMine(ctx context.Context, actor identity.Actor, p types.PageRequest) ([]Booking, types.PageInfo, error) {
	if err := identity.RequireUser(actor); err != nil {
		return nil, types.PageInfo{}, err
	}
	p = p.Normalize()
	items, total, err := s.repo.ListForPassenger(ctx, actor.ID, p)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	return items, types.NewPageInfo(p, total), nil
}

// ListForRide pages through a ride's bookings for its driver or an admin.
func (s *Service) ListForRide(ctx context.Context, actor identity.Actor, rideID types.ID, p types.PageRequest) ([]Booking, types.PageInfo, error) {
	if actor.IsAnonymous() {
		return nil, types.PageInfo{}, identity.RequireUser(actor)
	}
	if !types.ValidID(string(rideID)) {
		return nil, types.PageInfo{}, ride.ErrNotFound
	}
	driverID, err := s.repo.RideDriver(ctx, rideID)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	if !actor.IsAdmin() && actor.ID != driverID {
		return nil, types.PageInfo{}, ErrNotDriver
	}
	p = p.Normalize()
	items, total, err := s.repo.ListForRide(ctx, rideID, p)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	return items, types.NewPageInfo(p, total), nil
}

type seatCheck func(ref RideRef, b *Booking, others []seats.Allocation) (int, error)

func (s *Service) driverStep(ctx context.Context, actor identity.Actor, id types.ID, to types.BookingStatus, check seatCheck) (*Booking, error) {
	if actor.IsAnonymous() {
		return nil, identity.RequireUser(actor)
	}
	b, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	var (
		updated   *Booking
		from      types.BookingStatus
		remaining int
	)
	err = s.repo.WithRide(ctx, b.RideID, func(tx Tx) error {
		ref := tx.Ride()
		if !actor.IsAdmin() && actor.ID != ref.DriverID {
			return ErrNotDriver
		}
		cur, err := tx.Booking(b.ID)
		if err != nil {
			return err
		}
		if !CanTransition(cur.Status, to) {
			return ErrInvalidState
		}
		others, err := tx.Allocations(cur.ID)
		if err != nil {
			return err
		}
		left, err := check(ref, cur, others)
		if err != nil {
			return err
		}
		from = cur.Status
		if err := s.apply(tx, cur, to, actor.ID); err != nil {
			return err
		}
		updated, remaining = cur, left
		return nil
	})
	if err != nil {
		return nil, err
	}

	typ := events.BookingConfirmed
	if to == types.BookingCancelled {
		typ = events.BookingCancelled
	}
	s.logTransition(actor.ID, from, updated, remaining)
	s.emit(ctx, typ, actor.ID, from, updated, remaining)
	return updated, nil
}

// apply writes the new status conditionally on the old one and records the event.
func (s *Service) apply(tx Tx, b *Booking, to types.BookingStatus, actorID string) error {
	now := s.now().UTC()
	ok, err := tx.SetStatus(b.ID, b.Status, to, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	if err := tx.AppendEvent(&Event{
		BookingID:  b.ID,
		FromStatus: b.Status,
		ToStatus:   to,
		ActorID:    actorID,
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

func (s *Service) lookup(ctx context.Context, id types.ID) (*Booking, error) {
	if !types.ValidID(string(id)) {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) logTransition(actorID string, from types.BookingStatus, b *Booking, remaining int) {
	s.log.Info("booking transition",
		"action", "booking_transition",
		"booking_id", string(b.ID),
		"ride_id", string(b.RideID),
		"actor_id", actorID,
		"from", string(from),
		"to", string(b.Status),
		"remaining", remaining,
	)
}

func (s *Service) emit(ctx context.Context, typ events.Type, actorID string, from types.BookingStatus, b *Booking, remaining int) {
	events.Emit(ctx, s.pub, s.log, events.Event{
		Type:           typ,
		RideID:         string(b.RideID),
		BookingID:      string(b.ID),
		ActorID:        actorID,
		PassengerID:    b.PassengerID,
		DriverID:       b.DriverID,
		From:           string(from),
		To:             string(b.Status),
		SeatsRemaining: events.Seats(remaining),
	})
}
