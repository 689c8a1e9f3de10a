// README: Ride service implements creation, guarded edits, lifecycle transitions and deletion.
package ride

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"seatshare/internal/apperr"
	"seatshare/internal/events"
	"seatshare/internal/logging"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/seats"
	"seatshare/internal/types"
)

// Tx is a ride held under its row lock for the duration of one transaction.
type Tx interface {
	Snapshot() *Snapshot
	Save(r *Ride) error
	// Settle moves the ride's open bookings for a terminal ride status and
	// credits total_rides when the ride completes.
	Settle(to Status, actorID string) ([]SettledBooking, error)
	// Delete removes the ride unless a confirmed booking exists; false means it was kept.
	Delete() (bool, error)
}

type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Snapshot, error)
	List(ctx context.Context, f Filter) ([]Snapshot, int, error)
	WithLock(ctx context.Context, id types.ID, fn func(tx Tx) error) error
}

type Service struct {
	repo     Repository
	pub      events.Publisher
	log      *slog.Logger
	currency string
	now      func() time.Time
}

func NewService(repo Repository, pub events.Publisher, log *slog.Logger, currency string) *Service {
	if pub == nil {
		pub = events.Nop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &Service{repo: repo, pub: pub, log: logging.OrDiscard(log), currency: currency, now: time.Now}
}

type CreateCommand struct {
	Actor         identity.Actor
	Origin        string
	Destination   string
	DepartureTime time.Time
	Capacity      int
	PricePerSeat  int64
}

// UpdateCommand carries only the fields being changed.
type UpdateCommand struct {
	Actor         identity.Actor
	RideID        types.ID
	Origin        *string
	Destination   *string
	DepartureTime *time.Time
	Capacity      *int
	PricePerSeat  *int64
	Status        *Status
}

func (c UpdateCommand) editsFields() bool {
	return c.Origin != nil || c.Destination != nil || c.DepartureTime != nil || c.Capacity != nil || c.PricePerSeat != nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if err := identity.RequireUser(cmd.Actor); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	origin := strings.TrimSpace(cmd.Origin)
	destination := strings.TrimSpace(cmd.Destination)
	if origin == "" {
		fields["origin"] = "is required"
	}
	if destination == "" {
		fields["destination"] = "is required"
	}
	if cmd.DepartureTime.IsZero() || !cmd.DepartureTime.After(s.now()) {
		fields["departure_time"] = "must be in the future"
	}
	checkCapacity(fields, cmd.Capacity)
	if cmd.PricePerSeat < 0 {
		fields["price_per_seat"] = "must be >= 0"
	}
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}

	now := s.now().UTC()
	r := &Ride{
		ID:             types.NewID(),
		DriverID:       cmd.Actor.ID,
		Origin:         origin,
		Destination:    destination,
		DepartureTime:  cmd.DepartureTime.UTC(),
		Capacity:       cmd.Capacity,
		PricePerSeat:   types.Money{Amount: cmd.PricePerSeat, Currency: s.currency},
		Status:         StatusActive,
		RemainingSeats: cmd.Capacity,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("ride created", "action", "ride_created", "ride_id", string(r.ID), "driver_id", r.DriverID, "capacity", r.Capacity)
	events.Emit(ctx, s.pub, s.log, events.Event{
		Type:           events.RideCreated,
		RideID:         string(r.ID),
		DriverID:       r.DriverID,
		ActorID:        cmd.Actor.ID,
		SeatsRemaining: events.Seats(r.RemainingSeats),
	})
	return r, nil
}

// Get returns a ride with derived remaining seats. Capacity is only shown to its driver and admins.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id types.ID) (*Ride, error) {
	if !types.ValidID(string(id)) {
		return nil, ErrNotFound
	}
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := derive(snap)
	if err != nil {
		s.logInconsistent(snap, err)
		return nil, err
	}
	if !canManage(actor, r) {
		pub := r.Public()
		r = &pub
	}
	return r, nil
}

// List returns ACTIVE rides matching f, public view only.
func (s *Service) List(ctx context.Context, f Filter) ([]Ride, types.PageInfo, error) {
	f.Page = f.Page.Normalize()
	f.Origin = strings.TrimSpace(f.Origin)
	f.Destination = strings.TrimSpace(f.Destination)
	snaps, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	out := make([]Ride, 0, len(snaps))
	for i := range snaps {
		r, err := derive(&snaps[i])
		if err != nil {
			s.logInconsistent(&snaps[i], err)
			return nil, types.PageInfo{}, err
		}
		out = append(out, r.Public())
	}
	return out, types.NewPageInfo(f.Page, total), nil
}

func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Ride, error) {
	if cmd.Actor.IsAnonymous() {
		return nil, identity.RequireUser(cmd.Actor)
	}
	if !types.ValidID(string(cmd.RideID)) {
		return nil, ErrNotFound
	}
	if err := s.validateUpdate(cmd); err != nil {
		return nil, err
	}

	var (
		updated *Ride
		from    Status
		settled []SettledBooking
	)
	err := s.repo.WithLock(ctx, cmd.RideID, func(tx Tx) error {
		settled = nil
		snap := tx.Snapshot()
		cur := snap.Ride
		from = cur.Status
		if !canManage(cmd.Actor, &cur) {
			return ErrNotDriver
		}
		if cmd.editsFields() && cur.Status != StatusActive {
			return ErrInvalidState
		}
		if cmd.Origin != nil {
			cur.Origin = strings.TrimSpace(*cmd.Origin)
		}
		if cmd.Destination != nil {
			cur.Destination = strings.TrimSpace(*cmd.Destination)
		}
		if cmd.DepartureTime != nil {
			cur.DepartureTime = cmd.DepartureTime.UTC()
		}
		if cmd.PricePerSeat != nil {
			cur.PricePerSeat.Amount = *cmd.PricePerSeat
		}
		if cmd.Capacity != nil {
			if held := seats.Held(snap.Allocations); *cmd.Capacity < held {
				return ErrCapacityBelow
			}
			cur.Capacity = *cmd.Capacity
		}
		if cmd.Status != nil && *cmd.Status != cur.Status {
			if !CanTransition(cur.Status, *cmd.Status) {
				return ErrInvalidState
			}
			cur.Status = *cmd.Status
		}
		cur.UpdatedAt = s.now().UTC()
		if err := tx.Save(&cur); err != nil {
			return err
		}
		if cur.Status != from && cur.Status.Terminal() {
			var err error
			if settled, err = tx.Settle(cur.Status, cmd.Actor.ID); err != nil {
				return err
			}
		}
		next := &Snapshot{Ride: cur, Allocations: snap.Allocations}
		if len(settled) > 0 {
			next.Allocations = nil
		}
		r, err := derive(next)
		if err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("ride updated",
		"action", "ride_updated",
		"ride_id", string(updated.ID),
		"actor_id", cmd.Actor.ID,
		"from", string(from),
		"to", string(updated.Status),
		"settled", len(settled),
	)
	s.emitUpdate(ctx, cmd.Actor.ID, from, updated, settled)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Actor, id types.ID) error {
	if actor.IsAnonymous() {
		return identity.RequireUser(actor)
	}
	if !types.ValidID(string(id)) {
		return ErrNotFound
	}
	var driverID string
	err := s.repo.WithLock(ctx, id, func(tx Tx) error {
		snap := tx.Snapshot()
		if !canManage(actor, &snap.Ride) {
			return ErrNotDriver
		}
		if snap.Confirmed() {
			return ErrHasConfirmed
		}
		driverID = snap.Ride.DriverID
		ok, err := tx.Delete()
		if err != nil {
			return err
		}
		if !ok {
			return ErrHasConfirmed
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("ride deleted", "action", "ride_deleted", "ride_id", string(id), "actor_id", actor.ID)
	events.Emit(ctx, s.pub, s.log, events.Event{Type: events.RideDeleted, RideID: string(id), DriverID: driverID, ActorID: actor.ID})
	return nil
}

func (s *Service) validateUpdate(cmd UpdateCommand) error {
	fields := map[string]string{}
	if cmd.Origin != nil && strings.TrimSpace(*cmd.Origin) == "" {
		fields["origin"] = "must not be empty"
	}
	if cmd.Destination != nil && strings.TrimSpace(*cmd.Destination) == "" {
		fields["destination"] = "must not be empty"
	}
	if cmd.DepartureTime != nil && !cmd.DepartureTime.After(s.now()) {
		fields["departure_time"] = "must be in the future"
	}
	if cmd.Capacity != nil {
		checkCapacity(fields, *cmd.Capacity)
	}
	if cmd.PricePerSeat != nil && *cmd.PricePerSeat < 0 {
		fields["price_per_seat"] = "must be >= 0"
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		fields["status"] = "must be one of ACTIVE, IN_PROGRESS, COMPLETED, CANCELLED"
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func (s *Service) emitUpdate(ctx context.Context, actorID string, from Status, r *Ride, settled []SettledBooking) {
	typ := events.RideUpdated
	switch {
	case r.Status == from:
	case r.Status == StatusCompleted:
		typ = events.RideCompleted
	case r.Status == StatusCancelled:
		typ = events.RideCancelled
	}
	for _, b := range settled {
		bt := events.BookingCancelled
		if b.To == types.BookingCompleted {
			bt = events.BookingCompleted
		}
		events.Emit(ctx, s.pub, s.log, events.Event{
			Type:        bt,
			RideID:      string(r.ID),
			BookingID:   string(b.ID),
			PassengerID: b.PassengerID,
			DriverID:    r.DriverID,
			ActorID:     actorID,
			From:        string(b.From),
			To:          string(b.To),
		})
	}
	events.Emit(ctx, s.pub, s.log, events.Event{
		Type:           typ,
		RideID:         string(r.ID),
		DriverID:       r.DriverID,
		ActorID:        actorID,
		From:           string(from),
		To:             string(r.Status),
		SeatsRemaining: events.Seats(r.RemainingSeats),
	})
}

func (s *Service) logInconsistent(snap *Snapshot, err error) {
	s.log.Error("remaining seats negative",
		"action", "seat_invariant_violated",
		"ride_id", string(snap.Ride.ID),
		"capacity", snap.Ride.Capacity,
		"held", seats.Held(snap.Allocations),
		"error", err,
	)
}

func derive(snap *Snapshot) (*Ride, error) {
	r := snap.Ride
	remaining, err := seats.Remaining(r.Capacity, snap.Allocations)
	if err != nil {
		return nil, err
	}
	r.RemainingSeats = remaining
	return &r, nil
}

func canManage(actor identity.Actor, r *Ride) bool {
	return actor.IsAdmin() || (!actor.IsAnonymous() && actor.ID == r.DriverID)
}

func checkCapacity(fields map[string]string, capacity int) {
	if capacity < 1 || capacity > seats.MaxPerRide {
		fields["capacity"] = "must be between 1 and 8"
	}
}
