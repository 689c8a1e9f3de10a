// README: Booking store backed by PostgreSQL; WithRide serialises seat-consuming work per ride.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"seatshare/internal/infra"
	"seatshare/internal/modules/ride"
	"seatshare/internal/modules/seats"
	"seatshare/internal/types"
)

const openBookingIndex = "bookings_one_open_per_passenger"

type Store struct {
	tx *infra.TxRunner
}

func NewStore(tx *infra.TxRunner) *Store {
	return &Store{tx: tx}
}

const bookingColumns = `b.id::text, b.ride_id::text, b.passenger_id, r.driver_id, b.seats_booked,
	b.total_price, b.currency, b.status, b.created_at, b.updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	err := row.Scan(
		&b.ID, &b.RideID, &b.PassengerID, &b.DriverID, &b.SeatsBooked,
		&b.TotalPrice.Amount, &b.TotalPrice.Currency, &status, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Status = types.BookingStatus(status)
	return &b, nil
}

func collect(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return scanBooking(s.tx.Pool().QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b JOIN rides r ON r.id = b.ride_id
		WHERE b.id = $1`, string(id)))
}

func (s *Store) RideDriver(ctx context.Context, rideID types.ID) (string, error) {
	var driverID string
	err := s.tx.Pool().QueryRow(ctx, `SELECT driver_id FROM rides WHERE id = $1`, string(rideID)).Scan(&driverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ride.ErrNotFound
	}
	return driverID, err
}

func (s *Store) ListForPassenger(ctx context.Context, passengerID string, p types.PageRequest) ([]Booking, int, error) {
	return s.list(ctx, "b.passenger_id = $1", passengerID, p)
}

func (s *Store) ListForRide(ctx context.Context, rideID types.ID, p types.PageRequest) ([]Booking, int, error) {
	return s.list(ctx, "b.ride_id = $1", string(rideID), p)
}

func (s *Store) list(ctx context.Context, cond string, key string, p types.PageRequest) ([]Booking, int, error) {
	pool := s.tx.Pool()
	var total int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings b WHERE `+cond, key).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b JOIN rides r ON r.id = b.ride_id
		WHERE `+cond+`
		ORDER BY b.created_at DESC, b.id
		LIMIT $2 OFFSET $3`, key, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// WithRide locks the ride row FOR UPDATE and runs fn in the same transaction.
// Ride edits take the same lock, so capacity and status cannot move underneath fn.
func (s *Store) WithRide(ctx context.Context, rideID types.ID, fn func(tx Tx) error) error {
	return s.tx.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var ref RideRef
		var status string
		err := tx.QueryRow(ctx, `
			SELECT id::text, driver_id, capacity, price_per_seat, currency, status
			FROM rides WHERE id = $1 FOR UPDATE`, string(rideID),
		).Scan(&ref.ID, &ref.DriverID, &ref.Capacity, &ref.PricePerSeat.Amount, &ref.PricePerSeat.Currency, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ride.ErrNotFound
		}
		if err != nil {
			return err
		}
		ref.Status = ride.Status(status)
		return fn(&lockedTx{ctx: ctx, tx: tx, ride: ref})
	})
}

type lockedTx struct {
	ctx  context.Context
	tx   pgx.Tx
	ride RideRef
}

func (l *lockedTx) Ride() RideRef { return l.ride }

func (l *lockedTx) Booking(id types.ID) (*Booking, error) {
	return scanBooking(l.tx.QueryRow(l.ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b JOIN rides r ON r.id = b.ride_id
		WHERE b.id = $1 AND b.ride_id = $2
		FOR UPDATE OF b`, string(id), string(l.ride.ID)))
}

func (l *lockedTx) Allocations(exclude types.ID) ([]seats.Allocation, error) {
	rows, err := l.tx.Query(l.ctx, `
		SELECT status, SUM(seats_booked)
		FROM bookings
		WHERE ride_id = $1 AND status IN ('PENDING', 'CONFIRMED') AND id::text <> $2
		GROUP BY status`, string(l.ride.ID), string(exclude))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []seats.Allocation
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out = append(out, seats.Allocation{Seats: n, Status: types.BookingStatus(status)})
	}
	return out, rows.Err()
}

func (l *lockedTx) HasOpen(passengerID string) (bool, error) {
	var open bool
	err := l.tx.QueryRow(l.ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE ride_id = $1 AND passenger_id = $2 AND status IN ('PENDING', 'CONFIRMED')
		)`, string(l.ride.ID), passengerID).Scan(&open)
	return open, err
}

func (l *lockedTx) Insert(b *Booking) error {
	_, err := l.tx.Exec(l.ctx, `
		INSERT INTO bookings (
			id, ride_id, passenger_id, seats_booked, total_price, currency, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(b.ID), string(b.RideID), b.PassengerID, b.SeatsBooked,
		b.TotalPrice.Amount, b.TotalPrice.Currency, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	if infra.IsUniqueViolation(err, openBookingIndex) {
		return ErrDuplicate
	}
	return err
}

func (l *lockedTx) SetStatus(id types.ID, from, to types.BookingStatus, at time.Time) (bool, error) {
	tag, err := l.tx.Exec(l.ctx, `
		UPDATE bookings SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`, string(id), string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (l *lockedTx) AppendEvent(e *Event) error {
	_, err := l.tx.Exec(l.ctx, `
		INSERT INTO booking_events (booking_id, from_status, to_status, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(e.BookingID), string(e.FromStatus), string(e.ToStatus), e.ActorID, e.CreatedAt,
	)
	return err
}

// Events returns a booking's transition history, oldest first.
func (s *Store) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.tx.Pool().Query(ctx, `
		SELECT id, booking_id::text, from_status, to_status, actor_id, created_at
		FROM booking_events WHERE booking_id = $1 ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var from, to string
		if err := rows.Scan(&e.ID, &e.BookingID, &from, &to, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FromStatus, e.ToStatus = types.BookingStatus(from), types.BookingStatus(to)
		out = append(out, e)
	}
	return out, rows.Err()
}
