// README: Ride store backed by PostgreSQL; mutations run under a FOR UPDATE lock on the ride row.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"seatshare/internal/infra"
	"seatshare/internal/modules/seats"
	"seatshare/internal/types"
)

type Store struct {
	tx *infra.TxRunner
}

func NewStore(tx *infra.TxRunner) *Store {
	return &Store{tx: tx}
}

const rideColumns = `id::text, driver_id, origin, destination, departure_time, capacity,
	price_per_seat, currency, status, created_at, updated_at`

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var status string
	err := row.Scan(
		&r.ID, &r.DriverID, &r.Origin, &r.Destination, &r.DepartureTime, &r.Capacity,
		&r.PricePerSeat.Amount, &r.PricePerSeat.Currency, &status, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func (s *Store) Create(ctx context.Context, r *Ride) error {
	_, err := s.tx.Pool().Exec(ctx, `
		INSERT INTO rides (
			id, driver_id, origin, destination, departure_time, capacity,
			price_per_seat, currency, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(r.ID), r.DriverID, r.Origin, r.Destination, r.DepartureTime, r.Capacity,
		r.PricePerSeat.Amount, r.PricePerSeat.Currency, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Snapshot, error) {
	r, err := scanRide(s.tx.Pool().QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id)))
	if err != nil {
		return nil, err
	}
	allocs, err := allocations(ctx, s.tx.Pool(), r.ID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Ride: *r, Allocations: allocs}, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Snapshot, int, error) {
	where := []string{"status = 'ACTIVE'"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Origin != "" {
		where = append(where, "origin ILIKE '%' || "+arg(f.Origin)+" || '%'")
	}
	if f.Destination != "" {
		where = append(where, "destination ILIKE '%' || "+arg(f.Destination)+" || '%'")
	}
	if f.Date != nil {
		day := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		where = append(where, "departure_time >= "+arg(day)+" AND departure_time < "+arg(day.Add(24*time.Hour)))
	}
	cond := strings.Join(where, " AND ")

	pool := s.tx.Pool()
	var total int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM rides WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + rideColumns + ` FROM rides WHERE ` + cond +
		` ORDER BY departure_time, id LIMIT ` + arg(f.Page.Limit) + ` OFFSET ` + arg(f.Page.Offset())
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var snaps []Snapshot
	var ids []string
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, 0, err
		}
		snaps = append(snaps, Snapshot{Ride: *r})
		ids = append(ids, string(r.ID))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return snaps, total, nil
	}

	held, err := pool.Query(ctx, `
		SELECT ride_id::text, status, SUM(seats_booked)
		FROM bookings
		WHERE ride_id = ANY($1::text[]::uuid[]) AND status IN ('PENDING', 'CONFIRMED')
		GROUP BY ride_id, status`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer held.Close()
	byRide := make(map[string][]seats.Allocation, len(ids))
	for held.Next() {
		var rideID, status string
		var n int
		if err := held.Scan(&rideID, &status, &n); err != nil {
			return nil, 0, err
		}
		byRide[rideID] = append(byRide[rideID], seats.Allocation{Seats: n, Status: types.BookingStatus(status)})
	}
	if err := held.Err(); err != nil {
		return nil, 0, err
	}
	for i := range snaps {
		snaps[i].Allocations = byRide[string(snaps[i].Ride.ID)]
	}
	return snaps, total, nil
}

// WithLock runs fn with the ride row locked FOR UPDATE. Booking transactions take the same
// lock, so seat counts read inside fn stay valid until commit.
func (s *Store) WithLock(ctx context.Context, id types.ID, fn func(tx Tx) error) error {
	return s.tx.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		r, err := scanRide(tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, string(id)))
		if err != nil {
			return err
		}
		allocs, err := allocations(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		return fn(&lockedRide{ctx: ctx, tx: tx, snap: &Snapshot{Ride: *r, Allocations: allocs}})
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func allocations(ctx context.Context, q querier, rideID types.ID) ([]seats.Allocation, error) {
	rows, err := q.Query(ctx, `
		SELECT status, SUM(seats_booked)
		FROM bookings
		WHERE ride_id = $1 AND status IN ('PENDING', 'CONFIRMED')
		GROUP BY status`, string(rideID))
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

type lockedRide struct {
	ctx  context.Context
	tx   pgx.Tx
	snap *Snapshot
}

func (l *lockedRide) Snapshot() *Snapshot { return l.snap }

func (l *lockedRide) Save(r *Ride) error {
	_, err := l.tx.Exec(l.ctx, `
		UPDATE rides
		SET origin = $2, destination = $3, departure_time = $4, capacity = $5,
		    price_per_seat = $6, status = $7, updated_at = $8
		WHERE id = $1`,
		string(r.ID), r.Origin, r.Destination, r.DepartureTime, r.Capacity,
		r.PricePerSeat.Amount, string(r.Status), r.UpdatedAt,
	)
	return err
}

func (l *lockedRide) Settle(to Status, actorID string) ([]SettledBooking, error) {
	rideID := string(l.snap.Ride.ID)
	var settled []SettledBooking
	move := func(from, next types.BookingStatus) error {
		rows, err := l.tx.Query(l.ctx, `
			UPDATE bookings SET status = $3, updated_at = NOW()
			WHERE ride_id = $1 AND status = $2
			RETURNING id::text, passenger_id`, rideID, string(from), string(next))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			b := SettledBooking{From: from, To: next}
			if err := rows.Scan(&b.ID, &b.PassengerID); err != nil {
				return err
			}
			settled = append(settled, b)
		}
		return rows.Err()
	}

	switch to {
	case StatusCompleted:
		if err := move(types.BookingConfirmed, types.BookingCompleted); err != nil {
			return nil, err
		}
		if err := move(types.BookingPending, types.BookingCancelled); err != nil {
			return nil, err
		}
	case StatusCancelled:
		for _, from := range []types.BookingStatus{types.BookingPending, types.BookingConfirmed} {
			if err := move(from, types.BookingCancelled); err != nil {
				return nil, err
			}
		}
	default:
		return nil, nil
	}

	credited := []string{}
	if to == StatusCompleted {
		credited = append(credited, l.snap.Ride.DriverID)
	}
	batch := &pgx.Batch{}
	for _, b := range settled {
		batch.Queue(`
			INSERT INTO booking_events (booking_id, from_status, to_status, actor_id)
			VALUES ($1, $2, $3, $4)`, string(b.ID), string(b.From), string(b.To), actorID)
		if b.To == types.BookingCompleted {
			credited = append(credited, b.PassengerID)
		}
	}
	if len(credited) > 0 {
		batch.Queue(`UPDATE users SET total_rides = total_rides + 1, updated_at = NOW() WHERE id = ANY($1)`, credited)
	}
	if batch.Len() > 0 {
		if err := l.tx.SendBatch(l.ctx, batch).Close(); err != nil {
			return nil, err
		}
	}
	return settled, nil
}

func (l *lockedRide) Delete() (bool, error) {
	tag, err := l.tx.Exec(l.ctx, `
		DELETE FROM rides
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM bookings WHERE ride_id = $1 AND status = 'CONFIRMED')`,
		string(l.snap.Ride.ID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
