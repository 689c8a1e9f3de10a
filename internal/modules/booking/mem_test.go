// README: In-memory booking repository; a per-ride mutex stands in for the ride row lock.
package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"seatshare/internal/modules/ride"
	"seatshare/internal/modules/seats"
	"seatshare/internal/types"
)

type memRepo struct {
	mu       sync.Mutex
	locks    map[types.ID]*sync.Mutex
	rides    map[types.ID]*RideRef
	bookings map[types.ID]*Booking
	events   []Event
	// yield widens the window between the seat check and the insert.
	yield func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		locks:    map[types.ID]*sync.Mutex{},
		rides:    map[types.ID]*RideRef{},
		bookings: map[types.ID]*Booking{},
	}
}

func (m *memRepo) addRide(driverID string, capacity int, price int64) types.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := types.NewID()
	m.rides[id] = &RideRef{
		ID:           id,
		DriverID:     driverID,
		Capacity:     capacity,
		PricePerSeat: types.Money{Amount: price, Currency: "USD"},
		Status:       ride.StatusActive,
	}
	m.locks[id] = &sync.Mutex{}
	return id
}

func (m *memRepo) WithRide(_ context.Context, rideID types.ID, fn func(tx Tx) error) error {
	m.mu.Lock()
	lock, ok := m.locks[rideID]
	m.mu.Unlock()
	if !ok {
		return ride.ErrNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{repo: m, rideID: rideID}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memRepo) RideDriver(_ context.Context, rideID types.ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return "", ride.ErrNotFound
	}
	return r.DriverID, nil
}

func (m *memRepo) list(match func(*Booking) bool, p types.PageRequest) ([]Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Booking
	for _, b := range m.bookings {
		if match(b) {
			all = append(all, *b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := p.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *memRepo) ListForPassenger(_ context.Context, passengerID string, p types.PageRequest) ([]Booking, int, error) {
	return m.list(func(b *Booking) bool { return b.PassengerID == passengerID }, p)
}

func (m *memRepo) ListForRide(_ context.Context, rideID types.ID, p types.PageRequest) ([]Booking, int, error) {
	return m.list(func(b *Booking) bool { return b.RideID == rideID }, p)
}

func (m *memRepo) Events(_ context.Context, id types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.BookingID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) held(rideID types.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.RideID == rideID && b.Status.IsOpen() {
			n += b.SeatsBooked
		}
	}
	return n
}

// memTx buffers writes and applies them on commit, so a failed fn leaves nothing behind.
type memTx struct {
	repo    *memRepo
	rideID  types.ID
	inserts []*Booking
	updates map[types.ID]types.BookingStatus
	events  []Event
}

func (t *memTx) Ride() RideRef {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	return *t.repo.rides[t.rideID]
}

func (t *memTx) Booking(id types.ID) (*Booking, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	b, ok := t.repo.bookings[id]
	if !ok || b.RideID != t.rideID {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) Allocations(exclude types.ID) ([]seats.Allocation, error) {
	t.repo.mu.Lock()
	var out []seats.Allocation
	for _, b := range t.repo.bookings {
		if b.RideID == t.rideID && b.ID != exclude && b.Status.IsOpen() {
			out = append(out, seats.Allocation{Seats: b.SeatsBooked, Status: b.Status})
		}
	}
	yield := t.repo.yield
	t.repo.mu.Unlock()
	if yield != nil {
		yield()
	}
	return out, nil
}

func (t *memTx) HasOpen(passengerID string) (bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, b := range t.repo.bookings {
		if b.RideID == t.rideID && b.PassengerID == passengerID && b.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Insert(b *Booking) error {
	cp := *b
	t.inserts = append(t.inserts, &cp)
	return nil
}

func (t *memTx) SetStatus(id types.ID, from, to types.BookingStatus, _ time.Time) (bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	b, ok := t.repo.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	if t.updates == nil {
		t.updates = map[types.ID]types.BookingStatus{}
	}
	t.updates[id] = to
	return true, nil
}

func (t *memTx) AppendEvent(e *Event) error {
	t.events = append(t.events, *e)
	return nil
}

func (t *memTx) commit() {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, b := range t.inserts {
		t.repo.bookings[b.ID] = b
	}
	for id, st := range t.updates {
		t.repo.bookings[id].Status = st
	}
	t.repo.events = append(t.repo.events, t.events...)
}
