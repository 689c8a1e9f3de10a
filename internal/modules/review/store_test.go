// README: DB-backed review tests; concurrent reviews of one user must all count exactly once.
package review

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"seatshare/internal/infra"
	"seatshare/internal/testutil"
	"seatshare/internal/types"
)

func seedRide(t *testing.T, runner *infra.TxRunner, driverID string, passengers ...string) types.ID {
	t.Helper()
	ctx := context.Background()
	pool := runner.Pool()
	testutil.SeedUser(t, pool, driverID)
	id := types.NewID()
	_, err := pool.Exec(ctx, `
		INSERT INTO rides (id, driver_id, origin, destination, departure_time, capacity, price_per_seat, currency)
		VALUES ($1, $2, 'A', 'B', $3, 8, 100, 'USD')`, string(id), driverID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("seed ride: %v", err)
	}
	for _, p := range passengers {
		testutil.SeedUser(t, pool, p)
		_, err := pool.Exec(ctx, `
			INSERT INTO bookings (id, ride_id, passenger_id, seats_booked, total_price, currency, status)
			VALUES ($1, $2, $3, 1, 100, 'USD', 'CANCELLED')`, string(types.NewID()), string(id), p)
		if err != nil {
			t.Fatalf("seed booking: %v", err)
		}
	}
	return id
}

func TestStoreConcurrentReviewsAllCounted(t *testing.T) {
	runner := testutil.Tx(t)
	svc := NewService(NewStore(runner), nil, nil)
	ctx := context.Background()

	ratings := []int{5, 4, 3, 4, 2, 5, 1, 4}
	var passengers []string
	for i := range ratings {
		passengers = append(passengers, fmt.Sprintf("rv-%d", i))
	}
	rideID := seedRide(t, runner, "driver-u", passengers...)

	var wg sync.WaitGroup
	errs := make(chan error, len(ratings))
	for i, r := range ratings {
		wg.Add(1)
		go func(reviewer string, rating int) {
			defer wg.Done()
			_, err := svc.Create(ctx, CreateCommand{Actor: actor(reviewer), RideID: rideID, ReviewedUserID: "driver-u", Rating: rating})
			errs <- err
		}(passengers[i], r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("review: %v", err)
		}
	}

	want, _ := Mean(ratings)
	var got float64
	if err := runner.Pool().QueryRow(ctx, `SELECT rating FROM users WHERE id = 'driver-u'`).Scan(&got); err != nil {
		t.Fatalf("read rating: %v", err)
	}
	if got != want {
		t.Fatalf("expected rating %v, got %v", want, got)
	}
}

func TestStoreReviewOutlivesRide(t *testing.T) {
	runner := testutil.Tx(t)
	svc := NewService(NewStore(runner), nil, nil)
	ctx := context.Background()
	rideID := seedRide(t, runner, "driver-u", "p1")

	if _, err := svc.Create(ctx, CreateCommand{Actor: actor("p1"), RideID: rideID, ReviewedUserID: "driver-u", Rating: 5, Comment: "smooth"}); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := runner.Pool().Exec(ctx, `DELETE FROM rides WHERE id = $1`, string(rideID)); err != nil {
		t.Fatalf("delete ride: %v", err)
	}
	list, page, err := svc.ListForUser(ctx, "driver-u", types.PageRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || list[0].Comment != "smooth" {
		t.Fatalf("expected review kept after ride deletion, got %+v", list)
	}
}
