// README: Shared helpers for DB-backed tests; they skip unless SEATSHARE_TEST_DSN is set.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"seatshare/internal/infra"
	"seatshare/internal/logging"
	"seatshare/migrations"
)

const DSNEnv = "SEATSHARE_TEST_DSN"

// DB connects to the test database, applies migrations and empties every table.
func DB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skip(DSNEnv + " not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	if err := infra.RunMigrations(ctx, db, migrations.FS, logging.Discard()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE reviews, booking_events, bookings, rides, users"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// Tx wraps DB in a transaction runner with a test-friendly timeout.
func Tx(t *testing.T) *infra.TxRunner {
	t.Helper()
	return infra.NewTxRunner(DB(t), 10*time.Second)
}

// SeedUser inserts a USER row so foreign keys resolve.
func SeedUser(t *testing.T, db *pgxpool.Pool, id string) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`INSERT INTO users (id, email, role) VALUES ($1, $2, 'USER') ON CONFLICT (id) DO NOTHING`,
		id, id+"@example.com")
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}
