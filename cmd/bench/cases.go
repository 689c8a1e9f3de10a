// README: Benchmark cases; environment checks, HTTP contract probes and the oversell contention run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"seatshare/internal/apperr"
	"seatshare/internal/infra"
	"seatshare/internal/logging"
	"seatshare/internal/modules/booking"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/pricing"
	"seatshare/internal/modules/ride"
	"seatshare/internal/modules/user"
	"seatshare/migrations"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "role cache reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "embedded migrations",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				if err := infra.RunMigrations(ctx, r.db, migrations.FS, logging.Discard()); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "every table in the embedded migrations exists",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(migrations.FS)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("tables=%d", len(tables))}
			},
		},

		httpCase("API: health", http.MethodGet, base+"/health", "", "", []int{200}),
		httpCase("API: list rides (public)", http.MethodGet, base+"/rides", "", "", []int{200}),
		httpCase("API: list rides (bad page -> 400)", http.MethodGet, base+"/rides?page=abc", "", "", []int{400}),
		httpCase("API: get ride (malformed id -> 404)", http.MethodGet, base+"/rides/not-a-ride", "", "", []int{404}),
		httpCase("API: create ride (anonymous -> 401)", http.MethodPost, base+"/rides", `{"origin":"A","destination":"B"}`, "", []int{401}),
		httpCase("API: create booking (bad bearer -> 401)", http.MethodPost, base+"/bookings", `{}`, "bench-invalid", []int{401}),
		httpCase("API: reviews without user_id -> 400", http.MethodGet, base+"/reviews", "", "", []int{400}),

		{
			Name:  "Concurrency: no oversell",
			Focus: "concurrent single-seat bookings on one ride never exceed capacity",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				return contendedBooking(ctx, r)
			},
		},
		{
			Name:  "Perf: ride search load",
			Focus: "GET /rides throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/rides?limit=50")
			},
		},
	}
}

func httpCase(name, method, url, body, bearer string, okStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			var reader io.Reader
			if body != "" {
				reader = strings.NewReader(body)
			}
			req, _ := http.NewRequestWithContext(ctx, method, url, reader)
			req.Header.Set("Content-Type", "application/json")
			if bearer != "" {
				req.Header.Set("Authorization", "Bearer "+bearer)
			}
			start := time.Now()
			resp, err := r.httpc.Do(req)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			latency := time.Since(start)

			if contains(okStatuses, resp.StatusCode) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
		},
	}
}

// contendedBooking drives the booking service directly against the database: one
// ride, cfg.Concurrency distinct passengers each asking for a seat at once.
func contendedBooking(ctx context.Context, r *Runner) Result {
	capacity := r.cfg.Capacity
	tx := infra.NewTxRunner(r.db, 10*time.Second)
	users := user.NewStore(r.db)
	runID := uuid.NewString()[:8]

	driver := identity.Actor{ID: "bench-driver-" + runID, Role: user.RoleUser}
	if err := users.Ensure(ctx, driver.ID, "", user.RoleUser); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	passengers := make([]identity.Actor, r.cfg.Concurrency)
	for i := range passengers {
		passengers[i] = identity.Actor{ID: fmt.Sprintf("bench-rider-%s-%d", runID, i), Role: user.RoleUser}
		if err := users.Ensure(ctx, passengers[i].ID, "", user.RoleUser); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
	}

	log := logging.Discard()
	rides := ride.NewService(ride.NewStore(tx), nil, log, "USD")
	bookings := booking.NewService(booking.NewStore(tx), pricing.NewService(), nil, log)
	rd, err := rides.Create(ctx, ride.CreateCommand{
		Actor:         driver,
		Origin:        "bench-origin",
		Destination:   "bench-destination",
		DepartureTime: time.Now().Add(24 * time.Hour),
		Capacity:      capacity,
		PricePerSeat:  100,
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	var succ, conflicts, other atomic.Int64
	start := time.Now()
	var wg sync.WaitGroup
	for _, p := range passengers {
		wg.Add(1)
		go func(p identity.Actor) {
			defer wg.Done()
			_, err := bookings.Create(ctx, booking.CreateCommand{Actor: p, RideID: rd.ID, SeatsBooked: 1})
			switch {
			case err == nil:
				succ.Add(1)
			case errors.Is(err, apperr.ErrSeatConflict):
				conflicts.Add(1)
			default:
				other.Add(1)
			}
		}(p)
	}
	wg.Wait()
	latency := time.Since(start)

	after, err := rides.Get(ctx, driver, rd.ID)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	want := capacity
	note := fmt.Sprintf("success=%d conflicts=%d errors=%d remaining=%d", succ.Load(), conflicts.Load(), other.Load(), after.RemainingSeats)
	if int(succ.Load()) != want || other.Load() != 0 || after.RemainingSeats != capacity-want {
		return Result{Status: "FAIL", Latency: latency, Note: note}
	}
	return Result{Status: "PASS", Latency: latency, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, url string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				resp, err := r.httpc.Do(req)
				if err != nil {
					errCount.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

var createTable = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(fsys fs.FS) ([]string, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, err
		}
		for _, m := range createTable.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}
