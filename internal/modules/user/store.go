// README: User store backed by PostgreSQL.
package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ensure inserts the user row on first sight. An existing row is left untouched
// (ON CONFLICT DO NOTHING), so repeated calls are idempotent.
func (s *Store) Ensure(ctx context.Context, id, email string, role Role) error {
	if id == "" {
		return errEmptyID
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`, id, email, string(role))
	return err
}

func (s *Store) Role(ctx context.Context, id string) (Role, error) {
	var role string
	err := s.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Role(role), nil
}

func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	var u User
	var role string
	err := s.db.QueryRow(ctx, `
		SELECT id, email, role, rating, total_rides, created_at
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &role, &u.Rating, &u.TotalRides, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
