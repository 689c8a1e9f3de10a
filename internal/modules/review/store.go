// README: Review store backed by PostgreSQL; the reviewed user's row is locked while the mean is rewritten.
package review

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"seatshare/internal/infra"
	"seatshare/internal/modules/ride"
	"seatshare/internal/modules/user"
	"seatshare/internal/types"
)

const uniqueTriple = "reviews_unique_triple"

type Store struct {
	tx *infra.TxRunner
}

func NewStore(tx *infra.TxRunner) *Store {
	return &Store{tx: tx}
}

func (s *Store) WithReviewedUser(ctx context.Context, userID string, fn func(tx Tx) error) error {
	return s.tx.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fn(&lockedUser{ctx: ctx, tx: tx})
	})
}

func (s *Store) ListForUser(ctx context.Context, userID string, p types.PageRequest) ([]Review, int, error) {
	pool := s.tx.Pool()
	var total int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE reviewed_user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := pool.Query(ctx, `
		SELECT id::text, ride_id::text, reviewer_id, reviewed_user_id, rating, COALESCE(comment, ''), created_at
		FROM reviews
		WHERE reviewed_user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, userID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.RideID, &r.ReviewerID, &r.ReviewedUserID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

type lockedUser struct {
	ctx context.Context
	tx  pgx.Tx
}

func (l *lockedUser) Participants(rideID types.ID) (map[string]bool, error) {
	var driverID string
	err := l.tx.QueryRow(l.ctx, `SELECT driver_id FROM rides WHERE id = $1`, string(rideID)).Scan(&driverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ride.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	people := map[string]bool{driverID: true}
	rows, err := l.tx.Query(l.ctx, `SELECT DISTINCT passenger_id FROM bookings WHERE ride_id = $1`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		people[id] = true
	}
	return people, rows.Err()
}

func (l *lockedUser) Insert(r *Review) error {
	var comment *string
	if r.Comment != "" {
		comment = &r.Comment
	}
	_, err := l.tx.Exec(l.ctx, `
		INSERT INTO reviews (id, ride_id, reviewer_id, reviewed_user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(r.ID), string(r.RideID), r.ReviewerID, r.ReviewedUserID, r.Rating, comment, r.CreatedAt,
	)
	if infra.IsUniqueViolation(err, uniqueTriple) {
		return ErrDuplicate
	}
	return err
}

func (l *lockedUser) Ratings(userID string) ([]int, error) {
	rows, err := l.tx.Query(l.ctx, `SELECT rating FROM reviews WHERE reviewed_user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *lockedUser) SetRating(userID string, rating float64) error {
	_, err := l.tx.Exec(l.ctx, `UPDATE users SET rating = $2, updated_at = NOW() WHERE id = $1`, userID, rating)
	return err
}
