// README: Review service; creating a review recomputes the reviewed user's rating in the same transaction.
package review

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"seatshare/internal/apperr"
	"seatshare/internal/events"
	"seatshare/internal/logging"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/ride"
	"seatshare/internal/types"
)

// Tx holds the reviewed user's row lock, serialising rating updates for that user.
type Tx interface {
	// Participants returns the ride's driver and everyone who ever booked it.
	Participants(rideID types.ID) (map[string]bool, error)
	Insert(r *Review) error
	Ratings(userID string) ([]int, error)
	SetRating(userID string, rating float64) error
}

type Repository interface {
	WithReviewedUser(ctx context.Context, userID string, fn func(tx Tx) error) error
	ListForUser(ctx context.Context, userID string, p types.PageRequest) ([]Review, int, error)
}

type Service struct {
	repo Repository
	pub  events.Publisher
	log  *slog.Logger
	now  func() time.Time
}

func NewService(repo Repository, pub events.Publisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = events.Nop()
	}
	return &Service{repo: repo, pub: pub, log: logging.OrDiscard(log), now: time.Now}
}

type CreateCommand struct {
	Actor          identity.Actor
	RideID         types.ID
	ReviewedUserID string
	Rating         int
	Comment        string
}

// Created is a stored review with the reviewed user's rating after it counted.
type Created struct {
	Review
	ReviewedRating float64 `json:"reviewed_rating"`
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Created, error) {
	if err := identity.RequireUser(cmd.Actor); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	reviewed := strings.TrimSpace(cmd.ReviewedUserID)
	if reviewed == "" {
		fields["reviewed_user_id"] = "is required"
	}
	if cmd.Rating < MinRating || cmd.Rating > MaxRating {
		fields["rating"] = "must be between 1 and 5"
	}
	if utf8.RuneCountInString(cmd.Comment) > MaxCommentLen {
		fields["comment"] = "must be at most 1000 characters"
	}
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}
	if reviewed == cmd.Actor.ID {
		return nil, errSelfReview
	}
	if !types.ValidID(string(cmd.RideID)) {
		return nil, ride.ErrNotFound
	}

	var out *Created
	err := s.repo.WithReviewedUser(ctx, reviewed, func(tx Tx) error {
		people, err := tx.Participants(cmd.RideID)
		if err != nil {
			return err
		}
		if !people[cmd.Actor.ID] {
			return errReviewerOutside
		}
		if !people[reviewed] {
			return errReviewedOutside
		}
		r := &Review{
			ID:             types.NewID(),
			RideID:         cmd.RideID,
			ReviewerID:     cmd.Actor.ID,
			ReviewedUserID: reviewed,
			Rating:         cmd.Rating,
			Comment:        strings.TrimSpace(cmd.Comment),
			CreatedAt:      s.now().UTC(),
		}
		if err := tx.Insert(r); err != nil {
			return err
		}
		ratings, err := tx.Ratings(reviewed)
		if err != nil {
			return err
		}
		mean, _ := Mean(ratings)
		if err := tx.SetRating(reviewed, mean); err != nil {
			return err
		}
		out = &Created{Review: *r, ReviewedRating: mean}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("review created",
		"action", "review_created",
		"review_id", string(out.ID),
		"ride_id", string(out.RideID),
		"reviewed_user_id", out.ReviewedUserID,
		"rating", out.Rating,
		"reviewed_rating", out.ReviewedRating,
	)
	events.Emit(ctx, s.pub, s.log, events.Event{
		Type:    events.ReviewCreated,
		RideID:  string(out.RideID),
		ActorID: cmd.Actor.ID,
	})
	return out, nil
}

// ListForUser pages through reviews a user received, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, p types.PageRequest) ([]Review, types.PageInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, types.PageInfo{}, apperr.Invalid("user_id", "is required")
	}
	p = p.Normalize()
	items, total, err := s.repo.ListForUser(ctx, userID, p)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	return items, types.NewPageInfo(p, total), nil
}
