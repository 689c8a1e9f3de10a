// README: Lifecycle events emitted after commit; consumed by the notification collaborator and the seat feed.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingConfirmed Type = "booking.confirmed"
	BookingCancelled Type = "booking.cancelled"
	BookingCompleted Type = "booking.completed"
	RideCreated      Type = "ride.created"
	RideUpdated      Type = "ride.updated"
	RideCompleted    Type = "ride.completed"
	RideCancelled    Type = "ride.cancelled"
	RideDeleted      Type = "ride.deleted"
	ReviewCreated    Type = "review.created"
)

type Event struct {
	Type           Type      `json:"type"`
	RideID         string    `json:"ride_id"`
	BookingID      string    `json:"booking_id,omitempty"`
	ActorID        string    `json:"actor_id,omitempty"`
	PassengerID    string    `json:"passenger_id,omitempty"`
	DriverID       string    `json:"driver_id,omitempty"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	SeatsRemaining *int      `json:"seats_remaining,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Seats is a convenience for filling SeatsRemaining.
func Seats(n int) *int { return &n }

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type nop struct{}

func (nop) Publish(context.Context, Event) error { return nil }
func (nop) Close() error                         { return nil }

// Nop discards every event.
func Nop() Publisher { return nop{} }

// Multi fans an event out to every publisher; one failing sink does not stop the others.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const emitTimeout = 3 * time.Second

// Emit publishes ev once the surrounding transaction has committed. Delivery
// failures are logged and never undo the committed change.
func Emit(ctx context.Context, p Publisher, log *slog.Logger, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil && log != nil {
		log.Warn("event publish failed",
			"action", "event_publish_failed",
			"type", string(ev.Type),
			"ride_id", ev.RideID,
			"booking_id", ev.BookingID,
			"error", err,
		)
	}
}
