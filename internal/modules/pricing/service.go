// README: Pricing service computes a booking's total price once, at creation.
package pricing

import (
	"errors"

	"seatshare/internal/types"
)

var ErrNegativePrice = errors.New("price per seat must not be negative")

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Quote returns seats × pricePerSeat. The result is stored on the booking and never recomputed.
func (s *Service) Quote(seats int, pricePerSeat types.Money) (types.Money, error) {
	if pricePerSeat.Amount < 0 {
		return types.Money{}, ErrNegativePrice
	}
	if seats < 0 {
		return types.Money{}, errors.New("seats must not be negative")
	}
	return pricePerSeat.Times(seats), nil
}
