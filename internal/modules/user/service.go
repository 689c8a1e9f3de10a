// README: User service exposes profile reads.
package user

import "context"

type Reader interface {
	Get(ctx context.Context, id string) (*User, error)
}

type Service struct {
	store Reader
}

func NewService(store Reader) *Service {
	return &Service{store: store}
}

// Profile returns the public view of a user.
func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// Self returns the caller's own profile, email included.
func (s *Service) Self(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}
