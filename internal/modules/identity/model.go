// README: Resolved actor shape consumed by every guard.
package identity

import (
	"fmt"

	"seatshare/internal/apperr"
	"seatshare/internal/modules/user"
)

// Actor is the normalised identity making a request. Role is USER or ADMIN only.
type Actor struct {
	ID      string    `json:"id"`
	Role    user.Role `json:"role"`
	Email   string    `json:"email,omitempty"`
	Service bool      `json:"service"`
}

// Anonymous is what requests without any credential resolve to.
var Anonymous = Actor{}

func (a Actor) IsAnonymous() bool { return a.ID == "" }

func (a Actor) IsAdmin() bool { return a.Role == user.RoleAdmin }

// Credentials is the raw credential material of a request.
type Credentials struct {
	Bearer       string
	ServiceToken string
}

var (
	ErrUnauthenticated = fmt.Errorf("%w: invalid credential", apperr.ErrUnauthenticated)
	// ErrServiceActor is returned when a service actor tries an operation that needs a backing user.
	ErrServiceActor = fmt.Errorf("%w: service actors cannot own rides, bookings or reviews", apperr.ErrNotAuthorized)
)

// NormalizeRole collapses stored roles into the two guard roles.
func NormalizeRole(r user.Role) user.Role {
	if r == user.RoleAdmin {
		return user.RoleAdmin
	}
	return user.RoleUser
}

// RequireUser rejects anonymous callers and service actors.
func RequireUser(a Actor) error {
	if a.IsAnonymous() {
		return fmt.Errorf("%w: credential required", apperr.ErrUnauthenticated)
	}
	if a.Service {
		return ErrServiceActor
	}
	return nil
}
