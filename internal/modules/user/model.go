// README: User aggregate; rating is the mean of all reviews received, nil until the first one.
package user

import (
	"errors"
	"fmt"
	"time"

	"seatshare/internal/apperr"
)

type Role string

const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
)

type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email,omitempty"`
	Role       Role      `json:"role,omitempty"`
	Rating     *float64  `json:"rating"`
	TotalRides int       `json:"total_rides"`
	CreatedAt  time.Time `json:"created_at"`
}

// Public strips fields other users must not see: email and role.
func (u User) Public() User {
	u.Email = ""
	u.Role = ""
	return u
}

var ErrNotFound = fmt.Errorf("%w: user not found", apperr.ErrNotFound)

var errEmptyID = errors.New("user id is required")
