// README: User handler (public profiles and the caller's own identity).
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatshare/internal/http/middleware"
	"seatshare/internal/http/render"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/user"
)

type UserService interface {
	Profile(ctx context.Context, id string) (*user.User, error)
	Self(ctx context.Context, id string) (*user.User, error)
}

type UserHandler struct {
	svc UserService
	log *slog.Logger
}

func NewUserHandler(svc UserService, log *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, log: log}
}

type meResponse struct {
	Actor identity.Actor `json:"actor"`
	User  *user.User     `json:"user"`
}

func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.svc.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusOK, u)
}

// Me resolves the caller. Service actors have no backing user row.
func (h *UserHandler) Me(c *gin.Context) {
	actor := middleware.Actor(c)
	resp := meResponse{Actor: actor}
	if !actor.Service {
		u, err := h.svc.Self(c.Request.Context(), actor.ID)
		if err != nil {
			render.Error(c, h.log, err)
			return
		}
		resp.User = u
	}
	render.JSON(c, http.StatusOK, resp)
}
