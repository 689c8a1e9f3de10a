// README: Review handler (post a review, list reviews of a user).
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatshare/internal/http/middleware"
	"seatshare/internal/http/render"
	"seatshare/internal/modules/review"
	"seatshare/internal/types"
)

type ReviewService interface {
	Create(ctx context.Context, cmd review.CreateCommand) (*review.Created, error)
	ListForUser(ctx context.Context, userID string, p types.PageRequest) ([]review.Review, types.PageInfo, error)
}

type ReviewHandler struct {
	svc ReviewService
	log *slog.Logger
}

func NewReviewHandler(svc ReviewService, log *slog.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, log: log}
}

type createReviewRequest struct {
	RideID         string `json:"ride_id" binding:"required"`
	ReviewedUserID string `json:"reviewed_user_id" binding:"required"`
	Rating         int    `json:"rating" binding:"required,min=1,max=5"`
	Comment        string `json:"comment" binding:"max=1000"`
}

func (h *ReviewHandler) Create(c *gin.Context) {
	var req createReviewRequest
	if err := bindJSON(c, &req); err != nil {
		render.Error(c, h.log, err)
		return
	}
	out, err := h.svc.Create(c.Request.Context(), review.CreateCommand{
		Actor:          middleware.Actor(c),
		RideID:         types.ID(req.RideID),
		ReviewedUserID: req.ReviewedUserID,
		Rating:         req.Rating,
		Comment:        req.Comment,
	})
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.JSON(c, http.StatusCreated, out)
}

func (h *ReviewHandler) List(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	items, info, err := h.svc.ListForUser(c.Request.Context(), c.Query("user_id"), page)
	if err != nil {
		render.Error(c, h.log, err)
		return
	}
	render.Page(c, http.StatusOK, items, info)
}
