// README: Response helpers shared by middleware and handlers; one place maps error kinds to HTTP.
package render

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"seatshare/internal/apperr"
	"seatshare/internal/types"
)

type errorBody struct {
	Kind    apperr.Kind       `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type pageResponse struct {
	Data       any            `json:"data"`
	Pagination types.PageInfo `json:"pagination"`
}

func JSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// Page writes a list response with its pagination metadata. A nil slice renders as [].
func Page[T any](c *gin.Context, status int, items []T, info types.PageInfo) {
	if items == nil {
		items = []T{}
	}
	c.JSON(status, pageResponse{Data: items, Pagination: info})
}

// Error writes err with its stable kind. Internal errors are logged and never echoed.
func Error(c *gin.Context, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Kind: kind, Message: err.Error()}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if kind == apperr.KindInternal {
		body.Message = apperr.ErrInternal.Error()
		if log != nil {
			log.Error("request failed",
				"action", "internal_error",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"request_id", c.GetString(RequestIDKey),
				"error", err,
			)
		}
	}
	c.AbortWithStatusJSON(apperr.Status(kind), errorResponse{Error: body})
}

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"
