// README: Recovery middleware; a panicking handler becomes a logged 500.
package middleware

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"seatshare/internal/apperr"
	"seatshare/internal/http/render"
)

func Recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic",
					"action", "panic_recovered",
					"path", c.FullPath(),
					"request_id", c.GetString(render.RequestIDKey),
					"panic", fmt.Sprint(r),
				)
				render.Error(c, nil, apperr.ErrInternal)
			}
		}()
		c.Next()
	}
}
