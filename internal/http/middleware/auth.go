// README: Auth middleware; resolves bearer or service credentials to an actor on every request.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"seatshare/internal/apperr"
	"seatshare/internal/http/render"
	"seatshare/internal/modules/identity"
)

const (
	actorKey = "actor"
	// ServiceHeader and ServiceCookie carry the service-actor credential.
	ServiceHeader = "X-Admin-Session"
	ServiceCookie = "admin_session"
)

type ActorResolver interface {
	Resolve(ctx context.Context, creds identity.Credentials) (identity.Actor, error)
}

// Auth resolves credentials when present. Requests without any credential continue
// as the anonymous actor; a credential that fails to verify is rejected with 401.
func Auth(resolver ActorResolver, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, err := credentials(c)
		if err != nil {
			render.Error(c, log, err)
			return
		}
		actor, err := resolver.Resolve(c.Request.Context(), creds)
		if err != nil {
			render.Error(c, log, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireActor rejects anonymous callers; mount it on mutating routes.
func RequireActor(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Actor(c).IsAnonymous() {
			render.Error(c, log, fmt.Errorf("%w: credential required", apperr.ErrUnauthenticated))
			return
		}
		c.Next()
	}
}

// Actor returns the resolved actor, or identity.Anonymous.
func Actor(c *gin.Context) identity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(identity.Actor); ok {
			return a
		}
	}
	return identity.Anonymous
}

func credentials(c *gin.Context) (identity.Credentials, error) {
	var creds identity.Credentials
	if h := c.GetHeader("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return creds, fmt.Errorf("%w: malformed authorization header", apperr.ErrUnauthenticated)
		}
		creds.Bearer = strings.TrimSpace(token)
	}
	creds.ServiceToken = c.GetHeader(ServiceHeader)
	if creds.ServiceToken == "" {
		if v, err := c.Cookie(ServiceCookie); err == nil {
			creds.ServiceToken = v
		}
	}
	return creds, nil
}
