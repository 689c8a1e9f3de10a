// README: Tests for the auth middleware: credential extraction, rejection and actor propagation.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"seatshare/internal/http/middleware"
	"seatshare/internal/logging"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/user"
)

// stubResolver records the credentials it was asked to resolve.
type stubResolver struct {
	actor identity.Actor
	err   error
	got   identity.Credentials
}

func (s *stubResolver) Resolve(_ context.Context, creds identity.Credentials) (identity.Actor, error) {
	s.got = creds
	if creds == (identity.Credentials{}) {
		return identity.Anonymous, nil
	}
	return s.actor, s.err
}

func newTestRouter(resolver middleware.ActorResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logging.Discard()
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log), middleware.Auth(resolver, log))
	r.GET("/public", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": middleware.Actor(c).ID})
	})
	r.POST("/private", middleware.RequireActor(log), func(c *gin.Context) {
		a := middleware.Actor(c)
		c.JSON(http.StatusOK, gin.H{"id": a.ID, "role": a.Role})
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestAuth_NoCredentialIsAnonymous(t *testing.T) {
	r := newTestRouter(&stubResolver{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for anonymous read, got %d", w.Code)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/private", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous mutation, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(&stubResolver{actor: identity.Actor{ID: "u1"}})
	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Token sometoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ResolverError(t *testing.T) {
	r := newTestRouter(&stubResolver{err: identity.ErrUnauthenticated})
	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer invalidtoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"kind":"unauthenticated"`) {
		t.Errorf("expected unauthenticated kind, got %s", w.Body.String())
	}
}

func TestAuth_ResolverFailureIsInternal(t *testing.T) {
	r := newTestRouter(&stubResolver{err: errors.New("redis: connection refused")})
	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "redis") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}
}

func TestAuth_ValidBearerPopulatesActor(t *testing.T) {
	stub := &stubResolver{actor: identity.Actor{ID: "driver123", Role: user.RoleUser}}
	r := newTestRouter(stub)
	req := httptest.NewRequest(http.MethodPost, "/private", nil)
	req.Header.Set("Authorization", "Bearer validtoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if stub.got.Bearer != "validtoken" {
		t.Errorf("expected bearer passed through, got %q", stub.got.Bearer)
	}
	if !strings.Contains(w.Body.String(), "driver123") {
		t.Errorf("expected uid driver123 in body, got %s", w.Body.String())
	}
}

func TestAuth_ServiceCredentialFromHeaderOrCookie(t *testing.T) {
	stub := &stubResolver{actor: identity.Actor{ID: "svc:ops", Role: user.RoleAdmin, Service: true}}
	r := newTestRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/private", nil)
	req.Header.Set(middleware.ServiceHeader, "svc-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || stub.got.ServiceToken != "svc-token" {
		t.Fatalf("header: expected 200 with token, got %d %q", w.Code, stub.got.ServiceToken)
	}

	req = httptest.NewRequest(http.MethodPost, "/private", nil)
	req.AddCookie(&http.Cookie{Name: middleware.ServiceCookie, Value: "cookie-token"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || stub.got.ServiceToken != "cookie-token" {
		t.Fatalf("cookie: expected 200 with token, got %d %q", w.Code, stub.got.ServiceToken)
	}
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	r := newTestRouter(&stubResolver{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
