// README: Identity resolver; one authorization policy turning credentials into a normalised actor.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"seatshare/internal/infra"
	"seatshare/internal/logging"
	"seatshare/internal/modules/user"
)

// Users is the provisioning dependency of the resolver.
type Users interface {
	Ensure(ctx context.Context, id, email string, role user.Role) error
	Role(ctx context.Context, id string) (user.Role, error)
}

type Resolver struct {
	verifier    infra.TokenVerifier
	service     *ServiceTokens
	users       Users
	cache       RoleCache
	adminEmails map[string]struct{}
	log         *slog.Logger
}

type ResolverDeps struct {
	Verifier    infra.TokenVerifier
	Service     *ServiceTokens
	Users       Users
	Cache       RoleCache
	AdminEmails []string
	Log         *slog.Logger
}

func NewResolver(deps ResolverDeps) *Resolver {
	emails := make(map[string]struct{}, len(deps.AdminEmails))
	for _, e := range deps.AdminEmails {
		emails[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	cache := deps.Cache
	if cache == nil {
		cache = noCache{}
	}
	return &Resolver{
		verifier:    deps.Verifier,
		service:     deps.Service,
		users:       deps.Users,
		cache:       cache,
		adminEmails: emails,
		log:         logging.OrDiscard(deps.Log),
	}
}

// Resolve turns credentials into an actor. No credential yields Anonymous; a credential
// that fails verification yields ErrUnauthenticated. A service credential takes precedence.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (Actor, error) {
	if creds.ServiceToken != "" {
		return r.resolveService(creds.ServiceToken)
	}
	if creds.Bearer != "" {
		return r.resolveBearer(ctx, creds.Bearer)
	}
	return Anonymous, nil
}

func (r *Resolver) resolveService(raw string) (Actor, error) {
	if !r.service.Enabled() {
		return Anonymous, ErrUnauthenticated
	}
	subject, err := r.service.Verify(raw)
	if err != nil {
		r.log.Warn("service credential rejected", "action", "service_token_rejected", "error", err)
		return Anonymous, ErrUnauthenticated
	}
	return Actor{ID: "svc:" + subject, Role: user.RoleAdmin, Service: true}, nil
}

func (r *Resolver) resolveBearer(ctx context.Context, raw string) (Actor, error) {
	if r.verifier == nil {
		return Anonymous, ErrUnauthenticated
	}
	tok, err := r.verifier.VerifyIDToken(ctx, raw)
	if err != nil || tok == nil || tok.UID == "" {
		return Anonymous, ErrUnauthenticated
	}

	role, ok := r.cache.Get(ctx, tok.UID)
	if !ok {
		role, err = r.lookupRole(ctx, tok)
		if err != nil {
			return Anonymous, err
		}
		r.cache.Set(ctx, tok.UID, role)
	}
	return Actor{ID: tok.UID, Role: NormalizeRole(role), Email: tok.Email}, nil
}

// lookupRole reads the stored role, provisioning the user row on first sight.
// Bootstrap admin emails only apply to verified addresses.
func (r *Resolver) lookupRole(ctx context.Context, tok *infra.FirebaseToken) (user.Role, error) {
	uid, email := tok.UID, tok.Email
	role, err := r.users.Role(ctx, uid)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return "", fmt.Errorf("lookup role: %w", err)
	}

	initial := user.RoleUser
	if _, ok := r.adminEmails[strings.ToLower(email)]; ok && email != "" && tok.EmailVerified {
		initial = user.RoleAdmin
	}
	if err := r.users.Ensure(ctx, uid, email, initial); err != nil {
		return "", fmt.Errorf("provision user: %w", err)
	}
	r.log.Info("user provisioned", "action", "user_provisioned", "user_id", uid, "role", initial)

	// Re-read: a concurrent request may have provisioned the row first.
	role, err = r.users.Role(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("lookup role after provision: %w", err)
	}
	return role, nil
}
