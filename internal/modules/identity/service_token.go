// README: Service-actor credential: HS256 JWT with admin scope, signed by one of several rotatable keys.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ServiceScope = "admin"

type serviceClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// ServiceTokens issues and verifies service credentials. Keys are selected by the token's kid
// header; removing a kid from the key set retires every token signed with it.
type ServiceTokens struct {
	keys      map[string][]byte
	activeKid string
	issuer    string
	now       func() time.Time
}

func NewServiceTokens(keys map[string]string, activeKid, issuer string) *ServiceTokens {
	k := make(map[string][]byte, len(keys))
	for kid, secret := range keys {
		k[kid] = []byte(secret)
	}
	return &ServiceTokens{keys: k, activeKid: activeKid, issuer: issuer, now: time.Now}
}

// Enabled reports whether any key is configured; with none, the service path is closed.
func (s *ServiceTokens) Enabled() bool { return s != nil && len(s.keys) > 0 }

// Issue mints a token for subject with the active key.
func (s *ServiceTokens) Issue(subject string, ttl time.Duration) (string, error) {
	secret, ok := s.keys[s.activeKid]
	if !ok {
		return "", errors.New("no active service key configured")
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := s.now()
	claims := serviceClaims{
		Scope: ServiceScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.activeKid
	return token.SignedString(secret)
}

// Verify returns the subject of a valid service token.
func (s *ServiceTokens) Verify(raw string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("service credentials disabled")
	}
	var claims serviceClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		secret, ok := s.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("parse service token: %w", err)
	}
	if claims.Scope != ServiceScope {
		return "", fmt.Errorf("service token scope %q not accepted", claims.Scope)
	}
	if claims.Subject == "" {
		return "", errors.New("service token has no subject")
	}
	return claims.Subject, nil
}
