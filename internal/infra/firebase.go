// README: Firebase Admin SDK initialisation and the ID-token verifier used by the identity resolver.
package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseToken is the part of a verified ID token the identity resolver reads.
type FirebaseToken struct {
	UID string
	// Email is lower-cased; it is only trusted for admin bootstrap when EmailVerified is set.
	Email         string
	EmailVerified bool
	// Provider is firebase.sign_in_provider, e.g. "password" or "google.com".
	Provider string
}

// TokenVerifier verifies a raw ID token string issued by the external identity provider.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

var errEmptyIDToken = errors.New("firebase: empty id token")

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a TokenVerifier using the Firebase Admin SDK.
// If credentialsFile is non-empty it is used as the service-account JSON path;
// otherwise application-default credentials are used.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, errEmptyIDToken
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("firebase verify: %w", err)
	}
	return tokenFromClaims(token.UID, token.Claims, token.Firebase.SignInProvider), nil
}

func tokenFromClaims(uid string, claims map[string]interface{}, provider string) *FirebaseToken {
	email, _ := claims["email"].(string)
	verified, _ := claims["email_verified"].(bool)
	return &FirebaseToken{
		UID:           uid,
		Email:         strings.ToLower(strings.TrimSpace(email)),
		EmailVerified: verified,
		Provider:      provider,
	}
}
