// README: Firebase Admin SDK verifier that turns an ID token into a haul caller identity.
package infra

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Caller roles carried in the "role" custom claim.
const (
	RoleRider  = "rider"
	RoleDriver = "driver"

	roleClaim = "role"
)

// Identity is the verified caller. Role is empty when the token carries no
// recognised role claim.
type Identity struct {
	UID  string
	Role string
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
}

// RoleFromClaims reads the role custom claim. Values other than rider or
// driver, and non-string values, yield "".
func RoleFromClaims(claims map[string]interface{}) string {
	raw, ok := claims[roleClaim].(string)
	if !ok {
		return ""
	}
	switch role := strings.ToLower(strings.TrimSpace(raw)); role {
	case RoleRider, RoleDriver:
		return role
	default:
		return ""
	}
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier builds a TokenVerifier for projectID. An empty
// credentialsFile falls back to application-default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &Identity{UID: token.UID, Role: RoleFromClaims(token.Claims)}, nil
}
