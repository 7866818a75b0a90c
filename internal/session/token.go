package session

import (
	"fmt"

	"github.com/clicloop/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

// FromToken builds a Session from an access token issued by the identity provider.
// The signature is not checked here; the API verifies it on every request.
func FromToken(token string) (*Session, error) {
	var claims auth.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("access token has no subject")
	}

	sess := &Session{
		AccessToken: token,
		UserID:      claims.Subject,
		Email:       claims.Email,
		Name:        claims.UserMetadata.Name,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}
