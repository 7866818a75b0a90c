// Package auth verifies the identity provider's session tokens and carries the
// caller's identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token was sent
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails verification
	ErrInvalidToken = errors.New("invalid session token")
	// ErrNotConfigured is returned when no signing secret is configured
	ErrNotConfigured = errors.New("session verification is not configured")
)

// Claims are the session token claims issued by the identity provider
type Claims struct {
	jwt.RegisteredClaims
	Email        string       `json:"email,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata,omitempty"`
}

// UserMetadata is the free-form profile data attached at signup
type UserMetadata struct {
	Name string `json:"name,omitempty"`
}

// User is the authenticated caller
type User struct {
	ID    string
	Email string
	Name  string
}

// TokenVerifier turns a bearer token into the caller's identity
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// JWTVerifier verifies HS256 tokens signed with the provider's shared secret
type JWTVerifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewJWTVerifier creates a verifier. An empty audience disables the audience check.
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{
		secret:   []byte(secret),
		audience: audience,
		leeway:   30 * time.Second,
	}
}

// Verify checks signature, expiry and audience and returns the token's subject
func (v *JWTVerifier) Verify(_ context.Context, token string) (*User, error) {
	if len(v.secret) == 0 {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.UserMetadata.Name,
	}, nil
}
