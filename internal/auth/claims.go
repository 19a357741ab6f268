package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed signature, issuer, audience or shape checks.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken indicates an otherwise valid token past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")
)

// IdentityClaims is the decoded identity carried by a provider-issued ID token.
type IdentityClaims struct {
	CallerID      string
	Email         string
	EmailVerified bool
	Issuer        string
	IssuedAt      time.Time
	Expiry        time.Time
}

// TokenVerifier validates an opaque ID token against the identity provider.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (IdentityClaims, error)
}
