package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DefaultCookieName carries the identity token on every authenticated request.
const DefaultCookieName = "access_token"

var (
	ErrMissingSessionVerifier = errors.New("session validator: token verifier required")
	// ErrNoCredential reports a request that carried no identity token at all.
	ErrNoCredential = errors.New("session validator: no credential")
	// ErrInvalidCredential reports a token the identity provider refused.
	ErrInvalidCredential = errors.New("session validator: invalid credential")
)

// SessionValidatorConfig describes where the identity token lives and who verifies it.
type SessionValidatorConfig struct {
	Verifier   TokenVerifier
	CookieName string
}

// SessionValidator reads the access_token cookie and hands it to the identity provider.
type SessionValidator struct {
	verifier   TokenVerifier
	cookieName string
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Verifier == nil {
		return nil, ErrMissingSessionVerifier
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &SessionValidator{
		verifier:   cfg.Verifier,
		cookieName: cookieName,
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken verifies the supplied token and returns the caller identity.
func (v *SessionValidator) ValidateToken(ctx context.Context, tokenString string) (IdentityClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return IdentityClaims{}, ErrNoCredential
	}
	claims, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if strings.TrimSpace(claims.CallerID) == "" {
		return IdentityClaims{}, fmt.Errorf("%w: %w", ErrInvalidCredential, ErrInvalidToken)
	}
	return claims, nil
}

// ValidateRequest extracts the configured cookie from the request and validates it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (IdentityClaims, error) {
	if r == nil {
		return IdentityClaims{}, ErrNoCredential
	}
	cookie, err := r.Cookie(v.cookieName)
	if err != nil || cookie == nil {
		return IdentityClaims{}, ErrNoCredential
	}
	return v.ValidateToken(r.Context(), cookie.Value)
}
