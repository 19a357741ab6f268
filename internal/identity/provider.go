package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmailExists indicates an account already holds the requested email.
	ErrEmailExists = errors.New("identity: email already registered")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrAccountNotFound indicates the targeted account does not exist.
	ErrAccountNotFound = errors.New("identity: account not found")
	// ErrInvalidInput indicates a blank email or password reached the provider.
	ErrInvalidInput = errors.New("identity: invalid input")
)

// Account is the provider-side view of a registered identity.
type Account struct {
	UID           string
	Email         string
	EmailVerified bool
}

// Session is a signed-in account together with the ID token that proves it.
type Session struct {
	Account   Account
	IDToken   string
	ExpiresAt time.Time
}

// Provider issues credentials, signs callers in and sends account emails.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SendEmailVerification(ctx context.Context, session Session) error
	SendPasswordReset(ctx context.Context, email string) error
	DeleteAccount(ctx context.Context, session Session) error
}
