package identity

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, message Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, message)
	return nil
}

func (m *recordingMailer) sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

func newLocalProviderForTest(t *testing.T) (*LocalProvider, *auth.TokenIssuer, *recordingMailer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "identity.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&AccountRecord{}))

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("local-secret"),
		Issuer:        "psychchat-identity",
		Audience:      "psychchat-api",
		TokenTTL:      time.Hour,
	})
	require.NoError(t, err)

	mailer := &recordingMailer{}
	provider, err := NewLocalProvider(LocalProviderConfig{
		Database: db,
		Issuer:   issuer,
		Mailer:   mailer,
		HashCost: bcrypt.MinCost,
		Clock: func() time.Time {
			return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
		},
	})
	require.NoError(t, err)
	return provider, issuer, mailer
}

func TestLocalProviderCreateAccountIssuesVerifiableToken(t *testing.T) {
	provider, issuer, _ := newLocalProviderForTest(t)
	ctx := context.Background()

	session, err := provider.CreateAccount(ctx, " Alice@Example.com ", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, session.Account.UID)
	require.Equal(t, "alice@example.com", session.Account.Email)
	require.NotEmpty(t, session.IDToken)

	claims, err := issuer.Verify(ctx, session.IDToken)
	require.NoError(t, err)
	require.Equal(t, session.Account.UID, claims.CallerID)
	require.Equal(t, "alice@example.com", claims.Email)
}

func TestLocalProviderRejectsDuplicateEmail(t *testing.T) {
	provider, _, _ := newLocalProviderForTest(t)
	ctx := context.Background()

	_, err := provider.CreateAccount(ctx, "bob@example.com", "password123")
	require.NoError(t, err)

	_, err = provider.CreateAccount(ctx, "BOB@example.com", "different456")
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestLocalProviderSignIn(t *testing.T) {
	provider, _, _ := newLocalProviderForTest(t)
	ctx := context.Background()

	created, err := provider.CreateAccount(ctx, "carol@example.com", "password123")
	require.NoError(t, err)

	session, err := provider.SignIn(ctx, "carol@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, created.Account.UID, session.Account.UID)

	_, err = provider.SignIn(ctx, "carol@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = provider.SignIn(ctx, "nobody@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLocalProviderSendsAccountMail(t *testing.T) {
	provider, _, mailer := newLocalProviderForTest(t)
	ctx := context.Background()

	session, err := provider.CreateAccount(ctx, "dave@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, provider.SendEmailVerification(ctx, session))
	require.NoError(t, provider.SendPasswordReset(ctx, "dave@example.com"))
	require.ErrorIs(t, provider.SendPasswordReset(ctx, "ghost@example.com"), ErrAccountNotFound)

	sent := mailer.sent()
	require.Len(t, sent, 2)
	require.Equal(t, MessageVerifyEmail, sent[0].Kind)
	require.Equal(t, session.Account.UID, sent[0].AccountID)
	require.Equal(t, MessagePasswordReset, sent[1].Kind)
	require.Equal(t, "dave@example.com", sent[1].Recipient)
}

func TestLocalProviderDeleteAccount(t *testing.T) {
	provider, _, _ := newLocalProviderForTest(t)
	ctx := context.Background()

	session, err := provider.CreateAccount(ctx, "erin@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, provider.DeleteAccount(ctx, session))
	require.ErrorIs(t, provider.DeleteAccount(ctx, session), ErrAccountNotFound)

	_, err = provider.SignIn(ctx, "erin@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = provider.CreateAccount(ctx, "erin@example.com", "password123")
	require.NoError(t, err)
}
