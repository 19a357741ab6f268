package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccountRecord stores an account held by the local provider.
type AccountRecord struct {
	UID           string    `gorm:"column:uid;primaryKey;size:64;not null"`
	Email         string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash  string    `gorm:"column:password_hash;size:128;not null"`
	EmailVerified bool      `gorm:"column:email_verified;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing local accounts.
func (AccountRecord) TableName() string {
	return "identity_accounts"
}

// LocalProviderConfig describes the dependencies of the local provider.
type LocalProviderConfig struct {
	Database   *gorm.DB
	Issuer     *auth.TokenIssuer
	Mailer     Mailer
	Logger     *zap.Logger
	Clock      func() time.Time
	HashCost   int
	NewAccount func() (string, error)
}

// LocalProvider keeps accounts in the application's own store and issues HS256 ID tokens.
type LocalProvider struct {
	db         *gorm.DB
	issuer     *auth.TokenIssuer
	mailer     Mailer
	logger     *zap.Logger
	clock      func() time.Time
	hashCost   int
	newAccount func() (string, error)
}

// NewLocalProvider validates the configuration and constructs a LocalProvider.
func NewLocalProvider(cfg LocalProviderConfig) (*LocalProvider, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("identity: database connection required")
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("identity: token issuer required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	newAccount := cfg.NewAccount
	if newAccount == nil {
		newAccount = func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return strings.ReplaceAll(id.String(), "-", ""), nil
		}
	}
	return &LocalProvider{
		db:         cfg.Database,
		issuer:     cfg.Issuer,
		mailer:     mailer,
		logger:     logger,
		clock:      clock,
		hashCost:   hashCost,
		newAccount: newAccount,
	}, nil
}

// CreateAccount stores a new account and signs it in.
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidInput
	}

	exists, err := p.emailTaken(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if exists {
		return Session{}, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		return Session{}, fmt.Errorf("identity: hash password: %w", err)
	}
	uid, err := p.newAccount()
	if err != nil {
		return Session{}, fmt.Errorf("identity: allocate uid: %w", err)
	}

	record := AccountRecord{
		UID:          uid,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := p.db.WithContext(ctx).Create(&record).Error; err != nil {
		if taken, lookupErr := p.emailTaken(ctx, email); lookupErr == nil && taken {
			return Session{}, ErrEmailExists
		}
		return Session{}, err
	}

	return p.sessionFor(ctx, record)
}

// SignIn checks the password against the stored hash.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	var record AccountRecord
	err := p.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return p.sessionFor(ctx, record)
}

// SendEmailVerification queues a verification email for the signed-in account.
func (p *LocalProvider) SendEmailVerification(ctx context.Context, session Session) error {
	if strings.TrimSpace(session.Account.UID) == "" {
		return ErrAccountNotFound
	}
	return p.mailer.Send(ctx, Message{
		Kind:        MessageVerifyEmail,
		Recipient:   session.Account.Email,
		AccountID:   session.Account.UID,
		RequestedAt: p.clock().UTC(),
	})
}

// SendPasswordReset queues a reset email when the address belongs to an account.
func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	var record AccountRecord
	err := p.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	return p.mailer.Send(ctx, Message{
		Kind:        MessagePasswordReset,
		Recipient:   record.Email,
		AccountID:   record.UID,
		RequestedAt: p.clock().UTC(),
	})
}

// DeleteAccount removes the account behind the session.
func (p *LocalProvider) DeleteAccount(ctx context.Context, session Session) error {
	uid := strings.TrimSpace(session.Account.UID)
	if uid == "" {
		return ErrAccountNotFound
	}
	result := p.db.WithContext(ctx).Where("uid = ?", uid).Delete(&AccountRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *LocalProvider) emailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := p.db.WithContext(ctx).Model(&AccountRecord{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *LocalProvider) sessionFor(ctx context.Context, record AccountRecord) (Session, error) {
	token, expiresAt, err := p.issuer.Issue(ctx, record.UID, record.Email, record.EmailVerified)
	if err != nil {
		return Session{}, fmt.Errorf("identity: issue token: %w", err)
	}
	return Session{
		Account: Account{
			UID:           record.UID,
			Email:         record.Email,
			EmailVerified: record.EmailVerified,
		},
		IDToken:   token,
		ExpiresAt: expiresAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
