package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"github.com/yudi-prasetyo/psychchat-backend/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrRoleNotFound indicates the caller has no role assignment.
	ErrRoleNotFound = errors.New("users: role not found")
	// ErrInvalidRegistration indicates the registration carried a blank field or unknown role.
	ErrInvalidRegistration = errors.New("users: invalid registration")
)

// RecordWriter persists records derived from a freshly created identity.
// It runs inside the same transaction as the role assignment.
type RecordWriter func(tx *gorm.DB, account identity.Account) error

// Registration is the input to the two-phase registration flow.
type Registration struct {
	Email    string
	Password string
	Role     auth.Role
}

// Registered summarizes a completed registration.
type Registered struct {
	UserID string
	Email  string
	Role   auth.Role
}

// ServiceConfig describes the dependencies required for role resolution and registration.
type ServiceConfig struct {
	Database *gorm.DB
	Identity identity.Provider
	Logger   *zap.Logger
}

// Service resolves roles and registers accounts.
type Service struct {
	db       *gorm.DB
	identity identity.Provider
	logger   *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("users: identity provider required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		identity: cfg.Identity,
		logger:   logger,
	}, nil
}

// ResolveRole looks up the role assigned to the caller. Duplicate assignments
// resolve to the earliest inserted one.
func (s *Service) ResolveRole(ctx context.Context, callerID string) (auth.Role, error) {
	callerID = normalize(callerID)
	if callerID == "" {
		return "", ErrRoleNotFound
	}

	var assignment RoleAssignment
	err := s.db.WithContext(ctx).
		Where("user_id = ?", callerID).
		Order("id ASC").
		Take(&assignment).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrRoleNotFound
	}
	if err != nil {
		return "", err
	}

	role, err := auth.ParseRole(string(assignment.Role))
	if err != nil {
		return "", fmt.Errorf("users: stored role for %s: %w", callerID, err)
	}
	return role, nil
}

// Register creates the identity, then persists its role assignment together with
// any extra records in one transaction. A failed second phase deletes the identity again.
func (s *Service) Register(ctx context.Context, registration Registration, extra ...RecordWriter) (Registered, error) {
	email := strings.TrimSpace(registration.Email)
	if email == "" || registration.Password == "" {
		return Registered{}, ErrInvalidRegistration
	}
	if !registration.Role.Valid() {
		return Registered{}, fmt.Errorf("%w: %w", ErrInvalidRegistration, auth.ErrUnknownRole)
	}

	session, err := s.identity.CreateAccount(ctx, email, registration.Password)
	if err != nil {
		return Registered{}, err
	}
	account := session.Account

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assignment := NewRoleAssignment(account.UID, registration.Role)
		if err := tx.Create(&assignment).Error; err != nil {
			return err
		}
		for _, write := range extra {
			if err := write(tx, account); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, session, err)
		return Registered{}, err
	}

	if err := s.identity.SendEmailVerification(ctx, session); err != nil {
		s.logger.Warn("verification email failed",
			zap.String("user_id", account.UID),
			zap.Error(err),
		)
	}

	return Registered{
		UserID: account.UID,
		Email:  account.Email,
		Role:   registration.Role,
	}, nil
}

func (s *Service) compensate(ctx context.Context, session identity.Session, cause error) {
	s.logger.Error("registration records failed",
		zap.String("user_id", session.Account.UID),
		zap.Error(cause),
	)
	if err := s.identity.DeleteAccount(context.WithoutCancel(ctx), session); err != nil {
		s.logger.Error("identity orphaned",
			zap.String("user_id", session.Account.UID),
			zap.String("email", session.Account.Email),
			zap.Error(err),
		)
	}
}
