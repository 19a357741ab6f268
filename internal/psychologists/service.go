package psychologists

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"github.com/yudi-prasetyo/psychchat-backend/internal/identity"
	"github.com/yudi-prasetyo/psychchat-backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingRegistrar = errors.New("user registrar is required")
)

const (
	opRegister = "psychologists.register"
	opList     = "psychologists.list"
	opGet      = "psychologists.get"
	opUpdate   = "psychologists.update"
)

// Registrar runs the two-phase account registration.
type Registrar interface {
	Register(ctx context.Context, registration users.Registration, extra ...users.RecordWriter) (users.Registered, error)
}

// ServiceConfig describes the dependencies of the psychologist directory.
type ServiceConfig struct {
	Database  *gorm.DB
	Registrar Registrar
	Logger    *zap.Logger
}

// Service manages psychologist profiles.
type Service struct {
	db        *gorm.DB
	registrar Registrar
	sanitizer *fieldSanitizer
	logger    *zap.Logger
}

// NewService constructs the directory service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Registrar == nil {
		return nil, errMissingRegistrar
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		registrar: cfg.Registrar,
		sanitizer: newFieldSanitizer(),
		logger:    logger,
	}, nil
}

// Register creates a psychologist account together with its empty profile.
func (s *Service) Register(ctx context.Context, email, password string) (users.Registered, error) {
	registered, err := s.registrar.Register(ctx, users.Registration{
		Email:    email,
		Password: password,
		Role:     auth.RolePsychologist,
	}, func(tx *gorm.DB, account identity.Account) error {
		profile := NewProfile(account.UID, account.Email)
		return tx.Create(&profile).Error
	})
	if err != nil {
		if !errors.Is(err, identity.ErrEmailExists) {
			s.logError(opRegister, "register_failed", err)
		}
		return users.Registered{}, err
	}
	return registered, nil
}

// List returns every profile in registration order.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&profiles).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, err
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// Get returns the profile owned by userID.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, ErrInvalidUserID
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID))
		return Profile{}, err
	}
	return profile, nil
}

// Update replaces the name and address fields of the profile and returns the stored result.
// The user id and email are never touched.
func (s *Service) Update(ctx context.Context, userID string, update ProfileUpdate) (Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, ErrInvalidUserID
	}

	var profile Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Take(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		profile.FirstName = s.sanitizer.clean(update.FirstName)
		profile.LastName = s.sanitizer.clean(update.LastName)
		profile.Address = s.sanitizer.clean(update.Address)
		return tx.Model(&Profile{}).
			Where("id = ?", profile.ID).
			Updates(map[string]any{
				"first_name": profile.FirstName,
				"last_name":  profile.LastName,
				"address":    profile.Address,
			}).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logError(opUpdate, "write_failed", err, zap.String("user_id", userID))
		}
		return Profile{}, err
	}
	return s.Get(ctx, userID)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error(fmt.Sprintf("%s failed", operation), allFields...)
}
