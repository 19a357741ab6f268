package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

const (
	opServiceNew         = "appointments.service.new"
	opCreate             = "appointments.create"
	opGet                = "appointments.get"
	opListByUser         = "appointments.list_by_user"
	opListByPsychologist = "appointments.list_by_psychologist"
)

// ServiceError tags a failure with the operation and reason that produced it.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create books a new appointment. The psychologist id is stored as given.
func (s *Service) Create(ctx context.Context, booking Booking) (Appointment, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Appointment{}, newServiceError(opCreate, "id_generation_failed", err)
	}
	dateTime := s.clock()
	if booking.DateTime != nil {
		dateTime = *booking.DateTime
	}

	appointment, err := NewAppointment(id, booking.UserID, booking.PsychologistID, dateTime)
	if err != nil {
		return Appointment{}, err
	}
	if err := s.db.WithContext(ctx).Create(&appointment).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", appointment.UserID))
		return Appointment{}, newServiceError(opCreate, "insert_failed", err)
	}
	return appointment, nil
}

// Get loads one appointment by id.
func (s *Service) Get(ctx context.Context, id string) (Appointment, error) {
	appointmentID, err := validateIdentifier(id, ErrInvalidAppointmentID)
	if err != nil {
		return Appointment{}, err
	}
	var appointment Appointment
	err = s.db.WithContext(ctx).Where("id = ?", appointmentID).Take(&appointment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("appointment_id", appointmentID))
		return Appointment{}, newServiceError(opGet, "query_failed", err)
	}
	appointment.DateTime = appointment.DateTime.UTC()
	return appointment, nil
}

// ListByUser returns the user's appointments in chronological order.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Appointment, error) {
	return s.listBy(ctx, opListByUser, "user_id", userID)
}

// ListByPsychologist returns the psychologist's appointments in chronological order.
func (s *Service) ListByPsychologist(ctx context.Context, psychologistID string) ([]Appointment, error) {
	return s.listBy(ctx, opListByPsychologist, "psychologist_id", psychologistID)
}

func (s *Service) listBy(ctx context.Context, operation, column, rawID string) ([]Appointment, error) {
	ownerID, err := validateIdentifier(rawID, ErrInvalidUserID)
	if err != nil {
		return nil, err
	}
	appointments := []Appointment{}
	err = s.db.WithContext(ctx).
		Where(column+" = ?", ownerID).
		Order("date_time ASC").
		Order("id ASC").
		Find(&appointments).
		Error
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String(column, ownerID))
		return nil, newServiceError(operation, "query_failed", err)
	}
	for index := range appointments {
		appointments[index].DateTime = appointments[index].DateTime.UTC()
	}
	return appointments, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error(fmt.Sprintf("%s failed", operation), allFields...)
}
