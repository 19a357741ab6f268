package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrNotFound indicates no appointment exists with the requested id.
	ErrNotFound = errors.New("appointments: appointment not found")
	// ErrInvalidUserID indicates that a user or psychologist identifier is empty or too long.
	ErrInvalidUserID = errors.New("appointments: invalid user id")
	// ErrInvalidAppointmentID indicates that an appointment identifier is empty or too long.
	ErrInvalidAppointmentID = errors.New("appointments: invalid appointment id")
)

func validateIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

// Appointment books a user with a psychologist at a point in time.
type Appointment struct {
	ID             string    `gorm:"column:id;primaryKey;size:64;not null"`
	UserID         string    `gorm:"column:user_id;size:190;not null;index:idx_appointments_user_time,priority:1"`
	PsychologistID string    `gorm:"column:psychologist_id;size:190;not null;index:idx_appointments_psychologist_time,priority:1"`
	DateTime       time.Time `gorm:"column:date_time;not null;index:idx_appointments_user_time,priority:2;index:idx_appointments_psychologist_time,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Appointment) TableName() string {
	return "appointments"
}

// NewAppointment validates the participants and normalizes the time to UTC milliseconds.
func NewAppointment(id, userID, psychologistID string, dateTime time.Time) (Appointment, error) {
	appointmentID, err := validateIdentifier(id, ErrInvalidAppointmentID)
	if err != nil {
		return Appointment{}, err
	}
	user, err := validateIdentifier(userID, ErrInvalidUserID)
	if err != nil {
		return Appointment{}, err
	}
	psychologist, err := validateIdentifier(psychologistID, ErrInvalidUserID)
	if err != nil {
		return Appointment{}, err
	}
	return Appointment{
		ID:             appointmentID,
		UserID:         user,
		PsychologistID: psychologist,
		DateTime:       dateTime.UTC().Truncate(time.Millisecond),
	}, nil
}

// Booking is the caller-supplied part of a new appointment. A nil DateTime means now.
type Booking struct {
	UserID         string
	PsychologistID string
	DateTime       *time.Time
}
