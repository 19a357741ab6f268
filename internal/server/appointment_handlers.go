package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/yudi-prasetyo/psychchat-backend/internal/appointments"
	"go.uber.org/zap"
)

type appointmentPayload struct {
	UserID         string     `json:"userId" binding:"required,max=190"`
	PsychologistID string     `json:"psychologistId" binding:"required,max=190"`
	DateTime       *time.Time `json:"dateTime"`
}

type appointmentView struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	PsychologistID string    `json:"psychologistId"`
	DateTime       time.Time `json:"dateTime"`
}

func newAppointmentView(appointment appointments.Appointment) appointmentView {
	return appointmentView{
		ID:             appointment.ID,
		UserID:         appointment.UserID,
		PsychologistID: appointment.PsychologistID,
		DateTime:       appointment.DateTime.UTC(),
	}
}

func (h *httpHandler) handleCreateAppointment(c *gin.Context) {
	var request appointmentPayload
	// requireSelf already read the body; bind from the cached copy.
	if err := c.ShouldBindBodyWith(&request, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
		return
	}

	appointment, err := h.book.Create(c.Request.Context(), appointments.Booking{
		UserID:         request.UserID,
		PsychologistID: request.PsychologistID,
		DateTime:       request.DateTime,
	})
	if err != nil {
		if errors.Is(err, appointments.ErrInvalidUserID) {
			c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "body", Message: "User ID and psychologist ID are required"}))
			return
		}
		h.logger.Error("appointment create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Appointment with ID " + appointment.ID + " created successfully",
		"id":      appointment.ID,
	})
}

// handleGetAppointment only reveals an appointment to the user who booked it.
func (h *httpHandler) handleGetAppointment(c *gin.Context) {
	appointment, err := h.book.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, appointments.ErrNotFound):
			c.JSON(http.StatusNotFound, errorBody("Appointment not found"))
		case errors.Is(err, appointments.ErrInvalidAppointmentID):
			c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "id", Message: "Appointment ID is invalid"}))
		default:
			c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		}
		return
	}

	if appointment.UserID != c.GetString(callerIDContextKey) {
		h.reject(c, gateRequireSelf, "appointment_owner_mismatch", http.StatusForbidden, msgUnauthorized)
		return
	}
	c.JSON(http.StatusOK, newAppointmentView(appointment))
}

func (h *httpHandler) handleListUserAppointments(c *gin.Context) {
	records, err := h.book.ListByUser(c.Request.Context(), c.Param("userId"))
	h.respondAppointmentList(c, records, err)
}
