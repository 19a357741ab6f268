package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yudi-prasetyo/psychchat-backend/internal/appointments"
	"github.com/yudi-prasetyo/psychchat-backend/internal/psychologists"
	"go.uber.org/zap"
)

type psychologistRegisterPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type profileUpdatePayload struct {
	FirstName *string `json:"firstName" binding:"omitempty,max=190"`
	LastName  *string `json:"lastName" binding:"omitempty,max=190"`
	Address   *string `json:"address" binding:"omitempty,max=512"`
}

type profileView struct {
	UserID    string  `json:"userId"`
	Email     string  `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Address   *string `json:"address"`
}

func newProfileView(profile psychologists.Profile) profileView {
	return profileView{
		UserID:    profile.UserID,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Address:   profile.Address,
	}
}

func (h *httpHandler) handleRegisterPsychologist(c *gin.Context) {
	var request psychologistRegisterPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
		return
	}
	h.registerPsychologist(c, request.Email, request.Password)
}

func (h *httpHandler) registerPsychologist(c *gin.Context, email, password string) {
	registered, err := h.directory.Register(c.Request.Context(), email, password)
	if err != nil {
		h.respondRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Verification email sent! Psychologist created successfully!",
		"userId":  registered.UserID,
	})
}

func (h *httpHandler) handleListPsychologists(c *gin.Context) {
	profiles, err := h.directory.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}
	views := make([]profileView, 0, len(profiles))
	for _, profile := range profiles {
		views = append(views, newProfileView(profile))
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleGetPsychologist(c *gin.Context) {
	profile, err := h.directory.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.respondProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileView(profile))
}

func (h *httpHandler) handleUpdatePsychologist(c *gin.Context) {
	var request profileUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
		return
	}

	profile, err := h.directory.Update(c.Request.Context(), c.Param("userId"), psychologists.ProfileUpdate{
		FirstName: request.FirstName,
		LastName:  request.LastName,
		Address:   request.Address,
	})
	if err != nil {
		h.respondProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileView(profile))
}

func (h *httpHandler) handleListPsychologistAppointments(c *gin.Context) {
	records, err := h.book.ListByPsychologist(c.Request.Context(), c.Param("userId"))
	h.respondAppointmentList(c, records, err)
}

func (h *httpHandler) respondProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, psychologists.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("Psychologist not found"))
	case errors.Is(err, psychologists.ErrInvalidUserID):
		c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "userId", Message: "User ID is required"}))
	default:
		h.logger.Error("profile request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
	}
}

func (h *httpHandler) respondAppointmentList(c *gin.Context, records []appointments.Appointment, err error) {
	if err != nil {
		if errors.Is(err, appointments.ErrInvalidUserID) {
			c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "userId", Message: "User ID is invalid"}))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}
	views := make([]appointmentView, 0, len(records))
	for _, record := range records {
		views = append(views, newAppointmentView(record))
	}
	c.JSON(http.StatusOK, views)
}
