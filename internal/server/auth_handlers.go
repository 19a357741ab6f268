package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"github.com/yudi-prasetyo/psychchat-backend/internal/identity"
	"github.com/yudi-prasetyo/psychchat-backend/internal/users"
	"go.uber.org/zap"
)

type registerPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

type credentialsPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type resetPasswordPayload struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
		return
	}

	// Role names are matched case-insensitively; blank means a plain user.
	role := auth.RoleUser
	if strings.TrimSpace(request.Role) != "" {
		parsed, err := auth.ParseRole(request.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "role", Message: "Role must be one of admin, user, psychologist"}))
			return
		}
		role = parsed
	}

	switch role {
	case auth.RoleAdmin:
		if !h.allowAdmin {
			c.JSON(http.StatusForbidden, errorBody(msgAdminSignupDisabled))
			return
		}
	case auth.RolePsychologist:
		h.registerPsychologist(c, request.Email, request.Password)
		return
	}

	registered, err := h.accounts.Register(c.Request.Context(), users.Registration{
		Email:    request.Email,
		Password: request.Password,
		Role:     role,
	})
	if err != nil {
		h.respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Verification email sent! User created successfully!",
		"userId":  registered.UserID,
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
		return
	}

	session, err := h.identity.SignIn(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, errorBody(msgInvalidLogin))
			return
		}
		h.logger.Error("sign in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}
	if session.IDToken == "" {
		h.logger.Error("sign in returned no id token", zap.String("user_id", session.Account.UID))
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    session.IDToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	c.JSON(http.StatusOK, gin.H{
		"message": "User logged in successfully",
		"userId":  session.Account.UID,
		"email":   session.Account.Email,
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	c.JSON(http.StatusOK, gin.H{"message": "User logged out successfully"})
}

// handleResetPassword answers the same way whether or not the email is registered.
func (h *httpHandler) handleResetPassword(c *gin.Context) {
	var request resetPasswordPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
		return
	}

	err := h.identity.SendPasswordReset(c.Request.Context(), request.Email)
	if err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
		h.logger.Error("password reset failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent successfully!"})
}

func (h *httpHandler) respondRegistrationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrEmailExists):
		c.JSON(http.StatusConflict, errorBody(msgEmailExists))
	case errors.Is(err, identity.ErrInvalidInput), errors.Is(err, users.ErrInvalidRegistration):
		c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "body", Message: "Email or password was rejected"}))
	default:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
	}
}
