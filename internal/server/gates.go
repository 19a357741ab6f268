package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"github.com/yudi-prasetyo/psychchat-backend/internal/users"
	"go.uber.org/zap"
)

const (
	gateAuthenticate = "authenticate"
	gateRequireRole  = "require_role"
	gateRequireSelf  = "require_self"
)

// authenticate verifies the access_token cookie, resolves the caller's role and
// stores both on the context for later stages.
func (h *httpHandler) authenticate(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.rejectCredential(c, err)
		return
	}

	role, err := h.roles.ResolveRole(c.Request.Context(), claims.CallerID)
	if err != nil {
		if errors.Is(err, users.ErrRoleNotFound) || errors.Is(err, auth.ErrUnknownRole) {
			h.logger.Warn("caller has no usable role", zap.String("caller_id", claims.CallerID), zap.Error(err))
			h.reject(c, gateAuthenticate, "role_not_found", http.StatusForbidden, msgUnauthorized)
			return
		}
		h.logger.Error("role lookup failed", zap.String("caller_id", claims.CallerID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}

	c.Set(callerIDContextKey, claims.CallerID)
	c.Set(roleContextKey, role)
	c.Next()
}

func (h *httpHandler) rejectCredential(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		h.logger.Debug("credential missing", zap.String("path", c.Request.URL.Path))
		h.reject(c, gateAuthenticate, "no_credential", http.StatusUnauthorized, msgNoCredential)
	case errors.Is(err, auth.ErrExpiredToken):
		h.logger.Info("token validation failed", zap.Error(err))
		h.reject(c, gateAuthenticate, "expired_credential", http.StatusForbidden, msgUnauthorized)
	default:
		h.logger.Warn("token validation failed", zap.Error(err))
		h.reject(c, gateAuthenticate, "invalid_credential", http.StatusForbidden, msgUnauthorized)
	}
}

// requireRole passes only callers whose role is listed.
func (h *httpHandler) requireRole(allowed ...auth.Role) gin.HandlerFunc {
	permitted := append([]auth.Role(nil), allowed...)
	return func(c *gin.Context) {
		if !callerRole(c).Permits(permitted) {
			h.reject(c, gateRequireRole, "role_not_permitted", http.StatusForbidden, msgRoleNotPermitted)
			return
		}
		c.Next()
	}
}

// selfTarget extracts the user id a request acts on behalf of.
type selfTarget func(c *gin.Context) (string, error)

func pathTarget(param string) selfTarget {
	return func(c *gin.Context) (string, error) {
		return c.Param(param), nil
	}
}

type ownerPayload struct {
	UserID string `json:"userId"`
}

// bodyUserIDTarget reads userId from the JSON body. The body is cached so the
// handler can bind it again.
func bodyUserIDTarget(c *gin.Context) (string, error) {
	var payload ownerPayload
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		return "", err
	}
	return payload.UserID, nil
}

// requireSelf passes only when the caller id equals the target id.
func (h *httpHandler) requireSelf(target selfTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID, err := target(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
			return
		}
		callerID := c.GetString(callerIDContextKey)
		if callerID == "" || targetID != callerID {
			h.reject(c, gateRequireSelf, "caller_mismatch", http.StatusForbidden, msgCallerNotPermitted)
			return
		}
		c.Next()
	}
}

func (h *httpHandler) reject(c *gin.Context, gate, reason string, status int, message string) {
	h.metrics.RecordGateRejection(gate, reason)
	c.AbortWithStatusJSON(status, errorBody(message))
}

func callerRole(c *gin.Context) auth.Role {
	value, ok := c.Get(roleContextKey)
	if !ok {
		return ""
	}
	role, _ := value.(auth.Role)
	return role
}
