package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupHub/internal/service"
)

// UserIDKey is the gin context key holding the authenticated acting user
const UserIDKey = "user_id"

var errUnauthorized = errors.New("unauthorized")

var statusByCode = map[string]int{
	"not_found":         http.StatusNotFound,
	"invite_invalid":    http.StatusNotFound,
	"permission_denied": http.StatusForbidden,
	"already_member":    http.StatusConflict,
	"capacity_exceeded": http.StatusConflict,
	"last_admin":        http.StatusConflict,
	"invite_expired":    http.StatusGone,
	"validation_error":  http.StatusBadRequest,
	"repository_error":  http.StatusInternalServerError,
}

// StatusFor maps a service error code to its HTTP status
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"message": "success", "data": data})
}

func respondError(c *gin.Context, err error) {
	code := service.Code(err)
	status := StatusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// storage details stay in the logs
		_ = c.Error(err)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "reason": code})
}

// badRequest reports a body that could not be bound
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "validation_error"})
}

// actor returns the authenticated user id, or writes 401 and returns false
func actor(c *gin.Context) (string, bool) {
	userID := c.GetString(UserIDKey)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized.Error(), "reason": "unauthorized"})
		return "", false
	}
	return userID, true
}
