package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/middleware"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"go.uber.org/zap"
)

// statusForCode maps chat error codes onto HTTP statuses
func statusForCode(code string) int {
	switch code {
	case services.CodeUnauthorized:
		return http.StatusUnauthorized
	case services.CodeForbidden:
		return http.StatusForbidden
	case services.CodeInvalidInput:
		return http.StatusBadRequest
	case services.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// respondError writes the error envelope. Only the code and the public
// message leave the process; the wrapped cause is logged.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var ce *services.ChatError
	if !errors.As(err, &ce) {
		ce = &services.ChatError{
			Code:    services.CodeBackendUnavailable,
			Message: "Service temporarily unavailable",
			Err:     err,
		}
	}

	status := statusForCode(ce.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", ce.Code),
			zap.Error(err),
		)
	}

	c.PureJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    ce.Code,
			"message": ce.Message,
		},
	})
}

// respondData writes the success envelope
func respondData(c *gin.Context, status int, data interface{}) {
	c.PureJSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// callerID extracts the authenticated user or writes a 401
func callerID(c *gin.Context) (string, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.PureJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    services.CodeUnauthorized,
				"message": "Could not extract user information",
			},
		})
		return "", false
	}
	return userID, true
}
