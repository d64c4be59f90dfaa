package ui

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mmmstudio/internal/errors"
)

// statusFor maps an application error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.GetCode(err) == errors.CodeNotFound:
		return http.StatusNotFound
	case errors.HasCode(err, errors.CodeValidationError):
		return http.StatusBadRequest
	case errors.HasCode(err, errors.CodeConcurrencyConflict),
		errors.HasCode(err, errors.CodeInvalidState):
		return http.StatusConflict
	case errors.HasCode(err, errors.CodeRemoteCompute):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope the dashboard client expects
func respondError(c *gin.Context, err error) {
	if !errors.IsAppError(err) {
		err = errors.Wrap(err, "internal error")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    errors.GetCode(err),
	})
}

// bindJSON decodes the body, answering 400 on failure
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, errors.Validation(err))
		return false
	}
	return true
}
