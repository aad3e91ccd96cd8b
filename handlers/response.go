package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"welfare-server-go/auth"
	"welfare-server-go/db"
	"welfare-server-go/excel"
	"welfare-server-go/models"
	"welfare-server-go/photos"
)

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, photos.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, photos.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, photos.ErrInvalidName),
		errors.Is(err, excel.ErrMissingColumn),
		errors.Is(err, excel.ErrEmptyFile),
		errors.Is(err, excel.ErrInvalidFile):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Internal errors are logged and
// hidden behind a generic message.
func (h *APIHandler) respondError(c *gin.Context, err error, internalMsg string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error(internalMsg,
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": internalMsg})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": models.ValidationMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
