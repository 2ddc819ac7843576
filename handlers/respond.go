// Package handlers holds the gin HTTP handlers of the screening service.
package handlers

import (
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"health-screening/database"
	"health-screening/models"
	"health-screening/notify"
	"health-screening/service"
)

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, models.SuccessResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string, details ...models.FieldError) {
	c.JSON(status, models.ErrorResponse{Success: false, Error: msg, Details: details})
}

// failErr maps service and store errors to responses. Anything unrecognised
// is logged and reported as a generic 500.
func failErr(c *gin.Context, err error, what string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		fail(c, http.StatusBadRequest, "Validation failed", verr.Fields...)
	case errors.Is(err, database.ErrNotFound):
		fail(c, http.StatusNotFound, what+" not found")
	case errors.Is(err, database.ErrNoUpdateFields):
		fail(c, http.StatusBadRequest, "No fields to update")
	case errors.Is(err, database.ErrDuplicate):
		fail(c, http.StatusConflict, what+" already exists")
	case errors.Is(err, service.ErrInvalidPhotoPath):
		fail(c, http.StatusBadRequest, "Invalid photo path")
	case errors.Is(err, service.ErrVerificationFailed):
		fail(c, http.StatusForbidden, "Verification failed")
	case errors.Is(err, service.ErrUnsupportedFormat):
		fail(c, http.StatusBadRequest, "Unsupported export format")
	case errors.Is(err, notify.ErrChannelDisabled):
		fail(c, http.StatusServiceUnavailable, "Notification channel is not configured")
	case errors.Is(err, notify.ErrNoRecipient), errors.Is(err, notify.ErrInvalidPhone):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func bindError(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, "Invalid request body", models.FieldError{Field: "body", Message: err.Error()})
}
