package transport

import (
	"errors"
	"net/http"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/transport/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse представляет успешный ответ без данных
type MessageResponse struct {
	Message string `json:"message"`
}

// writeError maps a service error onto its HTTP status. Anything that is not
// an AppError, or is an internal one, is logged and hidden from the client.
func writeError(c *gin.Context, err error) {
	var appErr *entity.AppError
	if !errors.As(err, &appErr) {
		appErr = entity.NewInternal("internal server error", err)
	}

	status := appErr.Status()
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": c.GetString(middleware.RequestIDKey),
		}).Error("request failed")
	}

	message := appErr.Message
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// bindError answers 422 for a malformed validity window and 400 for any
// other unparsable body.
func bindError(c *gin.Context, err error) {
	if errors.Is(err, entity.ErrInvalidTimeOfDay) {
		writeError(c, entity.NewValidation(err.Error()))
		return
	}
	badRequest(c, err)
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(middleware.UserIDKey)
}
