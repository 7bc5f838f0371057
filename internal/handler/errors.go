package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"helpdesk-autoreply/internal/approval"
	"helpdesk-autoreply/internal/repository"
)

// respondError maps domain errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "internal_error"
	)

	var sendFailure *approval.SendFailure
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, repository.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrSendInProgress):
		status, code = http.StatusConflict, "send_in_progress"
	case errors.Is(err, approval.ErrNoSender):
		status, code = http.StatusUnprocessableEntity, "no_sender"
	case errors.Is(err, approval.ErrEmptyText), errors.Is(err, repository.ErrUnknownSetting):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.As(err, &sendFailure):
		status, code = http.StatusBadGateway, "send_failed"
	}

	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}

	c.JSON(status, ErrorResponse{
		Error:   code,
		Message: err.Error(),
		Code:    status,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
		Code:    http.StatusBadRequest,
	})
}
