package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locator-validation/internal/database"
	"github.com/iliyamo/locator-validation/internal/service"
	"github.com/iliyamo/locator-validation/internal/source"
)

// writeError maps engine errors onto HTTP responses.  Client errors keep
// their message; infrastructure failures are logged and answered with a
// generic body.
func writeError(c echo.Context, log *logrus.Logger, funcName string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrIdempotencyConflict):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "idempotency key already used with a different payload"})
	}
	log.WithFields(logrus.Fields{
		"module":     "handler",
		"funcName":   funcName,
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
	}).WithError(err).Error("request failed")
	if errors.Is(err, source.ErrUnavailable) || database.IsRetryable(err) {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable, retry later"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
