package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locator-validation/internal/middleware"
	"github.com/iliyamo/locator-validation/internal/model"
	"github.com/iliyamo/locator-validation/internal/repository"
	"github.com/iliyamo/locator-validation/internal/service"
)

// Idempotency headers accepted on POST /v1/validations/locator.
const (
	HeaderIdempotencyKey    = "Idempotency-Key"
	HeaderXIdempotencyKey   = "X-Idempotency-Key"
	maxIdempotencyKeyLength = 191
)

// LocatorValidator is the engine as seen by the HTTP layer.
type LocatorValidator interface {
	ValidateLocator(ctx context.Context, in service.LocatorInput, rc service.RequestContext) (*model.ValidateLocatorResponse, error)
}

// ValidationLister reads the audit log.
type ValidationLister interface {
	ListRecent(ctx context.Context, f repository.ValidationFilter) ([]model.ValidationRecord, error)
}

// ValidationHandler serves the validation endpoints.  Authentication and
// role checks run in middleware before these methods.
type ValidationHandler struct {
	Validator   LocatorValidator
	Validations ValidationLister
	Log         *logrus.Logger
}

func NewValidationHandler(v LocatorValidator, l ValidationLister, logger *logrus.Logger) *ValidationHandler {
	if v == nil || l == nil || logger == nil {
		panic("nil dependency passed to NewValidationHandler")
	}
	return &ValidationHandler{Validator: v, Validations: l, Log: logger}
}

// ValidateLocator handles POST /v1/validations/locator.  The body is
// {locator, dni, serviceId, code}; the outcome (VALID, INVALID or
// DUPLICATE) is always a 200.  Repeating a request with the same
// Idempotency-Key returns the first response unchanged.
func (h *ValidationHandler) ValidateLocator(c echo.Context) error {
	var body service.LocatorInput
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	if key == "" {
		key = strings.TrimSpace(c.Request().Header.Get(HeaderXIdempotencyKey))
	}
	if len(key) > maxIdempotencyKeyLength {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "idempotency key too long"})
	}

	resp, err := h.Validator.ValidateLocator(c.Request().Context(), body, service.RequestContext{
		IdempotencyKey: key,
		Actor:          middleware.ActorFrom(c),
	})
	if err != nil {
		return writeError(c, h.Log, "ValidateLocator", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListValidations handles GET /v1/validations?locator=&serviceId=&limit=.
// Records come newest first; limit defaults to 50 and is capped at 500.
func (h *ValidationHandler) ListValidations(c echo.Context) error {
	f := repository.ValidationFilter{
		Locator:   strings.ToUpper(strings.TrimSpace(c.QueryParam("locator"))),
		ServiceID: strings.TrimSpace(c.QueryParam("serviceId")),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be a positive integer"})
		}
		f.Limit = n
	}
	recs, err := h.Validations.ListRecent(c.Request().Context(), f)
	if err != nil {
		return writeError(c, h.Log, "ListValidations", err)
	}
	if recs == nil {
		recs = []model.ValidationRecord{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": recs, "count": len(recs)})
}
