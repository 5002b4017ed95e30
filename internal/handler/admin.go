package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locator-validation/internal/middleware"
	"github.com/iliyamo/locator-validation/internal/model"
)

const (
	maxImportBatch = 1000
	resetLockKey   = "locator-validation:ledger-reset"
	resetLockTTL   = 30 * time.Second
)

// TicketImporter seeds the local ticket table.
type TicketImporter interface {
	UpsertBulk(ctx context.Context, tickets []model.TicketCandidate) (int, error)
}

// LedgerResetter clears consumption rows.
type LedgerResetter interface {
	DeleteAll(ctx context.Context, serviceID *string) (int64, error)
}

// AdminHandler serves operator endpoints.  Every route is ADMIN only.
type AdminHandler struct {
	Tickets      TicketImporter
	Consumptions LedgerResetter
	Locker       *redislock.Client // optional; nil skips cross-replica locking
	AllowReset   bool
	Log          *logrus.Logger
}

func NewAdminHandler(tickets TicketImporter, consumptions LedgerResetter, locker *redislock.Client, allowReset bool, logger *logrus.Logger) *AdminHandler {
	if tickets == nil || consumptions == nil || logger == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Tickets: tickets, Consumptions: consumptions, Locker: locker, AllowReset: allowReset, Log: logger}
}

type importTicket struct {
	TicketKey     string  `json:"ticketKey"`
	Locator       string  `json:"locator"`
	ServiceID     *string `json:"serviceId"`
	Sequence      *int    `json:"sequence"`
	BoundIdentity string  `json:"boundIdentity"`
	Reference     string  `json:"reference"`
}

// ImportTickets handles POST /v1/admin/tickets with {"tickets": [...]}.
// Existing keys are updated in place.  Consumption state is untouched.
func (h *AdminHandler) ImportTickets(c echo.Context) error {
	var body struct {
		Tickets []importTicket `json:"tickets"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.Tickets) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tickets is required"})
	}
	if len(body.Tickets) > maxImportBatch {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "too many tickets in one batch"})
	}
	tickets := make([]model.TicketCandidate, 0, len(body.Tickets))
	for i, t := range body.Tickets {
		if strings.TrimSpace(t.TicketKey) == "" || strings.TrimSpace(t.Locator) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticketKey and locator are required", "index": i})
		}
		tickets = append(tickets, model.TicketCandidate{
			TicketKey:     strings.TrimSpace(t.TicketKey),
			Locator:       t.Locator,
			ServiceID:     t.ServiceID,
			Sequence:      t.Sequence,
			BoundIdentity: t.BoundIdentity,
			Reference:     t.Reference,
		})
	}
	n, err := h.Tickets.UpsertBulk(c.Request().Context(), tickets)
	if err != nil {
		return writeError(c, h.Log, "ImportTickets", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"imported": n})
}

// ResetLedger handles DELETE /v1/admin/consumptions?confirm=RESET[&serviceId=].
// It is refused unless resets are enabled in configuration, and resets
// are serialized across replicas with a Redis lock.
func (h *AdminHandler) ResetLedger(c echo.Context) error {
	if !h.AllowReset {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "ledger reset is disabled"})
	}
	if c.QueryParam("confirm") != "RESET" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "confirm=RESET is required"})
	}
	var serviceID *string
	if s := strings.TrimSpace(c.QueryParam("serviceId")); s != "" {
		serviceID = &s
	}
	ctx := c.Request().Context()

	if h.Locker != nil {
		lock, err := h.Locker.Obtain(ctx, resetLockKey, resetLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "another reset is in progress"})
		}
		if err != nil {
			return writeError(c, h.Log, "ResetLedger", err)
		}
		defer func() { _ = lock.Release(context.Background()) }()
	}

	n, err := h.Consumptions.DeleteAll(ctx, serviceID)
	if err != nil {
		return writeError(c, h.Log, "ResetLedger", err)
	}
	actor := middleware.ActorFrom(c)
	h.Log.WithFields(logrus.Fields{
		"module":     "handler",
		"funcName":   "ResetLedger",
		"user_id":    actor.UserID,
		"service_id": serviceID,
		"deleted":    n,
	}).Warn("consumption ledger reset")
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}
