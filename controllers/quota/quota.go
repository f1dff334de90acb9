package quota

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"drawbet/helpers"
	"drawbet/quota"
)

type Handler struct {
	Ledger *quota.Ledger
}

func New(l *quota.Ledger) *Handler { return &Handler{Ledger: l} }

func (h *Handler) ResetWeekly(c *fiber.Ctx) error {
	sum, err := h.Ledger.ResetAll(c.UserContext(), time.Now())
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Weekly quotas reset", sum)
}
