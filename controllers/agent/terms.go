package agent

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"drawbet/apperr"
	"drawbet/helpers"
	"drawbet/middlewares"
)

type TermsRequest struct {
	WeeklyLimit    decimal.Decimal `json:"weekly_limit"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

type TransferRequest struct {
	UplineID uint `json:"upline_id"`
}

func (h *Handler) UpdateTerms(c *fiber.Ctx) error {
	var req TermsRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONBadRequest(c, "INVALID_JSON")
	}
	id, err := h.authorize(c)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	if err := h.Store.UpdateTerms(c.UserContext(), id, req.WeeklyLimit, req.CommissionRate); err != nil {
		return helpers.JSONError(c, err)
	}
	agent, err := h.Store.Get(c.UserContext(), id)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Agent terms updated", agent)
}

func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil || req.UplineID == 0 {
		return helpers.JSONBadRequest(c, "UPLINE_ID_REQUIRED")
	}
	id, err := h.authorize(c)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	if err := h.Store.TransferUpline(c.UserContext(), id, req.UplineID); err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Agent transferred", fiber.Map{"agent_id": id, "upline_id": req.UplineID})
}

func (h *Handler) Deactivate(c *fiber.Ctx) error {
	id, err := h.authorize(c)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	if err := h.Store.Deactivate(c.UserContext(), id); err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Agent deactivated", fiber.Map{"agent_id": id})
}

func (h *Handler) authorize(c *fiber.Ctx) (uint, error) {
	id, err := paramID(c)
	if err != nil {
		return 0, err
	}
	target, err := h.Store.Get(c.UserContext(), id)
	if err != nil {
		return 0, err
	}
	actor := middlewares.CurrentAgent(c)
	if actor.ID == target.ID || !canManage(actor, target) {
		return 0, apperr.Forbidden("not allowed to manage this agent", apperr.Fields{"agent_id": id})
	}
	return id, nil
}
