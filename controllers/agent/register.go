package agent

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"drawbet/helpers"
	"drawbet/hierarchy"
	"drawbet/middlewares"
)

type RegisterAgentRequest struct {
	Username       string          `json:"username"`
	WeeklyLimit    decimal.Decimal `json:"weekly_limit"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	CanCreateSubs  bool            `json:"can_create_subs"`
}

func (h *Handler) RegisterAgent(c *fiber.Ctx) error {
	var req RegisterAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONBadRequest(c, "INVALID_JSON")
	}

	creator := middlewares.CurrentAgent(c)
	agent, err := h.Store.CreateAgent(c.UserContext(), creator.ID, hierarchy.NewAgent{
		Username:       req.Username,
		WeeklyLimit:    req.WeeklyLimit,
		CommissionRate: req.CommissionRate,
		CanCreateSubs:  req.CanCreateSubs,
	})
	if err != nil {
		return helpers.JSONError(c, err)
	}

	return helpers.JSONSuccess(c, "Agent registered successfully", agent)
}
