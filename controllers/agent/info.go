package agent

import (
	"github.com/gofiber/fiber/v2"

	"drawbet/helpers"
	"drawbet/middlewares"
)

func (h *Handler) AgentInfo(c *fiber.Ctx) error {
	agent := middlewares.CurrentAgent(c)

	children, err := h.Store.Children(c.UserContext(), agent.ID)
	if err != nil {
		return helpers.JSONError(c, err)
	}

	return helpers.JSONSuccess(c, "Agent info retrieved successfully", fiber.Map{
		"id":                agent.ID,
		"username":          agent.Username,
		"role":              agent.Role,
		"weekly_limit":      agent.WeeklyLimit,
		"weekly_used":       agent.WeeklyUsed,
		"remaining":         agent.Remaining(),
		"commission_rate":   agent.CommissionRate,
		"commission_earned": agent.CommissionEarned,
		"can_create_subs":   agent.CanCreateSubs,
		"children":          children,
	})
}
