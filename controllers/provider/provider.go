package provider

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"drawbet/helpers"
	"drawbet/models"
	"drawbet/payout"
	"drawbet/providers"
)

type Handler struct {
	Admin *providers.Admin
}

func New(a *providers.Admin) *Handler { return &Handler{Admin: a} }

func (h *Handler) SetActive(c *fiber.Ctx) error {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := c.BodyParser(&req); err != nil || req.Active == nil {
		return helpers.JSONBadRequest(c, "INVALID_JSON")
	}
	info, err := h.Admin.SetActive(c.UserContext(), c.Params("code"), *req.Active)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Provider updated", info)
}

func (h *Handler) SetPayout(c *fiber.Ctx) error {
	var req struct {
		GameType   models.GameType `json:"game_type"`
		BetType    models.BetType  `json:"bet_type"`
		Tier       string          `json:"tier"`
		Multiplier decimal.Decimal `json:"multiplier"`
	}
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONBadRequest(c, "INVALID_JSON")
	}
	k := payout.Key{Provider: c.Params("code"), Game: req.GameType, Bet: req.BetType, Tier: req.Tier}
	if err := h.Admin.SetPayout(c.UserContext(), k, req.Multiplier); err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Payout rate saved", fiber.Map{
		"provider": k.Provider, "game_type": k.Game, "bet_type": k.Bet, "tier": k.Tier, "multiplier": req.Multiplier,
	})
}
