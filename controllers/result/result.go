package result

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"drawbet/apperr"
	"drawbet/draws"
	"drawbet/helpers"
	"drawbet/settlement"
)

type Handler struct {
	Draws  *draws.Service
	Engine *settlement.Engine
}

func New(d *draws.Service, e *settlement.Engine) *Handler { return &Handler{Draws: d, Engine: e} }

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.InvalidFormat("invalid result id", apperr.Fields{"id": c.Params("id")})
	}
	return uint(id), nil
}

func (h *Handler) CreateResult(c *fiber.Ctx) error {
	var req draws.NewResult
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONBadRequest(c, "INVALID_JSON")
	}
	r, err := h.Draws.Create(c.UserContext(), req)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Draw result recorded", r)
}

func (h *Handler) UpdateResult(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	var req draws.Numbers
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONBadRequest(c, "INVALID_JSON")
	}
	r, err := h.Draws.Update(c.UserContext(), id, req)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Draw result updated", r)
}

func (h *Handler) VerifyResult(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	r, err := h.Draws.Verify(c.UserContext(), id)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Draw result verified", r)
}

// FinalizeResult makes the result terminal and settles it right away.
func (h *Handler) FinalizeResult(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	r, err := h.Draws.Finalize(c.UserContext(), id)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	sum, err := h.Engine.Settle(c.UserContext(), id)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Draw result finalized", fiber.Map{"result": r, "settlement": sum})
}

func (h *Handler) SettleResult(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	sum, err := h.Engine.Settle(c.UserContext(), id)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Draw result settled", sum)
}
