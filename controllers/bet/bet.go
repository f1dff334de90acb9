package bet

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"drawbet/apperr"
	"drawbet/betnumber"
	"drawbet/bets"
	"drawbet/helpers"
	"drawbet/middlewares"
	"drawbet/models"
)

type Handler struct {
	Bets *bets.Manager
}

func New(m *bets.Manager) *Handler { return &Handler{Bets: m} }

type PlaceBetRequest struct {
	GameType          string          `json:"game_type"`
	BetType           string          `json:"bet_type"`
	Numbers           string          `json:"numbers"`
	Providers         []string        `json:"providers"`
	AmountPerProvider decimal.Decimal `json:"amount_per_provider"`
	DrawDate          time.Time       `json:"draw_date"`
}

func (h *Handler) PlaceBet(c *fiber.Ctx) error {
	var req PlaceBetRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONBadRequest(c, "INVALID_JSON")
	}
	game, err := betnumber.ParseGameType(req.GameType)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	betType, err := betnumber.ParseBetType(req.BetType)
	if err != nil {
		return helpers.JSONError(c, err)
	}

	agent := middlewares.CurrentAgent(c)
	bet, err := h.Bets.Place(c.UserContext(), bets.PlaceRequest{
		AgentID:           agent.ID,
		GameType:          game,
		BetType:           betType,
		Numbers:           req.Numbers,
		Providers:         req.Providers,
		AmountPerProvider: req.AmountPerProvider,
		DrawDate:          req.DrawDate,
	})
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Bet placed successfully", bet)
}

func (h *Handler) CancelBet(c *fiber.Ctx) error {
	agent := middlewares.CurrentAgent(c)
	bet, err := h.Bets.Cancel(c.UserContext(), c.Params("receipt"), agent.ID)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Bet cancelled", bet)
}

func (h *Handler) GetBet(c *fiber.Ctx) error {
	agent := middlewares.CurrentAgent(c)
	bet, err := h.Bets.GetByReceipt(c.UserContext(), agent.ID, c.Params("receipt"))
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Bet retrieved successfully", bet)
}

func (h *Handler) ListBets(c *fiber.Ctx) error {
	f := bets.ListFilter{
		Status:   models.BetStatus(c.Query("status")),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 0),
	}
	if g := c.Query("game_type"); g != "" {
		game, err := betnumber.ParseGameType(g)
		if err != nil {
			return helpers.JSONError(c, err)
		}
		f.GameType = game
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return helpers.JSONError(c, apperr.InvalidFormat("timestamps must be RFC3339", apperr.Fields{key: raw}))
		}
		*dst = &t
	}

	agent := middlewares.CurrentAgent(c)
	page, err := h.Bets.List(c.UserContext(), agent.ID, f)
	if err != nil {
		return helpers.JSONError(c, err)
	}
	return helpers.JSONSuccess(c, "Bets retrieved successfully", page)
}
