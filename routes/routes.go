package routes

import (
	"github.com/gofiber/fiber/v2"

	"drawbet/controllers/agent"
	"drawbet/controllers/bet"
	"drawbet/controllers/provider"
	"drawbet/controllers/quota"
	"drawbet/controllers/result"
	"drawbet/middlewares"
	"drawbet/models"
)

type Handlers struct {
	Agent    *agent.Handler
	Bet      *bet.Handler
	Result   *result.Handler
	Quota    *quota.Handler
	Provider *provider.Handler
}

func Setup(app *fiber.App, secret []byte, h Handlers) {
	auth := middlewares.AgentAuth(secret, h.Agent.Store)
	admin := middlewares.RequireRole(models.RoleAdmin)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	betroutes := app.Group("/bets", auth)
	betroutes.Post("/", h.Bet.PlaceBet)
	betroutes.Get("/", h.Bet.ListBets)
	betroutes.Get("/:receipt", h.Bet.GetBet)
	betroutes.Post("/:receipt/cancel", h.Bet.CancelBet)

	agentroutes := app.Group("/agents", auth)
	agentroutes.Get("/me", h.Agent.AgentInfo)
	agentroutes.Post("/", h.Agent.RegisterAgent)
	agentroutes.Post("/:id/transfer", h.Agent.Transfer)
	agentroutes.Post("/:id/deactivate", h.Agent.Deactivate)
	agentroutes.Put("/:id/terms", h.Agent.UpdateTerms)

	resultroutes := app.Group("/results", auth, admin)
	resultroutes.Post("/", h.Result.CreateResult)
	resultroutes.Put("/:id", h.Result.UpdateResult)
	resultroutes.Post("/:id/verify", h.Result.VerifyResult)
	resultroutes.Post("/:id/finalize", h.Result.FinalizeResult)
	resultroutes.Post("/:id/settle", h.Result.SettleResult)

	providerroutes := app.Group("/providers", auth, admin)
	providerroutes.Put("/:code/active", h.Provider.SetActive)
	providerroutes.Put("/:code/payouts", h.Provider.SetPayout)

	app.Post("/quotas/reset", auth, admin, h.Quota.ResetWeekly)
}
