package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawbet/bets"
	"drawbet/commission"
	"drawbet/config"
	agentctl "drawbet/controllers/agent"
	betctl "drawbet/controllers/bet"
	providerctl "drawbet/controllers/provider"
	quotactl "drawbet/controllers/quota"
	resultctl "drawbet/controllers/result"
	"drawbet/dbtest"
	"drawbet/draws"
	"drawbet/hierarchy"
	"drawbet/middlewares"
	"drawbet/models"
	"drawbet/payout"
	"drawbet/providers"
	"drawbet/quota"
	"drawbet/settlement"
)

var secret = []byte("test-secret")

type env struct {
	app     *fiber.App
	tr      dbtest.Tree
	results *draws.Service
}

func setup(t *testing.T) env {
	t.Helper()
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	dbtest.SeedProvider(t, db, "MAGNUM")
	dbtest.SeedPayout(t, db, "MAGNUM", models.Game4D, models.BetBig, "FIRST", "2500")

	registry := providers.NewStore(db, nil)
	ledger := quota.New(db, quota.Schedule{Weekday: time.Monday, Loc: time.UTC}, nil)
	store := hierarchy.New(db, nil)
	mgr := bets.New(db, registry, ledger, config.BettingConfig{MaxPageSize: 100, ReceiptAttempts: 5}, nil)
	engine := settlement.New(db, payout.NewTable(), commission.New(nil), config.SettlementConfig{}, nil)

	results := draws.New(db, registry, nil)
	results.SetClock(func() time.Time { return time.Now().Add(72 * time.Hour) })

	app := fiber.New()
	Setup(app, secret, Handlers{
		Agent:    agentctl.New(store),
		Bet:      betctl.New(mgr),
		Result:   resultctl.New(results, engine),
		Quota:    quotactl.New(ledger),
		Provider: providerctl.New(providers.NewAdmin(registry, nil, nil)),
	})
	return env{app: app, tr: tr, results: results}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (e env) call(t *testing.T, method, path string, agentID uint, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if agentID != 0 {
		token, err := middlewares.SignAgentToken(secret, agentID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func nextDraw() time.Time {
	d := time.Now().UTC().Add(24 * time.Hour)
	return time.Date(d.Year(), d.Month(), d.Day(), 19, 0, 0, 0, time.UTC)
}

func TestAuthRequired(t *testing.T) {
	e := setup(t)
	status, body := e.call(t, http.MethodGet, "/bets", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "TOKEN_REQUIRED", body.Message)

	status, _ = e.call(t, http.MethodGet, "/bets", 9999, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestBetFlow(t *testing.T) {
	e := setup(t)
	draw := nextDraw()

	status, body := e.call(t, http.MethodPost, "/bets", e.tr.Agent.ID, fiber.Map{
		"game_type": "4d", "bet_type": "big", "numbers": "1234",
		"providers": []string{"MAGNUM"}, "amount_per_provider": "600", "draw_date": draw,
	})
	require.Equal(t, http.StatusOK, status, body.Message)
	var bet models.Bet
	require.NoError(t, json.Unmarshal(body.Data, &bet))
	assert.Equal(t, models.BetPending, bet.Status)

	status, _ = e.call(t, http.MethodGet, "/bets/"+bet.ReceiptNumber, e.tr.Agent.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = e.call(t, http.MethodGet, "/bets/"+bet.ReceiptNumber, e.tr.Master.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = e.call(t, http.MethodGet, "/bets?status=PENDING&page_size=500", e.tr.Agent.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var page bets.Page
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 100, page.PageSize)

	status, _ = e.call(t, http.MethodPost, "/bets/"+bet.ReceiptNumber+"/cancel", e.tr.Agent.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, body = e.call(t, http.MethodPost, "/bets/"+bet.ReceiptNumber+"/cancel", e.tr.Agent.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", body.Code)
}

func TestPlaceBetErrors(t *testing.T) {
	e := setup(t)
	status, body := e.call(t, http.MethodPost, "/bets", e.tr.Agent.ID, fiber.Map{
		"game_type": "4D", "bet_type": "IBOX", "numbers": "1123",
		"providers": []string{"MAGNUM"}, "amount_per_provider": "10", "draw_date": nextDraw(),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "DUPLICATE_DIGITS", body.Code)

	status, body = e.call(t, http.MethodPost, "/bets", e.tr.Agent.ID, fiber.Map{
		"game_type": "4D", "bet_type": "BIG", "numbers": "1234",
		"providers": []string{"MAGNUM"}, "amount_per_provider": "100001", "draw_date": nextDraw(),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "LIMIT_EXCEEDED", body.Code)
}

func TestResultsAreAdminOnly(t *testing.T) {
	e := setup(t)
	status, body := e.call(t, http.MethodPost, "/quotas/reset", e.tr.Moderator.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body.Code)

	status, _ = e.call(t, http.MethodPost, "/quotas/reset", e.tr.Admin.ID, nil)
	assert.Equal(t, http.StatusOK, status)
}

func (e env) recordResult(t *testing.T, draw time.Time, first string) models.DrawResult {
	t.Helper()
	starters := make([]string, 10)
	consolations := make([]string, 10)
	for i := range starters {
		starters[i] = fmt.Sprintf("10%02d", i)
		consolations[i] = fmt.Sprintf("20%02d", i)
	}
	status, body := e.call(t, http.MethodPost, "/results", e.tr.Admin.ID, fiber.Map{
		"provider_code": "MAGNUM", "game_type": "4D", "draw_date": draw.Format("2006-01-02"), "draw_number": "1",
		"numbers": fiber.Map{"first": first, "second": "5678", "third": "9012", "starters": starters, "consolations": consolations},
	})
	require.Equal(t, http.StatusOK, status, body.Message)
	var r models.DrawResult
	require.NoError(t, json.Unmarshal(body.Data, &r))
	return r
}

func TestFinalizeSettles(t *testing.T) {
	e := setup(t)
	draw := nextDraw()

	status, body := e.call(t, http.MethodPost, "/bets", e.tr.Agent.ID, fiber.Map{
		"game_type": "4D", "bet_type": "BIG", "numbers": "1234",
		"providers": []string{"MAGNUM"}, "amount_per_provider": "600", "draw_date": draw,
	})
	require.Equal(t, http.StatusOK, status, body.Message)

	r := e.recordResult(t, draw, "1234")
	status, body = e.call(t, http.MethodPost, fmt.Sprintf("/results/%d/finalize", r.ID), e.tr.Admin.ID, nil)
	require.Equal(t, http.StatusOK, status, body.Message)
	var out struct {
		Settlement settlement.Summary `json:"settlement"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, 1, out.Settlement.Won)
	assert.Equal(t, 2, out.Settlement.CommissionsCreated)
}

func TestAgentManagement(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, http.MethodPost, "/agents", e.tr.Master.ID, fiber.Map{
		"username": "newbie", "weekly_limit": "1000", "commission_rate": "4",
	})
	require.Equal(t, http.StatusOK, status, body.Message)
	var created models.Agent
	require.NoError(t, json.Unmarshal(body.Data, &created))

	status, _ = e.call(t, http.MethodPut, fmt.Sprintf("/agents/%d/terms", created.ID), e.tr.Agent.ID, fiber.Map{
		"weekly_limit": "10", "commission_rate": "1",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.call(t, http.MethodPut, fmt.Sprintf("/agents/%d/terms", created.ID), e.tr.Master.ID, fiber.Map{
		"weekly_limit": "2000", "commission_rate": "6",
	})
	assert.Equal(t, http.StatusOK, status)

	status, _ = e.call(t, http.MethodPost, fmt.Sprintf("/agents/%d/deactivate", created.ID), e.tr.Moderator.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = e.call(t, http.MethodGet, "/agents/me", created.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AGENT_INACTIVE", body.Message)
}

func TestFinalizeBeforeDrawIsRejected(t *testing.T) {
	e := setup(t)
	e.results.SetClock(time.Now)
	r := e.recordResult(t, nextDraw(), "1234")

	status, body := e.call(t, http.MethodPost, fmt.Sprintf("/results/%d/finalize", r.ID), e.tr.Admin.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", body.Code)
}

func TestProviderAdmin(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, http.MethodPut, "/providers/MAGNUM/payouts", e.tr.Admin.ID, fiber.Map{
		"game_type": "4D", "bet_type": "SMALL", "tier": "FIRST", "multiplier": "3500",
	})
	require.Equal(t, http.StatusOK, status, body.Message)

	status, body = e.call(t, http.MethodPut, "/providers/MAGNUM/payouts", e.tr.Admin.ID, fiber.Map{
		"game_type": "4D", "bet_type": "SMALL", "tier": "FOURTH", "multiplier": "1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_FORMAT", body.Code)

	status, _ = e.call(t, http.MethodPut, "/providers/MAGNUM/active", e.tr.Moderator.ID, fiber.Map{"active": false})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = e.call(t, http.MethodPut, "/providers/MAGNUM/active", e.tr.Admin.ID, fiber.Map{"active": false})
	require.Equal(t, http.StatusOK, status, body.Message)

	status, body = e.call(t, http.MethodPost, "/bets", e.tr.Agent.ID, fiber.Map{
		"game_type": "4D", "bet_type": "BIG", "numbers": "1234",
		"providers": []string{"MAGNUM"}, "amount_per_provider": "10", "draw_date": nextDraw(),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "PROVIDER_INACTIVE", body.Code)
}
