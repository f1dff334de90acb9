package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"drawbet/apperr"
	"drawbet/audit"
	"drawbet/bets"
	"drawbet/commission"
	"drawbet/config"
	"drawbet/dbtest"
	"drawbet/draws"
	"drawbet/models"
	"drawbet/payout"
	"drawbet/providers"
	"drawbet/quota"
)

var (
	placedAt = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	drawAt   = time.Date(2026, 10, 19, 19, 0, 0, 0, time.UTC)
)

type fixture struct {
	db      *gorm.DB
	tr      dbtest.Tree
	bets    *bets.Manager
	results *draws.Service
	engine  *Engine
}

func setup(t *testing.T, cfg config.SettlementConfig) fixture {
	t.Helper()
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	dbtest.SeedProvider(t, db, "MAGNUM")
	dbtest.SeedProvider(t, db, "TOTO")
	dbtest.SeedPayout(t, db, "MAGNUM", models.Game4D, models.BetBig, "FIRST", "2500")
	dbtest.SeedPayout(t, db, "MAGNUM", models.Game4D, models.BetBig, "SECOND", "1000")
	dbtest.SeedPayout(t, db, "MAGNUM", models.Game4D, models.BetIBox, "FIRST", "100")
	dbtest.SeedPayout(t, db, "TOTO", models.Game4D, models.BetBig, "FIRST", "2000")

	registry := providers.NewStore(db, nil)
	ledger := quota.New(db, quota.Schedule{Weekday: time.Monday, Loc: time.UTC}, nil)
	mgr := bets.New(db, registry, ledger, config.BettingConfig{MaxPageSize: 100, ReceiptAttempts: 5}, nil)
	mgr.SetClock(func() time.Time { return placedAt })

	results := draws.New(db, registry, nil)
	results.SetClock(func() time.Time { return drawAt.Add(time.Hour) })

	return fixture{
		db:      db,
		tr:      tr,
		bets:    mgr,
		results: results,
		engine:  New(db, payout.NewTable(), commission.New(nil), cfg, nil),
	}
}

func (f fixture) place(t *testing.T, numbers string, bt models.BetType, amount string, codes ...string) *models.Bet {
	t.Helper()
	bet, err := f.bets.Place(context.Background(), bets.PlaceRequest{
		AgentID: f.tr.Agent.ID, GameType: models.Game4D, BetType: bt, Numbers: numbers,
		Providers: codes, AmountPerProvider: dbtest.D(amount), DrawDate: drawAt,
	})
	require.NoError(t, err)
	return bet
}

func fill(prefix string) []string {
	out := make([]string, 10)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func (f fixture) final(t *testing.T, code, first, second string) uint {
	t.Helper()
	ctx := context.Background()
	r, err := f.results.Create(ctx, draws.NewResult{
		ProviderCode: code, GameType: models.Game4D, DrawDate: "2026-10-19", DrawNumber: code + "-1",
		Numbers: draws.Numbers{First: first, Second: second, Third: "0003", Starters: fill("100"), Consolations: fill("200")},
	})
	require.NoError(t, err)
	_, err = f.results.Finalize(ctx, r.ID)
	require.NoError(t, err)
	return r.ID
}

func reload(t *testing.T, db *gorm.DB, id uint) models.Bet {
	t.Helper()
	var b models.Bet
	require.NoError(t, db.Preload("Legs").First(&b, id).Error)
	return b
}

func TestSettleWinEndToEnd(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	bet := f.place(t, "1234", models.BetBig, "600", "MAGNUM")
	resultID := f.final(t, "MAGNUM", "1234", "5678")

	sum, err := f.engine.Settle(context.Background(), resultID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Won)
	assert.Equal(t, 1, sum.Closed)
	assert.Equal(t, 2, sum.CommissionsCreated)
	assert.True(t, sum.TotalPayout.Equal(dbtest.D("1500000")))

	got := reload(t, f.db, bet.ID)
	assert.Equal(t, models.BetWon, got.Status)
	assert.True(t, got.Payout.Equal(dbtest.D("1500000")))
	require.NotNil(t, got.SettledAt)
	assert.Equal(t, "FIRST", got.Legs[0].Tier)

	var record settlementRecord
	require.NoError(t, json.Unmarshal(got.Settlement, &record))
	assert.Equal(t, models.BetWon, record.Status)
	require.Len(t, record.Legs, 1)
	assert.Equal(t, "MAGNUM", record.Legs[0].Provider)

	// the stake stays reserved for a won bet
	assert.True(t, dbtest.ReloadAgent(t, f.db, f.tr.Agent.ID).WeeklyUsed.Equal(dbtest.D("600")))

	var entries []models.CommissionEntry
	require.NoError(t, f.db.Where("bet_id = ?", bet.ID).Find(&entries).Error)
	require.Len(t, entries, 2)
	total := dbtest.D("0")
	for _, e := range entries {
		assert.False(t, e.Amount.IsNegative())
		total = total.Add(e.Amount)
	}
	assert.True(t, total.LessThanOrEqual(dbtest.D("60")), total.String())

	var r models.DrawResult
	require.NoError(t, f.db.First(&r, resultID).Error)
	assert.NotNil(t, r.SettledAt)
}

func TestSettleTwiceIsIdempotent(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	bet := f.place(t, "1234", models.BetBig, "600", "MAGNUM")
	resultID := f.final(t, "MAGNUM", "1234", "5678")
	ctx := context.Background()

	_, err := f.engine.Settle(ctx, resultID)
	require.NoError(t, err)
	sum, err := f.engine.Settle(ctx, resultID)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.Zero(t, sum.CommissionsCreated)

	var n int64
	f.db.Model(&models.CommissionEntry{}).Where("bet_id = ?", bet.ID).Count(&n)
	assert.Equal(t, int64(2), n)
	assert.True(t, dbtest.ReloadAgent(t, f.db, f.tr.Moderator.ID).CommissionEarned.Equal(dbtest.D("18")))
}

func TestSettleLoss(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	bet := f.place(t, "9999", models.BetBig, "600", "MAGNUM")
	small := f.place(t, "5678", models.BetSmall, "100", "MAGNUM")
	resultID := f.final(t, "MAGNUM", "1234", "5678")

	sum, err := f.engine.Settle(context.Background(), resultID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Lost)
	assert.Zero(t, sum.CommissionsCreated)

	got := reload(t, f.db, bet.ID)
	assert.Equal(t, models.BetLost, got.Status)
	assert.True(t, got.Payout.IsZero())
	assert.Equal(t, models.BetLost, reload(t, f.db, small.ID).Status)

	// a lost stake is not returned to the quota
	assert.True(t, dbtest.ReloadAgent(t, f.db, f.tr.Agent.ID).WeeklyUsed.Equal(dbtest.D("700")))
}

func TestSettleCommissionOnEverySettledBet(t *testing.T) {
	f := setup(t, config.SettlementConfig{CommissionOn: config.CommissionOnSettled})
	bet := f.place(t, "9999", models.BetBig, "600", "MAGNUM")
	resultID := f.final(t, "MAGNUM", "1234", "5678")

	sum, err := f.engine.Settle(context.Background(), resultID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Lost)
	assert.Equal(t, 2, sum.CommissionsCreated)
	assert.Equal(t, models.BetLost, reload(t, f.db, bet.ID).Status)
}

func TestSettleIBoxPermutation(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	win := f.place(t, "4321", models.BetIBox, "10", "MAGNUM")
	lose := f.place(t, "8765", models.BetIBox, "10", "MAGNUM")
	resultID := f.final(t, "MAGNUM", "1234", "5678")

	_, err := f.engine.Settle(context.Background(), resultID)
	require.NoError(t, err)

	got := reload(t, f.db, win.ID)
	assert.Equal(t, models.BetWon, got.Status)
	assert.True(t, got.Payout.Equal(dbtest.D("1000")))
	// IBOX only pays on the first prize
	assert.Equal(t, models.BetLost, reload(t, f.db, lose.ID).Status)
}

func TestSettleMultiProvider(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	bet := f.place(t, "1234", models.BetBig, "100", "MAGNUM", "TOTO")
	ctx := context.Background()

	magnum := f.final(t, "MAGNUM", "5555", "1234")
	sum, err := f.engine.Settle(ctx, magnum)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Won)
	assert.Zero(t, sum.Closed)
	assert.Equal(t, models.BetPending, reload(t, f.db, bet.ID).Status)

	toto := f.final(t, "TOTO", "0000", "1111")
	sum, err = f.engine.Settle(ctx, toto)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Lost)
	assert.Equal(t, 1, sum.Closed)

	got := reload(t, f.db, bet.ID)
	assert.Equal(t, models.BetWon, got.Status)
	assert.True(t, got.Payout.Equal(dbtest.D("100000")))
	assert.Equal(t, 2, sum.CommissionsCreated)
}

func TestSettleMissingPayoutLeavesBetPending(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	bet := f.place(t, "1234", models.BetSmall, "50", "MAGNUM")
	resultID := f.final(t, "MAGNUM", "1234", "5678")
	ctx := context.Background()

	sum, err := f.engine.Settle(ctx, resultID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, models.BetPending, reload(t, f.db, bet.ID).Status)

	var r models.DrawResult
	require.NoError(t, f.db.First(&r, resultID).Error)
	assert.Nil(t, r.SettledAt)

	var entry models.AuditLog
	require.NoError(t, f.db.Where("action = ?", audit.ActionSettleFailed).First(&entry).Error)
	assert.Equal(t, fmt.Sprintf("%d:%d", resultID, bet.ID), entry.RefID)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(entry.Detail, &detail))
	assert.Equal(t, string(apperr.KindPayoutMissing), detail["kind"])

	require.NoError(t, payout.Upsert(ctx, f.db, payout.Key{Provider: "MAGNUM", Game: models.Game4D, Bet: models.BetSmall, Tier: "FIRST"}, dbtest.D("3500")))
	sum, err = f.engine.Settle(ctx, resultID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Won)
	assert.True(t, reload(t, f.db, bet.ID).Payout.Equal(dbtest.D("175000")))
}

func TestSettleSkipsCancelledAndRequiresFinal(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	ctx := context.Background()
	bet := f.place(t, "1234", models.BetBig, "100", "MAGNUM")
	_, err := f.bets.Cancel(ctx, bet.ReceiptNumber, f.tr.Agent.ID)
	require.NoError(t, err)

	r, err := f.results.Create(ctx, draws.NewResult{
		ProviderCode: "MAGNUM", GameType: models.Game4D, DrawDate: "2026-10-19", DrawNumber: "X",
		Numbers: draws.Numbers{First: "1234", Second: "0001", Third: "0002", Starters: fill("100"), Consolations: fill("200")},
	})
	require.NoError(t, err)

	_, err = f.engine.Settle(ctx, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = f.engine.Settle(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.results.Finalize(ctx, r.ID)
	require.NoError(t, err)
	sum, err := f.engine.Settle(ctx, r.ID)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.Equal(t, models.BetCancelled, reload(t, f.db, bet.ID).Status)
}

func TestSettleStopsOnCancelledContext(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	f.place(t, "1234", models.BetBig, "100", "MAGNUM")
	resultID := f.final(t, "MAGNUM", "1234", "5678")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Settle(ctx, resultID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSettledLegBlocksCancelAndLateBets(t *testing.T) {
	f := setup(t, config.SettlementConfig{})
	ctx := context.Background()
	bet := f.place(t, "1234", models.BetBig, "100", "MAGNUM", "TOTO")

	r, err := f.results.Create(ctx, draws.NewResult{
		ProviderCode: "MAGNUM", GameType: models.Game4D, DrawDate: "2026-10-19", DrawNumber: "M-1",
		Numbers: draws.Numbers{First: "1234", Second: "5678", Third: "0003", Starters: fill("100"), Consolations: fill("200")},
	})
	require.NoError(t, err)

	f.results.SetClock(func() time.Time { return placedAt })
	_, err = f.results.Finalize(ctx, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = f.engine.Settle(ctx, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	f.results.SetClock(func() time.Time { return drawAt })
	_, err = f.results.Finalize(ctx, r.ID)
	require.NoError(t, err)
	sum, err := f.engine.Settle(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Won)
	assert.Equal(t, 0, sum.Closed)

	// the bet stays open on TOTO, but its MAGNUM leg is settled
	_, err = f.bets.Cancel(ctx, bet.ReceiptNumber, f.tr.Agent.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	got := reload(t, f.db, bet.ID)
	assert.Equal(t, models.BetPending, got.Status)
	for _, leg := range got.Legs {
		if leg.ProviderCode == "MAGNUM" {
			assert.Equal(t, models.BetWon, leg.Status)
			assert.True(t, leg.Payout.Equal(dbtest.D("250000")))
		}
	}
	assert.True(t, dbtest.ReloadAgent(t, f.db, f.tr.Agent.ID).WeeklyUsed.Equal(dbtest.D("200")))

	// once the draw has happened nothing new can be placed on it
	f.bets.SetClock(func() time.Time { return drawAt })
	_, err = f.bets.Place(ctx, bets.PlaceRequest{
		AgentID: f.tr.Agent.ID, GameType: models.Game4D, BetType: models.BetBig, Numbers: "1234",
		Providers: []string{"MAGNUM"}, AmountPerProvider: dbtest.D("10"), DrawDate: drawAt,
	})
	assert.ErrorIs(t, err, apperr.ErrCutoffPassed)
}
