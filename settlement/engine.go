// Package settlement matches FINAL draw results against pending bets, pays winners and triggers the
// commission cascade.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawbet/apperr"
	"drawbet/audit"
	"drawbet/betnumber"
	"drawbet/commission"
	"drawbet/config"
	"drawbet/logger"
	"drawbet/models"
	"drawbet/payout"
)

type Engine struct {
	db      *gorm.DB
	table   payout.Table
	cascade *commission.Cascade
	cfg     config.SettlementConfig
	audit   *audit.Sink
	log     *zap.Logger
	now     func() time.Time
}

func New(db *gorm.DB, table payout.Table, cascade *commission.Cascade, cfg config.SettlementConfig, log *zap.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.CommissionOn == "" {
		cfg.CommissionOn = config.CommissionOnWon
	}
	log = logger.OrNop(log)
	return &Engine{db: db, table: table, cascade: cascade, cfg: cfg, audit: audit.NewSink(db, log), log: log, now: time.Now}
}

func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Summary counts bet legs by outcome. Closed counts bets that reached WON or LOST during the run.
type Summary struct {
	ResultID           uint            `json:"result_id"`
	Processed          int             `json:"processed"`
	Won                int             `json:"won"`
	Lost               int             `json:"lost"`
	Closed             int             `json:"closed"`
	Skipped            int             `json:"skipped"`
	Failed             int             `json:"failed"`
	TotalPayout        decimal.Decimal `json:"total_payout"`
	CommissionsCreated int             `json:"commissions_created"`
}

type outcome struct {
	won         bool
	payout      decimal.Decimal
	closed      bool
	commissions int
}

// Settle processes every pending leg of the result's provider and draw day. Each bet is settled in its own
// transaction; a failing bet is counted and the rest continue. Calling Settle again for the same result
// finds nothing left to do.
func (e *Engine) Settle(ctx context.Context, resultID uint) (Summary, error) {
	sum := Summary{ResultID: resultID, TotalPayout: decimal.Zero}

	var result models.DrawResult
	err := e.db.WithContext(ctx).First(&result, resultID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sum, apperr.NotFound("draw result", resultID)
	}
	if err != nil {
		return sum, fmt.Errorf("load draw result %d: %w", resultID, err)
	}
	if result.Status != models.ResultFinal {
		return sum, apperr.InvalidState("only final results can be settled", apperr.Fields{"result_id": resultID, "status": result.Status})
	}

	prizes := betnumber.PrizesOf(&result)
	var lastBetID uint
	for {
		betIDs, err := e.candidates(ctx, &result, lastBetID)
		if err != nil {
			return sum, err
		}
		if len(betIDs) == 0 {
			break
		}
		lastBetID = betIDs[len(betIDs)-1]

		for _, betID := range betIDs {
			if err := ctx.Err(); err != nil {
				e.log.Warn("settlement interrupted", zap.Uint("result_id", resultID), zap.Int("processed", sum.Processed))
				return sum, err
			}

			out, err := e.settleBet(ctx, &result, prizes, betID)
			switch {
			case errors.Is(err, apperr.ErrAlreadySettled):
				sum.Skipped++
				continue
			case err != nil:
				sum.Failed++
				e.log.Error("settle bet failed", zap.Uint("result_id", resultID), zap.Uint("bet_id", betID), zap.Error(err))
				e.audit.Append(ctx, audit.Entry{
					Action: audit.ActionSettleFailed, RefID: fmt.Sprintf("%d:%d", resultID, betID),
					Detail: map[string]any{"result_id": resultID, "bet_id": betID, "kind": apperr.KindOf(err), "error": err.Error()},
				})
				continue
			}

			sum.Processed++
			if out.won {
				sum.Won++
			} else {
				sum.Lost++
			}
			if out.closed {
				sum.Closed++
			}
			sum.TotalPayout = sum.TotalPayout.Add(out.payout)
			sum.CommissionsCreated += out.commissions
		}
	}

	if sum.Failed == 0 {
		if err := e.db.WithContext(ctx).Model(&models.DrawResult{}).
			Where("id = ? AND settled_at IS NULL", resultID).
			Update("settled_at", e.now()).Error; err != nil {
			return sum, fmt.Errorf("mark result %d settled: %w", resultID, err)
		}
	}

	e.log.Info("draw result settled",
		zap.Uint("result_id", resultID),
		zap.String("provider", result.ProviderCode),
		zap.String("draw_date", result.DrawDate),
		zap.Int("processed", sum.Processed),
		zap.Int("won", sum.Won),
		zap.Int("lost", sum.Lost),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.String("total_payout", sum.TotalPayout.String()),
		zap.Int("commissions", sum.CommissionsCreated))
	return sum, nil
}

// candidates returns the next batch of bet ids with a pending leg on the result's provider and day.
func (e *Engine) candidates(ctx context.Context, r *models.DrawResult, after uint) ([]uint, error) {
	var ids []uint
	err := e.db.WithContext(ctx).Model(&models.BetLeg{}).
		Joins("JOIN bets ON bets.id = bet_legs.bet_id AND bets.deleted_at IS NULL").
		Where("bet_legs.provider_code = ? AND bet_legs.draw_day = ? AND bet_legs.status = ?", r.ProviderCode, r.DrawDate, models.BetPending).
		Where("bets.status = ? AND bets.game_type = ? AND bets.id > ?", models.BetPending, r.GameType, after).
		Order("bets.id").
		Limit(e.cfg.BatchSize).
		Pluck("bets.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load settlement candidates: %w", err)
	}
	return ids, nil
}

type legRecord struct {
	Provider   string          `json:"provider"`
	ResultID   *uint           `json:"result_id,omitempty"`
	Status     string          `json:"status"`
	Tier       string          `json:"tier,omitempty"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
}

type settlementRecord struct {
	Status    models.BetStatus `json:"status"`
	Payout    decimal.Decimal  `json:"payout"`
	Legs      []legRecord      `json:"legs"`
	SettledAt time.Time        `json:"settled_at"`
}

func (e *Engine) settleBet(ctx context.Context, r *models.DrawResult, prizes betnumber.Prizes, betID uint) (outcome, error) {
	var out outcome
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bet models.Bet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&bet, betID).Error; err != nil {
			return fmt.Errorf("lock bet %d: %w", betID, err)
		}
		if bet.Status != models.BetPending {
			return apperr.New(apperr.KindAlreadySettled, "bet is no longer pending", apperr.Fields{"bet_id": betID, "status": bet.Status})
		}

		var leg models.BetLeg
		if err := tx.Where("bet_id = ? AND provider_code = ?", betID, r.ProviderCode).First(&leg).Error; err != nil {
			return fmt.Errorf("load leg of bet %d: %w", betID, err)
		}
		if leg.Status != models.BetPending {
			return apperr.New(apperr.KindAlreadySettled, "leg already settled", apperr.Fields{"bet_id": betID, "provider": r.ProviderCode})
		}

		set := map[string]any{"draw_result_id": r.ID}
		tier, won := betnumber.Match(bet.BetType, bet.Numbers, prizes, betnumber.Policy{BigExtendedTiers: e.cfg.BigExtendedTiers})
		if won {
			mult, err := e.table.Multiplier(ctx, tx, payout.Key{Provider: r.ProviderCode, Game: bet.GameType, Bet: bet.BetType, Tier: string(tier)})
			if err != nil {
				return err
			}
			out.won = true
			out.payout = leg.Amount.Mul(mult).Round(2)
			set["status"] = models.BetWon
			set["tier"] = string(tier)
			set["multiplier"] = mult
			set["payout"] = out.payout
		} else {
			out.payout = decimal.Zero
			set["status"] = models.BetLost
		}

		res := tx.Model(&models.BetLeg{}).Where("id = ? AND status = ?", leg.ID, models.BetPending).Updates(set)
		if res.Error != nil {
			return fmt.Errorf("settle leg %d: %w", leg.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindAlreadySettled, "leg already settled", apperr.Fields{"bet_id": betID, "provider": r.ProviderCode})
		}

		closed, commissions, err := e.closeBet(ctx, tx, &bet)
		if err != nil {
			return err
		}
		out.closed = closed
		out.commissions = commissions
		return nil
	})
	return out, err
}

// closeBet finishes the bet once none of its legs is pending: WON if any leg won, LOST otherwise.
func (e *Engine) closeBet(ctx context.Context, tx *gorm.DB, bet *models.Bet) (bool, int, error) {
	var legs []models.BetLeg
	if err := tx.Where("bet_id = ?", bet.ID).Order("id").Find(&legs).Error; err != nil {
		return false, 0, fmt.Errorf("load legs of bet %d: %w", bet.ID, err)
	}

	status := models.BetLost
	total := decimal.Zero
	records := make([]legRecord, 0, len(legs))
	for _, l := range legs {
		switch l.Status {
		case models.BetPending:
			return false, 0, nil
		case models.BetWon:
			status = models.BetWon
		}
		total = total.Add(l.Payout)
		records = append(records, legRecord{
			Provider: l.ProviderCode, ResultID: l.DrawResultID, Status: string(l.Status),
			Tier: l.Tier, Multiplier: l.Multiplier, Payout: l.Payout,
		})
	}

	now := e.now()
	payload, err := json.Marshal(settlementRecord{Status: status, Payout: total, Legs: records, SettledAt: now})
	if err != nil {
		return false, 0, fmt.Errorf("encode settlement: %w", err)
	}
	res := tx.Model(&models.Bet{}).
		Where("id = ? AND status = ?", bet.ID, models.BetPending).
		Updates(map[string]any{
			"status":     status,
			"payout":     total,
			"settlement": datatypes.JSON(payload),
			"settled_at": now,
		})
	if res.Error != nil {
		return false, 0, fmt.Errorf("close bet %d: %w", bet.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, 0, apperr.New(apperr.KindAlreadySettled, "bet is no longer pending", apperr.Fields{"bet_id": bet.ID})
	}
	bet.Status = status
	bet.Payout = total

	created := 0
	if status == models.BetWon || e.cfg.CommissionOn == config.CommissionOnSettled {
		if created, err = e.cascade.Distribute(ctx, tx, bet); err != nil {
			return false, 0, err
		}
	}

	err = audit.Record(tx, audit.Entry{
		Action: audit.ActionBetSettled, AgentID: bet.AgentID, RefID: bet.ReceiptNumber,
		Detail: map[string]any{"status": status, "payout": total, "commissions": created},
	})
	if err != nil {
		return false, 0, err
	}
	return true, created, nil
}
