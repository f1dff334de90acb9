// Package quota reserves and releases stake against each agent's weekly limit.
//
// Only the betting agent's own quota moves; ancestors' quotas are independent.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawbet/apperr"
	"drawbet/audit"
	"drawbet/logger"
	"drawbet/models"
)

type Ledger struct {
	db       *gorm.DB
	schedule Schedule
	log      *zap.Logger
}

func New(db *gorm.DB, schedule Schedule, log *zap.Logger) *Ledger {
	return &Ledger{db: db, schedule: schedule, log: logger.OrNop(log)}
}

// Reserve adds amount to the agent's weekly usage inside tx. The check and the increment are one
// conditional UPDATE, so concurrent reservations can never overshoot the limit.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, agentID uint, amount decimal.Decimal, ref string) error {
	if !amount.IsPositive() {
		return apperr.InvalidFormat("amount must be positive", apperr.Fields{"amount": amount.String()})
	}
	tx = tx.WithContext(ctx)

	res := tx.Model(&models.Agent{}).
		Where("id = ? AND is_active = ? AND weekly_used + ? <= weekly_limit", agentID, true, amount).
		Update("weekly_used", gorm.Expr("weekly_used + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("reserve quota for agent %d: %w", agentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return l.diagnose(tx, agentID, amount)
	}

	var after models.Agent
	if err := tx.Select("id", "weekly_used").First(&after, agentID).Error; err != nil {
		return fmt.Errorf("reload agent %d: %w", agentID, err)
	}
	return tx.Create(&models.AgentTransaction{
		AgentID:    agentID,
		TrxType:    models.TrxReserve,
		Amount:     amount,
		UsedBefore: after.WeeklyUsed.Sub(amount),
		UsedAfter:  after.WeeklyUsed,
		RefID:      ref,
	}).Error
}

func (l *Ledger) diagnose(tx *gorm.DB, agentID uint, amount decimal.Decimal) error {
	var a models.Agent
	err := tx.First(&a, agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("agent", agentID)
	}
	if err != nil {
		return fmt.Errorf("load agent %d: %w", agentID, err)
	}
	if !a.IsActive {
		return apperr.InvalidState("agent is inactive", apperr.Fields{"agent_id": agentID})
	}
	return apperr.New(apperr.KindLimitExceeded, "weekly limit exceeded", apperr.Fields{
		"agent_id":  agentID,
		"amount":    amount.String(),
		"remaining": a.Remaining().String(),
	})
}

// Release returns amount to the agent's weekly quota inside tx. Usage never drops below zero.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, agentID uint, amount decimal.Decimal, ref string) error {
	if !amount.IsPositive() {
		return apperr.InvalidFormat("amount must be positive", apperr.Fields{"amount": amount.String()})
	}
	tx = tx.WithContext(ctx)

	var a models.Agent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("agent", agentID)
	}
	if err != nil {
		return fmt.Errorf("load agent %d: %w", agentID, err)
	}

	after := a.WeeklyUsed.Sub(amount)
	if after.IsNegative() {
		after = decimal.Zero
	}
	if err := tx.Model(&a).Update("weekly_used", after).Error; err != nil {
		return fmt.Errorf("release quota for agent %d: %w", agentID, err)
	}
	return tx.Create(&models.AgentTransaction{
		AgentID:    agentID,
		TrxType:    models.TrxRelease,
		Amount:     amount,
		UsedBefore: a.WeeklyUsed,
		UsedAfter:  after,
		RefID:      ref,
	}).Error
}

type ResetSummary struct {
	PeriodStart time.Time       `json:"period_start"`
	Reset       int             `json:"reset"`
	Skipped     int             `json:"skipped"`
	Released    decimal.Decimal `json:"released"`
}

// ResetAll zeroes weekly usage for every active moderator and agent in one transaction. Each agent is
// reset at most once per period; a repeated trigger within the same period changes nothing.
func (l *Ledger) ResetAll(ctx context.Context, now time.Time) (ResetSummary, error) {
	period := l.schedule.PeriodStart(now)
	sum := ResetSummary{PeriodStart: period, Released: decimal.Zero}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agents []models.Agent
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("is_active = ? AND role IN ?", true, []models.Role{models.RoleModerator, models.RoleAgent}).
			Order("id").Find(&agents).Error; err != nil {
			return fmt.Errorf("load agents for reset: %w", err)
		}

		for _, a := range agents {
			entry := models.LimitResetLog{
				AgentID:      a.ID,
				PeriodStart:  period,
				ResetAt:      now,
				PreviousUsed: a.WeeklyUsed,
				NewUsed:      decimal.Zero,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
			if res.Error != nil {
				return fmt.Errorf("append reset log for agent %d: %w", a.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				sum.Skipped++
				continue
			}

			if err := tx.Model(&a).Update("weekly_used", decimal.Zero).Error; err != nil {
				return fmt.Errorf("reset agent %d: %w", a.ID, err)
			}
			if err := tx.Create(&models.AgentTransaction{
				AgentID:    a.ID,
				TrxType:    models.TrxReset,
				Amount:     a.WeeklyUsed,
				UsedBefore: a.WeeklyUsed,
				UsedAfter:  decimal.Zero,
				RefID:      period.Format(time.RFC3339),
			}).Error; err != nil {
				return err
			}
			sum.Reset++
			sum.Released = sum.Released.Add(a.WeeklyUsed)
		}

		if sum.Reset == 0 {
			return nil
		}
		return audit.Record(tx, audit.Entry{
			Action: audit.ActionQuotaReset,
			RefID:  period.Format(time.RFC3339),
			Detail: map[string]any{"reset": sum.Reset, "skipped": sum.Skipped, "released": sum.Released},
		})
	})
	if err != nil {
		return ResetSummary{}, err
	}

	l.log.Info("weekly quotas reset",
		zap.Time("period_start", period),
		zap.Int("reset", sum.Reset),
		zap.Int("skipped", sum.Skipped),
		zap.String("released", sum.Released.String()))
	return sum, nil
}
