// Package commission credits the differential commission of a settled bet up the agent chain.
//
// For a chain owner → P1 → … → moderator, Pi earns stake × (rate(Pi) − rate(Pi−1)) / 100. The owner
// earns nothing unless it is the moderator itself, in which case it takes its full rate.
package commission

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawbet/apperr"
	"drawbet/hierarchy"
	"drawbet/logger"
	"drawbet/models"
)

var hundred = decimal.NewFromInt(100)

type Share struct {
	AgentID uint
	Level   int
	Rate    decimal.Decimal
	Amount  decimal.Decimal
}

func Compute(stake decimal.Decimal, chain []models.Agent) ([]Share, error) {
	if len(chain) == 0 {
		return nil, apperr.InvalidHierarchy("empty ancestor chain", nil)
	}
	if chain[0].Role == models.RoleModerator {
		m := chain[0]
		return []Share{{AgentID: m.ID, Level: 0, Rate: m.CommissionRate, Amount: amount(stake, m.CommissionRate)}}, nil
	}

	shares := make([]Share, 0, len(chain)-1)
	for i := 1; i < len(chain); i++ {
		spread := chain[i].CommissionRate.Sub(chain[i-1].CommissionRate)
		if spread.IsNegative() {
			return nil, apperr.InvalidHierarchy("commission rate decreases up the chain", apperr.Fields{
				"agent_id":   chain[i].ID,
				"rate":       chain[i].CommissionRate.String(),
				"child_id":   chain[i-1].ID,
				"child_rate": chain[i-1].CommissionRate.String(),
			})
		}
		shares = append(shares, Share{AgentID: chain[i].ID, Level: i, Rate: spread, Amount: amount(stake, spread)})
	}
	return shares, nil
}

func amount(stake, rate decimal.Decimal) decimal.Decimal {
	return stake.Mul(rate).Div(hundred).Truncate(2)
}

type Cascade struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Cascade {
	return &Cascade{log: logger.OrNop(log)}
}

// Distribute writes one entry per ancestor of bet inside tx and returns how many were new.
// Entries that already exist for the bet are left alone and not credited again.
func (c *Cascade) Distribute(ctx context.Context, tx *gorm.DB, bet *models.Bet) (int, error) {
	chain, err := hierarchy.AncestorChain(ctx, tx, bet.AgentID)
	if err != nil {
		return 0, err
	}
	shares, err := Compute(bet.TotalAmount, chain)
	if err != nil {
		return 0, err
	}

	tx = tx.WithContext(ctx)
	created := 0
	for _, s := range shares {
		entry := models.CommissionEntry{
			BetID:   bet.ID,
			AgentID: s.AgentID,
			Level:   s.Level,
			Stake:   bet.TotalAmount,
			Rate:    s.Rate,
			Amount:  s.Amount,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if res.Error != nil {
			return created, fmt.Errorf("write commission for agent %d: %w", s.AgentID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		created++
		if s.Amount.IsZero() {
			continue
		}
		if err := tx.Model(&models.Agent{}).Where("id = ?", s.AgentID).
			Update("commission_earned", gorm.Expr("commission_earned + ?", s.Amount)).Error; err != nil {
			return created, fmt.Errorf("credit agent %d: %w", s.AgentID, err)
		}
	}

	c.log.Debug("commission distributed", zap.Uint("bet_id", bet.ID), zap.Int("created", created), zap.Int("chain", len(chain)))
	return created, nil
}
