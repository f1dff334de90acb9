// Package payout looks up the business-supplied multiplier for a matched prize tier.
package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawbet/apperr"
	"drawbet/betnumber"
	"drawbet/models"
)

type Key struct {
	Provider string
	Game     models.GameType
	Bet      models.BetType
	Tier     string
}

type Table interface {
	Multiplier(ctx context.Context, tx *gorm.DB, k Key) (decimal.Decimal, error)
}

type DBTable struct{}

func NewTable() *DBTable { return &DBTable{} }

// Multiplier fails with PayoutMissing when no rate row exists for k.
func (DBTable) Multiplier(ctx context.Context, tx *gorm.DB, k Key) (decimal.Decimal, error) {
	var rate models.PayoutRate
	err := tx.WithContext(ctx).
		Where("provider_code = ? AND game_type = ? AND bet_type = ? AND tier = ?", k.Provider, k.Game, k.Bet, k.Tier).
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, apperr.New(apperr.KindPayoutMissing, "no payout multiplier configured", apperr.Fields{
			"provider": k.Provider, "game_type": k.Game, "bet_type": k.Bet, "tier": k.Tier,
		})
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load payout rate: %w", err)
	}
	return rate.Multiplier, nil
}

// Upsert sets the multiplier for k, replacing any existing one.
func Upsert(ctx context.Context, db *gorm.DB, k Key, multiplier decimal.Decimal) error {
	if !multiplier.IsPositive() {
		return apperr.InvalidFormat("multiplier must be positive", apperr.Fields{"multiplier": multiplier.String()})
	}
	k, err := normalize(k)
	if err != nil {
		return err
	}
	row := models.PayoutRate{ProviderCode: k.Provider, GameType: k.Game, BetType: k.Bet, Tier: k.Tier, Multiplier: multiplier}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_code"}, {Name: "game_type"}, {Name: "bet_type"}, {Name: "tier"}},
		DoUpdates: clause.AssignmentColumns([]string{"multiplier", "updated_at"}),
	}).Create(&row).Error
}

func normalize(k Key) (Key, error) {
	game, err := betnumber.ParseGameType(string(k.Game))
	if err != nil {
		return k, err
	}
	bet, err := betnumber.ParseBetType(string(k.Bet))
	if err != nil {
		return k, err
	}
	tier, err := betnumber.ParseTier(k.Tier)
	if err != nil {
		return k, err
	}
	return Key{Provider: strings.ToUpper(strings.TrimSpace(k.Provider)), Game: game, Bet: bet, Tier: string(tier)}, nil
}
