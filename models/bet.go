package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GameType string

const (
	Game3D GameType = "3D"
	Game4D GameType = "4D"
	Game5D GameType = "5D"
	Game6D GameType = "6D"
)

type BetType string

const (
	BetBig   BetType = "BIG"
	BetSmall BetType = "SMALL"
	BetIBox  BetType = "IBOX"
)

type BetStatus string

const (
	BetPending   BetStatus = "PENDING"
	BetWon       BetStatus = "WON"
	BetLost      BetStatus = "LOST"
	BetCancelled BetStatus = "CANCELLED"
)

type Bet struct {
	gorm.Model

	ReceiptNumber string   `gorm:"uniqueIndex;size:40" json:"receipt_number"`
	AgentID       uint     `gorm:"index;not null" json:"agent_id"`
	GameType      GameType `gorm:"size:4;index" json:"game_type"`
	BetType       BetType  `gorm:"size:8" json:"bet_type"`
	Numbers       string   `gorm:"size:6" json:"numbers"`

	AmountPerProvider decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount_per_provider"`
	TotalAmount       decimal.Decimal `gorm:"type:numeric(18,2)" json:"total_amount"`
	Payout            decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"payout"`

	DrawDate time.Time `gorm:"index" json:"draw_date"`
	Status   BetStatus `gorm:"size:16;index" json:"status"`

	Settlement  datatypes.JSON `json:"settlement,omitempty"`
	SettledAt   *time.Time     `json:"settled_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`

	Legs []BetLeg `gorm:"foreignKey:BetID;constraint:OnDelete:CASCADE" json:"legs"`
}

// ProviderCodes lists the providers the bet was placed on.
func (b *Bet) ProviderCodes() []string {
	codes := make([]string, 0, len(b.Legs))
	for _, l := range b.Legs {
		codes = append(codes, l.ProviderCode)
	}
	return codes
}

// BetLeg is the share of a bet wagered on one provider's draw.
type BetLeg struct {
	gorm.Model

	BetID        uint      `gorm:"uniqueIndex:uk_bet_leg_provider;not null" json:"-"`
	ProviderCode string    `gorm:"uniqueIndex:uk_bet_leg_provider;index:idx_leg_draw;size:16" json:"provider_code"`
	DrawDay      string    `gorm:"index:idx_leg_draw;size:10" json:"draw_day"`
	Status       BetStatus `gorm:"index:idx_leg_draw;size:16" json:"status"`

	Amount       decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	Tier         string          `gorm:"size:16" json:"tier,omitempty"`
	Multiplier   decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"multiplier"`
	Payout       decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"payout"`
	DrawResultID *uint           `json:"draw_result_id,omitempty"`
}
