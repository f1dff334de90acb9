package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionEntry is immutable once written; one row per (bet, beneficiary).
type CommissionEntry struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	BetID     uint            `gorm:"uniqueIndex:uk_commission_bet_agent;not null" json:"bet_id"`
	AgentID   uint            `gorm:"uniqueIndex:uk_commission_bet_agent;index;not null" json:"agent_id"`
	Level     int             `json:"level"`
	Stake     decimal.Decimal `gorm:"type:numeric(18,2)" json:"stake"`
	Rate      decimal.Decimal `gorm:"type:numeric(5,2)" json:"rate"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// LimitResetLog is the append-only trail of weekly quota resets.
type LimitResetLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	AgentID      uint            `gorm:"uniqueIndex:uk_reset_agent_period;not null" json:"agent_id"`
	PeriodStart  time.Time       `gorm:"uniqueIndex:uk_reset_agent_period;not null" json:"period_start"`
	ResetAt      time.Time       `json:"reset_at"`
	PreviousUsed decimal.Decimal `gorm:"type:numeric(18,2)" json:"previous_used"`
	NewUsed      decimal.Decimal `gorm:"type:numeric(18,2)" json:"new_used"`
}
