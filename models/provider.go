package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Provider struct {
	gorm.Model

	Code     string `gorm:"uniqueIndex;size:16" json:"code"`
	Name     string `gorm:"size:64" json:"name"`
	IsActive bool   `gorm:"index" json:"is_active"`

	// Comma separated, e.g. "3D,4D" and "BIG,SMALL,IBOX".
	GameTypes string `gorm:"size:64" json:"game_types"`
	BetTypes  string `gorm:"size:64" json:"bet_types"`

	// DrawDays is a comma separated weekday list ("WED,SAT,SUN"); DrawTime is "HH:MM" in Timezone.
	DrawDays string `gorm:"size:32" json:"draw_days"`
	DrawTime string `gorm:"size:5" json:"draw_time"`
	Timezone string `gorm:"size:64" json:"timezone"`

	APIKeySealed []byte `json:"-"`
}

// PayoutRate is a business-supplied multiplier for one prize tier.
type PayoutRate struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ProviderCode string          `gorm:"size:16;uniqueIndex:uk_payout_rate" json:"provider_code"`
	GameType     GameType        `gorm:"size:4;uniqueIndex:uk_payout_rate" json:"game_type"`
	BetType      BetType         `gorm:"size:8;uniqueIndex:uk_payout_rate" json:"bet_type"`
	Tier         string          `gorm:"size:16;uniqueIndex:uk_payout_rate" json:"tier"`
	Multiplier   decimal.Decimal `gorm:"type:numeric(18,4)" json:"multiplier"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type AuditLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Action    string         `gorm:"size:32;index" json:"action"`
	AgentID   uint           `gorm:"index" json:"agent_id"`
	RefID     string         `gorm:"size:64;index" json:"ref_id"`
	Detail    datatypes.JSON `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}
