package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
	RoleAgent     Role = "AGENT"
)

type Agent struct {
	gorm.Model

	Username    string `gorm:"uniqueIndex;size:32" json:"username"`
	Role        Role   `gorm:"size:16;index;not null" json:"role"`
	UplineID    *uint  `gorm:"index" json:"upline_id"`
	ModeratorID *uint  `gorm:"index" json:"moderator_id"`

	WeeklyLimit      decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"weekly_limit"`
	WeeklyUsed       decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"weekly_used"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"commission_rate"`
	CommissionEarned decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"commission_earned"`

	CanCreateSubs bool `json:"can_create_subs"`
	IsActive      bool `gorm:"index" json:"is_active"`

	Transactions []AgentTransaction `gorm:"foreignKey:AgentID" json:"-"`
}

// Remaining is the unreserved part of the weekly limit.
func (a *Agent) Remaining() decimal.Decimal {
	r := a.WeeklyLimit.Sub(a.WeeklyUsed)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

const (
	TrxReserve = "RESERVE"
	TrxRelease = "RELEASE"
	TrxReset   = "RESET"
)

// AgentTransaction is one movement of an agent's weekly quota.
type AgentTransaction struct {
	gorm.Model

	AgentID    uint            `gorm:"index"`
	TrxType    string          `gorm:"size:16"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	UsedBefore decimal.Decimal `gorm:"type:numeric(18,2)" json:"used_before"`
	UsedAfter  decimal.Decimal `gorm:"type:numeric(18,2)" json:"used_after"`
	Note       string          `gorm:"size:255"`
	RefID      string          `gorm:"size:64;index"`
}
