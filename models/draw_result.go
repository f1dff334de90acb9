package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ResultStatus string

const (
	ResultPending  ResultStatus = "PENDING"
	ResultVerified ResultStatus = "VERIFIED"
	ResultFinal    ResultStatus = "FINAL"
)

const (
	StarterCount     = 10
	ConsolationCount = 10
)

type DrawResult struct {
	gorm.Model

	ProviderCode string   `gorm:"size:16;uniqueIndex:uk_result_draw;index:idx_result_day" json:"provider_code"`
	GameType     GameType `gorm:"size:4;index:idx_result_day" json:"game_type"`
	DrawDate     string   `gorm:"size:10;uniqueIndex:uk_result_draw;index:idx_result_day" json:"draw_date"`
	DrawNumber   string   `gorm:"size:32;uniqueIndex:uk_result_draw" json:"draw_number"`

	FirstPrize   string         `gorm:"size:6" json:"first_prize"`
	SecondPrize  string         `gorm:"size:6" json:"second_prize"`
	ThirdPrize   string         `gorm:"size:6" json:"third_prize"`
	Starters     datatypes.JSON `json:"starters"`
	Consolations datatypes.JSON `json:"consolations"`

	Status      ResultStatus `gorm:"size:16;index" json:"status"`
	Source      string       `gorm:"size:16" json:"source"`
	FinalizedAt *time.Time   `json:"finalized_at,omitempty"`
	SettledAt   *time.Time   `gorm:"index" json:"settled_at,omitempty"`
}

func (r *DrawResult) StarterNumbers() []string { return decodeNumbers(r.Starters) }

func (r *DrawResult) ConsolationNumbers() []string { return decodeNumbers(r.Consolations) }

func EncodeNumbers(nums []string) datatypes.JSON {
	if nums == nil {
		nums = []string{}
	}
	raw, _ := json.Marshal(nums)
	return datatypes.JSON(raw)
}

func decodeNumbers(raw datatypes.JSON) []string {
	var out []string
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
