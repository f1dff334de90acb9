// Package draws records provider draw results and moves them through PENDING → VERIFIED → FINAL.
package draws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"drawbet/apperr"
	"drawbet/audit"
	"drawbet/betnumber"
	"drawbet/logger"
	"drawbet/models"
	"drawbet/providers"
)

const dayLayout = "2006-01-02"

type Numbers struct {
	First        string   `json:"first"`
	Second       string   `json:"second"`
	Third        string   `json:"third"`
	Starters     []string `json:"starters"`
	Consolations []string `json:"consolations"`
}

type NewResult struct {
	ProviderCode string          `json:"provider_code"`
	GameType     models.GameType `json:"game_type"`
	DrawDate     string          `json:"draw_date"`
	DrawNumber   string          `json:"draw_number"`
	Numbers      Numbers         `json:"numbers"`
	Source       string          `json:"source"`
}

type Service struct {
	db       *gorm.DB
	registry providers.Registry
	log      *zap.Logger
	now      func() time.Time
}

func New(db *gorm.DB, registry providers.Registry, log *zap.Logger) *Service {
	return &Service{db: db, registry: registry, log: logger.OrNop(log), now: time.Now}
}

// SetClock replaces the time source used to decide whether a draw has taken place.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func validateNumbers(game models.GameType, n Numbers) error {
	for _, num := range []string{n.First, n.Second, n.Third} {
		if err := betnumber.ValidateFormat(game, num); err != nil {
			return err
		}
	}
	if len(n.Starters) != models.StarterCount {
		return apperr.InvalidFormat("wrong number of starter prizes", apperr.Fields{"expected": models.StarterCount, "actual": len(n.Starters)})
	}
	if len(n.Consolations) != models.ConsolationCount {
		return apperr.InvalidFormat("wrong number of consolation prizes", apperr.Fields{"expected": models.ConsolationCount, "actual": len(n.Consolations)})
	}
	for _, list := range [][]string{n.Starters, n.Consolations} {
		for _, num := range list {
			if err := betnumber.ValidateFormat(game, num); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in NewResult) (*models.DrawResult, error) {
	code := strings.ToUpper(strings.TrimSpace(in.ProviderCode))
	info, err := s.registry.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !info.OffersGame(in.GameType) {
		return nil, apperr.New(apperr.KindUnsupportedGameOrBetType, "provider does not draw this game", apperr.Fields{
			"provider": code, "game_type": in.GameType,
		})
	}
	if _, err := time.Parse(dayLayout, in.DrawDate); err != nil {
		return nil, apperr.InvalidFormat("draw date must be YYYY-MM-DD", apperr.Fields{"draw_date": in.DrawDate})
	}
	if strings.TrimSpace(in.DrawNumber) == "" {
		return nil, apperr.InvalidFormat("draw number is required", nil)
	}
	if err := validateNumbers(in.GameType, in.Numbers); err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = "MANUAL"
	}
	r := &models.DrawResult{
		ProviderCode: code,
		GameType:     in.GameType,
		DrawDate:     in.DrawDate,
		DrawNumber:   in.DrawNumber,
		FirstPrize:   in.Numbers.First,
		SecondPrize:  in.Numbers.Second,
		ThirdPrize:   in.Numbers.Third,
		Starters:     models.EncodeNumbers(in.Numbers.Starters),
		Consolations: models.EncodeNumbers(in.Numbers.Consolations),
		Status:       models.ResultPending,
		Source:       source,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.DrawResult{}).
			Where("provider_code = ? AND draw_date = ? AND draw_number = ?", r.ProviderCode, r.DrawDate, r.DrawNumber).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.InvalidState("result already recorded", apperr.Fields{
				"provider": r.ProviderCode, "draw_date": r.DrawDate, "draw_number": r.DrawNumber,
			})
		}
		if err := tx.Create(r).Error; err != nil {
			return fmt.Errorf("create draw result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("draw result recorded", zap.Uint("result_id", r.ID), zap.String("provider", r.ProviderCode), zap.String("draw_date", r.DrawDate))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.DrawResult, error) {
	var r models.DrawResult
	err := s.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("draw result", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load draw result %d: %w", id, err)
	}
	return &r, nil
}

// Update replaces the winning numbers of a result that is not FINAL yet.
func (s *Service) Update(ctx context.Context, id uint, n Numbers) (*models.DrawResult, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateNumbers(r.GameType, n); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.DrawResult{}).
			Where("id = ? AND status <> ?", id, models.ResultFinal).
			Updates(map[string]any{
				"first_prize":  n.First,
				"second_prize": n.Second,
				"third_prize":  n.Third,
				"starters":     models.EncodeNumbers(n.Starters),
				"consolations": models.EncodeNumbers(n.Consolations),
			})
		if res.Error != nil {
			return fmt.Errorf("update draw result %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("final results cannot be edited", apperr.Fields{"result_id": id})
		}
		return audit.Record(tx, audit.Entry{Action: audit.ActionResultUpdated, RefID: fmt.Sprint(id), Detail: map[string]any{"numbers": n}})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Verify(ctx context.Context, id uint) (*models.DrawResult, error) {
	err := s.transition(s.db.WithContext(ctx), id, []models.ResultStatus{models.ResultPending}, map[string]any{"status": models.ResultVerified})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Finalize makes the result terminal. Settlement only reads FINAL results, so a result cannot be finalized
// before its provider has drawn: bets on that draw are still open until then.
func (s *Service) Finalize(ctx context.Context, id uint) (*models.DrawResult, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	info, err := s.registry.Lookup(ctx, r.ProviderCode)
	if err != nil {
		return nil, err
	}
	drawAt, err := info.DrawInstant(r.DrawDate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if now.Before(drawAt) {
		return nil, apperr.InvalidState("draw has not taken place yet", apperr.Fields{
			"result_id": id, "provider": r.ProviderCode, "draw_at": drawAt.Format(time.RFC3339),
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, id, []models.ResultStatus{models.ResultPending, models.ResultVerified},
			map[string]any{"status": models.ResultFinal, "finalized_at": now}); err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Action: audit.ActionResultFinalize, RefID: fmt.Sprint(id),
			Detail: map[string]any{"provider": r.ProviderCode, "draw_date": r.DrawDate, "draw_number": r.DrawNumber},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("draw result finalized", zap.Uint("result_id", id), zap.String("provider", r.ProviderCode), zap.String("draw_date", r.DrawDate))
	return s.Get(ctx, id)
}

func (s *Service) transition(tx *gorm.DB, id uint, from []models.ResultStatus, set map[string]any) error {
	res := tx.Model(&models.DrawResult{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(set)
	if res.Error != nil {
		return fmt.Errorf("update draw result %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		var r models.DrawResult
		err := tx.Select("id", "status").First(&r, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("draw result", id)
		}
		if err != nil {
			return fmt.Errorf("load draw result %d: %w", id, err)
		}
		return apperr.InvalidState("illegal result transition", apperr.Fields{
			"result_id": id, "status": r.Status, "to": set["status"],
		})
	}
	return nil
}

// ListUnsettledFinal returns FINAL results that have not been swept by settlement yet, oldest first.
func (s *Service) ListUnsettledFinal(ctx context.Context, limit int) ([]models.DrawResult, error) {
	var out []models.DrawResult
	err := s.db.WithContext(ctx).
		Where("status = ? AND settled_at IS NULL", models.ResultFinal).
		Order("finalized_at, id").Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list unsettled results: %w", err)
	}
	return out, nil
}
