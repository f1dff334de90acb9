// Package bets places, cancels and lists bets.
package bets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawbet/apperr"
	"drawbet/audit"
	"drawbet/betnumber"
	"drawbet/config"
	"drawbet/helpers"
	"drawbet/logger"
	"drawbet/models"
	"drawbet/providers"
	"drawbet/quota"
)

type Manager struct {
	db       *gorm.DB
	registry providers.Registry
	ledger   *quota.Ledger
	cfg      config.BettingConfig
	log      *zap.Logger
	now      func() time.Time
}

func New(db *gorm.DB, registry providers.Registry, ledger *quota.Ledger, cfg config.BettingConfig, log *zap.Logger) *Manager {
	if cfg.ReceiptAttempts <= 0 {
		cfg.ReceiptAttempts = 5
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	return &Manager{db: db, registry: registry, ledger: ledger, cfg: cfg, log: logger.OrNop(log), now: time.Now}
}

// SetClock replaces the time source used for cutoff checks.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

type PlaceRequest struct {
	AgentID           uint
	GameType          models.GameType
	BetType           models.BetType
	Numbers           string
	Providers         []string
	AmountPerProvider decimal.Decimal
	DrawDate          time.Time
}

// Place validates the request and then, in one transaction, reserves the stake, stores the bet with one
// leg per provider and records the audit entry. Any failure leaves nothing behind.
func (m *Manager) Place(ctx context.Context, req PlaceRequest) (*models.Bet, error) {
	if err := betnumber.ValidateFormat(req.GameType, req.Numbers); err != nil {
		return nil, err
	}
	if _, err := betnumber.ParseBetType(string(req.BetType)); err != nil {
		return nil, err
	}
	if req.BetType == models.BetIBox {
		if err := betnumber.ValidateIBox(req.Numbers); err != nil {
			return nil, err
		}
	}
	if !req.AmountPerProvider.IsPositive() {
		return nil, apperr.InvalidFormat("amount per provider must be positive", apperr.Fields{"amount": req.AmountPerProvider.String()})
	}
	codes := normalizeCodes(req.Providers)
	if len(codes) == 0 {
		return nil, apperr.InvalidFormat("at least one provider is required", nil)
	}

	infos := make([]*providers.Info, 0, len(codes))
	for _, code := range codes {
		info, err := m.registry.Lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		if !info.Active {
			return nil, apperr.New(apperr.KindProviderInactive, "provider is not active", apperr.Fields{"provider": code})
		}
		if !info.Supports(req.GameType, req.BetType) {
			return nil, apperr.New(apperr.KindUnsupportedGameOrBetType, "provider does not offer this game", apperr.Fields{
				"provider": code, "game_type": req.GameType, "bet_type": req.BetType,
			})
		}
		infos = append(infos, info)
	}

	now := m.now()
	if !now.Before(req.DrawDate) {
		return nil, apperr.New(apperr.KindCutoffPassed, "draw is closed for betting", apperr.Fields{
			"draw_date": req.DrawDate.Format(time.RFC3339), "now": now.Format(time.RFC3339),
		})
	}

	legs := make([]models.BetLeg, 0, len(infos))
	for _, info := range infos {
		if err := info.CheckDrawDate(req.DrawDate); err != nil {
			return nil, err
		}
		day, err := info.DrawDay(req.DrawDate)
		if err != nil {
			return nil, err
		}
		legs = append(legs, models.BetLeg{
			ProviderCode: info.Code,
			DrawDay:      day,
			Status:       models.BetPending,
			Amount:       req.AmountPerProvider,
			Multiplier:   decimal.Zero,
			Payout:       decimal.Zero,
		})
	}

	bet := &models.Bet{
		AgentID:           req.AgentID,
		GameType:          req.GameType,
		BetType:           req.BetType,
		Numbers:           req.Numbers,
		AmountPerProvider: req.AmountPerProvider,
		TotalAmount:       req.AmountPerProvider.Mul(decimal.NewFromInt(int64(len(legs)))),
		Payout:            decimal.Zero,
		DrawDate:          req.DrawDate,
		Status:            models.BetPending,
		Legs:              legs,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := m.uniqueReceipt(tx, now, req.AgentID)
		if err != nil {
			return err
		}
		bet.ReceiptNumber = receipt

		if err := m.ledger.Reserve(ctx, tx, req.AgentID, bet.TotalAmount, receipt); err != nil {
			return err
		}
		if err := tx.Create(bet).Error; err != nil {
			return fmt.Errorf("create bet: %w", err)
		}
		return audit.Record(tx, audit.Entry{
			Action:  audit.ActionBetPlaced,
			AgentID: req.AgentID,
			RefID:   receipt,
			Detail: map[string]any{
				"game_type": bet.GameType, "bet_type": bet.BetType, "numbers": bet.Numbers,
				"providers": bet.ProviderCodes(), "total_amount": bet.TotalAmount, "draw_date": bet.DrawDate,
			},
		})
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			m.log.Error("place bet failed", zap.Uint("agent_id", req.AgentID), zap.Error(err))
		}
		return nil, err
	}

	m.log.Info("bet placed",
		zap.String("receipt", bet.ReceiptNumber),
		zap.Uint("agent_id", bet.AgentID),
		zap.Strings("providers", bet.ProviderCodes()),
		zap.String("total_amount", bet.TotalAmount.String()))
	return bet, nil
}

func (m *Manager) uniqueReceipt(tx *gorm.DB, now time.Time, agentID uint) (string, error) {
	for i := 0; i < m.cfg.ReceiptAttempts; i++ {
		receipt := helpers.GenerateReceiptNumber(now, agentID)
		var n int64
		if err := tx.Model(&models.Bet{}).Where("receipt_number = ?", receipt).Count(&n).Error; err != nil {
			return "", fmt.Errorf("check receipt: %w", err)
		}
		if n == 0 {
			return receipt, nil
		}
	}
	return "", fmt.Errorf("no free receipt number after %d attempts", m.cfg.ReceiptAttempts)
}

func normalizeCodes(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Cancel voids a pending bet owned by agentID before its draw and returns the stake to the agent's quota.
// Every leg must still be pending.
func (m *Manager) Cancel(ctx context.Context, receipt string, agentID uint) (*models.Bet, error) {
	var bet models.Bet
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("receipt_number = ? AND agent_id = ?", receipt, agentID).
			First(&bet).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("bet", receipt)
		}
		if err != nil {
			return fmt.Errorf("load bet %s: %w", receipt, err)
		}
		if bet.Status != models.BetPending {
			return apperr.InvalidState("only pending bets can be cancelled", apperr.Fields{"receipt": receipt, "status": bet.Status})
		}
		now := m.now()
		if !now.Before(bet.DrawDate) {
			return apperr.New(apperr.KindCutoffPassed, "draw is closed for cancellation", apperr.Fields{
				"receipt": receipt, "draw_date": bet.DrawDate.Format(time.RFC3339),
			})
		}

		// A settled leg is final even while its siblings wait for their draws.
		var legs int64
		if err := tx.Model(&models.BetLeg{}).Where("bet_id = ?", bet.ID).Count(&legs).Error; err != nil {
			return fmt.Errorf("count legs of %s: %w", receipt, err)
		}
		res := tx.Model(&models.BetLeg{}).
			Where("bet_id = ? AND status = ?", bet.ID, models.BetPending).
			Update("status", models.BetCancelled)
		if res.Error != nil {
			return fmt.Errorf("cancel legs of %s: %w", receipt, res.Error)
		}
		if res.RowsAffected != legs {
			return apperr.InvalidState("bet has settled legs", apperr.Fields{"receipt": receipt})
		}

		res = tx.Model(&models.Bet{}).
			Where("id = ? AND status = ?", bet.ID, models.BetPending).
			Updates(map[string]any{"status": models.BetCancelled, "cancelled_at": now})
		if res.Error != nil {
			return fmt.Errorf("cancel bet %s: %w", receipt, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("bet changed state concurrently", apperr.Fields{"receipt": receipt})
		}
		if err := m.ledger.Release(ctx, tx, agentID, bet.TotalAmount, receipt); err != nil {
			return err
		}
		bet.Status = models.BetCancelled
		bet.CancelledAt = &now
		return audit.Record(tx, audit.Entry{
			Action: audit.ActionBetCancelled, AgentID: agentID, RefID: receipt,
			Detail: map[string]any{"released": bet.TotalAmount},
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("bet cancelled", zap.String("receipt", receipt), zap.Uint("agent_id", agentID))
	return &bet, nil
}

func (m *Manager) GetByReceipt(ctx context.Context, agentID uint, receipt string) (*models.Bet, error) {
	var bet models.Bet
	err := m.db.WithContext(ctx).Preload("Legs").
		Where("receipt_number = ? AND agent_id = ?", receipt, agentID).
		First(&bet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("bet", receipt)
	}
	if err != nil {
		return nil, fmt.Errorf("load bet %s: %w", receipt, err)
	}
	return &bet, nil
}

type ListFilter struct {
	Status   models.BetStatus
	GameType models.GameType
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type Page struct {
	Items    []models.Bet `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// List returns the agent's bets newest first. PageSize is capped at the configured maximum.
func (m *Manager) List(ctx context.Context, agentID uint, f ListFilter) (Page, error) {
	size := f.PageSize
	if size <= 0 {
		size = m.cfg.DefaultPageSize
	}
	if size > m.cfg.MaxPageSize {
		size = m.cfg.MaxPageSize
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	q := m.db.WithContext(ctx).Model(&models.Bet{}).Where("agent_id = ?", agentID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.GameType != "" {
		q = q.Where("game_type = ?", f.GameType)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	q = q.Session(&gorm.Session{})
	out := Page{Page: page, PageSize: size}
	if err := q.Count(&out.Total).Error; err != nil {
		return Page{}, fmt.Errorf("count bets: %w", err)
	}
	if err := q.Preload("Legs").Order("created_at DESC, id DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&out.Items).Error; err != nil {
		return Page{}, fmt.Errorf("list bets: %w", err)
	}
	return out, nil
}
