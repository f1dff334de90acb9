// Package hierarchy maintains the agent tree: positions, limits and commission rates.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawbet/apperr"
	"drawbet/audit"
	"drawbet/logger"
	"drawbet/models"
)

var hundred = decimal.NewFromInt(100)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: logger.OrNop(log)}
}

func (s *Store) Get(ctx context.Context, id uint) (*models.Agent, error) {
	return load(s.db.WithContext(ctx), id, false)
}

// Children returns the direct sub-agents of id.
func (s *Store) Children(ctx context.Context, id uint) ([]models.Agent, error) {
	var out []models.Agent
	if err := s.db.WithContext(ctx).Where("upline_id = ?", id).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load children of %d: %w", id, err)
	}
	return out, nil
}

func load(tx *gorm.DB, id uint, lock bool) (*models.Agent, error) {
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var a models.Agent
	err := q.First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("agent", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load agent %d: %w", id, err)
	}
	return &a, nil
}

// AncestorChain returns the agent followed by its uplines up to and including the owning moderator.
// The walk stops at the first MODERATOR, at a node without upline, or before an ADMIN.
func AncestorChain(ctx context.Context, tx *gorm.DB, agentID uint) ([]models.Agent, error) {
	tx = tx.WithContext(ctx)
	cur, err := load(tx, agentID, false)
	if err != nil {
		return nil, err
	}

	chain := []models.Agent{*cur}
	visited := map[uint]bool{cur.ID: true}
	for cur.Role != models.RoleModerator && cur.UplineID != nil {
		next, err := load(tx, *cur.UplineID, false)
		if err != nil {
			return nil, err
		}
		if visited[next.ID] {
			return nil, apperr.InvalidHierarchy("cycle in upline chain", apperr.Fields{"agent_id": agentID, "repeated": next.ID})
		}
		if next.Role == models.RoleAdmin {
			break
		}
		visited[next.ID] = true
		chain = append(chain, *next)
		cur = next
	}
	return chain, nil
}

func (s *Store) AncestorChain(ctx context.Context, agentID uint) ([]models.Agent, error) {
	return AncestorChain(ctx, s.db, agentID)
}

// RateCeiling is the highest commission rate a child of parentID may hold.
func (s *Store) RateCeiling(ctx context.Context, parentID uint) (decimal.Decimal, error) {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return decimal.Zero, err
	}
	return rateCeiling(parent), nil
}

// LimitCeiling is the highest weekly limit a child of parentID may hold. unlimited is true under an ADMIN.
func (s *Store) LimitCeiling(ctx context.Context, parentID uint) (ceiling decimal.Decimal, unlimited bool, err error) {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return decimal.Zero, false, err
	}
	c, u := limitCeiling(parent)
	return c, u, nil
}

func rateCeiling(parent *models.Agent) decimal.Decimal {
	if parent.Role == models.RoleAdmin {
		return hundred
	}
	return parent.CommissionRate
}

func limitCeiling(parent *models.Agent) (decimal.Decimal, bool) {
	if parent.Role == models.RoleAdmin {
		return decimal.Zero, true
	}
	return parent.WeeklyLimit, false
}

func checkTerms(parent *models.Agent, limit, rate decimal.Decimal) error {
	if limit.IsNegative() {
		return apperr.InvalidFormat("weekly limit must not be negative", apperr.Fields{"weekly_limit": limit.String()})
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return apperr.InvalidFormat("commission rate must be between 0 and 100", apperr.Fields{"commission_rate": rate.String()})
	}
	if ceil := rateCeiling(parent); rate.GreaterThan(ceil) {
		return apperr.InvalidHierarchy("commission rate exceeds parent ceiling", apperr.Fields{
			"commission_rate": rate.String(), "ceiling": ceil.String(), "parent_id": parent.ID,
		})
	}
	if ceil, unlimited := limitCeiling(parent); !unlimited && limit.GreaterThan(ceil) {
		return apperr.InvalidHierarchy("weekly limit exceeds parent ceiling", apperr.Fields{
			"weekly_limit": limit.String(), "ceiling": ceil.String(), "parent_id": parent.ID,
		})
	}
	return nil
}

type NewAgent struct {
	Username       string
	WeeklyLimit    decimal.Decimal
	CommissionRate decimal.Decimal
	CanCreateSubs  bool
}

// CreateAgent adds a child under creatorID. ADMIN creates moderators, moderators and sub-capable agents
// create agents.
func (s *Store) CreateAgent(ctx context.Context, creatorID uint, in NewAgent) (*models.Agent, error) {
	if in.Username == "" {
		return nil, apperr.InvalidFormat("username is required", nil)
	}

	var created models.Agent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		creator, err := load(tx, creatorID, true)
		if err != nil {
			return err
		}
		if !creator.IsActive {
			return apperr.InvalidState("creator is inactive", apperr.Fields{"agent_id": creatorID})
		}

		role, err := childRole(creator)
		if err != nil {
			return err
		}
		if err := checkTerms(creator, in.WeeklyLimit, in.CommissionRate); err != nil {
			return err
		}

		var taken int64
		if err := tx.Model(&models.Agent{}).Where("username = ?", in.Username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return apperr.InvalidFormat("username already taken", apperr.Fields{"username": in.Username})
		}

		created = models.Agent{
			Username:       in.Username,
			Role:           role,
			UplineID:       &creator.ID,
			WeeklyLimit:    in.WeeklyLimit,
			WeeklyUsed:     decimal.Zero,
			CommissionRate: in.CommissionRate,
			CanCreateSubs:  in.CanCreateSubs,
			IsActive:       true,
		}
		switch creator.Role {
		case models.RoleModerator:
			created.ModeratorID = &creator.ID
		case models.RoleAgent:
			created.ModeratorID = creator.ModeratorID
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("create agent: %w", err)
		}
		return audit.Record(tx, audit.Entry{
			Action: audit.ActionAgentCreated, AgentID: creatorID, RefID: fmt.Sprint(created.ID),
			Detail: map[string]any{"username": created.Username, "role": created.Role, "weekly_limit": created.WeeklyLimit, "commission_rate": created.CommissionRate},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("agent created", zap.Uint("agent_id", created.ID), zap.Uint("creator_id", creatorID), zap.String("role", string(created.Role)))
	return &created, nil
}

func childRole(creator *models.Agent) (models.Role, error) {
	switch creator.Role {
	case models.RoleAdmin:
		return models.RoleModerator, nil
	case models.RoleModerator:
		return models.RoleAgent, nil
	case models.RoleAgent:
		if creator.CanCreateSubs {
			return models.RoleAgent, nil
		}
	}
	return "", apperr.Forbidden("agent may not create sub-agents", apperr.Fields{"agent_id": creator.ID, "role": creator.Role})
}

// UpdateTerms changes an agent's weekly limit and commission rate within its parent's ceilings. Neither may
// drop below a direct child's, and the limit may not drop below what is already used.
func (s *Store) UpdateTerms(ctx context.Context, agentID uint, limit, rate decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := load(tx, agentID, true)
		if err != nil {
			return err
		}
		if a.UplineID == nil {
			return apperr.InvalidState("agent has no parent", apperr.Fields{"agent_id": agentID})
		}
		parent, err := load(tx, *a.UplineID, false)
		if err != nil {
			return err
		}
		if err := checkTerms(parent, limit, rate); err != nil {
			return err
		}
		if limit.LessThan(a.WeeklyUsed) {
			return apperr.InvalidState("weekly limit below current usage", apperr.Fields{
				"weekly_limit": limit.String(), "weekly_used": a.WeeklyUsed.String(),
			})
		}

		var maxChild struct {
			Rate  decimal.NullDecimal `gorm:"column:max_rate"`
			Limit decimal.NullDecimal `gorm:"column:max_limit"`
		}
		if err := tx.Model(&models.Agent{}).Select("MAX(commission_rate) AS max_rate, MAX(weekly_limit) AS max_limit").
			Where("upline_id = ?", agentID).Scan(&maxChild).Error; err != nil {
			return err
		}
		if maxChild.Rate.Valid && rate.LessThan(maxChild.Rate.Decimal) {
			return apperr.InvalidHierarchy("commission rate below a sub-agent's rate", apperr.Fields{
				"commission_rate": rate.String(), "child_rate": maxChild.Rate.Decimal.String(),
			})
		}
		if maxChild.Limit.Valid && limit.LessThan(maxChild.Limit.Decimal) {
			return apperr.InvalidHierarchy("weekly limit below a sub-agent's limit", apperr.Fields{
				"weekly_limit": limit.String(), "child_limit": maxChild.Limit.Decimal.String(),
			})
		}

		if err := tx.Model(a).Updates(map[string]any{"weekly_limit": limit, "commission_rate": rate}).Error; err != nil {
			return fmt.Errorf("update terms: %w", err)
		}
		return audit.Record(tx, audit.Entry{
			Action: audit.ActionAgentUpdated, AgentID: agentID, RefID: fmt.Sprint(agentID),
			Detail: map[string]any{"weekly_limit": limit, "commission_rate": rate},
		})
	})
}

// Deactivate stops the agent from placing new bets. History is kept.
func (s *Store) Deactivate(ctx context.Context, agentID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Agent{}).Where("id = ?", agentID).Update("is_active", false)
		if res.Error != nil {
			return fmt.Errorf("deactivate agent %d: %w", agentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("agent", agentID)
		}
		return audit.Record(tx, audit.Entry{Action: audit.ActionAgentDisabled, AgentID: agentID, RefID: fmt.Sprint(agentID)})
	})
	if err != nil {
		return err
	}
	s.log.Info("agent deactivated", zap.Uint("agent_id", agentID))
	return nil
}

// TransferUpline moves an agent, with its whole subtree, under newUplineID.
func (s *Store) TransferUpline(ctx context.Context, agentID, newUplineID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := load(tx, agentID, true)
		if err != nil {
			return err
		}
		target, err := load(tx, newUplineID, true)
		if err != nil {
			return err
		}
		if a.Role != models.RoleAgent {
			return apperr.InvalidHierarchy("only agents can be moved", apperr.Fields{"agent_id": agentID, "role": a.Role})
		}
		if err := checkNotDescendant(tx, agentID, target); err != nil {
			return err
		}
		if target.Role == models.RoleAdmin || (target.Role == models.RoleAgent && !target.CanCreateSubs) {
			return apperr.InvalidHierarchy("new upline cannot own agents", apperr.Fields{"upline_id": newUplineID, "role": target.Role})
		}
		if err := checkTerms(target, a.WeeklyLimit, a.CommissionRate); err != nil {
			return err
		}

		moderatorID := target.ModeratorID
		if target.Role == models.RoleModerator {
			moderatorID = &target.ID
		}
		if err := tx.Model(a).Updates(map[string]any{"upline_id": newUplineID, "moderator_id": moderatorID}).Error; err != nil {
			return fmt.Errorf("move agent: %w", err)
		}

		subtree, err := descendants(tx, agentID)
		if err != nil {
			return err
		}
		if len(subtree) > 0 {
			if err := tx.Model(&models.Agent{}).Where("id IN ?", subtree).Update("moderator_id", moderatorID).Error; err != nil {
				return fmt.Errorf("re-point subtree: %w", err)
			}
		}
		return audit.Record(tx, audit.Entry{
			Action: audit.ActionAgentMoved, AgentID: agentID, RefID: fmt.Sprint(agentID),
			Detail: map[string]any{"from": a.UplineID, "to": newUplineID, "subtree": len(subtree)},
		})
	})
}

// checkNotDescendant walks up from target and fails if it meets agentID.
func checkNotDescendant(tx *gorm.DB, agentID uint, target *models.Agent) error {
	visited := map[uint]bool{}
	cur := target
	for {
		if cur.ID == agentID {
			return apperr.InvalidHierarchy("new upline is the agent or one of its descendants", apperr.Fields{
				"agent_id": agentID, "upline_id": target.ID,
			})
		}
		if visited[cur.ID] {
			return apperr.InvalidHierarchy("cycle in upline chain", apperr.Fields{"agent_id": cur.ID})
		}
		visited[cur.ID] = true
		if cur.UplineID == nil {
			return nil
		}
		next, err := load(tx, *cur.UplineID, false)
		if err != nil {
			return err
		}
		cur = next
	}
}

// descendants lists every agent below rootID, breadth first.
func descendants(tx *gorm.DB, rootID uint) ([]uint, error) {
	var out []uint
	frontier := []uint{rootID}
	seen := map[uint]bool{rootID: true}
	for len(frontier) > 0 {
		var ids []uint
		if err := tx.Model(&models.Agent{}).Where("upline_id IN ?", frontier).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("load descendants: %w", err)
		}
		frontier = frontier[:0]
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
			frontier = append(frontier, id)
		}
	}
	return out, nil
}
