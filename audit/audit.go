// Package audit appends entries to the audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"drawbet/logger"
	"drawbet/models"
)

const (
	ActionBetPlaced      = "BET_PLACED"
	ActionBetCancelled   = "BET_CANCELLED"
	ActionBetSettled     = "BET_SETTLED"
	ActionSettleFailed   = "BET_SETTLE_FAILED"
	ActionQuotaReset     = "QUOTA_RESET"
	ActionAgentCreated   = "AGENT_CREATED"
	ActionAgentUpdated   = "AGENT_UPDATED"
	ActionAgentMoved     = "AGENT_MOVED"
	ActionAgentDisabled  = "AGENT_DEACTIVATED"
	ActionResultUpdated  = "RESULT_UPDATED"
	ActionResultFinalize = "RESULT_FINALIZED"
)

type Entry struct {
	Action  string
	AgentID uint
	RefID   string
	Detail  map[string]any
}

func (e Entry) row() (*models.AuditLog, error) {
	ref := e.RefID
	if ref == "" {
		ref = uuid.NewString()
	}
	raw, err := json.Marshal(e.Detail)
	if err != nil {
		return nil, fmt.Errorf("encode audit detail: %w", err)
	}
	return &models.AuditLog{
		Action:  e.Action,
		AgentID: e.AgentID,
		RefID:   ref,
		Detail:  datatypes.JSON(raw),
	}, nil
}

// Record writes e inside tx. A failure aborts the surrounding transaction.
func Record(tx *gorm.DB, e Entry) error {
	row, err := e.row()
	if err != nil {
		return err
	}
	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("write audit %s: %w", e.Action, err)
	}
	return nil
}

// Sink appends entries outside any transaction, for events whose own transaction rolled back.
// Failures are logged and dropped.
type Sink struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSink(db *gorm.DB, log *zap.Logger) *Sink {
	return &Sink{db: db, log: logger.OrNop(log)}
}

func (s *Sink) Append(ctx context.Context, e Entry) {
	if err := Record(s.db.WithContext(ctx), e); err != nil {
		s.log.Warn("audit append failed", zap.String("action", e.Action), zap.String("ref_id", e.RefID), zap.Error(err))
	}
}
