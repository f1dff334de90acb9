// Package jobs triggers the weekly quota reset and the settlement sweep on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"drawbet/config"
	"drawbet/logger"
	"drawbet/models"
	"drawbet/quota"
	"drawbet/settlement"
)

type QuotaResetter interface {
	ResetAll(ctx context.Context, now time.Time) (quota.ResetSummary, error)
}

type ResultLister interface {
	ListUnsettledFinal(ctx context.Context, limit int) ([]models.DrawResult, error)
}

type Settler interface {
	Settle(ctx context.Context, resultID uint) (settlement.Summary, error)
}

type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	baseCtx context.Context

	quotas  QuotaResetter
	results ResultLister
	settler Settler
	batch   int
}

func New(ctx context.Context, log *zap.Logger, quotas QuotaResetter, results ResultLister, settler Settler, batch int) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	if batch <= 0 {
		batch = 50
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     logger.OrNop(log),
		baseCtx: ctx,
		quotas:  quotas,
		results: results,
		settler: settler,
		batch:   batch,
	}
}

// Register adds the configured jobs. An empty spec leaves that job out.
func (s *Scheduler) Register(cfg config.CronConfig) error {
	if cfg.WeeklyReset != "" {
		if _, err := s.cron.AddFunc(cfg.WeeklyReset, func() { s.ResetWeekly(s.baseCtx) }); err != nil {
			return fmt.Errorf("schedule weekly reset %q: %w", cfg.WeeklyReset, err)
		}
	}
	if cfg.Settle != "" {
		if _, err := s.cron.AddFunc(cfg.Settle, func() { s.SettlePending(s.baseCtx) }); err != nil {
			return fmt.Errorf("schedule settlement sweep %q: %w", cfg.Settle, err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.log.Info("cron started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("cron stopped")
}

func (s *Scheduler) ResetWeekly(ctx context.Context) {
	sum, err := s.quotas.ResetAll(ctx, time.Now())
	if err != nil {
		s.log.Error("weekly quota reset failed", zap.Error(err))
		return
	}
	s.log.Info("weekly quota reset done", zap.Int("reset", sum.Reset), zap.Int("skipped", sum.Skipped))
}

// SettlePending settles FINAL results that no run has completed yet. It returns how many were swept.
func (s *Scheduler) SettlePending(ctx context.Context) int {
	results, err := s.results.ListUnsettledFinal(ctx, s.batch)
	if err != nil {
		s.log.Error("list unsettled results failed", zap.Error(err))
		return 0
	}
	done := 0
	for _, r := range results {
		if ctx.Err() != nil {
			break
		}
		sum, err := s.settler.Settle(ctx, r.ID)
		if err != nil {
			s.log.Error("settlement sweep failed", zap.Uint("result_id", r.ID), zap.Error(err))
			continue
		}
		if sum.Failed > 0 {
			s.log.Warn("settlement left bets pending", zap.Uint("result_id", r.ID), zap.Int("failed", sum.Failed))
		}
		done++
	}
	return done
}
