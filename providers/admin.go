package providers

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"drawbet/logger"
	"drawbet/payout"
)

// Admin applies operator changes to providers and their payout rates. A provider change drops the cached
// copy so bet placement sees it on the next lookup.
type Admin struct {
	store *Store
	cache *Cached
	log   *zap.Logger
}

// NewAdmin builds an Admin. cache may be nil when redis is not configured.
func NewAdmin(store *Store, cache *Cached, log *zap.Logger) *Admin {
	return &Admin{store: store, cache: cache, log: logger.OrNop(log)}
}

func (a *Admin) SetActive(ctx context.Context, code string, active bool) (*Info, error) {
	info, err := a.store.SetActive(ctx, code, active)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if err := a.cache.Invalidate(ctx, info.Code); err != nil {
			return nil, fmt.Errorf("invalidate provider %s: %w", info.Code, err)
		}
	}
	a.log.Info("provider updated", zap.String("provider", info.Code), zap.Bool("active", active))
	return info, nil
}

// SetPayout stores the multiplier for one prize tier of an existing provider.
func (a *Admin) SetPayout(ctx context.Context, k payout.Key, multiplier decimal.Decimal) error {
	p, err := a.store.find(ctx, k.Provider)
	if err != nil {
		return err
	}
	k.Provider = p.Code
	if err := payout.Upsert(ctx, a.store.db, k, multiplier); err != nil {
		return err
	}
	a.log.Info("payout rate set",
		zap.String("provider", k.Provider),
		zap.String("game_type", string(k.Game)),
		zap.String("bet_type", string(k.Bet)),
		zap.String("tier", k.Tier),
		zap.String("multiplier", multiplier.String()))
	return nil
}
