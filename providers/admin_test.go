package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawbet/apperr"
	"drawbet/dbtest"
	"drawbet/models"
	"drawbet/payout"
)

func TestAdminSetPayout(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedProvider(t, db, "MAGNUM")
	admin := NewAdmin(NewStore(db, nil), nil, nil)
	ctx := context.Background()

	k := payout.Key{Provider: "magnum", Game: models.Game4D, Bet: models.BetBig, Tier: "SECOND"}
	require.NoError(t, admin.SetPayout(ctx, k, dbtest.D("1000")))

	m, err := payout.NewTable().Multiplier(ctx, db, payout.Key{Provider: "MAGNUM", Game: models.Game4D, Bet: models.BetBig, Tier: "SECOND"})
	require.NoError(t, err)
	assert.True(t, m.Equal(dbtest.D("1000")))

	k.Provider = "NOPE"
	assert.ErrorIs(t, admin.SetPayout(ctx, k, dbtest.D("1000")), apperr.ErrNotFound)
}

func TestAdminDeactivateDropsCachedCopy(t *testing.T) {
	rdb := newRedis(t)
	db := dbtest.Open(t)
	dbtest.SeedProvider(t, db, "DAMACAI")
	store := NewStore(db, nil)
	cache := NewCached(rdb, store, time.Hour, nil)
	admin := NewAdmin(store, cache, nil)
	ctx := context.Background()
	require.NoError(t, cache.Invalidate(ctx, "DAMACAI"))

	info, err := cache.Lookup(ctx, "DAMACAI")
	require.NoError(t, err)
	require.True(t, info.Active)

	_, err = admin.SetActive(ctx, "damacai", false)
	require.NoError(t, err)

	info, err = cache.Lookup(ctx, "DAMACAI")
	require.NoError(t, err)
	assert.False(t, info.Active)
}
