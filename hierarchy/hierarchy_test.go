package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawbet/apperr"
	"drawbet/audit"
	"drawbet/dbtest"
	"drawbet/models"
)

func ids(chain []models.Agent) []uint {
	out := make([]uint, len(chain))
	for i, a := range chain {
		out[i] = a.ID
	}
	return out
}

func TestAncestorChain(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	s := New(db, nil)
	ctx := context.Background()

	chain, err := s.AncestorChain(ctx, tr.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{tr.Agent.ID, tr.Master.ID, tr.Moderator.ID}, ids(chain))

	chain, err = s.AncestorChain(ctx, tr.Moderator.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{tr.Moderator.ID}, ids(chain))

	_, err = s.AncestorChain(ctx, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAncestorChainCycle(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	require.NoError(t, db.Model(&models.Agent{}).Where("id = ?", tr.Master.ID).Update("upline_id", tr.Agent.ID).Error)

	_, err := AncestorChain(context.Background(), db, tr.Agent.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
}

func TestCeilings(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	s := New(db, nil)
	ctx := context.Background()

	rate, err := s.RateCeiling(ctx, tr.Master.ID)
	require.NoError(t, err)
	assert.True(t, rate.Equal(dbtest.D("7")))

	rate, err = s.RateCeiling(ctx, tr.Admin.ID)
	require.NoError(t, err)
	assert.True(t, rate.Equal(dbtest.D("100")))

	limit, unlimited, err := s.LimitCeiling(ctx, tr.Moderator.ID)
	require.NoError(t, err)
	assert.False(t, unlimited)
	assert.True(t, limit.Equal(dbtest.D("1000000")))

	_, unlimited, err = s.LimitCeiling(ctx, tr.Admin.ID)
	require.NoError(t, err)
	assert.True(t, unlimited)
}

func TestCreateAgent(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	s := New(db, nil)
	ctx := context.Background()

	sub, err := s.CreateAgent(ctx, tr.Master.ID, NewAgent{Username: "sub", WeeklyLimit: dbtest.D("5000"), CommissionRate: dbtest.D("6")})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAgent, sub.Role)
	assert.Equal(t, tr.Master.ID, *sub.UplineID)
	assert.Equal(t, tr.Moderator.ID, *sub.ModeratorID)
	assert.True(t, sub.IsActive)

	mod, err := s.CreateAgent(ctx, tr.Admin.ID, NewAgent{Username: "mod2", WeeklyLimit: dbtest.D("9000000"), CommissionRate: dbtest.D("12")})
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, mod.Role)
	assert.Nil(t, mod.ModeratorID)

	_, err = s.CreateAgent(ctx, tr.Agent.ID, NewAgent{Username: "nope"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = s.CreateAgent(ctx, tr.Master.ID, NewAgent{Username: "greedy", WeeklyLimit: dbtest.D("1"), CommissionRate: dbtest.D("8")})
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)

	_, err = s.CreateAgent(ctx, tr.Master.ID, NewAgent{Username: "big", WeeklyLimit: dbtest.D("500001"), CommissionRate: dbtest.D("1")})
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)

	_, err = s.CreateAgent(ctx, tr.Master.ID, NewAgent{Username: "sub", WeeklyLimit: dbtest.D("1"), CommissionRate: dbtest.D("1")})
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)

	var audits int64
	db.Model(&models.AuditLog{}).Where("action = ?", "AGENT_CREATED").Count(&audits)
	assert.Equal(t, int64(2), audits)
}

func TestTransferUpline(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	s := New(db, nil)
	ctx := context.Background()

	mod2 := dbtest.CreateAgent(t, db, models.Agent{
		Username: "mod2", Role: models.RoleModerator, UplineID: &tr.Admin.ID,
		WeeklyLimit: dbtest.D("1000000"), CommissionRate: dbtest.D("9"), CanCreateSubs: true,
	})

	// a descendant can never become the new upline
	err := s.TransferUpline(ctx, tr.Master.ID, tr.Agent.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
	err = s.TransferUpline(ctx, tr.Master.ID, tr.Master.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
	err = s.TransferUpline(ctx, tr.Moderator.ID, mod2.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)

	require.NoError(t, s.TransferUpline(ctx, tr.Master.ID, mod2.ID))

	master := dbtest.ReloadAgent(t, db, tr.Master.ID)
	assert.Equal(t, mod2.ID, *master.UplineID)
	assert.Equal(t, mod2.ID, *master.ModeratorID)
	agent := dbtest.ReloadAgent(t, db, tr.Agent.ID)
	assert.Equal(t, tr.Master.ID, *agent.UplineID)
	assert.Equal(t, mod2.ID, *agent.ModeratorID)

	chain, err := s.AncestorChain(ctx, tr.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{tr.Agent.ID, tr.Master.ID, mod2.ID}, ids(chain))
}

func TestTransferUplineRateCeiling(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	low := dbtest.CreateAgent(t, db, models.Agent{
		Username: "low", Role: models.RoleAgent, UplineID: &tr.Moderator.ID, ModeratorID: &tr.Moderator.ID,
		WeeklyLimit: dbtest.D("1000"), CommissionRate: dbtest.D("3"), CanCreateSubs: true,
	})

	err := New(db, nil).TransferUpline(context.Background(), tr.Agent.ID, low.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
}

func TestUpdateTerms(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	s := New(db, nil)
	ctx := context.Background()

	require.NoError(t, s.UpdateTerms(ctx, tr.Master.ID, dbtest.D("400000"), dbtest.D("8")))
	m := dbtest.ReloadAgent(t, db, tr.Master.ID)
	assert.True(t, m.CommissionRate.Equal(dbtest.D("8")))

	// below the child's 5%
	err := s.UpdateTerms(ctx, tr.Master.ID, dbtest.D("400000"), dbtest.D("4"))
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)

	// above the moderator's 10%
	err = s.UpdateTerms(ctx, tr.Master.ID, dbtest.D("400000"), dbtest.D("11"))
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)

	// below the child's 100000 limit
	err = s.UpdateTerms(ctx, tr.Master.ID, dbtest.D("1000"), dbtest.D("7"))
	assert.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
	m = dbtest.ReloadAgent(t, db, tr.Master.ID)
	assert.True(t, m.WeeklyLimit.Equal(dbtest.D("400000")))
	require.NoError(t, s.UpdateTerms(ctx, tr.Master.ID, dbtest.D("100000"), dbtest.D("7")))

	require.NoError(t, db.Model(&models.Agent{}).Where("id = ?", tr.Agent.ID).Update("weekly_used", dbtest.D("900")).Error)
	err = s.UpdateTerms(ctx, tr.Agent.ID, dbtest.D("800"), dbtest.D("5"))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestDeactivate(t *testing.T) {
	db := dbtest.Open(t)
	tr := dbtest.SeedTree(t, db)
	s := New(db, nil)

	require.NoError(t, s.Deactivate(context.Background(), tr.Agent.ID))
	assert.False(t, dbtest.ReloadAgent(t, db, tr.Agent.ID).IsActive)
	assert.ErrorIs(t, s.Deactivate(context.Background(), 4242), apperr.ErrNotFound)

	var entries []models.AuditLog
	require.NoError(t, db.Where("action = ?", audit.ActionAgentDisabled).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, tr.Agent.ID, entries[0].AgentID)

	kids, err := s.Children(context.Background(), tr.Master.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, tr.Agent.ID, kids[0].ID)
}
