// Package dbtest provides sqlite-backed databases and fixtures for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"drawbet/database"
	"drawbet/models"
)

var seq atomic.Int64

// Open returns a migrated in-memory database private to the test. The pool holds a single
// connection, so concurrent callers queue behind each other's transactions.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Tree is a seeded ADMIN → MODERATOR → master AGENT → AGENT chain.
type Tree struct {
	Admin     models.Agent
	Moderator models.Agent
	Master    models.Agent
	Agent     models.Agent
}

// SeedTree creates the standard hierarchy: moderator rate 10, master 7, agent 5.
func SeedTree(t *testing.T, db *gorm.DB) Tree {
	t.Helper()
	var tr Tree
	tr.Admin = CreateAgent(t, db, models.Agent{Username: "admin", Role: models.RoleAdmin, CommissionRate: D("100"), CanCreateSubs: true})
	tr.Moderator = CreateAgent(t, db, models.Agent{
		Username: "mod", Role: models.RoleModerator, UplineID: &tr.Admin.ID,
		WeeklyLimit: D("1000000"), CommissionRate: D("10"), CanCreateSubs: true,
	})
	tr.Master = CreateAgent(t, db, models.Agent{
		Username: "master", Role: models.RoleAgent, UplineID: &tr.Moderator.ID, ModeratorID: &tr.Moderator.ID,
		WeeklyLimit: D("500000"), CommissionRate: D("7"), CanCreateSubs: true,
	})
	tr.Agent = CreateAgent(t, db, models.Agent{
		Username: "agent", Role: models.RoleAgent, UplineID: &tr.Master.ID, ModeratorID: &tr.Moderator.ID,
		WeeklyLimit: D("100000"), CommissionRate: D("5"),
	})
	return tr
}

func CreateAgent(t *testing.T, db *gorm.DB, a models.Agent) models.Agent {
	t.Helper()
	a.IsActive = true
	if a.WeeklyUsed.IsZero() {
		a.WeeklyUsed = decimal.Zero
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}

// SeedProvider creates an active provider drawing every day at 19:00 UTC for all game and bet types.
func SeedProvider(t *testing.T, db *gorm.DB, code string) models.Provider {
	t.Helper()
	p := models.Provider{
		Code:      code,
		Name:      code,
		IsActive:  true,
		GameTypes: "3D,4D,5D,6D",
		BetTypes:  "BIG,SMALL,IBOX",
		DrawDays:  "MON,TUE,WED,THU,FRI,SAT,SUN",
		DrawTime:  "19:00",
		Timezone:  "UTC",
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func SeedPayout(t *testing.T, db *gorm.DB, provider string, game models.GameType, bet models.BetType, tier, multiplier string) {
	t.Helper()
	require.NoError(t, db.Create(&models.PayoutRate{
		ProviderCode: provider, GameType: game, BetType: bet, Tier: tier, Multiplier: D(multiplier),
	}).Error)
}

func ReloadAgent(t *testing.T, db *gorm.DB, id uint) models.Agent {
	t.Helper()
	var a models.Agent
	require.NoError(t, db.First(&a, id).Error)
	return a
}
