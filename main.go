package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"drawbet/bets"
	"drawbet/commission"
	"drawbet/config"
	agentctl "drawbet/controllers/agent"
	betctl "drawbet/controllers/bet"
	providerctl "drawbet/controllers/provider"
	quotactl "drawbet/controllers/quota"
	resultctl "drawbet/controllers/result"
	"drawbet/database"
	"drawbet/draws"
	"drawbet/hierarchy"
	"drawbet/jobs"
	"drawbet/logger"
	"drawbet/payout"
	"drawbet/providers"
	"drawbet/quota"
	"drawbet/routes"
	"drawbet/settlement"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.Auth.JWTSecret == "" {
		zl.Fatal("auth.jwt_secret is required")
	}

	db, err := database.Connect(cfg.DB, zl)
	if err != nil {
		zl.Fatal("database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	vault, err := providers.NewVault(cfg.Vault.Key)
	if err != nil {
		zl.Fatal("provider vault", zap.Error(err))
	}
	providerStore := providers.NewStore(db, vault)
	var registry providers.Registry = providerStore
	var cache *providers.Cached
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zl.Warn("redis unavailable, provider cache disabled", zap.Error(err))
		} else {
			cache = providers.NewCached(rdb, providerStore, cfg.Redis.ProviderTTL, zl)
			registry = cache
			defer func() { _ = rdb.Close() }()
		}
	}

	schedule, err := quota.ScheduleFromConfig(cfg.Quota)
	if err != nil {
		zl.Fatal("quota schedule", zap.Error(err))
	}
	ledger := quota.New(db, schedule, zl)
	store := hierarchy.New(db, zl)
	manager := bets.New(db, registry, ledger, cfg.Betting, zl)
	results := draws.New(db, registry, zl)
	engine := settlement.New(db, payout.NewTable(), commission.New(zl), cfg.Settlement, zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scheduler *jobs.Scheduler
	if cfg.Cron.Enabled {
		scheduler = jobs.New(ctx, zl, ledger, results, engine, cfg.Settlement.BatchSize)
		if err := scheduler.Register(cfg.Cron); err != nil {
			zl.Fatal("cron", zap.Error(err))
		}
		scheduler.Start()
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	routes.Setup(app, []byte(cfg.Auth.JWTSecret), routes.Handlers{
		Agent:    agentctl.New(store),
		Bet:      betctl.New(manager),
		Result:   resultctl.New(results, engine),
		Quota:    quotactl.New(ledger),
		Provider: providerctl.New(providers.NewAdmin(providerStore, cache, zl)),
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	zl.Info("server running", zap.String("addr", addr), zap.String("env", cfg.App.Env))

	go func() {
		if err := app.Listen(addr); err != nil {
			zl.Panic("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zl.Info("gracefully shutting down")
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := app.Shutdown(); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	zl.Info("server exited cleanly")
}
