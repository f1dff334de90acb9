package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Betting    BettingConfig    `mapstructure:"betting"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Cron       CronConfig       `mapstructure:"cron"`
	Vault      VaultConfig      `mapstructure:"vault"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	ProviderTTL time.Duration `mapstructure:"provider_ttl"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type BettingConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
	ReceiptAttempts int `mapstructure:"receipt_attempts"`
}

type SettlementConfig struct {
	BatchSize        int    `mapstructure:"batch_size"`
	CommissionOn     string `mapstructure:"commission_on"`
	BigExtendedTiers bool   `mapstructure:"big_extended_tiers"`
}

type QuotaConfig struct {
	ResetWeekday string `mapstructure:"reset_weekday"`
	ResetTime    string `mapstructure:"reset_time"`
	Timezone     string `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	WeeklyReset string `mapstructure:"weekly_reset"`
	Settle      string `mapstructure:"settle"`
}

type VaultConfig struct {
	Key string `mapstructure:"key"`
}

const (
	CommissionOnWon     = "won"
	CommissionOnSettled = "settled"
)

// Load reads .env (optional) and the yaml file at path (optional), then applies DRAWBET_* env overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DRAWBET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Settlement.CommissionOn {
	case CommissionOnWon, CommissionOnSettled:
	default:
		return errors.New("settlement.commission_on must be won or settled")
	}
	if c.Betting.MaxPageSize <= 0 {
		return errors.New("betting.max_page_size must be positive")
	}
	if c.Settlement.BatchSize <= 0 {
		return errors.New("settlement.batch_size must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("db.dsn", "host=localhost user=postgres password=postgres dbname=drawbet port=5432 sslmode=disable")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("db.slow_threshold", "200ms")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.provider_ttl", "1m")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("betting.default_page_size", 20)
	v.SetDefault("betting.max_page_size", 100)
	v.SetDefault("betting.receipt_attempts", 5)
	v.SetDefault("settlement.batch_size", 500)
	v.SetDefault("settlement.commission_on", CommissionOnWon)
	v.SetDefault("settlement.big_extended_tiers", false)
	v.SetDefault("quota.reset_weekday", "MON")
	v.SetDefault("quota.reset_time", "00:00")
	v.SetDefault("quota.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.weekly_reset", "0 0 0 * * MON")
	v.SetDefault("cron.settle", "@every 1m")
	v.SetDefault("vault.key", "")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file")
}
