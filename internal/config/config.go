// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"telegram-ai-entitlements/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string `yaml:"token"`
	Language string `yaml:"language" validate:"required"`
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"oneof=json console"`
	Sampling bool   `yaml:"sampling"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit caps consume calls per user per RateWindow; 0 disables it.
	RateLimit  int           `yaml:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" validate:"required"`
	MaxConns int32  `yaml:"max_conns" validate:"gte=0"`
}

type RedisConfig struct {
	URL        string        `yaml:"url"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	BatchSize         int           `yaml:"batch_size" validate:"gte=1"`
	Parallelism       int           `yaml:"parallelism" validate:"gte=1"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	NotifyWorkers     int           `yaml:"notify_workers" validate:"gte=1"`
}

// EntitlementConfig overrides the built-in entitlement rules. Zero values keep
// the defaults.
type EntitlementConfig struct {
	FreeDailyLimit       int           `yaml:"free_daily_limit" validate:"gte=0"`
	BlockDuration        time.Duration `yaml:"block_duration"`
	RefillInterval       time.Duration `yaml:"refill_interval"`
	PlanDuration         time.Duration `yaml:"plan_duration"`
	RefBonus             string        `yaml:"ref_bonus" validate:"omitempty,numeric"`
	RefFreePlusDays      int           `yaml:"ref_free_plus_days" validate:"gte=0"`
	RefFreePlusThreshold string        `yaml:"ref_free_plus_threshold" validate:"omitempty,numeric"`
	ConsumeTimeout       time.Duration `yaml:"consume_timeout"`
	Catalog              CatalogConfig `yaml:"catalog"`
}

// CatalogConfig overrides the built-in price list. Plans are keyed by code;
// a plan without price or bundle keeps the built-in one. A non-empty VIP map
// replaces the built-in packs of that kind.
type CatalogConfig struct {
	Plans    map[string]PlanConfig `yaml:"plans" validate:"dive"`
	VIPVideo map[int]string        `yaml:"vip_video" validate:"dive,numeric"`
	VIPMusic map[int]string        `yaml:"vip_music" validate:"dive,numeric"`
}

type PlanConfig struct {
	Price  string        `yaml:"price" validate:"omitempty,numeric"`
	Bundle *model.Bundle `yaml:"bundle"`
}

type PaymentConfig struct {
	Provider      string   `yaml:"provider"`
	WebhookSecret string   `yaml:"webhook_secret"`
	PaidStatuses  []string `yaml:"paid_statuses"`
}

type SecurityConfig struct {
	APISecret string `yaml:"api_secret"`
}

type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Payment     PaymentConfig     `yaml:"payment"`
	Security    SecurityConfig    `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// envOverlay is the subset of settings that may come from the environment
// (ENT_DATABASE_URL, ENT_BOT_TOKEN, ...), usually secrets.
type envOverlay struct {
	BotToken      string `envconfig:"BOT_TOKEN"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	HTTPAddr      string `envconfig:"HTTP_ADDR"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisURL      string `envconfig:"REDIS_URL"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	APISecret     string `envconfig:"API_SECRET"`
}

const envPrefix = "ENT"

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Load reads the yaml file, applies .env and ENT_* overrides, fills defaults
// and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}

	// A missing .env is fine outside local development.
	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes yaml and fills defaults without touching the environment.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	overlay(&cfg.Bot.Token, env.BotToken)
	overlay(&cfg.Log.Level, env.LogLevel)
	overlay(&cfg.HTTP.Addr, env.HTTPAddr)
	overlay(&cfg.Database.URL, env.DatabaseURL)
	overlay(&cfg.Redis.URL, env.RedisURL)
	overlay(&cfg.Redis.Password, env.RedisPassword)
	overlay(&cfg.Payment.WebhookSecret, env.WebhookSecret)
	overlay(&cfg.Security.APISecret, env.APISecret)
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Bot.Language == "" {
		c.Bot.Language = "en"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	c.HTTP.RequestTimeout = orDuration(c.HTTP.RequestTimeout, 10*time.Second)
	c.HTTP.ShutdownTimeout = orDuration(c.HTTP.ShutdownTimeout, 15*time.Second)
	c.HTTP.RateWindow = orDuration(c.HTTP.RateWindow, time.Minute)
	c.Redis.SessionTTL = orDuration(c.Redis.SessionTTL, 15*time.Minute)
	c.Scheduler.ReconcileInterval = orDuration(c.Scheduler.ReconcileInterval, time.Minute)
	c.Scheduler.LockTTL = orDuration(c.Scheduler.LockTTL, 55*time.Second)
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 500
	}
	if c.Scheduler.Parallelism <= 0 {
		c.Scheduler.Parallelism = 8
	}
	if c.Scheduler.NotifyWorkers <= 0 {
		c.Scheduler.NotifyWorkers = 4
	}
	c.Entitlement.ConsumeTimeout = orDuration(c.Entitlement.ConsumeTimeout, 3*time.Second)
	if c.Payment.Provider == "" {
		c.Payment.Provider = "cryptomus"
	}
}

// Validate checks struct tags plus cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Payment.WebhookSecret == "" {
		return errors.New("payment.webhook_secret is required")
	}
	if c.Security.APISecret == "" {
		return errors.New("security.api_secret is required")
	}
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
