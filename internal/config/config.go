package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type AnalysisConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Workers int    `yaml:"workers"` // max concurrent dispatches
}

// PollConfig drives the status-check schedule for jobs with no push result.
type PollConfig struct {
	FirstInterval  time.Duration `yaml:"first_interval"`
	SecondInterval time.Duration `yaml:"second_interval"`
	SteadyInterval time.Duration `yaml:"steady_interval"`
	Deadline       time.Duration `yaml:"deadline"`
}

type SessionConfig struct {
	ValidateInterval time.Duration `yaml:"validate_interval"`
	DebounceWindow   time.Duration `yaml:"debounce_window"`
}

type CreditConfig struct {
	ResetCron   string `yaml:"reset_cron"`   // cron spec for ledger refills
	ResetPeriod string `yaml:"reset_period"` // daily|monthly
}

type RateLimitConfig struct {
	LaunchesPerMinute int `yaml:"launches_per_minute"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Web       WebConfig       `yaml:"web"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Poll      PollConfig      `yaml:"poll"`
	Session   SessionConfig   `yaml:"session"`
	Credit    CreditConfig    `yaml:"credit"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8088
	}
	if cfg.Web.TokenTTL <= 0 {
		cfg.Web.TokenTTL = 12 * time.Hour
	}
	if cfg.Analysis.Workers <= 0 {
		cfg.Analysis.Workers = 8
	}
	if cfg.Poll.FirstInterval <= 0 {
		cfg.Poll.FirstInterval = 60 * time.Second
	}
	if cfg.Poll.SecondInterval <= 0 {
		cfg.Poll.SecondInterval = 30 * time.Second
	}
	if cfg.Poll.SteadyInterval <= 0 {
		cfg.Poll.SteadyInterval = 15 * time.Second
	}
	if cfg.Poll.Deadline <= 0 {
		cfg.Poll.Deadline = 5 * time.Minute
	}
	if cfg.Session.ValidateInterval <= 0 {
		cfg.Session.ValidateInterval = 60 * time.Second
	}
	if cfg.Session.DebounceWindow <= 0 {
		cfg.Session.DebounceWindow = 200 * time.Millisecond
	}
	if cfg.Credit.ResetCron == "" {
		cfg.Credit.ResetCron = "0 0 * * *" // midnight daily
	}
	if cfg.Credit.ResetPeriod == "" {
		cfg.Credit.ResetPeriod = "daily"
	}
	if cfg.RateLimit.LaunchesPerMinute <= 0 {
		cfg.RateLimit.LaunchesPerMinute = 10
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Analysis.BaseURL == "" {
		return nil, errors.New("analysis.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
