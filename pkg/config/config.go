package config

import "time"

// Config holds runtime configuration for the bot process hosting the dispatch core.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Session   SessionConfig   `mapstructure:"session"`
	Dialogue  DialogueConfig  `mapstructure:"dialogue"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Access    AccessConfig    `mapstructure:"access"`
}

// BotConfig configures the telegram transport adapter.
type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	Mode          string        `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookListen string        `mapstructure:"webhook_listen" validate:"required_if=Mode webhook"`
	WebhookURL    string        `mapstructure:"webhook_url" validate:"omitempty,url"`
}

// DispatchConfig configures the worker pool and per-update deadline.
type DispatchConfig struct {
	Workers  int           `mapstructure:"workers" validate:"gte=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl" validate:"gte=0"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Environment string  `mapstructure:"environment"`
}

// ServerConfig configures the HTTP endpoint exposing metrics and health.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db" validate:"gte=0"`
	PoolSize        int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns    int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// DatabaseConfig configures the optional Postgres source of access rules.
type DatabaseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DSN           string `mapstructure:"dsn" validate:"required_if=Enabled true"`
	// MigrationsDir overrides the migrations compiled into the binary.
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend" validate:"omitempty,oneof=memory file redis"`
	Dir           string        `mapstructure:"dir" validate:"required_if=Backend file"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gte=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

type DialogueConfig struct {
	RejectLocked bool          `mapstructure:"reject_locked"`
	LockTTL      time.Duration `mapstructure:"lock_ttl" validate:"gte=0"`
}

type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Backend        string        `mapstructure:"backend" validate:"omitempty,oneof=memory redis adaptive"`
	Capacity       int           `mapstructure:"capacity" validate:"required_if=Enabled true,gte=0"`
	RefillAmount   int           `mapstructure:"refill_amount" validate:"required_if=Enabled true,gte=0"`
	RefillInterval time.Duration `mapstructure:"refill_interval" validate:"gte=0"`
	MaxScopes      int           `mapstructure:"max_scopes" validate:"gte=0"`
	Whitelist      []int64       `mapstructure:"whitelist"`
}

type AccessConfig struct {
	Default    string             `mapstructure:"default" validate:"omitempty,oneof=allow deny"`
	Rules      []AccessRuleConfig `mapstructure:"rules" validate:"dive"`
	LoadFromDB bool               `mapstructure:"load_from_db"`
}

// AccessRuleConfig is one ordered rule; exactly one matcher field is expected, none means "any".
type AccessRuleConfig struct {
	UserID   int64  `mapstructure:"user_id"`
	ChatID   int64  `mapstructure:"chat_id"`
	Username string `mapstructure:"username"`
	Decision string `mapstructure:"decision" validate:"required,oneof=allow deny"`
}
