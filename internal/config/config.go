package config

import (
	"fmt"
	"time"

	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Keys     KeysConfig     `mapstructure:"keys"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	PprofEnabled bool   `mapstructure:"pprof_enabled"`

	// RateLimitPerMinute bounds admin API calls per client IP; enforced
	// only when Redis is enabled.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"` // in minutes
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Password  string   `mapstructure:"password"`
	DB        int      `mapstructure:"db"`
	// Channel is the pub/sub channel rotation invalidations are fanned out on.
	Channel string `mapstructure:"channel"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	RotationTopic string       `mapstructure:"rotation_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
	SecretKey  string `mapstructure:"secret_key"`
}

// KeysConfig carries the environment-provided parameters of the key
// lifecycle subsystem.
type KeysConfig struct {
	// StaticSecret seeds the very first key when it passes the strength
	// checks, and backs the token service's degraded fallback path.
	StaticSecret string `mapstructure:"static_secret"`

	// DefaultLifetimeDays is the expiry horizon for newly created keys.
	DefaultLifetimeDays int `mapstructure:"default_lifetime_days"`

	// RotationIntervalDays is the automatic rotation cadence.
	RotationIntervalDays int `mapstructure:"rotation_interval_days"`

	// MinRotationIntervalDays is the floor the configured cadence is
	// clamped to.
	MinRotationIntervalDays int `mapstructure:"min_rotation_interval_days"`

	// CacheTTLSeconds bounds key cache staleness.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`

	// RetentionDays is how long revoked records are kept before cleanup.
	RetentionDays int `mapstructure:"retention_days"`

	// Algorithm is the HMAC variant for new keys.
	Algorithm string `mapstructure:"algorithm"`

	// FallbackToleranceMinutes bounds how long the static fallback is
	// served before it becomes a hard failure.
	FallbackToleranceMinutes int `mapstructure:"fallback_tolerance_minutes"`
}

// DefaultLifetime returns the configured key lifetime as a duration.
func (c *KeysConfig) DefaultLifetime() time.Duration {
	if c.DefaultLifetimeDays <= 0 {
		return constants.DefaultKeyLifetime
	}
	return time.Duration(c.DefaultLifetimeDays) * 24 * time.Hour
}

// RotationInterval returns the configured rotation cadence.
func (c *KeysConfig) RotationInterval() time.Duration {
	if c.RotationIntervalDays <= 0 {
		return constants.DefaultRotationInterval
	}
	return time.Duration(c.RotationIntervalDays) * 24 * time.Hour
}

// MinRotationInterval returns the configured cadence floor.
func (c *KeysConfig) MinRotationInterval() time.Duration {
	if c.MinRotationIntervalDays <= 0 {
		return constants.MinRotationInterval
	}
	return time.Duration(c.MinRotationIntervalDays) * 24 * time.Hour
}

// CacheTTL returns the configured key cache staleness bound.
func (c *KeysConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return constants.DefaultCacheTTL
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RetentionWindow returns the configured revoked-record retention window.
func (c *KeysConfig) RetentionWindow() time.Duration {
	if c.RetentionDays <= 0 {
		return constants.DefaultRetentionWindow
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// FallbackTolerance returns the degraded-mode grace window.
func (c *KeysConfig) FallbackTolerance() time.Duration {
	if c.FallbackToleranceMinutes <= 0 {
		return constants.DefaultFallbackTolerance
	}
	return time.Duration(c.FallbackToleranceMinutes) * time.Minute
}

// SigningAlgorithm returns the configured algorithm, defaulting to HS256.
func (c *KeysConfig) SigningAlgorithm() constants.SigningAlgorithm {
	switch constants.SigningAlgorithm(c.Algorithm) {
	case constants.AlgorithmHS256, constants.AlgorithmHS384, constants.AlgorithmHS512:
		return constants.SigningAlgorithm(c.Algorithm)
	default:
		return constants.DefaultSigningAlgorithm
	}
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for configuration values that would be rejected at use
// time anyway; failing at startup is kinder.
func (c *Config) Validate() error {
	if c.Keys.RotationIntervalDays < 0 {
		return errors.ErrInvalidRotationInterval(c.Keys.RotationIntervalDays)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	if c.Redis.Enabled && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis enabled but no addresses configured")
	}
	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault enabled but no address configured")
	}
	return nil
}
