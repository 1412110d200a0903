package config

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/crewbill/keysvc/pkg/logger"
)

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(log logger.Logger) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.pprof_enabled", false)
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("redis.channel", "keysvc:rotation")
	v.SetDefault("kafka.rotation_topic", "keysvc.rotation-events")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_key", "static_secret")
	v.SetDefault("keys.default_lifetime_days", 90)
	v.SetDefault("keys.rotation_interval_days", 30)
	v.SetDefault("keys.min_rotation_interval_days", 1)
	v.SetDefault("keys.cache_ttl_seconds", 300)
	v.SetDefault("keys.retention_days", 180)
	v.SetDefault("keys.algorithm", "HS256")
	v.SetDefault("keys.fallback_tolerance_minutes", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracing.service_name", "keysvc")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/keysvc/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("KEYSVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WatchConfig watches the loaded config file and invokes onChange with the
// re-read configuration whenever it is rewritten. Reload failures are logged
// and the previous configuration stays in effect. Returns a stop function;
// a no-op stop is returned when no config file was used.
func WatchConfig(log logger.Logger, onChange func(*Config)) (func() error, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/keysvc/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return func() error { return nil }, nil
		}
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(v.ConfigFileUsed())); err != nil {
		watcher.Close()
		return nil, err
	}

	ctx := context.Background()
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != v.ConfigFileUsed() || !event.Has(fsnotify.Write) {
					continue
				}
				cfg, err := LoadConfig(log)
				if err != nil {
					log.Error(ctx, "config reload failed, keeping previous configuration", err)
					continue
				}
				log.Info(ctx, "configuration reloaded", logger.String("file", event.Name))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error(ctx, "config watcher error", err)
			}
		}
	}()

	return watcher.Close, nil
}
