// Package config defines all configuration for the indexer. Config is
// loaded from a YAML file (default: configs/config.yaml) with overrides
// via INDEXER_* environment variables, mirroring the teacher's
// viper-based Load/Validate split.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Env             string            `mapstructure:"env"`
	FirstCheckpoint uint64            `mapstructure:"first_checkpoint"`
	Database        DatabaseConfig    `mapstructure:"database"`
	Redis           RedisConfig       `mapstructure:"redis"`
	RPC             RPCConfig         `mapstructure:"rpc"`
	RemoteStore     RemoteStoreConfig `mapstructure:"remote_store"`
	Metrics         MetricsConfig     `mapstructure:"metrics"`
	Replay          ReplayConfig      `mapstructure:"replay"`
	Logging         LoggingConfig     `mapstructure:"logging"`
}

// DatabaseConfig holds the Postgres connection string backing internal/store.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig holds the Redis connection info backing internal/publish.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// RPCConfig points at the live checkpoint-stream endpoint internal/checkpointsource polls.
type RPCConfig struct {
	URL                  string        `mapstructure:"url"`
	WSURL                string        `mapstructure:"ws_url"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	CheckpointBufferSize int           `mapstructure:"checkpoint_buffer_size"`
}

// RemoteStoreConfig points at the blob store historical checkpoints and the
// cold-start pool registry are fetched from.
type RemoteStoreConfig struct {
	URL             string        `mapstructure:"url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// MetricsConfig controls the /healthz and /metrics HTTP server.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// ReplayConfig tunes the historical catch-up replayer.
type ReplayConfig struct {
	BatchSize    int64         `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Deployment-specific fields use env vars: DATABASE_URL, REDIS_URL,
// RPC_URL, REMOTE_STORE_URL, ENV, METRICS_ADDRESS, FIRST_CHECKPOINT.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("RPC_URL"); url != "" {
		cfg.RPC.URL = url
	}
	if url := os.Getenv("REMOTE_STORE_URL"); url != "" {
		cfg.RemoteStore.URL = url
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}
	if addr := os.Getenv("METRICS_ADDRESS"); addr != "" {
		cfg.Metrics.Address = addr
	}
	if fc := os.Getenv("FIRST_CHECKPOINT"); fc != "" {
		parsed, err := strconv.ParseUint(fc, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse FIRST_CHECKPOINT: %w", err)
		}
		cfg.FirstCheckpoint = parsed
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.RPC.PollInterval == 0 {
		c.RPC.PollInterval = 500 * time.Millisecond
	}
	if c.RPC.CheckpointBufferSize == 0 {
		c.RPC.CheckpointBufferSize = 5000
	}
	if c.Replay.BatchSize == 0 {
		c.Replay.BatchSize = 2000
	}
	if c.Replay.PollInterval == 0 {
		c.Replay.PollInterval = time.Minute
	}
	if c.RemoteStore.RefreshInterval == 0 {
		c.RemoteStore.RefreshInterval = 5 * time.Minute
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Env == "" {
		c.Env = "development"
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL)")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required (set REDIS_URL)")
	}
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required (set RPC_URL)")
	}
	if c.RemoteStore.URL == "" {
		return fmt.Errorf("remote_store.url is required (set REMOTE_STORE_URL)")
	}
	if c.Replay.BatchSize <= 0 {
		return fmt.Errorf("replay.batch_size must be > 0")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}
