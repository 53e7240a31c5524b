// Package config provides configuration loading and defaults for the
// discordcore MCP server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds network and authentication settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// DiscordConfig holds Discord bot credentials and guild targeting.
type DiscordConfig struct {
	Token         string `yaml:"token"`
	GuildID       string `yaml:"guild_id"`
	ApplicationID string `yaml:"application_id"`
}

// DispatchConfig controls the REST dispatcher.
type DispatchConfig struct {
	// BaseURL overrides the API root; empty means discordgo.EndpointAPI.
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
}

// Timeout returns TimeoutSec as a duration.
func (d DispatchConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

// SchedulerConfig bounds concurrent work.
type SchedulerConfig struct {
	MaxLeases int `yaml:"max_leases"`
}

// CacheConfig selects what a failed response does to the caches.
type CacheConfig struct {
	// Policy is "success" or "always".
	Policy string `yaml:"policy"`
}

// IngestConfig controls gateway event ingestion and the message poll queue.
type IngestConfig struct {
	QueueSize     int `yaml:"queue_size"`
	BatchSize     int `yaml:"batch_size"`
	PollTimeoutMS int `yaml:"poll_timeout_ms"`
}

// PollTimeout returns PollTimeoutMS as a duration.
func (i IngestConfig) PollTimeout() time.Duration {
	return time.Duration(i.PollTimeoutMS) * time.Millisecond
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration structure for the discordcore server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Fields absent from the file keep their DefaultConfig values. On error, nil
// is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance.
//
// Defaults:
//   - Server.Port = 8080
//   - Dispatch.TimeoutSec = 30, Dispatch.MaxRetries = 3
//   - Scheduler.MaxLeases = 64
//   - Cache.Policy = "success"
//   - Ingest.QueueSize = 1000, Ingest.BatchSize = 100, Ingest.PollTimeoutMS = 500
//   - Metrics.Path = "/metrics"
//   - Logging.Level = "info"
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Dispatch: DispatchConfig{
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Scheduler: SchedulerConfig{
			MaxLeases: 64,
		},
		Cache: CacheConfig{
			Policy: "success",
		},
		Ingest: IngestConfig{
			QueueSize:     1000,
			BatchSize:     100,
			PollTimeoutMS: 500,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Discord.Token == "":
		return fmt.Errorf("config: discord.token is required")
	case c.Scheduler.MaxLeases <= 0:
		return fmt.Errorf("config: scheduler.max_leases must be positive, got %d", c.Scheduler.MaxLeases)
	case c.Ingest.QueueSize <= 0:
		return fmt.Errorf("config: ingest.queue_size must be positive, got %d", c.Ingest.QueueSize)
	case c.Ingest.BatchSize <= 0:
		return fmt.Errorf("config: ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	case c.Dispatch.MaxRetries < 0:
		return fmt.Errorf("config: dispatch.max_retries must not be negative, got %d", c.Dispatch.MaxRetries)
	}
	return nil
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Only non-empty environment variable values override existing config values.
//
// Recognized variables:
//   - DISCORDCORE_DISCORD_TOKEN    -> cfg.Discord.Token
//   - DISCORDCORE_DISCORD_GUILD_ID -> cfg.Discord.GuildID
//   - DISCORDCORE_APPLICATION_ID   -> cfg.Discord.ApplicationID
//   - DISCORDCORE_AUTH_TOKEN       -> cfg.Server.AuthToken
//   - DISCORDCORE_CACHE_POLICY     -> cfg.Cache.Policy
//   - DISCORDCORE_MAX_LEASES       -> cfg.Scheduler.MaxLeases (ignored unless an integer)
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("DISCORDCORE_DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if guildID := os.Getenv("DISCORDCORE_DISCORD_GUILD_ID"); guildID != "" {
		cfg.Discord.GuildID = guildID
	}
	if appID := os.Getenv("DISCORDCORE_APPLICATION_ID"); appID != "" {
		cfg.Discord.ApplicationID = appID
	}
	if authToken := os.Getenv("DISCORDCORE_AUTH_TOKEN"); authToken != "" {
		cfg.Server.AuthToken = authToken
	}
	if policy := os.Getenv("DISCORDCORE_CACHE_POLICY"); policy != "" {
		cfg.Cache.Policy = policy
	}
	if v := os.Getenv("DISCORDCORE_MAX_LEASES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.MaxLeases = n
		}
	}
}
