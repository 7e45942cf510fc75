package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent mnemo configuration stored as config.toml
// in the .mnemo/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Ingest      IngestConfig      `toml:"ingest"`
	Blob        BlobConfig        `toml:"blob"`
	Memory      MemoryConfig      `toml:"memory"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Webhook     WebhookConfig     `toml:"webhook"`
	Log         LogConfig         `toml:"log"`
}

// StorageConfig selects and tunes the relational store.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
	MaxOpenConn int    `toml:"max_open_conns,omitempty"`
	Retries     int    `toml:"retries,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
	MCP    bool   `toml:"mcp"`
}

// IngestConfig tunes the worker pool and reconciler.
type IngestConfig struct {
	Workers           uint   `toml:"workers,omitempty"`
	QueueSize         uint   `toml:"queue_size,omitempty"`
	ReconcileInterval string `toml:"reconcile_interval,omitempty"`
}

// BlobConfig selects where media bytes are uploaded.
type BlobConfig struct {
	// Provider is "local", "s3" or "none".
	Provider  string `toml:"provider,omitempty"`
	Dir       string `toml:"dir,omitempty"`
	Endpoint  string `toml:"endpoint,omitempty"`
	Bucket    string `toml:"bucket,omitempty"`
	Region    string `toml:"region,omitempty"`
	AccessKey string `toml:"access_key,omitempty"`
	SecretKey string `toml:"secret_key,omitempty"`
	Secure    bool   `toml:"secure"`
}

// MemoryConfig holds inference backend settings.
type MemoryConfig struct {
	// Provider is "local" or "ollama".
	Provider string `toml:"provider,omitempty"`
	Enabled  bool   `toml:"enabled"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// EventStreamConfig selects the event publisher.
type EventStreamConfig struct {
	// Provider is "none", "kafka" or "rabbitmq".
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
	AMQPURL  string `toml:"amqp_url,omitempty"`
	Exchange string `toml:"exchange,omitempty"`
}

// WebhookConfig holds the messaging provider credentials used to download
// media.
type WebhookConfig struct {
	AccountSid string `toml:"account_sid,omitempty"`
	AuthToken  string `toml:"auth_token,omitempty"`
}

// LogConfig holds logging settings. Level is reloaded while serving.
type LogConfig struct {
	Level string `toml:"level,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// enumKey accepts only the listed values.
func enumKey(name string, field func(c *Config) *string, allowed ...string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if !slices.Contains(allowed, v) {
				return fmt.Errorf("invalid value for %s: %q (expected %s)", name, v, strings.Join(allowed, ", "))
			}
			*field(c) = v
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":         enumKey("storage.driver", func(c *Config) *string { return &c.Storage.Driver }, "sqlite", "postgres"),
	"storage.sqlite_path":    stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn":   stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.max_open_conns": intKey("storage.max_open_conns", func(c *Config) *int { return &c.Storage.MaxOpenConn }),
	"storage.retries":        intKey("storage.retries", func(c *Config) *int { return &c.Storage.Retries }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.mcp":    boolKey("api.mcp", func(c *Config) *bool { return &c.API.MCP }),

	"ingest.workers":    uintKey("ingest.workers", func(c *Config) *uint { return &c.Ingest.Workers }),
	"ingest.queue_size": uintKey("ingest.queue_size", func(c *Config) *uint { return &c.Ingest.QueueSize }),
	"ingest.reconcile_interval": {
		get: func(c *Config) string { return c.Ingest.ReconcileInterval },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for ingest.reconcile_interval: %w", err)
			}
			c.Ingest.ReconcileInterval = v
			return nil
		},
	},

	"blob.provider":   enumKey("blob.provider", func(c *Config) *string { return &c.Blob.Provider }, "local", "s3", "none"),
	"blob.dir":        stringKey(func(c *Config) *string { return &c.Blob.Dir }),
	"blob.endpoint":   stringKey(func(c *Config) *string { return &c.Blob.Endpoint }),
	"blob.bucket":     stringKey(func(c *Config) *string { return &c.Blob.Bucket }),
	"blob.region":     stringKey(func(c *Config) *string { return &c.Blob.Region }),
	"blob.access_key": stringKey(func(c *Config) *string { return &c.Blob.AccessKey }),
	"blob.secret_key": stringKey(func(c *Config) *string { return &c.Blob.SecretKey }),
	"blob.secure":     boolKey("blob.secure", func(c *Config) *bool { return &c.Blob.Secure }),

	"memory.provider": enumKey("memory.provider", func(c *Config) *string { return &c.Memory.Provider }, "local", "ollama"),
	"memory.enabled":  boolKey("memory.enabled", func(c *Config) *bool { return &c.Memory.Enabled }),
	"memory.target":   stringKey(func(c *Config) *string { return &c.Memory.Target }),
	"memory.model":    stringKey(func(c *Config) *string { return &c.Memory.Model }),

	"eventstream.provider": enumKey("eventstream.provider", func(c *Config) *string { return &c.EventStream.Provider }, "none", "kafka", "rabbitmq"),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"eventstream.amqp_url": stringKey(func(c *Config) *string { return &c.EventStream.AMQPURL }),
	"eventstream.exchange": stringKey(func(c *Config) *string { return &c.EventStream.Exchange }),

	"webhook.account_sid": stringKey(func(c *Config) *string { return &c.Webhook.AccountSid }),
	"webhook.auth_token":  stringKey(func(c *Config) *string { return &c.Webhook.AuthToken }),

	"log.level": {
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error {
			if _, err := ParseLevel(v); err != nil {
				return err
			}
			c.Log.Level = v
			return nil
		},
	},
}

// ParseLevel parses a log.level value such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid value for log.level: %q", s)
	}
	return level, nil
}

// keyOrder lists the keys in TOML section order.
var keyOrder = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"storage.max_open_conns",
	"storage.retries",
	"api.listen",
	"api.mcp",
	"ingest.workers",
	"ingest.queue_size",
	"ingest.reconcile_interval",
	"blob.provider",
	"blob.dir",
	"blob.endpoint",
	"blob.bucket",
	"blob.region",
	"blob.access_key",
	"blob.secret_key",
	"blob.secure",
	"memory.provider",
	"memory.enabled",
	"memory.target",
	"memory.model",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"eventstream.amqp_url",
	"eventstream.exchange",
	"webhook.account_sid",
	"webhook.auth_token",
	"log.level",
}
