package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable mnemo reads.
const EnvPrefix = "MNEMO"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MNEMO_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MNEMO_API_LISTEN, MNEMO_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MNEMO_API_LISTEN, MNEMO_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the effective configuration.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
			MaxOpenConn: v.GetInt("storage.max_open_conns"),
			Retries:     v.GetInt("storage.retries"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
			MCP:    v.GetBool("api.mcp"),
		},
		Ingest: IngestConfig{
			Workers:           v.GetUint("ingest.workers"),
			QueueSize:         v.GetUint("ingest.queue_size"),
			ReconcileInterval: v.GetString("ingest.reconcile_interval"),
		},
		Blob: BlobConfig{
			Provider:  v.GetString("blob.provider"),
			Dir:       v.GetString("blob.dir"),
			Endpoint:  v.GetString("blob.endpoint"),
			Bucket:    v.GetString("blob.bucket"),
			Region:    v.GetString("blob.region"),
			AccessKey: v.GetString("blob.access_key"),
			SecretKey: v.GetString("blob.secret_key"),
			Secure:    v.GetBool("blob.secure"),
		},
		Memory: MemoryConfig{
			Provider: v.GetString("memory.provider"),
			Enabled:  v.GetBool("memory.enabled"),
			Target:   v.GetString("memory.target"),
			Model:    v.GetString("memory.model"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
			AMQPURL:  v.GetString("eventstream.amqp_url"),
			Exchange: v.GetString("eventstream.exchange"),
		},
		Webhook: WebhookConfig{
			AccountSid: v.GetString("webhook.account_sid"),
			AuthToken:  v.GetString("webhook.auth_token"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	for _, key := range ValidConfigKeys() {
		v.SetDefault(key, configKeys[key].get(d))
	}
	v.SetDefault("version", d.Version)
}
