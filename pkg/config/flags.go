package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on both "mnemo serve" and "mnemo migrate").
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.sqlite_path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen         = "listen"
	FlagStorageDriver  = "storage-driver"
	FlagSQLite         = "sqlite"
	FlagPostgresDSN    = "postgres-dsn"
	FlagWorkers        = "workers"
	FlagQueueSize      = "queue-size"
	FlagBlobProvider   = "blob-provider"
	FlagBlobDir        = "blob-dir"
	FlagMemoryProvider = "memory-provider"
	FlagMemoryTarget   = "memory-target"
	FlagMemoryModel    = "memory-model"
	FlagEventProvider  = "eventstream-provider"
	FlagEventBrokers   = "eventstream-brokers"
	FlagEventAMQPURL   = "eventstream-amqp-url"
)

// Flags is the registry of every flag bound to a config key.
var Flags = FlagSet{
	FlagListen:         {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageDriver:  {Name: "storage-driver", ViperKey: "storage.driver", Description: "Storage driver: sqlite or postgres"},
	FlagSQLite:         {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database (default: mnemo.db in the config dir)"},
	FlagPostgresDSN:    {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "Postgres connection string"},
	FlagWorkers:        {Name: "workers", ViperKey: "ingest.workers", Description: "Number of memory workers"},
	FlagQueueSize:      {Name: "queue-size", ViperKey: "ingest.queue_size", Description: "Capacity of the memory job queue"},
	FlagBlobProvider:   {Name: "blob-provider", ViperKey: "blob.provider", Description: "Media blob store: local, s3 or none"},
	FlagBlobDir:        {Name: "blob-dir", ViperKey: "blob.dir", Description: "Root directory of the local blob store"},
	FlagMemoryProvider: {Name: "memory-provider", ViperKey: "memory.provider", Description: "Inference backend: local or ollama"},
	FlagMemoryTarget:   {Name: "memory-target", ViperKey: "memory.target", Description: "Inference backend URL"},
	FlagMemoryModel:    {Name: "memory-model", ViperKey: "memory.model", Description: "Inference model name"},
	FlagEventProvider:  {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Event stream: none, kafka or rabbitmq"},
	FlagEventBrokers:   {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagEventAMQPURL:   {Name: "eventstream-amqp-url", ViperKey: "eventstream.amqp_url", Description: "RabbitMQ connection URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
// Only flags the user actually set override lower layers.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
