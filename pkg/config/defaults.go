package config

const (
	defaultStorageDriver = "sqlite"
	defaultMaxOpenConns  = 10
	defaultRetries       = 4

	defaultAPIListen = ":8080"

	defaultWorkers           = 3
	defaultQueueSize         = 256
	defaultReconcileInterval = "1m"

	defaultBlobProvider = "local"

	defaultMemoryProvider = "local"
	defaultMemoryTarget   = "http://localhost:11434"
	defaultMemoryModel    = "llama3.2"

	defaultEventProvider = "none"
	defaultEventTopic    = "mnemo.events"
	defaultEventExchange = "mnemo.events"

	defaultLogLevel = "info"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:      defaultStorageDriver,
			MaxOpenConn: defaultMaxOpenConns,
			Retries:     defaultRetries,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
			MCP:    true,
		},
		Ingest: IngestConfig{
			Workers:           defaultWorkers,
			QueueSize:         defaultQueueSize,
			ReconcileInterval: defaultReconcileInterval,
		},
		Blob: BlobConfig{
			Provider: defaultBlobProvider,
			Secure:   true,
		},
		Memory: MemoryConfig{
			Provider: defaultMemoryProvider,
			Enabled:  true,
			Target:   defaultMemoryTarget,
			Model:    defaultMemoryModel,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventProvider,
			Topic:    defaultEventTopic,
			Exchange: defaultEventExchange,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}
