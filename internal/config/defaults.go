package config

const (
	defaultStoreDir              = "~/harvest/store"
	defaultDataDir               = "~/.local/share/harvest"
	defaultAPIBind               = "127.0.0.1:7519"
	defaultMinRequestIntervalMS  = 1500
	defaultTranscriptionBinary   = "whisper"
	defaultTranscriptionModel    = "large-v3-turbo"
	defaultTranscriptionTimeout  = 3600
	defaultEmbeddingBaseURL      = "http://localhost:11434"
	defaultEmbeddingModel        = "nomic-embed-text"
	defaultEmbeddingDimension    = 768
	defaultEmbeddingTimeout      = 120
	defaultChunkTargetSize       = 750
	defaultChunkMaxSize          = 1000
	defaultChunkMinSize          = 200
	defaultChunkOverlap          = 100
	defaultIndexBatchSize        = 50
	defaultIndexExtractTimeout   = 120
	defaultQueuePollInterval     = 5
	defaultSweepInterval         = 30
	defaultErrorRetryInterval    = 10
	defaultRetryBudget           = 5
	defaultHeartbeatInterval     = 15
	defaultHeartbeatTimeout      = 600
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 60
	defaultNotifyRequestTimeout  = 10
	defaultMachineProbeTimeout   = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StoreDir: defaultStoreDir,
			DataDir:  defaultDataDir,
			APIBind:  defaultAPIBind,
		},
		Transcription: Transcription{
			Binary:         defaultTranscriptionBinary,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Embedding: Embedding{
			BaseURL:        defaultEmbeddingBaseURL,
			Model:          defaultEmbeddingModel,
			Dimension:      defaultEmbeddingDimension,
			TimeoutSeconds: defaultEmbeddingTimeout,
		},
		Processing: Processing{
			ChunkTargetSize: defaultChunkTargetSize,
			ChunkMaxSize:    defaultChunkMaxSize,
			ChunkMinSize:    defaultChunkMinSize,
			ChunkOverlap:    defaultChunkOverlap,
		},
		Indexing: Indexing{
			BatchSize:             defaultIndexBatchSize,
			ExtractTimeoutSeconds: defaultIndexExtractTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			SweepInterval:      defaultSweepInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			RetryBudget:        defaultRetryBudget,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Queue:          true,
			Import:         true,
			Errors:         true,
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}
