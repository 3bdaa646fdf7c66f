package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "DOCRAG"

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"20"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docrag-sources"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	EmbeddingModel             string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions        int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingBatchSize         int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"10"`
	EmbeddingRequestsPerSecond float64       `envconfig:"EMBEDDING_REQUESTS_PER_SECOND" default:"3"`
	EmbeddingMaxRetries        int           `envconfig:"EMBEDDING_MAX_RETRIES" default:"2"`
	EmbeddingTimeout           time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	RetrievalTopK          int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	RetrievalMinSimilarity float64 `envconfig:"RETRIEVAL_MIN_SIMILARITY" default:"0.7"`

	// APITokens maps actor ids to bearer tokens: "alice:tok1,bob:tok2".
	APITokens map[string]string `envconfig:"API_TOKENS"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	WorkerPollInterval    time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"10s"`
	BackfillSweepSchedule string        `envconfig:"BACKFILL_SWEEP_SCHEDULE" default:"@every 15m"`
	JobPruneSchedule      string        `envconfig:"JOB_PRUNE_SCHEDULE" default:"@daily"`
	JobRetention          time.Duration `envconfig:"JOB_RETENTION" default:"168h"`
	UsageFlushInterval    time.Duration `envconfig:"USAGE_FLUSH_INTERVAL" default:"1m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", c.EmbeddingBatchSize)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.RetrievalMinSimilarity < -1 || c.RetrievalMinSimilarity > 1 {
		return fmt.Errorf("RETRIEVAL_MIN_SIMILARITY must be in [-1, 1], got %v", c.RetrievalMinSimilarity)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
