package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"klaro"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"klaro"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey     string  `envconfig:"GEMINI_API_KEY"`
	GeminiGenModel   string  `envconfig:"GEMINI_GEN_MODEL" default:"gemini-1.5-flash"`
	GeminiEmbedModel string  `envconfig:"GEMINI_EMBED_MODEL" default:"gemini-embedding-001"`
	GeminiTemp       float32 `envconfig:"GEMINI_TEMPERATURE" default:"0.2"`
	GeminiTopP       float32 `envconfig:"GEMINI_TOP_P" default:"0.95"`

	EnableAPI    bool `envconfig:"ENABLE_API" default:"true"`
	EnableWorker bool `envconfig:"ENABLE_WORKER" default:"true"`

	// Pipeline
	MaxChunkSize      int `envconfig:"MAX_CHUNK_SIZE" default:"4000"`
	AdaptConcurrency  int `envconfig:"ADAPT_CONCURRENCY" default:"4"`
	LLMTimeoutSeconds int `envconfig:"LLM_TIMEOUT_SECONDS" default:"60"`
	RetryMaxAttempts  int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`

	// Rate limiting
	RateLimitPerWindow   int  `envconfig:"RATE_LIMIT_PER_WINDOW" default:"20"`
	RateLimitWindowHours int  `envconfig:"RATE_LIMIT_WINDOW_HOURS" default:"24"`
	RateLimitFailOpen    bool `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`

	// Progress streaming
	StreamPollMillis        int `envconfig:"STREAM_POLL_MILLIS" default:"1000"`
	StreamHeartbeatSeconds  int `envconfig:"STREAM_HEARTBEAT_SECONDS" default:"15"`
	JobRetentionMinutes     int `envconfig:"JOB_RETENTION_MINUTES" default:"60"`

	// Server
	ServerPort int `envconfig:"SERVER_PORT" default:"8081"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell instead of a .env file, so load errors
	// are deliberately ignored.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: MAX_CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.AdaptConcurrency <= 0 {
		return fmt.Errorf("%w: ADAPT_CONCURRENCY must be positive", ErrMissingRequired)
	}
	if c.RateLimitPerWindow <= 0 {
		return fmt.Errorf("%w: RATE_LIMIT_PER_WINDOW must be positive", ErrMissingRequired)
	}
	return nil
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowHours) * time.Hour
}

func (c *Config) StreamPollInterval() time.Duration {
	return time.Duration(c.StreamPollMillis) * time.Millisecond
}

func (c *Config) StreamHeartbeat() time.Duration {
	return time.Duration(c.StreamHeartbeatSeconds) * time.Second
}

func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionMinutes) * time.Minute
}
