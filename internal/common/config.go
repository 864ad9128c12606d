package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	AWS      AWSConfig
	Queues   QueueConfig
	Storage  StorageConfig
	Extract  ExtractConfig
	LLM      LLMConfig
	KB       KBConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// AWSConfig holds shared AWS client configuration. Endpoint overrides the
// resolved endpoint for every service client, which lets the whole pipeline
// run against localstack. AccessKeyID and SecretAccessKey, when both set,
// bypass the default provider chain with static credentials.
type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// QueueConfig holds the three pipeline queue URLs and consumer tuning.
type QueueConfig struct {
	IngestURL         string
	CompletionURL     string
	ClassifyURL       string
	MaxMessages       int32
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	MaxReceiveCount   int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Bucket string
}

// ExtractConfig holds text-extraction configuration. Documents at or above
// SyncSizeThreshold bytes go through the async job API with completion
// notifications published to SNSTopicARN. DefaultFeatures applies when the
// ingest message does not request specific extraction features.
type ExtractConfig struct {
	SNSTopicARN       string
	RoleARN           string
	SyncSizeThreshold int64
	PollAttempts      int
	PollInterval      time.Duration
	DefaultFeatures   []string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// KBConfig holds knowledge-base (retrieval index) configuration
type KBConfig struct {
	Host     string
	APIKey   string
	IndexUID string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("AWS_ENDPOINT_URL", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Queues: QueueConfig{
			IngestURL:         getEnv("INGEST_QUEUE_URL", ""),
			CompletionURL:     getEnv("COMPLETION_QUEUE_URL", ""),
			ClassifyURL:       getEnv("CLASSIFY_QUEUE_URL", ""),
			MaxMessages:       getEnvAsInt32("QUEUE_MAX_MESSAGES", 10),
			WaitTime:          getEnvAsDuration("QUEUE_WAIT_TIME", 20*time.Second),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			MaxReceiveCount:   getEnvAsInt("QUEUE_MAX_RECEIVE_COUNT", 3),
		},
		Storage: StorageConfig{
			Bucket: getEnv("DOCUMENT_BUCKET", ""),
		},
		Extract: ExtractConfig{
			SNSTopicARN:       getEnv("TEXTRACT_SNS_TOPIC_ARN", ""),
			RoleARN:           getEnv("TEXTRACT_ROLE_ARN", ""),
			SyncSizeThreshold: getEnvAsInt64("EXTRACT_SYNC_SIZE_THRESHOLD", 5*1024*1024),
			PollAttempts:      getEnvAsInt("EXTRACT_POLL_ATTEMPTS", 30),
			PollInterval:      getEnvAsDuration("EXTRACT_POLL_INTERVAL", 2*time.Second),
			DefaultFeatures:   getEnvAsSlice("EXTRACT_DEFAULT_FEATURES", []string{"TABLES", "FORMS"}),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		KB: KBConfig{
			Host:     getEnv("MEILI_HOST", ""),
			APIKey:   getEnv("MEILI_API_KEY", ""),
			IndexUID: getEnv("MEILI_INDEX_UID", "document-passages"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrValidation)
	}
	if c.Storage.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "DOCUMENT_BUCKET is required", ErrValidation)
	}
	if c.Queues.IngestURL == "" {
		return NewAppError("CONFIG_ERROR", "INGEST_QUEUE_URL is required", ErrValidation)
	}
	if c.Queues.CompletionURL == "" {
		return NewAppError("CONFIG_ERROR", "COMPLETION_QUEUE_URL is required", ErrValidation)
	}
	if c.Queues.ClassifyURL == "" {
		return NewAppError("CONFIG_ERROR", "CLASSIFY_QUEUE_URL is required", ErrValidation)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrValidation)
	}
	return nil
}
