package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selectors.
const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"

	QueuePool     = "pool"
	QueueRedis    = "redis"
	QueueWorkflow = "workflow"

	ExtractorVertex = "vertex"
	ExtractorOpenAI = "openai"
)

// Config holds all configuration for the pipeline services.
type Config struct {
	ProjectID string
	HTTPAddr  string

	StoreBackend      string
	FirestoreDatabase string
	DatabaseURL       string

	QueueBackend     string
	Workers          int
	QueueSize        int
	JobTimeout       time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisQueueKey    string
	RedisConsumerID  string
	WorkflowID       string
	WorkflowLocation string

	DocumentBaseURL string
	FetchTimeout    time.Duration
	RenderTimeout   time.Duration
	ExtractTimeout  time.Duration

	ExtractorBackend        string
	VertexAIRegion          string
	VertexModel             string
	OpenAIAPIKey            string
	OpenAIBaseURL           string
	OpenAIModel             string
	MaxOutputTokens         int
	ExtractRetries          int
	ExtractionFailurePolicy string

	ArchiveBucket string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads configuration without validating it, after loading a .env file if
// one exists. Tools that only need part of the pipeline use it directly.
func FromEnv() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env file", "error", err)
	}

	return &Config{
		ProjectID: GetEnv("PROJECT_ID", ""),
		HTTPAddr:  GetEnv("HTTP_ADDR", ":8080"),

		StoreBackend:      strings.ToLower(GetEnv("STORE_BACKEND", StoreFirestore)),
		FirestoreDatabase: GetEnv("FIRESTORE_DATABASE", ""),
		DatabaseURL:       GetEnv("DATABASE_URL", ""),

		QueueBackend:     strings.ToLower(GetEnv("QUEUE_BACKEND", QueuePool)),
		Workers:          GetEnvAsInt("WORKERS", 4),
		QueueSize:        GetEnvAsInt("QUEUE_SIZE", 256),
		JobTimeout:       GetEnvAsDuration("JOB_TIMEOUT", 0),
		RedisAddr:        GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    GetEnv("REDIS_PASSWORD", ""),
		RedisDB:          GetEnvAsInt("REDIS_DB", 0),
		RedisQueueKey:    GetEnv("REDIS_QUEUE_KEY", "pageflow:jobs"),
		RedisConsumerID:  GetEnv("REDIS_CONSUMER_ID", hostname()),
		WorkflowID:       GetEnv("WORKFLOW_ID", "document-processing-orchestrator"),
		WorkflowLocation: GetEnv("WORKFLOW_LOCATION", "us-central1"),

		DocumentBaseURL: GetEnv("DOCUMENT_BASE_URL", ""),
		FetchTimeout:    GetEnvAsDuration("FETCH_TIMEOUT", 2*time.Minute),
		RenderTimeout:   GetEnvAsDuration("RENDER_TIMEOUT", 5*time.Minute),
		ExtractTimeout:  GetEnvAsDuration("EXTRACT_TIMEOUT", 2*time.Minute),

		ExtractorBackend:        strings.ToLower(GetEnv("EXTRACTOR_BACKEND", ExtractorVertex)),
		VertexAIRegion:          GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:             GetEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:            GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:           GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:             GetEnv("OPENAI_MODEL", "gpt-4o-mini"),
		MaxOutputTokens:         GetEnvAsInt("MAX_OUTPUT_TOKENS", 1500),
		ExtractRetries:          GetEnvAsInt("EXTRACT_RETRIES", 3),
		ExtractionFailurePolicy: strings.ToLower(GetEnv("EXTRACTION_FAILURE_POLICY", "store")),

		ArchiveBucket: GetEnv("ARCHIVE_BUCKET", ""),
	}
}

// Validate checks that every backend selected has what it needs.
func (c *Config) Validate() error {
	if c.DocumentBaseURL == "" {
		return fmt.Errorf("DOCUMENT_BASE_URL environment variable must be set")
	}

	switch c.StoreBackend {
	case StoreFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the firestore store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable must be set for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.QueueBackend {
	case QueuePool, QueueRedis:
	case QueueWorkflow:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the workflow queue")
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}

	switch c.ExtractorBackend {
	case ExtractorVertex:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the vertex extractor")
		}
	case ExtractorOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable must be set for the openai extractor")
		}
	default:
		return fmt.Errorf("unknown EXTRACTOR_BACKEND %q", c.ExtractorBackend)
	}

	if c.MaxOutputTokens < 0 || c.MaxOutputTokens > math.MaxInt32 {
		return fmt.Errorf("MAX_OUTPUT_TOKENS must be between 0 and %d, got %d", math.MaxInt32, c.MaxOutputTokens)
	}

	switch c.ExtractionFailurePolicy {
	case "store", "skip", "abort":
	default:
		return fmt.Errorf("unknown EXTRACTION_FAILURE_POLICY %q", c.ExtractionFailurePolicy)
	}
	return nil
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Ignoring invalid integer environment variable", "key", key, "value", value)
	}
	return fallback
}

func GetEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Ignoring invalid duration environment variable", "key", key, "value", value)
	}
	return fallback
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "worker"
	}
	return name
}
