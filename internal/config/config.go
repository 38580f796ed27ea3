package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string

	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration (HTTP rate limiting)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RateLimitReqs   int
	RateLimitWindow int

	// LLM configuration
	LLMProvider        string // only "gemini" is supported
	GeminiAPIKey       string
	EmbeddingsModel    string // e.g. "text-embedding-004"
	GenerationModel    string // e.g. "gemini-2.5-flash"
	MinRequestInterval time.Duration
	MaxRetries         int
	RetryBaseDelay     time.Duration

	// Chunking / retrieval
	ChunkSize           int
	ChunkOverlap        int
	TopKResults         int
	SimilarityThreshold float64

	// Vector index
	VectorCollection string
	VectorIndexName  string
	VectorDimensions int

	// Ingestion
	IngestBatchSize int

	// Session retention (days of inactivity before deletion, 0 disables)
	SessionRetentionDays int

	// Tracing (empty endpoint disables the exporter)
	OTELEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/book_rag"),
		DBName:   getEnv("DB_NAME", "book_rag"),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		LLMProvider:        getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EmbeddingsModel:    getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GenerationModel:    getEnv("GENERATION_MODEL", "gemini-2.5-flash"),
		MinRequestInterval: getEnvDuration("MIN_REQUEST_INTERVAL", 4*time.Second), // 15 RPM on the free tier
		MaxRetries:         getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay:     getEnvDuration("RETRY_BASE_DELAY", time.Second),

		ChunkSize:           getEnvInt("CHUNK_SIZE", 512),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 128),
		TopKResults:         getEnvInt("TOP_K_RESULTS", 5),
		SimilarityThreshold: getEnvFloat64("SIMILARITY_THRESHOLD", 0.7),

		VectorCollection: getEnv("VECTOR_COLLECTION", "book_chunks"),
		VectorIndexName:  getEnv("VECTOR_INDEX", "book_chunks_vector"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),

		IngestBatchSize: getEnvInt("INGEST_BATCH_SIZE", 10),

		SessionRetentionDays: getEnvInt("SESSION_RETENTION_DAYS", 30),

		OTELEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects invalid configuration before anything is wired up.
// Configuration errors are fatal and never retried.
func (cfg *Config) validate() error {
	if cfg.LLMProvider != "gemini" {
		return fmt.Errorf("unsupported LLM_PROVIDER %q - only \"gemini\" is supported", cfg.LLMProvider)
	}
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	if cfg.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got overlap=%d size=%d",
			cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0,1], got %g", cfg.SimilarityThreshold)
	}
	if cfg.VectorDimensions <= 0 {
		return fmt.Errorf("VECTOR_DIM must be positive, got %d", cfg.VectorDimensions)
	}
	if cfg.TopKResults < 1 || cfg.TopKResults > 20 {
		return fmt.Errorf("TOP_K_RESULTS must be in [1,20], got %d", cfg.TopKResults)
	}
	if cfg.IngestBatchSize <= 0 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", cfg.IngestBatchSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
