// Package config loads runtime configuration from the environment,
// with an optional .env file for local development. Command-line flags
// override whatever is loaded here.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/sampling"
	"github.com/classlens/classlens/internal/storage"
)

// Config is the full runtime configuration.
type Config struct {
	// Output
	OutputDir string

	// Sampling
	SampleInterval time.Duration
	BatchSize      int
	Workers        int

	// Classifier thresholds
	Params behavior.Params

	// Postgres, used when --postgres is requested.
	Postgres storage.PostgresConfig

	// Narrative model served by the local Ollama instance.
	OllamaModel string
}

// Load reads the environment, after loading .env if one exists.
func Load(log *slog.Logger) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("could not load .env file", "error", err)
	}

	params := behavior.DefaultParams()
	params.HeadUpThreshold = getEnvFloat("CLASSLENS_HEAD_UP_THRESHOLD", params.HeadUpThreshold)
	params.HeadDownThreshold = getEnvFloat("CLASSLENS_HEAD_DOWN_THRESHOLD", params.HeadDownThreshold)
	params.WritingThreshold = getEnvFloat("CLASSLENS_WRITING_THRESHOLD", params.WritingThreshold)
	params.PhoneThreshold = getEnvFloat("CLASSLENS_PHONE_THRESHOLD", params.PhoneThreshold)
	params.ObjectMinConfidence = getEnvFloat("CLASSLENS_OBJECT_MIN_CONFIDENCE", params.ObjectMinConfidence)
	params.VisibilityThreshold = getEnvFloat("CLASSLENS_VISIBILITY_THRESHOLD", params.VisibilityThreshold)

	return Config{
		OutputDir:      getEnvOrDefault("CLASSLENS_OUTPUT_DIR", "output"),
		SampleInterval: getEnvDuration("CLASSLENS_SAMPLE_INTERVAL", sampling.DefaultInterval),
		BatchSize:      getEnvInt("CLASSLENS_BATCH_SIZE", sampling.DefaultBatchSize),
		Workers:        getEnvInt("CLASSLENS_WORKERS", 4),
		Params:         params,
		Postgres: storage.PostgresConfig{
			Host:     getEnvOrDefault("CLASSLENS_PG_HOST", "localhost"),
			Port:     getEnvOrDefault("CLASSLENS_PG_PORT", "5432"),
			User:     getEnvOrDefault("CLASSLENS_PG_USER", "classlens"),
			Password: getEnvOrDefault("CLASSLENS_PG_PASSWORD", ""),
			DBName:   getEnvOrDefault("CLASSLENS_PG_DBNAME", "classlens"),
		},
		OllamaModel: getEnvOrDefault("CLASSLENS_OLLAMA_MODEL", ""),
	}
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
