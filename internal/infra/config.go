package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv               string
	Addr                 string
	DataDir              string
	DatabaseDriver       string
	DatabaseURL          string
	APIBaseURL           string
	APIKey               string
	APITimeout           time.Duration
	PollInterval         time.Duration
	PollMaxDuration      time.Duration
	StallAfterAttempts   int
	StatusVocabularyFile string
	RedisAddr            string
	RedisChannel         string
	ThumbnailWidth       int
	CORSAllowedOrigins   []string
	SubmitRateLimit      int
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
}

// LoadConfig loads .env files when present, then reads configuration from
// environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Addr:                 getEnv("STUDIO_ADDR", "127.0.0.1:7420"),
		DataDir:              getEnv("STUDIO_DATA_DIR", "./studio-data"),
		DatabaseDriver:       strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIBaseURL:           os.Getenv("GEN_API_BASE_URL"),
		APIKey:               strings.TrimSpace(os.Getenv("GEN_API_KEY")),
		APITimeout:           time.Second * time.Duration(getEnvInt("GEN_API_TIMEOUT_SECONDS", 60)),
		PollInterval:         time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollMaxDuration:      time.Minute * time.Duration(getEnvInt("POLL_MAX_DURATION_MINUTES", 0)),
		StallAfterAttempts:   getEnvInt("POLL_STALL_AFTER_ATTEMPTS", 120),
		StatusVocabularyFile: os.Getenv("STATUS_VOCABULARY_FILE"),
		RedisAddr:            strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisChannel:         getEnv("REDIS_CHANNEL", "studio:generations"),
		ThumbnailWidth:       getEnvInt("THUMBNAIL_WIDTH", 320),
		CORSAllowedOrigins:   getEnvCSV("CORS_ALLOWED_ORIGINS"),
		SubmitRateLimit:      getEnvInt("SUBMIT_RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = filepath.Join(cfg.DataDir, "studio.db")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvCSV(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
