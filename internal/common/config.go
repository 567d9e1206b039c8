package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Queue    QueueConfig
	OCR      OCRConfig
	VLM      VLMConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// StorageConfig holds object-storage configuration.
type StorageConfig struct {
	RootDir string
	TempDir string
}

// QueueConfig holds per-tier worker pool sizes.
type QueueConfig struct {
	FastWorkers      int
	AccurateWorkers  int
	PrecisionWorkers int
	Depth            int
}

// OCRConfig holds recognition-related configuration.
type OCRConfig struct {
	Language    string
	DPI         int
	Pdftoppm    string
	TessdataDir string
	MaxPages    int
}

// VLMConfig holds the vision-language engine endpoint configuration.
type VLMConfig struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AccurateEngineURL is read separately because the accurate tier is optional:
// an empty URL means the adapter registers unavailable.
func AccurateEngineURL() string {
	return getEnv("ACCURATE_OCR_URL", "")
}

// LoadConfig loads configuration from environment variables.
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
		Storage: StorageConfig{
			RootDir: getEnv("STORAGE_ROOT", "./data/documents"),
			TempDir: getEnv("STORAGE_TEMP", os.TempDir()),
		},
		Queue: QueueConfig{
			FastWorkers:      getEnvAsInt("QUEUE_FAST_WORKERS", 4),
			AccurateWorkers:  getEnvAsInt("QUEUE_ACCURATE_WORKERS", 2),
			PrecisionWorkers: getEnvAsInt("QUEUE_PRECISION_WORKERS", 1),
			Depth:            getEnvAsInt("QUEUE_DEPTH", 256),
		},
		OCR: OCRConfig{
			Language:    getEnv("OCR_LANGUAGE", "kor+eng"),
			DPI:         getEnvAsInt("OCR_DPI", 200),
			Pdftoppm:    getEnv("PDFTOPPM", "pdftoppm"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
		},
		VLM: VLMConfig{
			BaseURL:   getEnv("VLM_API_BASE", ""),
			Model:     getEnv("VLM_MODEL_NAME", "qwen3-vl"),
			MaxTokens: getEnvAsInt("VLM_MAX_TOKENS", 8192),
			Timeout:   getEnvAsDuration("VLM_TIMEOUT", 120*time.Second),
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Storage.RootDir == "" {
		return NewAppError("CONFIG_ERROR", "STORAGE_ROOT is required", ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_DPI must be positive", ErrInvalidInput)
	}
	return nil
}
