/**
 * Configuration for the Document Segmentation Worker
 *
 * Loads configuration from environment variables (optionally seeded from
 * .env.docsegment by the binaries).
 */

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Queue backends
const (
	QueueBackendRedis = "redis"
	QueueBackendAsynq = "asynq"
)

// OCR engines
const (
	OCREngineTesseract = "tesseract"
	OCREngineService   = "service"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://nexus-redis:6379"`
	QueueName    string `env:"QUEUE_NAME" envDefault:"docsegment:jobs"`
	QueueBackend string `env:"QUEUE_BACKEND" envDefault:"redis"`

	// PostgreSQL configuration
	DatabaseURL string `env:"DATABASE_URL"`

	// Segmentation
	TemplatesPath      string  `env:"TEMPLATES_PATH" envDefault:"/config/templates.json"`
	FuzzyThreshold     float64 `env:"FUZZY_THRESHOLD" envDefault:"80"`
	SelectionThreshold float64 `env:"TEMPLATE_SELECT_THRESHOLD" envDefault:"80"`
	CleanOCRText       bool    `env:"CLEAN_OCR_TEXT" envDefault:"true"`

	// OCR collaborator
	OCREngine          string   `env:"OCR_ENGINE" envDefault:"tesseract"`
	OCRServiceURL      string   `env:"OCR_SERVICE_URL" envDefault:"http://ocr-service:8000"`
	OCRAPIKeys         []string `env:"OCR_API_KEYS" envSeparator:","`
	TesseractLanguages []string `env:"TESSERACT_LANGUAGES" envDefault:"tha,eng" envSeparator:","`
	OCRConcurrency     int      `env:"OCR_CONCURRENCY" envDefault:"4"`

	// Worker configuration
	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"10"`
	ProcessingTimeout int `env:"PROCESSING_TIMEOUT" envDefault:"300000"` // milliseconds

	// Outputs
	OutputDir      string `env:"OUTPUT_DIR" envDefault:"/tmp/docsegment"`
	ArtifactAPIURL string `env:"ARTIFACT_API_URL"` // empty disables artifact upload

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	AppEnv string `env:"APP_ENV" envDefault:"development"`
}

// Parse reads the environment without validating it
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads and validates the queue worker configuration
func LoadConfig() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the full worker configuration
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.QueueBackend != QueueBackendRedis && c.QueueBackend != QueueBackendAsynq {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendAsynq, c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 1 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %d", c.ProcessingTimeout)
	}

	return c.ValidateSegmentation()
}

// ValidateSegmentation checks only what a local run needs (no Redis or PostgreSQL)
func (c *Config) ValidateSegmentation() error {
	if c.TemplatesPath == "" {
		return fmt.Errorf("TEMPLATES_PATH is required")
	}

	if c.FuzzyThreshold < 1 || c.FuzzyThreshold > 100 {
		return fmt.Errorf("FUZZY_THRESHOLD must be between 1 and 100, got %v", c.FuzzyThreshold)
	}

	if c.SelectionThreshold < 0 || c.SelectionThreshold >= 100 {
		return fmt.Errorf("TEMPLATE_SELECT_THRESHOLD must be between 0 and 100 (exclusive), got %v", c.SelectionThreshold)
	}

	switch c.OCREngine {
	case OCREngineTesseract:
		if len(c.TesseractLanguages) == 0 {
			return fmt.Errorf("TESSERACT_LANGUAGES is required for the tesseract engine")
		}
	case OCREngineService:
		if c.OCRServiceURL == "" {
			return fmt.Errorf("OCR_SERVICE_URL is required for the service engine")
		}
		if len(c.OCRAPIKeys) == 0 {
			return fmt.Errorf("OCR_API_KEYS is required for the service engine")
		}
	default:
		return fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", OCREngineTesseract, OCREngineService, c.OCREngine)
	}

	if c.OCRConcurrency < 1 || c.OCRConcurrency > 32 {
		return fmt.Errorf("OCR_CONCURRENCY must be between 1 and 32, got %d", c.OCRConcurrency)
	}

	return nil
}

// Timeout returns PROCESSING_TIMEOUT as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}
