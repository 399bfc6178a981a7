package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EngineTesseract = "tesseract"
	EngineMistral   = "mistral"
)

// Config holds all configuration for the service
type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	Engine         string
	Language       string
	TessdataPrefix string
	TesseractPSM   int
	Workers        int
	Timeout        time.Duration
	MaxUploadBytes int64
	MaxImagePixels int
	MinConfidence  float64

	MistralAPIKey  string
	MistralBaseURL string
	MistralModel   string

	OllamaURL   string
	OllamaModel string

	TelegramBotToken string
	TelegramBaseURL  string

	HealthSchedule string
}

// LoadEnv reads a .env file into the process environment. A missing file is
// not an error since the environment may be provided by the container.
func LoadEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not load .env: %w", err)
	}
	return nil
}

// Load builds the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getString("PORT", "8000"),
		GinMode:          getString("GIN_MODE", "release"),
		LogLevel:         getString("LOG_LEVEL", "info"),
		Engine:           strings.ToLower(getString("OCR_ENGINE", EngineTesseract)),
		Language:         getString("OCR_LANGUAGE", "eng"),
		TessdataPrefix:   os.Getenv("TESSDATA_PREFIX"),
		MistralAPIKey:    os.Getenv("MISTRAL_API_KEY"),
		MistralBaseURL:   getString("MISTRAL_BASE_URL", "https://api.mistral.ai"),
		MistralModel:     getString("MISTRAL_MODEL", "mistral-ocr-latest"),
		OllamaURL:        os.Getenv("OLLAMA_URL"),
		OllamaModel:      getString("OLLAMA_MODEL", "llama3.1"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramBaseURL:  getString("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		HealthSchedule:   getString("HEALTH_SCHEDULE", "@every 5m"),
	}

	var err error
	if cfg.TesseractPSM, err = getInt("TESSERACT_PSM", 3); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("OCR_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}
	if cfg.MaxImagePixels, err = getInt("MAX_IMAGE_PIXELS", 40_000_000); err != nil {
		return nil, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if cfg.Timeout, err = getDuration("OCR_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MinConfidence, err = getFloat("MIN_CONFIDENCE", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineTesseract:
	case EngineMistral:
		if c.MistralAPIKey == "" {
			return fmt.Errorf("MISTRAL_API_KEY is required when OCR_ENGINE=%s", EngineMistral)
		}
	default:
		return fmt.Errorf("unknown OCR_ENGINE %q", c.Engine)
	}
	if c.Workers < 1 {
		return fmt.Errorf("OCR_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("MIN_CONFIDENCE must be within 0..100, got %g", c.MinConfidence)
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

// getDuration accepts Go durations ("45s") or a plain number of seconds.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
