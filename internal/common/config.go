package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Raster   RasterConfig
	OCR      OCRConfig
	VLM      VLMConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN         string
	DialTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr  string
	UploadDir string
}

// RasterConfig holds PDF rasterization configuration
type RasterConfig struct {
	Pdftoppm string
	Pdfinfo  string
	DPI      int
	MaxPages int
}

// OCRConfig holds the primary text-recognition provider configuration
type OCRConfig struct {
	APIKey      string
	SecretKey   string
	BaseURL     string
	MinInterval time.Duration
	Timeout     time.Duration
	Tesseract   string
	Languages   string
}

// VLMConfig holds the vision-language provider configuration
type VLMConfig struct {
	Model    string
	MaxPages int
}

// LLMConfig holds the extraction-model configuration. APIKey doubles as the
// "is a provider configured at all" switch: empty means mock extraction.
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// PipelineConfig holds background processing knobs
type PipelineConfig struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:         getEnv("DB_URL", "file:evidence.db?_pragma=busy_timeout(5000)"),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr:  getEnv("HTTP_ADDR", ":8000"),
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
		},
		Raster: RasterConfig{
			Pdftoppm: getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Pdfinfo:  getEnv("PDFINFO_BIN", "pdfinfo"),
			DPI:      getEnvAsInt("RASTER_DPI", 144),
			MaxPages: getEnvAsInt("RASTER_MAX_PAGES", 0),
		},
		OCR: OCRConfig{
			APIKey:      getEnv("BAIDU_API_KEY", ""),
			SecretKey:   getEnv("BAIDU_SECRET_KEY", ""),
			BaseURL:     getEnv("BAIDU_OCR_BASE_URL", "https://aip.baidubce.com"),
			MinInterval: getEnvAsDuration("OCR_MIN_INTERVAL", time.Second),
			Timeout:     getEnvAsDuration("OCR_TIMEOUT", 30*time.Second),
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			Languages:   getEnv("TESSERACT_LANGS", "chi_sim+eng"),
		},
		VLM: VLMConfig{
			Model:    getEnv("VLM_MODEL", "gemini-2.5-flash-preview-05-20"),
			MaxPages: getEnvAsInt("VLM_MAX_PAGES", 3),
		},
		LLM: LLMConfig{
			Model:       getEnv("LLM_MODEL", "gemini-2.0-flash-exp"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 2),
			QueueSize:      getEnvAsInt("PIPELINE_QUEUE_SIZE", 64),
			ProcessTimeout: getEnvAsDuration("PIPELINE_TIMEOUT", 10*time.Minute),
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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
// A missing LLM key is allowed: extraction degrades to mock records.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Raster.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "RASTER_DPI must be positive", ErrInvalidInput)
	}
	return nil
}
