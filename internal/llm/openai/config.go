package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the OpenAI-compatible chat client. One client serves both the
// vision page analysis and the text-only extraction calls; Model and
// VisionModel may name the same deployment.
type Config struct {
	APIKey      string // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string // default https://api.openai.com/v1
	Model       string // extraction model, e.g. "gemini-2.0-flash-exp"
	VisionModel string // page-analysis model; defaults to Model
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash-exp"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Configured reports whether provider credentials are present. Without them
// the extraction engine runs in mock mode; VLM page calls still run and fail
// individually, recorded as failed pages.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}
