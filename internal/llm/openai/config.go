package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.2
	DefaultMaxRetries  = 2
	defaultTimeout     = 45 * time.Second
)

type Config struct {
	APIKey  string // OPENAI_API_KEY when empty
	BaseURL string
	Model   string

	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	// MaxRetries bounds resends after 429 and 5xx gateway responses.
	// Negative disables retries.
	MaxRetries int
	// Lenient accepts output that needed repairs (code fences, bare arrays).
	Lenient bool
}

func (c Config) withDefaults() Config {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Client talks to an OpenAI compatible chat/completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Model() string { return c.cfg.Model }
