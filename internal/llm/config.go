package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"scriptdesk/internal/settings"
)

type Config struct {
	// required fields
	TextURL  string
	ImageURL string
	TaskURL  string // task id is appended

	PrimaryImageModel  string        // default: flux-merge
	FallbackImageModel string        // default: wanx-v1
	ImageSize          string        // default: 1024*1024
	UpstreamTimeout    time.Duration // per-request timeout (default: 30s)
	PollInterval       time.Duration // wait before each task poll (default: 1s)
	MaxPollAttempts    int           // default: 120

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if c.TextURL == "" {
		return errors.New("TextURL is required")
	}
	if c.ImageURL == "" {
		return errors.New("ImageURL is required")
	}
	if c.TaskURL == "" {
		return errors.New("TaskURL is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	// TaskURL gets "/<id>" appended.
	cfg.TaskURL = strings.TrimRight(cfg.TaskURL, "/")

	if cfg.PrimaryImageModel == "" {
		cfg.PrimaryImageModel = "flux-merge"
	}
	if cfg.FallbackImageModel == "" {
		cfg.FallbackImageModel = "wanx-v1"
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "1024*1024"
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 120
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

type client struct {
	cfg        Config
	creds      settings.Store
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates the proxy client. The credential is read from creds on
// every call.
func NewClient(cfg Config, creds settings.Store, logger *zap.Logger) (Client, error) {
	// Apply defaults + normalize TaskURL
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if creds == nil {
		return nil, errors.New("invalid config: credential store is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &client{
		cfg:        cfg,
		creds:      creds,
		httpClient: httpClient,
		logger:     logger.Named("llmproxy"),
	}, nil
}

// defaultTransport creates a production-ready HTTP transport
// with connection pooling and reasonable timeouts.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases resources held by the client.
func (c *client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
