package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Segment names used by the HTTP layer.
const (
	SegmentAPI     = "api"
	SegmentScripts = "scripts"
	SegmentStats   = "stats"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Settings SettingsConfig `yaml:"settings"`
	Cache    CacheConfig    `yaml:"cache"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ImageTimeout   time.Duration `yaml:"image_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

type SettingsConfig struct {
	Backend     string `yaml:"backend"` // "sql" or "redis"
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type SegmentConfig struct {
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

type CacheConfig struct {
	Segments map[string]SegmentConfig `yaml:"segments"`
}

type UpstreamConfig struct {
	TextURL            string        `yaml:"text_url"`
	ImageURL           string        `yaml:"image_url"`
	TaskURL            string        `yaml:"task_url"`
	PrimaryImageModel  string        `yaml:"primary_image_model"`
	FallbackImageModel string        `yaml:"fallback_image_model"`
	ImageSize          string        `yaml:"image_size"`
	Timeout            time.Duration `yaml:"timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxPollAttempts    int           `yaml:"max_poll_attempts"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// Load reads the YAML file at path (optional), applies environment overrides
// and defaults, and validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	c.Server.Host = getenv("HOST", c.Server.Host)
	c.Database.Driver = getenv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.DSN = getenv("DATABASE_DSN", c.Database.DSN)
	c.Settings.Backend = getenv("SETTINGS_BACKEND", c.Settings.Backend)
	c.Settings.RedisAddr = getenv("REDIS_ADDR", c.Settings.RedisAddr)
	c.Upstream.TextURL = getenv("LLM_TEXT_URL", c.Upstream.TextURL)
	c.Upstream.ImageURL = getenv("LLM_IMAGE_URL", c.Upstream.ImageURL)
	c.Upstream.TaskURL = getenv("LLM_TASK_URL", c.Upstream.TaskURL)
	c.Log.Env = getenv("ENV", c.Log.Env)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
}

// DefaultSegments mirrors the sizes and lifetimes the desktop app shipped with.
func DefaultSegments() map[string]SegmentConfig {
	return map[string]SegmentConfig{
		SegmentAPI:     {MaxSize: 500, DefaultTTL: 30 * time.Minute},
		SegmentScripts: {MaxSize: 200, DefaultTTL: 10 * time.Minute},
		SegmentStats:   {MaxSize: 50, DefaultTTL: 5 * time.Minute},
	}
}

// WithDefaults returns a copy of Config with defaults applied.
func (c Config) WithDefaults() Config {
	cfg := c

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5173
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 20 * 1024 * 1024
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "scripts.db"
	}

	if cfg.Settings.Backend == "" {
		cfg.Settings.Backend = "sql"
	}
	if cfg.Settings.RedisAddr == "" {
		cfg.Settings.RedisAddr = "127.0.0.1:6379"
	}
	if cfg.Settings.RedisPrefix == "" {
		cfg.Settings.RedisPrefix = "scriptdesk"
	}

	segments := DefaultSegments()
	for name, seg := range cfg.Cache.Segments {
		def := segments[name]
		if seg.MaxSize <= 0 {
			seg.MaxSize = def.MaxSize
		}
		if seg.DefaultTTL <= 0 {
			seg.DefaultTTL = def.DefaultTTL
		}
		segments[name] = seg
	}
	cfg.Cache.Segments = segments

	if cfg.Upstream.TextURL == "" {
		cfg.Upstream.TextURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	}
	if cfg.Upstream.ImageURL == "" {
		cfg.Upstream.ImageURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text2image/image-synthesis"
	}
	if cfg.Upstream.TaskURL == "" {
		cfg.Upstream.TaskURL = "https://dashscope.aliyuncs.com/api/v1/tasks"
	}
	if cfg.Upstream.PrimaryImageModel == "" {
		cfg.Upstream.PrimaryImageModel = "flux-merge"
	}
	if cfg.Upstream.FallbackImageModel == "" {
		cfg.Upstream.FallbackImageModel = "wanx-v1"
	}
	if cfg.Upstream.ImageSize == "" {
		cfg.Upstream.ImageSize = "1024*1024"
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}
	if cfg.Upstream.PollInterval <= 0 {
		cfg.Upstream.PollInterval = time.Second
	}
	if cfg.Upstream.MaxPollAttempts <= 0 {
		cfg.Upstream.MaxPollAttempts = 120
	}

	// Room for the whole poll loop plus a submission and its fallback.
	if cfg.Server.ImageTimeout <= 0 {
		cfg.Server.ImageTimeout = cfg.Upstream.PollBudget() + 2*cfg.Upstream.Timeout
	}

	return cfg
}

// PollBudget is the time the image poll loop spends waiting between
// attempts, excluding the attempts themselves.
func (u UpstreamConfig) PollBudget() time.Duration {
	return time.Duration(u.MaxPollAttempts) * u.PollInterval
}

// Validate checks values that have no sensible default.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	switch c.Settings.Backend {
	case "sql", "redis":
	default:
		return fmt.Errorf("unknown settings.backend %q", c.Settings.Backend)
	}
	// The image route must outlive the poll loop so exhausted attempts
	// surface as a task timeout.
	if floor := c.Upstream.PollBudget() + c.Upstream.Timeout; c.Server.ImageTimeout <= floor {
		return fmt.Errorf("server.image_timeout (%s) must exceed max_poll_attempts*poll_interval + upstream.timeout (%s)",
			c.Server.ImageTimeout, floor)
	}
	for name, seg := range c.Cache.Segments {
		if seg.MaxSize <= 0 {
			return fmt.Errorf("cache segment %q: max_size must be positive", name)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
