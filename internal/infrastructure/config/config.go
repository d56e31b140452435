package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/chatbubble/internal/domain/widget"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Widget    WidgetConfig
	Inject    InjectConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"3000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// UpstreamConfig holds the proxied chat origin.
type UpstreamConfig struct {
	// Origin overrides the route's upstream when set; the route file or the
	// built-in route supplies it otherwise
	Origin string `envconfig:"UPSTREAM_ORIGIN"`
	// Prefixes replaces the route's prefixes when set
	Prefixes           []string      `envconfig:"UPSTREAM_PREFIXES"`
	RoutesFile         string        `envconfig:"UPSTREAM_ROUTES_FILE"`
	Timeout            time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	InsecureSkipVerify bool          `envconfig:"UPSTREAM_INSECURE" default:"false"`
}

// WidgetConfig holds the shell and frame reliability policy.
type WidgetConfig struct {
	ChatPath      string        `envconfig:"WIDGET_CHAT_PATH" default:"/chat/KAqf6artL6k9TgtB"`
	Preload       string        `envconfig:"WIDGET_PRELOAD" default:"mount"`
	LoadTimeout   time.Duration `envconfig:"WIDGET_LOAD_TIMEOUT" default:"10s"`
	MaxRetries    int           `envconfig:"WIDGET_MAX_RETRIES" default:"3"`
	BackoffBase   time.Duration `envconfig:"WIDGET_BACKOFF_BASE" default:"1s"`
	ReloadDelay   time.Duration `envconfig:"WIDGET_RELOAD_DELAY" default:"10ms"`
	FrameInterval time.Duration `envconfig:"WIDGET_FRAME_INTERVAL" default:"16ms"`
}

// InjectConfig holds the optional cosmetic overrides for proxied documents.
type InjectConfig struct {
	StylesheetPath string `envconfig:"INJECT_STYLESHEET"`
	DocumentTitle  string `envconfig:"INJECT_TITLE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE"`
	MaxSizeMB   int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups  int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	MaxAgeDays  int    `envconfig:"LOG_MAX_AGE_DAYS" default:"28"`
	Compress    bool   `envconfig:"LOG_COMPRESS" default:"true"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds the origins allowed to call the widget API.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if _, err := widget.ParsePreloadPolicy(c.Widget.Preload); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Widget.MaxRetries < 0 {
		return fmt.Errorf("invalid config: negative max retries %d", c.Widget.MaxRetries)
	}
	if o := c.Upstream.Origin; o != "" {
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid config: upstream origin %q is not an absolute URL", o)
		}
	}
	return nil
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "3000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Widget: WidgetConfig{
			ChatPath:      "/chat/KAqf6artL6k9TgtB",
			Preload:       "mount",
			LoadTimeout:   10 * time.Second,
			MaxRetries:    3,
			BackoffBase:   time.Second,
			ReloadDelay:   10 * time.Millisecond,
			FrameInterval: 16 * time.Millisecond,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			MaxSizeMB:   100,
			MaxBackups:  3,
			MaxAgeDays:  28,
			Compress:    true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}
