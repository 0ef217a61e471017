package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"classrelay/internal/auth"
)

// Config is the full server configuration. Values come from defaults, an
// optional config file and CLASSRELAY_* environment variables, in that
// order of precedence (lowest first).
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Limits    LimitsConfig    `mapstructure:"limits"`
}

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// DirectoryConfig selects the roster backend used for join authorization.
// Backend "none" disables lookups entirely; joins then fall back to the
// configured failure policy only when a room is course-gated.
type DirectoryConfig struct {
	Backend string        `mapstructure:"backend"`
	Path    string        `mapstructure:"path"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	OnLookupFailure string        `mapstructure:"on_lookup_failure"`
	LookupTimeout   time.Duration `mapstructure:"lookup_timeout"`
}

type LimitsConfig struct {
	EventsPerMinute int `mapstructure:"events_per_minute"`
}

const (
	BackendSQLite = "sqlite"
	BackendHTTP   = "http"
	BackendNone   = "none"
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		Directory: DirectoryConfig{
			Backend: BackendSQLite,
			Path:    "./data/classrelay.db",
			Timeout: 2 * time.Second,
		},
		Auth: AuthConfig{
			OnLookupFailure: string(auth.PolicyDeny),
			LookupTimeout:   2 * time.Second,
		},
		Limits: LimitsConfig{
			EventsPerMinute: 120,
		},
	}
}

// Load reads configuration from the optional file at path plus the
// environment and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("http.host", defaults.HTTP.Host)
	v.SetDefault("http.port", defaults.HTTP.Port)
	v.SetDefault("http.shutdown_timeout", defaults.HTTP.ShutdownTimeout)
	v.SetDefault("websocket.ping_interval", defaults.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", defaults.WebSocket.ReadTimeout)
	v.SetDefault("directory.backend", defaults.Directory.Backend)
	v.SetDefault("directory.path", defaults.Directory.Path)
	v.SetDefault("directory.base_url", defaults.Directory.BaseURL)
	v.SetDefault("directory.timeout", defaults.Directory.Timeout)
	v.SetDefault("auth.on_lookup_failure", defaults.Auth.OnLookupFailure)
	v.SetDefault("auth.lookup_timeout", defaults.Auth.LookupTimeout)
	v.SetDefault("limits.events_per_minute", defaults.Limits.EventsPerMinute)

	v.SetEnvPrefix("CLASSRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http port %d out of range", ErrInvalidConfig, c.HTTP.Port)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("%w: websocket intervals must be positive", ErrInvalidConfig)
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("%w: read timeout must exceed ping interval", ErrInvalidConfig)
	}

	switch c.Directory.Backend {
	case BackendSQLite:
		if c.Directory.Path == "" {
			return fmt.Errorf("%w: sqlite backend requires directory.path", ErrInvalidConfig)
		}
	case BackendHTTP:
		if c.Directory.BaseURL == "" {
			return fmt.Errorf("%w: http backend requires directory.base_url", ErrInvalidConfig)
		}
		if c.Directory.Timeout <= 0 {
			return fmt.Errorf("%w: directory timeout must be positive", ErrInvalidConfig)
		}
	case BackendNone:
	default:
		return fmt.Errorf("%w: unknown directory backend %q", ErrInvalidConfig, c.Directory.Backend)
	}

	if !auth.IsValidPolicy(auth.Policy(c.Auth.OnLookupFailure)) {
		return fmt.Errorf("%w: on_lookup_failure must be allow or deny, got %q", ErrInvalidConfig, c.Auth.OnLookupFailure)
	}
	if c.Auth.LookupTimeout <= 0 {
		return fmt.Errorf("%w: lookup timeout must be positive", ErrInvalidConfig)
	}
	if c.Limits.EventsPerMinute < 0 {
		return fmt.Errorf("%w: events per minute cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
