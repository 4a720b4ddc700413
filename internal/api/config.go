package api

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"genestore/internal/auth"
)

// ServerConfig holds the HTTP server tunables. It is read from the optional
// TOML file named by server.configFile in the main configuration.
type ServerConfig struct {
	HTTP         HTTPConfig         `toml:"http"`
	CORS         CORSConfig         `toml:"cors"`
	LoadShedding LoadSheddingConfig `toml:"load_shedding"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Auth         auth.ManagerConfig `toml:"auth"`
}

// HTTPConfig tunes the listener.
type HTTPConfig struct {
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`
	MaxBodySize  string        `toml:"max_body_size"` // e.g. "16MB"
}

// CORSConfig lists the origins allowed to call the API. "*" allows any.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DefaultServerConfig returns the tunables used when no file is given.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTP: HTTPConfig{
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodySize:  "16MB",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		LoadShedding: DefaultLoadSheddingConfig(),
		Metrics:      DefaultMetricsConfig(),
		Auth:         auth.DefaultManagerConfig(),
	}
}

// LoadServerConfig reads a TOML tunables file over the defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}

	cfg := DefaultServerConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *ServerConfig) Validate() error {
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 || c.HTTP.IdleTimeout < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}
	if c.HTTP.MaxBodySize != "" {
		if _, err := humanize.ParseBytes(c.HTTP.MaxBodySize); err != nil {
			return fmt.Errorf("http.max_body_size: %w", err)
		}
	}
	if c.LoadShedding.Enabled {
		if c.LoadShedding.MaxConcurrentRequests <= 0 {
			return fmt.Errorf("load_shedding.max_concurrent_requests must be positive")
		}
		if c.LoadShedding.MaxConcurrentSaves < 0 {
			return fmt.Errorf("load_shedding.max_concurrent_saves must not be negative")
		}
		if c.LoadShedding.QueueSize < 0 {
			return fmt.Errorf("load_shedding.queue_size must not be negative")
		}
	}
	if c.Metrics.Enabled && (!strings.HasPrefix(c.Metrics.Endpoint, "/") || c.Metrics.Endpoint == "/") {
		return fmt.Errorf("metrics.endpoint must be an absolute path other than /")
	}
	for i, k := range c.Auth.StaticKeys {
		if k.ID == "" || k.Token == "" {
			return fmt.Errorf("auth.static_keys[%d]: id and token are required", i)
		}
		if k.UserID == "" {
			return fmt.Errorf("auth.static_keys[%d] (%s): user_id is required", i, k.ID)
		}
	}
	return nil
}

// maxBodyBytes returns the request body limit, 0 meaning unlimited.
func (c *ServerConfig) maxBodyBytes() int64 {
	if c.HTTP.MaxBodySize == "" {
		return 0
	}
	n, err := humanize.ParseBytes(c.HTTP.MaxBodySize)
	if err != nil {
		return 0
	}
	return int64(n)
}
