package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file kept at the top of the storage root.
const FileName = "config.json"

// EnvPrefix prefixes environment overrides, e.g. GENESTORE_HISTORY_BACKEND.
const EnvPrefix = "GENESTORE"

// Config represents the complete genestore configuration
type Config struct {
	Version     int    `json:"version" mapstructure:"version"`
	StorageRoot string `json:"storageRoot" mapstructure:"storageRoot"`

	History     HistoryConfig     `json:"history" mapstructure:"history"`
	RollupCache RollupCacheConfig `json:"rollupCache" mapstructure:"rollupCache"`
	Sequences   SequencesConfig   `json:"sequences" mapstructure:"sequences"`
	Auth        AuthConfig        `json:"auth" mapstructure:"auth"`
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// HistoryConfig selects and tunes the version-control backend
type HistoryConfig struct {
	Backend          string `json:"backend" mapstructure:"backend"` // "sqlite" or "git"
	GitBinary        string `json:"gitBinary" mapstructure:"gitBinary"`
	TimeoutMs        int    `json:"timeoutMs" mapstructure:"timeoutMs"`
	CompressionLevel int    `json:"compressionLevel" mapstructure:"compressionLevel"`
}

// RollupCacheConfig bounds the rollup de-duplication cache.
// Capacity 0 keeps every project (unbounded).
type RollupCacheConfig struct {
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// SequencesConfig contains sequence store settings
type SequencesConfig struct {
	VerifyContent bool `json:"verifyContent" mapstructure:"verifyContent"`
}

// AuthConfig contains API authentication settings
type AuthConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	DefaultUser string `json:"defaultUser" mapstructure:"defaultUser"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	ConfigFile string `json:"configFile" mapstructure:"configFile"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format"`
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:     1,
		StorageRoot: ".",
		History: HistoryConfig{
			Backend:          "sqlite",
			GitBinary:        "git",
			TimeoutMs:        30000,
			CompressionLevel: 3,
		},
		RollupCache: RollupCacheConfig{
			Capacity: 256,
		},
		Sequences: SequencesConfig{
			VerifyContent: true,
		},
		Auth: AuthConfig{
			Enabled:     false,
			DefaultUser: "local",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("storageRoot", d.StorageRoot)
	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.gitBinary", d.History.GitBinary)
	v.SetDefault("history.timeoutMs", d.History.TimeoutMs)
	v.SetDefault("history.compressionLevel", d.History.CompressionLevel)
	v.SetDefault("rollupCache.capacity", d.RollupCache.Capacity)
	v.SetDefault("sequences.verifyContent", d.Sequences.VerifyContent)
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.defaultUser", d.Auth.DefaultUser)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.configFile", d.Server.ConfigFile)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// LoadConfig loads configuration from <storageRoot>/config.json.
// A missing file yields the defaults; GENESTORE_* variables override either.
// StorageRoot is always set to the directory the config was loaded from
// unless an environment override names another one.
func LoadConfig(storageRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("json")
	v.AddConfigPath(storageRoot)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_STORAGEROOT"); !ok {
		cfg.StorageRoot = storageRoot
	}

	return &cfg, nil
}

// Save writes the configuration to <storageRoot>/config.json
func (c *Config) Save(storageRoot string) error {
	if err := os.MkdirAll(storageRoot, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(storageRoot, FileName), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.StorageRoot == "" {
		return &ConfigError{Field: "storageRoot", Message: "must not be empty"}
	}

	switch c.History.Backend {
	case "sqlite":
		if c.History.CompressionLevel < 1 || c.History.CompressionLevel > 4 {
			return &ConfigError{Field: "history.compressionLevel", Message: "must be between 1 and 4"}
		}
	case "git":
		if c.History.GitBinary == "" {
			return &ConfigError{Field: "history.gitBinary", Message: "must not be empty for the git backend"}
		}
	default:
		return &ConfigError{Field: "history.backend", Message: "must be \"sqlite\" or \"git\""}
	}
	if c.History.TimeoutMs <= 0 {
		return &ConfigError{Field: "history.timeoutMs", Message: "must be positive"}
	}

	if c.RollupCache.Capacity < 0 {
		return &ConfigError{Field: "rollupCache.capacity", Message: "must not be negative"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "out of range"}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be \"human\" or \"json\""}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
