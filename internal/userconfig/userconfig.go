// Package userconfig stores per-user onboarding configuration: account type,
// starter projects and which extensions are active.
package userconfig

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"genestore/internal/errors"
	"genestore/internal/storage"
)

//go:embed defaults.toml
var defaultsTOML []byte

// Config is one user's configuration document.
type Config struct {
	AccountType string                      `toml:"account_type" json:"accountType"`
	Projects    map[string]ProjectSetting   `toml:"projects" json:"projects"`
	Extensions  map[string]ExtensionSetting `toml:"extensions" json:"extensions"`
}

// ProjectSetting marks a starter project. At most one may be the default.
type ProjectSetting struct {
	Default bool `toml:"default" json:"default,omitempty"`
}

// ExtensionSetting toggles a client extension.
type ExtensionSetting struct {
	Active bool `toml:"active" json:"active"`
}

// Validate checks the document shape.
func (c Config) Validate() error {
	if c.AccountType == "" {
		return errors.New(errors.InvalidModel, "accountType is required", nil)
	}
	defaults := 0
	for name, p := range c.Projects {
		if name == "" {
			return errors.New(errors.InvalidModel, "project names must not be empty", nil)
		}
		if p.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.Newf(errors.InvalidModel, "%d projects marked default, at most one allowed", defaults)
	}
	return nil
}

// DefaultProject returns the starter project marked default, if any.
func (c Config) DefaultProject() (string, bool) {
	for name, p := range c.Projects {
		if p.Default {
			return name, true
		}
	}
	return "", false
}

// LoadDefaults parses the built-in defaults and, when overridePath names an
// existing file, decodes it on top so only the keys it sets change.
func LoadDefaults(overridePath string) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(defaultsTOML, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse built-in defaults: %w", err)
	}
	if overridePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(overridePath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", overridePath, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.New(errors.InvalidModel, "parse "+overridePath, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Store persists configs in the user_configs table.
type Store struct {
	db       *storage.DB
	defaults Config
	logger   *slog.Logger
}

// New creates a store that answers unknown users with defaults.
func New(db *storage.DB, defaults Config, logger *slog.Logger) *Store {
	return &Store{db: db, defaults: defaults, logger: logger}
}

// Defaults returns a copy of the defaults.
func (s *Store) Defaults() Config {
	return clone(s.defaults)
}

// Get returns the user's saved config, or the defaults when none is saved.
func (s *Store) Get(ctx context.Context, userID string) (Config, error) {
	if userID == "" {
		return Config{}, errors.ErrNoIdProvided
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM user_configs WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return s.Defaults(), nil
	}
	if err != nil {
		return Config{}, errors.New(errors.IOError, "read user config", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, errors.New(errors.IOError, "decode user config", err)
	}
	return cfg, nil
}

// Set validates and stores cfg for userID, replacing any previous config.
func (s *Store) Set(ctx context.Context, userID string, cfg Config) (Config, error) {
	if userID == "" {
		return Config{}, errors.ErrNoIdProvided
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, errors.New(errors.InvalidModel, "encode user config", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_configs (user_id, config, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at
	`, userID, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return Config{}, errors.New(errors.IOError, "write user config", err)
	}
	s.logger.Debug("User config saved", "user_id", userID)
	return cfg, nil
}

// EncodeTOML renders cfg in the defaults file format.
func EncodeTOML(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func clone(c Config) Config {
	out := Config{AccountType: c.AccountType}
	if c.Projects != nil {
		out.Projects = make(map[string]ProjectSetting, len(c.Projects))
		for k, v := range c.Projects {
			out.Projects[k] = v
		}
	}
	if c.Extensions != nil {
		out.Extensions = make(map[string]ExtensionSetting, len(c.Extensions))
		for k, v := range c.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}
