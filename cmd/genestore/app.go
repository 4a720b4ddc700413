package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"genestore/internal/api"
	"genestore/internal/auth"
	"genestore/internal/config"
	"genestore/internal/events"
	"genestore/internal/history"
	"genestore/internal/history/gitvcs"
	"genestore/internal/history/sqlvcs"
	"genestore/internal/paths"
	"genestore/internal/permissions"
	"genestore/internal/persistence"
	"genestore/internal/rollup"
	"genestore/internal/sequence"
	"genestore/internal/slogutil"
	"genestore/internal/storage"
	"genestore/internal/userconfig"
)

// eventBuffer is the per-subscriber queue length of the change feed.
const eventBuffer = 64

// app holds every service a command may need, built from the storage root.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logs      *slogutil.LoggerFactory
	db        *storage.DB
	store     *persistence.Store
	sequences *sequence.Store
	perms     *permissions.Store
	userCfg   *userconfig.Store
	hub       *events.Hub
	closers   []io.Closer
}

// openApp loads the config under --root and wires the store. server selects
// the server logger, which also writes to logging.file.
func openApp(server bool) (*app, error) {
	cfg, err := config.LoadConfig(rootDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if server {
		// The server keeps the configured level unless -v or -q is given.
		var override []slog.Level
		if verbosity > 0 || quiet {
			override = append(override, slogutil.LevelFromVerbosity(verbosity, quiet))
		}
		a.logs = slogutil.NewLoggerFactory(cfg, override...)
		a.logger, err = a.logs.ServerLogger()
		if err != nil {
			a.logger.Warn("file logging disabled", "error", err)
		}
	} else {
		a.logs = slogutil.NewLoggerFactory(cfg, slogutil.LevelFromVerbosity(verbosity, quiet))
		a.logger = a.logs.CLILogger()
	}
	a.closers = append(a.closers, a.logs)

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	db, err := storage.Open(a.cfg.StorageRoot, a.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db)

	vcs, err := a.openHistory()
	if err != nil {
		return err
	}

	resolver := paths.New(a.cfg.StorageRoot)
	a.perms = permissions.New(db, a.logger)
	a.hub = events.NewHub(eventBuffer)

	defaults, err := userconfig.LoadDefaults("")
	if err != nil {
		return fmt.Errorf("load user config defaults: %w", err)
	}
	a.userCfg = userconfig.New(db, defaults, a.logger)

	a.store, err = persistence.New(persistence.Options{
		Paths:       resolver,
		Versioner:   vcs,
		Permissions: a.perms,
		Notifier:    a.hub,
		RollupCache: rollup.NewWithCapacity(a.cfg.RollupCache.Capacity),
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	a.sequences = sequence.New(resolver, a.cfg.Sequences.VerifyContent, a.logger)
	return nil
}

func (a *app) openHistory() (history.Versioner, error) {
	h := a.cfg.History
	switch h.Backend {
	case "git":
		b, err := gitvcs.New(a.logger, gitvcs.Options{
			Binary:  h.GitBinary,
			Timeout: time.Duration(h.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		return b, nil
	default:
		b, err := sqlvcs.New(a.logger, h.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.closers = append(a.closers, b)
		return b, nil
	}
}

// authManager builds the key manager from the server config's [auth] table
// with the enabled flag and default user taken from config.json.
func (a *app) authManager(serverCfg *api.ServerConfig) (*auth.Manager, error) {
	mc := serverCfg.Auth
	mc.Enabled = mc.Enabled || a.cfg.Auth.Enabled
	if a.cfg.Auth.DefaultUser != "" {
		mc.DefaultUser = a.cfg.Auth.DefaultUser
	}
	return auth.NewManager(mc, a.db.Conn(), a.logger)
}

// serverConfig reads server.configFile, or the defaults when it is unset.
func (a *app) serverConfig() (*api.ServerConfig, error) {
	if a.cfg.Server.ConfigFile == "" {
		return api.DefaultServerConfig(), nil
	}
	return api.LoadServerConfig(a.cfg.Server.ConfigFile)
}

// user is the identity CLI writes are recorded under.
func (a *app) user() string {
	if userArg != "" {
		return userArg
	}
	return a.cfg.Auth.DefaultUser
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// withApp opens the app for the duration of fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}
