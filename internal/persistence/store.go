// Package persistence is the project store: existence checks, reads, writes,
// merges and deletes of projects, block maps and orders, plus the save and
// snapshot operations that commit a project's data directory to history.
//
// Plain writes never commit. Every mutation of one project runs under that
// project's lock, and a commit is only issued while the lock is held, so it
// always captures fully written manifests.
package persistence

import (
	"context"
	"log/slog"

	"genestore/internal/commitmsg"
	"genestore/internal/errors"
	"genestore/internal/events"
	"genestore/internal/fileio"
	"genestore/internal/history"
	"genestore/internal/model"
	"genestore/internal/paths"
	"genestore/internal/rollup"
)

// Permissions is the collaborator that records project access.
type Permissions interface {
	CreateProjectPermissions(ctx context.Context, projectID, userID string) error
	ProjectsForUser(ctx context.Context, userID string) ([]string, error)
}

// Options configures a Store. Paths and Versioner are required.
type Options struct {
	Paths       *paths.Resolver
	Versioner   history.Versioner
	Validator   model.Validator  // defaults to model.SchemaValidator
	Permissions Permissions      // optional
	Notifier    events.Notifier  // optional
	RollupCache *rollup.Cache    // defaults to an unbounded cache
	Logger      *slog.Logger
}

// WriteOptions tunes ProjectWrite and BlocksWrite.
type WriteOptions struct {
	// Overwrite replaces the whole block manifest instead of updating the
	// supplied ids.
	Overwrite bool
	// BypassValidation skips the validator.
	BypassValidation bool
}

// Store is the persistence API. Safe for concurrent use.
type Store struct {
	paths     *paths.Resolver
	vcs       history.Versioner
	validator model.Validator
	perms     Permissions
	notifier  events.Notifier
	cache     *rollup.Cache
	logger    *slog.Logger
	locks     *fileio.KeyedMutex
}

// New creates a Store.
func New(opts Options) (*Store, error) {
	if opts.Paths == nil {
		return nil, errors.New(errors.InvalidModel, "persistence: a path resolver is required", nil)
	}
	if opts.Versioner == nil {
		return nil, errors.New(errors.InvalidModel, "persistence: a history backend is required", nil)
	}
	s := &Store{
		paths:     opts.Paths,
		vcs:       opts.Versioner,
		validator: opts.Validator,
		perms:     opts.Permissions,
		notifier:  opts.Notifier,
		cache:     opts.RollupCache,
		logger:    opts.Logger,
		locks:     fileio.NewKeyedMutex(),
	}
	if s.validator == nil {
		s.validator = model.SchemaValidator{}
	}
	if s.notifier == nil {
		s.notifier = events.Nop{}
	}
	if s.cache == nil {
		s.cache = rollup.New(rollup.Unbounded{})
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Paths exposes the resolver the store writes through.
func (s *Store) Paths() *paths.Resolver { return s.paths }

// HistoryBackend names the configured history backend.
func (s *Store) HistoryBackend() string { return s.vcs.Name() }

// lock serializes mutations of one project.
func (s *Store) lock(projectID string) func() {
	return s.locks.Lock(projectID)
}

// setup provisions a project's directories, empty block manifest,
// permissions record and history. Every step tolerates a previous partial
// run, so it is safe to repeat.
func (s *Store) setup(ctx context.Context, projectID, userID string) error {
	for _, dir := range []string{
		s.paths.ProjectDataPath(projectID),
		s.paths.OrderDirectoryPath(projectID),
		s.paths.ProjectFilesPath(projectID),
	} {
		if err := fileio.MakeDir(dir); err != nil {
			return err
		}
	}

	blocksPath := s.paths.BlockManifestPath(projectID)
	if !fileio.Exists(blocksPath) {
		if err := fileio.WriteJSON(blocksPath, model.BlockMap{}); err != nil {
			return err
		}
	}

	if s.perms != nil && userID != "" {
		if err := s.perms.CreateProjectPermissions(ctx, projectID, userID); err != nil {
			return err
		}
	}

	err := s.vcs.Initialize(ctx, s.paths.ProjectDataPath(projectID), userID)
	if err != nil && !errors.IsCode(err, errors.AlreadyExists) {
		return err
	}

	s.logger.Debug("Project provisioned",
		"project_id", projectID,
		"user_id", userID,
		"history", s.vcs.Name(),
	)
	return nil
}

// ensureProvisioned runs setup when the project has no directory yet. For
// an existing project it still records userID's permissions, so a project
// first provisioned by an anonymous write gains an owner on its first
// attributed one.
func (s *Store) ensureProvisioned(ctx context.Context, projectID, userID string) error {
	if !fileio.Exists(s.paths.ProjectDataPath(projectID)) {
		return s.setup(ctx, projectID, userID)
	}
	if s.perms == nil || userID == "" {
		return nil
	}
	return s.perms.CreateProjectPermissions(ctx, projectID, userID)
}

func (s *Store) publish(kind events.Kind, projectID, userID, sha string, label commitmsg.Message, data any) {
	s.notifier.Publish(events.Event{
		Kind:      kind,
		ProjectID: projectID,
		UserID:    userID,
		SHA:       sha,
		Label:     label.String(),
		Data:      data,
	})
}

func (s *Store) validateProject(p *model.Project) error {
	if s.validator.ValidateProject(p) {
		return nil
	}
	return invalid("project", p.ID, model.CheckProject(p))
}

func (s *Store) validateBlock(b *model.Block) error {
	if s.validator.ValidateBlock(b) {
		return nil
	}
	return invalid("block", b.ID, model.CheckBlock(b))
}

func (s *Store) validateOrder(o *model.Order) error {
	if s.validator.ValidateOrder(o) {
		return nil
	}
	return invalid("order", o.ID, model.CheckOrder(o))
}

// invalid builds an INVALID_MODEL error. reason comes from the schema checks
// and is nil when a custom validator rejected an otherwise well-formed doc.
func invalid(kind, id string, reason error) error {
	if reason != nil {
		return errors.Newf(errors.InvalidModel, "%s %s failed validation: %v", kind, id, reason)
	}
	return errors.Newf(errors.InvalidModel, "%s %s failed validation", kind, id)
}
