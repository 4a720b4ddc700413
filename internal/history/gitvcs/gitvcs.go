// Package gitvcs records project history in a git repository rooted at the
// project's data directory, driving the git binary.
package gitvcs

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"genestore/internal/errors"
	"genestore/internal/history"
)

const (
	// BackendID identifies this backend in config.
	BackendID = "git"

	// DefaultTimeout bounds a single git invocation.
	DefaultTimeout = 30 * time.Second

	emailDomain = "genestore.local"
)

// Options configures the backend.
type Options struct {
	Binary  string
	Timeout time.Duration
}

// Backend implements history.Versioner with the git CLI.
type Backend struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a git backend. The binary must be resolvable on PATH.
func New(logger *slog.Logger, opts Options) (*Backend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Binary == "" {
		opts.Binary = "git"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if _, err := exec.LookPath(opts.Binary); err != nil {
		return nil, errors.New(errors.IOError, "git binary not found", err).
			WithDetails(map[string]string{"binary": opts.Binary})
	}
	return &Backend{binary: opts.Binary, timeout: opts.Timeout, logger: logger}, nil
}

func (b *Backend) Name() string { return BackendID }

// run executes git in dir with a timeout and returns raw stdout.
func (b *Backend) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	b.logger.Debug("Executing git command", "args", args, "timeout", b.timeout.String())

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.IOError, "git command timed out", err).
				WithDetails(map[string]any{"args": args})
		}
		return nil, &commandError{
			StoreError: errors.New(errors.IOError, "git command failed", err).
				WithDetails(map[string]any{"args": args, "stderr": strings.TrimSpace(stderr.String())}),
			exited: isExitError(err),
		}
	}
	return out, nil
}

// runText is run with surrounding whitespace trimmed.
func (b *Backend) runText(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := b.run(ctx, dir, args...)
	return strings.TrimSpace(string(out)), err
}

// commandError marks failures where git ran and exited non-zero, which for
// probing commands means "no" rather than "broken".
type commandError struct {
	*errors.StoreError
	exited bool
}

func (e *commandError) Unwrap() error { return e.StoreError }

func isExitError(err error) bool {
	_, ok := err.(*exec.ExitError)
	return ok
}

func exitedNonZero(err error) bool {
	ce, ok := err.(*commandError)
	return ok && ce.exited
}

func isRepo(dataPath string) bool {
	_, err := os.Stat(filepath.Join(dataPath, ".git"))
	return err == nil
}

func identity(userID string) []string {
	return []string{"-c", "user.name=" + userID, "-c", "user.email=" + userID + "@" + emailDomain}
}

// Initialize implements history.Versioner.
func (b *Backend) Initialize(ctx context.Context, dataPath, userID string) error {
	if isRepo(dataPath) {
		return errors.Newf(errors.AlreadyExists, "history already initialized at %s", dataPath)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return errors.Wrap(err, "creating data directory")
	}

	if _, err := b.run(ctx, dataPath, "init", "-q"); err != nil {
		return err
	}
	for _, kv := range [][2]string{
		{"commit.gpgsign", "false"},
		{"core.autocrlf", "false"},
		{"genestore.createdBy", userID},
	} {
		if _, err := b.run(ctx, dataPath, "config", kv[0], kv[1]); err != nil {
			return err
		}
	}

	// dot entries are backend state or temp files, never data
	exclude := filepath.Join(dataPath, ".git", "info", "exclude")
	if err := os.MkdirAll(filepath.Dir(exclude), 0755); err != nil {
		return errors.Wrap(err, "creating git info directory")
	}
	if err := os.WriteFile(exclude, []byte(".*\n"), 0644); err != nil {
		return errors.Wrap(err, "writing git exclude file")
	}

	b.logger.Debug("History initialized", "backend", BackendID, "dataPath", dataPath, "user", userID)
	return nil
}

// Commit implements history.Versioner.
func (b *Backend) Commit(ctx context.Context, dataPath, message, userID string) (string, error) {
	if !isRepo(dataPath) {
		return "", errors.Newf(errors.DoesNotExist, "no history at %s", dataPath)
	}

	if _, err := b.run(ctx, dataPath, "add", "-A"); err != nil {
		return "", err
	}

	args := append(identity(userID), "commit", "-q", "--allow-empty", "--no-verify",
		"--cleanup=verbatim", "-m", message)
	if _, err := b.run(ctx, dataPath, args...); err != nil {
		return "", err
	}

	sha, err := b.runText(ctx, dataPath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	b.logger.Debug("Committed", "backend", BackendID, "dataPath", dataPath, "sha", sha)
	return sha, nil
}

// VersionExists implements history.Versioner.
func (b *Backend) VersionExists(ctx context.Context, dataPath, sha string) (bool, error) {
	if sha == "" || !isRepo(dataPath) || strings.HasPrefix(sha, "-") {
		return false, nil
	}
	_, err := b.run(ctx, dataPath, "cat-file", "-e", sha+"^{commit}")
	if err == nil {
		return true, nil
	}
	if exitedNonZero(err) {
		return false, nil
	}
	return false, err
}

func (b *Backend) requireCommit(ctx context.Context, dataPath, sha string) error {
	ok, err := b.VersionExists(ctx, dataPath, sha)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound("commit", sha)
	}
	return nil
}

// GetCommit implements history.Versioner.
func (b *Backend) GetCommit(ctx context.Context, dataPath, sha string) (history.Commit, error) {
	if err := b.requireCommit(ctx, dataPath, sha); err != nil {
		return history.Commit{}, err
	}
	out, err := b.run(ctx, dataPath, "log", "-1", "--format="+logFormat, sha, "--")
	if err != nil {
		return history.Commit{}, err
	}
	commits := parseLog(out)
	if len(commits) == 0 {
		return history.Commit{}, errors.NotFound("commit", sha)
	}
	return commits[0], nil
}

// Checkout implements history.Versioner.
func (b *Backend) Checkout(ctx context.Context, dataPath, relPath, sha string) ([]byte, error) {
	if err := b.requireCommit(ctx, dataPath, sha); err != nil {
		return nil, err
	}
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "./")
	spec := sha + ":" + relPath

	if _, err := b.run(ctx, dataPath, "cat-file", "-e", spec); err != nil {
		if exitedNonZero(err) {
			return nil, errors.Newf(errors.DoesNotExist, "%s does not exist at %s", relPath, sha)
		}
		return nil, err
	}
	return b.run(ctx, dataPath, "cat-file", "blob", spec)
}

// Log implements history.Versioner. Newest first.
func (b *Backend) Log(ctx context.Context, dataPath string) ([]history.Commit, error) {
	if !isRepo(dataPath) {
		return nil, errors.Newf(errors.DoesNotExist, "no history at %s", dataPath)
	}
	if _, err := b.run(ctx, dataPath, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		if exitedNonZero(err) {
			return []history.Commit{}, nil
		}
		return nil, err
	}

	out, err := b.run(ctx, dataPath, "log", "--format="+logFormat)
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

// sha, author, unix time and raw body, NUL separated; records end with RS.
const logFormat = "%H%x00%an%x00%at%x00%B%x1e"

func parseLog(out []byte) []history.Commit {
	commits := []history.Commit{}
	for _, rec := range strings.Split(string(out), "\x1e") {
		rec = strings.TrimLeft(rec, "\n")
		if rec == "" {
			continue
		}
		parts := strings.SplitN(rec, "\x00", 4)
		if len(parts) != 4 {
			continue
		}
		secs, _ := strconv.ParseInt(parts[2], 10, 64)
		// git appends a newline to the body
		msg := strings.TrimSuffix(parts[3], "\n")
		commits = append(commits, history.NewCommit(parts[0], time.Unix(secs, 0), msg, parts[1]))
	}
	return commits
}

var _ history.Versioner = (*Backend)(nil)
