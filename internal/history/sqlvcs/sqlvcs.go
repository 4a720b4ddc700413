// Package sqlvcs keeps project history in a SQLite database inside the data
// directory (.history/history.db). File contents are stored once per
// distinct sha256 and compressed with zstd; commits reference a tree of
// (path, blob) entries and chain to their parent.
package sqlvcs

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"genestore/internal/errors"
	"genestore/internal/history"
)

const (
	// BackendID identifies this backend in config.
	BackendID = "sqlite"

	historyDir = ".history"
	dbFile     = "history.db"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS blobs (
	hash TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS commits (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	sha        TEXT NOT NULL UNIQUE,
	parent     TEXT NOT NULL DEFAULT '',
	tree       TEXT NOT NULL,
	author     TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tree_entries (
	commit_sha TEXT NOT NULL REFERENCES commits(sha),
	path       TEXT NOT NULL,
	blob_hash  TEXT NOT NULL REFERENCES blobs(hash),
	PRIMARY KEY (commit_sha, path)
);
`

// Backend implements history.Versioner on SQLite.
type Backend struct {
	logger  *slog.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

// New creates a backend. level is a zstd encoder level from 1 (fastest) to 4 (best).
func New(logger *slog.Logger, level int) (*Backend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		level = int(zstd.SpeedDefault)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Backend{
		logger:  logger,
		encoder: encoder,
		decoder: decoder,
		now:     time.Now,
	}, nil
}

// Close releases the codec resources.
func (b *Backend) Close() error {
	b.decoder.Close()
	return b.encoder.Close()
}

func (b *Backend) Name() string { return BackendID }

func dbPath(dataPath string) string {
	return filepath.Join(dataPath, historyDir, dbFile)
}

// open opens the history database. create permits a missing database.
func (b *Backend) open(ctx context.Context, dataPath string, create bool) (*sql.DB, error) {
	path := dbPath(dataPath)
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "stat history database")
		}
		if !create {
			return nil, errors.Newf(errors.DoesNotExist, "no history at %s", dataPath)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "creating history directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening history database")
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "setting pragma")
		}
	}
	return db, nil
}

// withTx runs fn in a transaction, rolling back on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// Initialize implements history.Versioner.
func (b *Backend) Initialize(ctx context.Context, dataPath, userID string) error {
	if _, err := os.Stat(dbPath(dataPath)); err == nil {
		return errors.Newf(errors.AlreadyExists, "history already initialized at %s", dataPath)
	}

	db, err := b.open(ctx, dataPath, true)
	if err != nil {
		return err
	}
	defer db.Close()

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return errors.Wrap(err, "creating history schema")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('created_by', ?), ('created_at', ?)`,
			userID, strconv.FormatInt(b.now().UnixNano(), 10))
		return errors.Wrap(err, "writing history meta")
	})
	if err != nil {
		return err
	}

	b.logger.Debug("History initialized", "backend", BackendID, "dataPath", dataPath, "user", userID)
	return nil
}

// Commit implements history.Versioner.
func (b *Backend) Commit(ctx context.Context, dataPath, message, userID string) (string, error) {
	db, err := b.open(ctx, dataPath, false)
	if err != nil {
		return "", err
	}
	defer db.Close()

	files, err := history.ReadTree(dataPath)
	if err != nil {
		return "", errors.Wrap(err, "reading data directory")
	}

	entries := make([][2]string, len(files))
	treeHash := sha256.New()
	for i, f := range files {
		sum := sha256.Sum256(f.Data)
		entries[i] = [2]string{f.Path, hex.EncodeToString(sum[:])}
		fmt.Fprintf(treeHash, "%s\x00%s\n", entries[i][0], entries[i][1])
	}
	tree := hex.EncodeToString(treeHash.Sum(nil))

	created := b.now().UTC()
	var sha string

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		var parent string
		err := tx.QueryRowContext(ctx, `SELECT sha FROM commits ORDER BY seq DESC LIMIT 1`).Scan(&parent)
		if err != nil && err != sql.ErrNoRows {
			return errors.Wrap(err, "reading head")
		}

		h := sha256.New()
		fmt.Fprintf(h, "parent %s\ntree %s\nauthor %s\ntime %d\n\n%s", parent, tree, userID, created.UnixNano(), message)
		sha = hex.EncodeToString(h.Sum(nil))

		for i, f := range files {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO blobs (hash, size, data) VALUES (?, ?, ?)`,
				entries[i][1], len(f.Data), b.encoder.EncodeAll(f.Data, nil)); err != nil {
				return errors.Wrap(err, "storing blob "+f.Path)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO commits (sha, parent, tree, author, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sha, parent, tree, userID, message, created.UnixNano()); err != nil {
			return errors.Wrap(err, "inserting commit")
		}

		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tree_entries (commit_sha, path, blob_hash) VALUES (?, ?, ?)`,
				sha, e[0], e[1]); err != nil {
				return errors.Wrap(err, "inserting tree entry")
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	b.logger.Debug("Committed", "backend", BackendID, "dataPath", dataPath, "sha", sha, "files", len(files))
	return sha, nil
}

// GetCommit implements history.Versioner.
func (b *Backend) GetCommit(ctx context.Context, dataPath, sha string) (history.Commit, error) {
	db, err := b.open(ctx, dataPath, false)
	if err != nil {
		return history.Commit{}, err
	}
	defer db.Close()

	var author, message string
	var created int64
	err = db.QueryRowContext(ctx,
		`SELECT author, message, created_at FROM commits WHERE sha = ?`, sha).Scan(&author, &message, &created)
	if err == sql.ErrNoRows {
		return history.Commit{}, errors.NotFound("commit", sha)
	}
	if err != nil {
		return history.Commit{}, errors.Wrap(err, "reading commit")
	}
	return history.NewCommit(sha, time.Unix(0, created), message, author), nil
}

// Checkout implements history.Versioner.
func (b *Backend) Checkout(ctx context.Context, dataPath, relPath, sha string) ([]byte, error) {
	db, err := b.open(ctx, dataPath, false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "./")

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE sha = ?`, sha).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "looking up commit")
	}
	if exists == 0 {
		return nil, errors.NotFound("commit", sha)
	}

	var compressed []byte
	err = db.QueryRowContext(ctx, `
		SELECT b.data FROM tree_entries t
		JOIN blobs b ON b.hash = t.blob_hash
		WHERE t.commit_sha = ? AND t.path = ?`, sha, relPath).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.DoesNotExist, "%s does not exist at %s", relPath, sha)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading blob")
	}

	data, err := b.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing blob")
	}
	return data, nil
}

// Log implements history.Versioner. Newest first.
func (b *Backend) Log(ctx context.Context, dataPath string) ([]history.Commit, error) {
	db, err := b.open(ctx, dataPath, false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT sha, author, message, created_at FROM commits ORDER BY seq DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying log")
	}
	defer rows.Close()

	commits := []history.Commit{}
	for rows.Next() {
		var sha, author, message string
		var created int64
		if err := rows.Scan(&sha, &author, &message, &created); err != nil {
			return nil, errors.Wrap(err, "scanning commit")
		}
		commits = append(commits, history.NewCommit(sha, time.Unix(0, created), message, author))
	}
	return commits, errors.Wrap(rows.Err(), "iterating log")
}

// VersionExists implements history.Versioner.
func (b *Backend) VersionExists(ctx context.Context, dataPath, sha string) (bool, error) {
	if sha == "" {
		return false, nil
	}
	db, err := b.open(ctx, dataPath, false)
	if err != nil {
		if errors.IsCode(err, errors.DoesNotExist) {
			return false, nil
		}
		return false, err
	}
	defer db.Close()

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE sha = ?`, sha).Scan(&n); err != nil {
		return false, errors.Wrap(err, "looking up commit")
	}
	return n > 0, nil
}

var _ history.Versioner = (*Backend)(nil)
