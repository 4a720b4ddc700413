// Package history defines the commit-oriented version store that records a
// project's data directory. Backends live in subpackages: sqlvcs keeps
// history in an embedded SQLite database, gitvcs drives the git binary.
//
// Every backend snapshots the whole data directory per commit, skipping
// dot-prefixed entries (the backend's own state and in-flight temp files).
package history

import (
	"context"
	"time"

	"genestore/internal/commitmsg"
)

// Commit is an immutable history record.
type Commit struct {
	SHA     string             `json:"sha"`
	Time    time.Time          `json:"time"`
	Message string             `json:"message"`
	Author  string             `json:"author"`
	Meta    *commitmsg.Message `json:"meta,omitempty"`
}

// Versioner is implemented by history backends. Log is newest first.
type Versioner interface {
	// Initialize creates an empty history for dataPath. ALREADY_EXISTS if present.
	Initialize(ctx context.Context, dataPath, userID string) error

	// Commit snapshots dataPath. One call always yields exactly one new
	// commit, even when nothing changed.
	Commit(ctx context.Context, dataPath, message, userID string) (string, error)

	GetCommit(ctx context.Context, dataPath, sha string) (Commit, error)

	// Checkout returns relPath as of sha without touching the working files.
	// DOES_NOT_EXIST when the sha or the file at that sha is unknown.
	Checkout(ctx context.Context, dataPath, relPath, sha string) ([]byte, error)

	Log(ctx context.Context, dataPath string) ([]Commit, error)

	VersionExists(ctx context.Context, dataPath, sha string) (bool, error)

	// Name identifies the backend in logs and config.
	Name() string
}

// NewCommit builds a Commit and decodes its structured message.
func NewCommit(sha string, t time.Time, message, author string) Commit {
	c := Commit{SHA: sha, Time: t.UTC(), Message: message, Author: author}
	if m, ok := commitmsg.Parse(message); ok {
		c.Meta = &m
	}
	return c
}

// UnixMilli returns the commit time in the form project.lastSaved stores.
func (c Commit) UnixMilli() int64 {
	return c.Time.UnixMilli()
}
