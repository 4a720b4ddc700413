// Package paths maps project, block, order, file and sequence ids to their
// locations under the storage root. Nothing here touches the filesystem.
package paths

import (
	"path/filepath"
	"strings"

	"genestore/internal/errors"
)

const (
	projectsDir  = "projects"
	dataDir      = "data"
	ordersDir    = "orders"
	filesDir     = "files"
	trashDir     = "trash"
	sequencesDir = "sequences"

	projectManifest = "project.json"
	blockManifest   = "blocks.json"
	orderManifest   = "order.json"
	orderRollup     = "rollup.json"
)

// Resolver resolves store paths relative to a storage root.
type Resolver struct {
	root string
}

// New returns a Resolver rooted at root (made absolute when possible).
func New(root string) *Resolver {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Resolver{root: filepath.Clean(root)}
}

// Root returns the storage root.
func (r *Resolver) Root() string { return r.root }

// ProjectsRoot is the directory holding every live project.
func (r *Resolver) ProjectsRoot() string {
	return filepath.Join(r.root, projectsDir)
}

func (r *Resolver) ProjectPath(projectID string) string {
	return filepath.Join(r.root, projectsDir, projectID)
}

// ProjectDataPath is the version-controlled part of a project.
func (r *Resolver) ProjectDataPath(projectID string) string {
	return filepath.Join(r.ProjectPath(projectID), dataDir)
}

func (r *Resolver) ProjectManifestPath(projectID string) string {
	return filepath.Join(r.ProjectDataPath(projectID), projectManifest)
}

func (r *Resolver) BlockManifestPath(projectID string) string {
	return filepath.Join(r.ProjectDataPath(projectID), blockManifest)
}

func (r *Resolver) OrderDirectoryPath(projectID string) string {
	return filepath.Join(r.ProjectPath(projectID), ordersDir)
}

func (r *Resolver) OrderPath(projectID, orderID string) string {
	return filepath.Join(r.OrderDirectoryPath(projectID), orderID)
}

func (r *Resolver) OrderManifestPath(projectID, orderID string) string {
	return filepath.Join(r.OrderPath(projectID, orderID), orderManifest)
}

func (r *Resolver) OrderRollupPath(projectID, orderID string) string {
	return filepath.Join(r.OrderPath(projectID, orderID), orderRollup)
}

// OrderManifestName and OrderRollupName are the file names inside an order directory.
func OrderManifestName() string { return orderManifest }
func OrderRollupName() string   { return orderRollup }

func (r *Resolver) ProjectFilesPath(projectID string) string {
	return filepath.Join(r.ProjectPath(projectID), filesDir)
}

func (r *Resolver) ProjectFilePath(projectID, extension, name string) string {
	return filepath.Join(r.ProjectFilesPath(projectID), extension, name)
}

// TrashPath is deterministic per project, so a repeated delete replaces the previous entry.
func (r *Resolver) TrashPath(projectID string) string {
	return filepath.Join(r.root, trashDir, projectID)
}

// SequencePath shards sequences by the first two hex characters of the md5.
func (r *Resolver) SequencePath(md5 string) string {
	md5 = strings.ToLower(md5)
	shard := md5
	if len(md5) >= 2 {
		shard = md5[:2]
	}
	return filepath.Join(r.root, sequencesDir, shard, md5)
}

// DataRelative returns path relative to the project's data directory with
// forward slashes, the form history backends address files by.
func (r *Resolver) DataRelative(projectID, path string) (string, error) {
	rel, err := filepath.Rel(r.ProjectDataPath(projectID), path)
	if err != nil {
		return "", errors.Wrap(err, "resolving data-relative path")
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.Newf(errors.InvalidModel, "%s is outside the data directory of project %s", path, projectID)
	}
	return rel, nil
}

// ValidateID rejects ids that would escape or alias another path.
func ValidateID(id string) error {
	if id == "" {
		return errors.ErrNoIdProvided
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return errors.Newf(errors.InvalidModel, "invalid id %q", id)
	}
	if strings.HasPrefix(id, ".") {
		return errors.Newf(errors.InvalidModel, "id %q must not start with a dot", id)
	}
	return nil
}
