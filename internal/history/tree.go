package history

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one entry of a data-directory snapshot.
type File struct {
	Path string // slash-separated, relative to the data directory
	Data []byte
}

// ReadTree reads every regular file under dataPath, skipping any file or
// directory whose name starts with a dot. Files are sorted by path.
func ReadTree(dataPath string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dataPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dataPath && IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dataPath, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// IsHidden reports whether a path element is excluded from snapshots.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
