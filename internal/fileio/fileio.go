// Package fileio holds the filesystem primitives the store is built from.
// Missing files surface as DOES_NOT_EXIST; every other failure is IO_ERROR.
package fileio

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"genestore/internal/errors"
)

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile reads a file, mapping a missing file to DOES_NOT_EXIST.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stdIsNotExist(err) {
			return nil, errors.New(errors.DoesNotExist, "file "+filepath.Base(path)+" does not exist", err)
		}
		return nil, errors.Wrap(err, "reading "+path)
	}
	return data, nil
}

// ReadJSON decodes the JSON document at path into v.
func ReadJSON(path string, v any) error {
	data, err := ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "decoding "+path)
	}
	return nil
}

// WriteFile writes data atomically: a hidden temp file in the same directory
// is fsynced then renamed over path. Parent directories are created.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating "+dir)
	}

	// dot-prefixed so history snapshots never pick up a half-written file
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp."+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrap(err, "creating temp file for "+path)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "writing "+path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "syncing "+path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "closing "+path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "renaming into "+path)
	}
	return nil
}

// WriteJSON writes v as indented JSON via WriteFile.
func WriteJSON(path string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// MarshalJSON is the manifest encoding: two-space indent, no HTML escaping,
// trailing newline. Stable output keeps history diffs readable.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, errors.New(errors.InvalidModel, "document is not JSON-encodable", err)
	}
	return buf.Bytes(), nil
}

// MergeJSON deep-merges partial into the object stored at path and writes
// the result back. A missing file is treated as {}. Callers must serialize
// concurrent merges on the same path (see KeyedMutex).
func MergeJSON(path string, partial map[string]any) (map[string]any, error) {
	current := map[string]any{}
	if err := ReadJSON(path, &current); err != nil && !errors.IsCode(err, errors.DoesNotExist) {
		return nil, err
	}
	if current == nil {
		current = map[string]any{}
	}

	merged := DeepMerge(current, partial)
	if err := WriteJSON(path, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// DeepMerge merges src into dst and returns dst. Nested objects merge
// recursively; any other value in src replaces the one in dst.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		srcMap, srcIsMap := sv.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = sv
	}
	return dst
}

// DeleteFile removes a file. A missing file is DOES_NOT_EXIST.
func DeleteFile(path string) error {
	if err := os.Remove(path); err != nil {
		if stdIsNotExist(err) {
			return errors.New(errors.DoesNotExist, "file "+filepath.Base(path)+" does not exist", err)
		}
		return errors.Wrap(err, "deleting "+path)
	}
	return nil
}

// MakeDir creates path and any missing parents.
func MakeDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(err, "creating "+path)
	}
	return nil
}

// DeleteDir removes path recursively. A missing directory is not an error.
func DeleteDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrap(err, "removing "+path)
	}
	return nil
}

// MoveDir renames src to dst, creating dst's parent. dst must not exist.
func MoveDir(src, dst string) error {
	if !Exists(src) {
		return errors.Newf(errors.DoesNotExist, "directory %s does not exist", filepath.Base(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "creating "+filepath.Dir(dst))
	}
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrap(err, "moving "+src)
	}
	return nil
}

func stdIsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
