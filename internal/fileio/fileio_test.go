package fileio

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"genestore/internal/errors"
)

func TestWriteJSON_ReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	in := map[string]any{"id": "p1", "components": []any{"b1", "b2"}}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var out map[string]any
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if out["id"] != "p1" {
		t.Errorf("id = %v, want p1", out["id"])
	}
	if got := out["components"].([]any); len(got) != 2 {
		t.Errorf("components = %v, want 2 entries", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the manifest after an atomic write, found %d entries", len(entries))
	}
}

func TestReadJSON_Missing(t *testing.T) {
	var v map[string]any
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	if !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("ReadJSON(missing) = %v, want DOES_NOT_EXIST", err)
	}
}

func TestReadJSON_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	if err := ReadJSON(path, &v); !errors.IsCode(err, errors.IOError) {
		t.Errorf("ReadJSON(malformed) = %v, want IO_ERROR", err)
	}
}

func TestMergeJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.json")

	if _, err := MergeJSON(path, map[string]any{
		"b1": map[string]any{"id": "b1", "metadata": map[string]any{"name": "one", "color": "red"}},
	}); err != nil {
		t.Fatalf("MergeJSON on missing file failed: %v", err)
	}

	merged, err := MergeJSON(path, map[string]any{
		"b1": map[string]any{"metadata": map[string]any{"name": "uno"}},
		"b2": map[string]any{"id": "b2"},
	})
	if err != nil {
		t.Fatalf("MergeJSON failed: %v", err)
	}

	b1 := merged["b1"].(map[string]any)
	meta := b1["metadata"].(map[string]any)
	if meta["name"] != "uno" || meta["color"] != "red" {
		t.Errorf("b1 metadata = %v, want name=uno color=red", meta)
	}
	if b1["id"] != "b1" {
		t.Errorf("b1 id lost in merge: %v", b1)
	}
	if _, ok := merged["b2"]; !ok {
		t.Error("b2 missing after merge")
	}
}

func TestDeepMerge_ReplacesNonObjects(t *testing.T) {
	dst := map[string]any{"tags": []any{"a"}, "n": 1.0, "obj": map[string]any{"x": 1.0}}
	src := map[string]any{"tags": []any{"b"}, "obj": "flat"}

	got := DeepMerge(dst, src)
	if tags := got["tags"].([]any); len(tags) != 1 || tags[0] != "b" {
		t.Errorf("tags = %v, want [b]", tags)
	}
	if got["obj"] != "flat" {
		t.Errorf("obj = %v, want flat", got["obj"])
	}
	if got["n"] != 1.0 {
		t.Errorf("n = %v, want 1", got["n"])
	}
}

func TestDirectoryOps(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "projects", "p1")
	dst := filepath.Join(root, "trash", "p1")

	if err := MakeDir(filepath.Join(src, "data")); err != nil {
		t.Fatalf("MakeDir failed: %v", err)
	}
	if err := WriteFile(filepath.Join(src, "data", "project.json"), []byte("{}")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := MoveDir(src, dst); err != nil {
		t.Fatalf("MoveDir failed: %v", err)
	}
	if Exists(src) {
		t.Error("source should be gone after move")
	}
	if !Exists(filepath.Join(dst, "data", "project.json")) {
		t.Error("moved file missing at destination")
	}

	if err := MoveDir(src, dst); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("MoveDir(missing) = %v, want DOES_NOT_EXIST", err)
	}

	if err := DeleteDir(dst); err != nil {
		t.Fatalf("DeleteDir failed: %v", err)
	}
	if err := DeleteDir(dst); err != nil {
		t.Errorf("DeleteDir on missing dir should succeed, got %v", err)
	}
}

func TestDeleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := WriteFile(path, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := DeleteFile(path); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if err := DeleteFile(path); !errors.IsCode(err, errors.DoesNotExist) {
		t.Errorf("DeleteFile(missing) = %v, want DOES_NOT_EXIST", err)
	}
}

func TestMarshalJSON_NoHTMLEscape(t *testing.T) {
	data, err := MarshalJSON(map[string]string{"notes": "<a & b>"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<a & b>") {
		t.Errorf("MarshalJSON escaped HTML: %s", data)
	}
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	path := filepath.Join(t.TempDir(), "counter.json")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("p1")
			defer unlock()

			doc := map[string]any{"n": 0.0}
			if err := ReadJSON(path, &doc); err != nil && !errors.IsCode(err, errors.DoesNotExist) {
				t.Error(err)
				return
			}
			doc["n"] = doc["n"].(float64) + 1
			if err := WriteJSON(path, doc); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	var doc map[string]any
	if err := ReadJSON(path, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["n"] != 20.0 {
		t.Errorf("n = %v, want 20 (lost update)", doc["n"])
	}
	if km.Len() != 0 {
		t.Errorf("Len() = %d after all unlocks, want 0", km.Len())
	}
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock("a")
	unlock()
	unlock()

	done := make(chan struct{})
	go func() {
		km.Lock("a")()
		close(done)
	}()
	<-done
}
