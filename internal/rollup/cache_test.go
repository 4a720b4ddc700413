package rollup

import (
	"testing"

	"genestore/internal/model"
)

func sampleRollup() *model.Rollup {
	return &model.Rollup{
		Project: &model.Project{ID: "p1", Metadata: model.Metadata{Name: "one", Authors: []string{"u1"}}, Components: []string{"b1"}},
		Blocks: model.BlockMap{
			"b1": {ID: "b1", ProjectID: "p1", Metadata: model.Metadata{Name: "promoter"}},
		},
	}
}

func TestCache_Same(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Rollup)
		same   bool
	}{
		{"identical content, new objects", func(*model.Rollup) {}, true},
		{"version echoed back", func(r *model.Rollup) { r.Project.Version = "abc"; r.Project.LastSaved = 42 }, true},
		{"project changed", func(r *model.Rollup) { r.Project.Metadata.Name = "two" }, false},
		{"block changed", func(r *model.Rollup) { r.Blocks["b1"].Metadata.Name = "terminator" }, false},
		{"block added", func(r *model.Rollup) { r.Blocks["b2"] = &model.Block{ID: "b2"} }, false},
		{"block removed", func(r *model.Rollup) { delete(r.Blocks, "b1") }, false},
		{"block swapped", func(r *model.Rollup) {
			b := r.Blocks["b1"]
			delete(r.Blocks, "b1")
			r.Blocks["b9"] = b
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			if err := c.Put("p1", sampleRollup()); err != nil {
				t.Fatal(err)
			}
			candidate := sampleRollup()
			tt.mutate(candidate)
			same, err := c.Same("p1", candidate)
			if err != nil {
				t.Fatal(err)
			}
			if same != tt.same {
				t.Errorf("Same = %v, want %v", same, tt.same)
			}
		})
	}
}

func TestCache_UnknownProjectIsNeverSame(t *testing.T) {
	c := New(nil)
	same, err := c.Same("p1", sampleRollup())
	if err != nil || same {
		t.Errorf("Same on empty cache = %v, %v; want false, nil", same, err)
	}
}

func TestCache_Forget(t *testing.T) {
	c := New(nil)
	_ = c.Put("p1", sampleRollup())
	c.Forget("p1")
	if same, _ := c.Same("p1", sampleRollup()); same {
		t.Error("forgotten project should not match")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(LRU(2))
	r := sampleRollup()

	_ = c.Put("a", r)
	_ = c.Put("b", r)
	// touching a makes b the eviction candidate
	if same, _ := c.Same("a", r); !same {
		t.Fatal("a should match")
	}
	_ = c.Put("c", r)

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if same, _ := c.Same("b", r); same {
		t.Error("b should have been evicted")
	}
	if same, _ := c.Same("a", r); !same {
		t.Error("a should still be cached")
	}
	if same, _ := c.Same("c", r); !same {
		t.Error("c should be cached")
	}
}

func TestNewWithCapacity(t *testing.T) {
	c := NewWithCapacity(0)
	if _, ok := c.policy.(Unbounded); !ok {
		t.Errorf("capacity 0 policy = %T, want Unbounded", c.policy)
	}
	c = NewWithCapacity(3)
	if _, ok := c.policy.(*LRUPolicy); !ok {
		t.Errorf("capacity 3 policy = %T, want *LRUPolicy", c.policy)
	}

	unbounded := New(Unbounded{})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_ = unbounded.Put(id, sampleRollup())
	}
	if unbounded.Len() != 5 {
		t.Errorf("unbounded Len = %d, want 5", unbounded.Len())
	}
}
