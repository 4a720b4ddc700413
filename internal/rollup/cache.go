// Package rollup caches the last saved rollup per project so autosaves that
// change nothing can be skipped without touching disk or history.
//
// Rollups are compared by content: the cache keeps a fingerprint of the
// project and of every block, not the documents themselves.
package rollup

import (
	"sync"

	"genestore/internal/model"
)

// Entry is the fingerprint set of one rollup.
type Entry struct {
	Project string
	Blocks  map[string]string
}

// Cache maps project ids to the fingerprints of their last saved or loaded
// rollup. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	policy  EvictionPolicy
}

// New creates a cache. A nil policy means Unbounded.
func New(policy EvictionPolicy) *Cache {
	if policy == nil {
		policy = Unbounded{}
	}
	return &Cache{entries: make(map[string]*Entry), policy: policy}
}

// NewWithCapacity builds an LRU cache, or an unbounded one when capacity is 0.
func NewWithCapacity(capacity int) *Cache {
	if capacity <= 0 {
		return New(Unbounded{})
	}
	return New(LRU(capacity))
}

// Fingerprints computes the entry for a rollup. The project's version and
// lastSaved are excluded: the save itself rewrites them, and a client
// echoing them back has not changed anything.
func Fingerprints(r *model.Rollup) (*Entry, error) {
	e := &Entry{Blocks: make(map[string]string, len(r.Blocks))}
	if r.Project != nil {
		p := *r.Project
		p.Version = ""
		p.LastSaved = 0
		fp, err := model.Fingerprint(&p)
		if err != nil {
			return nil, err
		}
		e.Project = fp
	}
	for id, b := range r.Blocks {
		fp, err := model.Fingerprint(b)
		if err != nil {
			return nil, err
		}
		e.Blocks[id] = fp
	}
	return e, nil
}

// Equal reports whether two entries describe the same content: same project,
// same block ids, same block content.
func (e *Entry) Equal(other *Entry) bool {
	if e == nil || other == nil {
		return false
	}
	if e.Project != other.Project || len(e.Blocks) != len(other.Blocks) {
		return false
	}
	for id, fp := range e.Blocks {
		if ofp, ok := other.Blocks[id]; !ok || ofp != fp {
			return false
		}
	}
	return true
}

// Same reports whether candidate matches the cached rollup for projectID.
// A project with no cached entry is never the same.
func (c *Cache) Same(projectID string, candidate *model.Rollup) (bool, error) {
	next, err := Fingerprints(candidate)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.entries[projectID]
	if !ok {
		return false, nil
	}
	c.evict(c.policy.Touch(projectID))
	return prev.Equal(next), nil
}

// Put replaces the cached rollup for projectID.
func (c *Cache) Put(projectID string, r *model.Rollup) error {
	e, err := Fingerprints(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[projectID] = e
	c.evict(c.policy.Touch(projectID))
	return nil
}

// Forget drops the entry for projectID.
func (c *Cache) Forget(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, projectID)
	c.policy.Remove(projectID)
}

// Len returns the number of cached projects.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evict(keys []string) {
	for _, k := range keys {
		delete(c.entries, k)
	}
}
