// Package events fans project change notifications out to subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind names what happened to a project.
type Kind string

const (
	Created  Kind = "created"
	Written  Kind = "written"
	Saved    Kind = "saved"
	Snapshot Kind = "snapshot"
	Deleted  Kind = "deleted"
	Order    Kind = "order"
)

// AllProjects subscribes to events of every project.
const AllProjects = "*"

// Event is one change notification. Label is the operation in commit
// message form, e.g. "delete_block(b1,b2)".
type Event struct {
	Kind      Kind   `json:"kind"`
	ProjectID string `json:"projectId"`
	SHA       string `json:"sha,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Label     string `json:"label,omitempty"`
	Time      int64  `json:"time"`
	Data      any    `json:"data,omitempty"`
}

// Notifier receives events from the store.
type Notifier interface {
	Publish(Event)
}

// Nop discards events.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(Event) {}

// Subscription delivers events for one project (or AllProjects).
type Subscription struct {
	C <-chan Event

	ch      chan Event
	project string
	hub     *Hub
	once    sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub is an in-process Notifier with per-project subscriptions. Slow
// subscribers lose events rather than block publishers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers interest in projectID.
func (h *Hub) Subscribe(projectID string) *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, project: projectID, hub: h}

	h.mu.Lock()
	set, ok := h.subs[projectID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[projectID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish delivers e to subscribers of its project and of AllProjects.
func (h *Hub) Publish(e Event) {
	if e.Time == 0 {
		e.Time = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range []string{e.ProjectID, AllProjects} {
		for s := range h.subs[key] {
			select {
			case s.ch <- e:
			default:
				h.dropped.Add(1)
			}
		}
	}
}

// Subscribers counts live subscriptions for projectID.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[projectID])
}

// Dropped counts events discarded because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.project]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.project)
		}
	}
	close(s.ch)
}
