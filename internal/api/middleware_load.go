package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// LoadSheddingConfig bounds concurrent requests. Requests that create a
// history entry (save, rollup, snapshot, order creation) additionally pass
// through a narrower gate, since each one holds a project lock while the
// history backend commits.
type LoadSheddingConfig struct {
	Enabled               bool          `toml:"enabled" json:"enabled"`
	MaxConcurrentRequests int           `toml:"max_concurrent_requests" json:"maxConcurrentRequests"`
	MaxConcurrentSaves    int           `toml:"max_concurrent_saves" json:"maxConcurrentSaves"`
	QueueSize             int           `toml:"queue_size" json:"queueSize"`
	QueueTimeout          time.Duration `toml:"queue_timeout" json:"queueTimeout"`
	// PriorityEndpoints are path prefixes that are never shed.
	PriorityEndpoints []string `toml:"priority_endpoints" json:"priorityEndpoints"`
	RetryAfterSeconds int      `toml:"retry_after_seconds" json:"retryAfterSeconds"`
}

func DefaultLoadSheddingConfig() LoadSheddingConfig {
	return LoadSheddingConfig{
		MaxConcurrentRequests: 100,
		MaxConcurrentSaves:    8,
		QueueSize:             50,
		QueueTimeout:          5 * time.Second,
		PriorityEndpoints:     []string{"/health", "/events/"},
		RetryAfterSeconds:     5,
	}
}

// gate is a counting semaphore with a bounded number of waiters.
type gate struct {
	slots   chan struct{}
	waiting atomic.Int64
	maxWait int64
}

func newGate(size, maxWait int) *gate {
	return &gate{slots: make(chan struct{}, size), maxWait: int64(maxWait)}
}

func (g *gate) acquire(ctx context.Context, timeout time.Duration) bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
	}

	if g.waiting.Add(1) > g.maxWait {
		g.waiting.Add(-1)
		return false
	}
	defer g.waiting.Add(-1)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case g.slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (g *gate) release() {
	select {
	case <-g.slots:
	default:
	}
}

// LoadShedder admits or rejects requests according to LoadSheddingConfig.
type LoadShedder struct {
	config    LoadSheddingConfig
	requests  *gate
	saves     *gate // nil when saves are only bounded by requests
	totalShed atomic.Uint64
	lastShed  atomic.Int64 // unix nanos
}

func NewLoadShedder(config LoadSheddingConfig) *LoadShedder {
	ls := &LoadShedder{
		config:   config,
		requests: newGate(config.MaxConcurrentRequests, config.QueueSize),
	}
	if config.MaxConcurrentSaves > 0 {
		ls.saves = newGate(config.MaxConcurrentSaves, config.QueueSize)
	}
	return ls
}

// Acquire admits a request, waiting at most QueueTimeout. On success the
// returned release func must be called once the request completes.
func (ls *LoadShedder) Acquire(ctx context.Context, method, path string) (release func(), ok bool) {
	if ls.isPriority(path) {
		return func() {}, true
	}

	if !ls.requests.acquire(ctx, ls.config.QueueTimeout) {
		ls.recordShed()
		return nil, false
	}
	if ls.saves == nil || !isSaveRequest(method, path) {
		return ls.requests.release, true
	}
	if !ls.saves.acquire(ctx, ls.config.QueueTimeout) {
		ls.requests.release()
		ls.recordShed()
		return nil, false
	}
	return func() {
		ls.saves.release()
		ls.requests.release()
	}, true
}

// LoadSheddingStats is reported by /health.
type LoadSheddingStats struct {
	Enabled       bool       `json:"enabled"`
	InFlight      int        `json:"inFlight"`
	SavesInFlight int        `json:"savesInFlight"`
	Waiting       int64      `json:"waiting"`
	MaxConcurrent int        `json:"maxConcurrent"`
	MaxSaves      int        `json:"maxSaves"`
	TotalShed     uint64     `json:"totalShed"`
	LastShedTime  *time.Time `json:"lastShedTime,omitempty"`
}

func (ls *LoadShedder) Stats() LoadSheddingStats {
	st := LoadSheddingStats{
		Enabled:       ls.config.Enabled,
		InFlight:      len(ls.requests.slots),
		Waiting:       ls.requests.waiting.Load(),
		MaxConcurrent: ls.config.MaxConcurrentRequests,
		MaxSaves:      ls.config.MaxConcurrentSaves,
		TotalShed:     ls.totalShed.Load(),
	}
	if ls.saves != nil {
		st.SavesInFlight = len(ls.saves.slots)
		st.Waiting += ls.saves.waiting.Load()
	}
	if n := ls.lastShed.Load(); n != 0 {
		t := time.Unix(0, n).UTC()
		st.LastShedTime = &t
	}
	return st
}

func (ls *LoadShedder) isPriority(path string) bool {
	for _, p := range ls.config.PriorityEndpoints {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (ls *LoadShedder) recordShed() {
	ls.totalShed.Add(1)
	ls.lastShed.Store(time.Now().UnixNano())
}

// isSaveRequest matches the routes that append to a project's history.
func isSaveRequest(method, path string) bool {
	if method != http.MethodPost || !strings.HasPrefix(path, "/projects/") {
		return false
	}
	return strings.HasSuffix(path, "/save") ||
		strings.HasSuffix(path, "/rollup") ||
		strings.HasSuffix(path, "/commits") ||
		strings.Contains(path, "/orders/")
}

// LoadSheddingMiddleware answers 503 with Retry-After when the shedder
// refuses a request. A nil shedder passes everything through.
func LoadSheddingMiddleware(shedder *LoadShedder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if shedder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := shedder.Acquire(r.Context(), r.Method, r.URL.Path)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(shedder.config.RetryAfterSeconds))
				w.Header().Set("X-Load-Shed", "true")
				WriteJSON(w, ErrorResponse{
					Error: "server overloaded, retry later",
					Code:  "OVERLOADED",
				}, http.StatusServiceUnavailable)
				return
			}
			defer release()
			next.ServeHTTP(w, r)
		})
	}
}
