package api

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"genestore/internal/version"
)

// MetricsConfig is the [metrics] table of the server tunables file.
type MetricsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, Endpoint: "/metrics"}
}

// durationBuckets are upper bounds in seconds for request latency.
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// family is one named metric with a fixed label set. Series are keyed by
// their rendered label string, e.g. {method="GET",status="200"}.
type family struct {
	name   string
	help   string
	kind   string // counter, gauge or histogram
	labels []string

	mu     sync.Mutex
	values map[string]float64
	hists  map[string]*histSeries
}

type histSeries struct {
	counts []uint64 // per bucket, last slot is +Inf
	sum    float64
	total  uint64
}

func newFamily(kind, name, help string, labels ...string) *family {
	return &family{
		name:   name,
		help:   help,
		kind:   kind,
		labels: labels,
		values: make(map[string]float64),
		hists:  make(map[string]*histSeries),
	}
}

func (f *family) key(labelValues []string) string {
	if len(f.labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, l := range f.labels {
		if i > 0 {
			b.WriteByte(',')
		}
		v := ""
		if i < len(labelValues) {
			v = labelValues[i]
		}
		fmt.Fprintf(&b, "%s=%q", l, v)
	}
	b.WriteByte('}')
	return b.String()
}

func (f *family) add(delta float64, labelValues ...string) {
	k := f.key(labelValues)
	f.mu.Lock()
	f.values[k] += delta
	f.mu.Unlock()
}

func (f *family) set(v float64, labelValues ...string) {
	k := f.key(labelValues)
	f.mu.Lock()
	f.values[k] = v
	f.mu.Unlock()
}

func (f *family) observe(v float64, labelValues ...string) {
	k := f.key(labelValues)
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hists[k]
	if !ok {
		h = &histSeries{counts: make([]uint64, len(durationBuckets)+1)}
		f.hists[k] = h
	}
	i := sort.SearchFloat64s(durationBuckets, v)
	h.counts[i]++
	h.sum += v
	h.total++
}

// withLE splices an le label into a rendered label key.
func withLE(key, le string) string {
	if key == "" {
		return `{le="` + le + `"}`
	}
	return key[:len(key)-1] + `,le="` + le + `"}`
}

func (f *family) write(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.kind == "histogram" {
		for _, k := range sortedKeys(f.hists) {
			h := f.hists[k]
			var cumulative uint64
			for i, bound := range durationBuckets {
				cumulative += h.counts[i]
				fmt.Fprintf(w, "%s_bucket%s %d\n", f.name, withLE(k, strconv.FormatFloat(bound, 'g', -1, 64)), cumulative)
			}
			fmt.Fprintf(w, "%s_bucket%s %d\n", f.name, withLE(k, "+Inf"), h.total)
			fmt.Fprintf(w, "%s_sum%s %g\n", f.name, k, h.sum)
			fmt.Fprintf(w, "%s_count%s %d\n", f.name, k, h.total)
		}
	} else {
		for _, k := range sortedKeys(f.values) {
			fmt.Fprintf(w, "%s%s %s\n", f.name, k, strconv.FormatFloat(f.values[k], 'f', -1, 64))
		}
	}
	fmt.Fprintln(w)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetricsCollector renders request and save counters in the Prometheus
// text exposition format.
type MetricsCollector struct {
	requests    *family
	saves       *family
	rateLimited *family
	latency     *family
	runtime     []*family // refreshed on every scrape

	// dropped reports the change feed's dropped event count; optional.
	dropped func() int64

	started time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		started:     time.Now(),
		requests:    newFamily("counter", "genestore_http_requests_total", "HTTP requests by method and status", "method", "status"),
		saves:       newFamily("counter", "genestore_saves_total", "Project saves by kind and outcome", "kind", "outcome"),
		rateLimited: newFamily("counter", "genestore_ratelimit_exceeded_total", "Requests refused by the API key rate limiter"),
		latency:     newFamily("histogram", "genestore_http_request_duration_seconds", "HTTP request latency", "method"),
		runtime: []*family{
			newFamily("gauge", "genestore_events_dropped", "Change events dropped for slow subscribers"),
			newFamily("gauge", "genestore_goroutines", "Live goroutines"),
			newFamily("gauge", "genestore_memory_alloc_bytes", "Heap bytes allocated"),
			newFamily("gauge", "genestore_uptime_seconds", "Seconds since the server started"),
		},
	}
}

// RecordRequest records one completed HTTP request.
func (m *MetricsCollector) RecordRequest(method string, status int, d time.Duration) {
	m.requests.add(1, method, strconv.Itoa(status))
	m.latency.observe(d.Seconds(), method)
	if status == http.StatusTooManyRequests {
		m.rateLimited.add(1)
	}
}

// RecordSave counts a save. kind is "save", "snapshot" or "rollup";
// outcome is "committed", "skipped" or "failed".
func (m *MetricsCollector) RecordSave(kind, outcome string) {
	m.saves.add(1, kind, outcome)
}

func (m *MetricsCollector) sampleRuntime() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var dropped int64
	if m.dropped != nil {
		dropped = m.dropped()
	}
	m.runtime[0].set(float64(dropped))
	m.runtime[1].set(float64(runtime.NumGoroutine()))
	m.runtime[2].set(float64(mem.Alloc))
	m.runtime[3].set(time.Since(m.started).Seconds())
}

// WritePrometheus writes every family in the text exposition format.
func (m *MetricsCollector) WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	m.sampleRuntime()

	fmt.Fprintf(w, "# HELP genestore_info Build information\n# TYPE genestore_info gauge\n")
	fmt.Fprintf(w, "genestore_info{version=%q} 1\n\n", version.Version)

	for _, f := range []*family{m.requests, m.saves, m.rateLimited, m.latency} {
		f.write(w)
	}
	for _, f := range m.runtime {
		f.write(w)
	}
}

// MetricsMiddleware records every request's method, status and duration.
func MetricsMiddleware(m *MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			m.RecordRequest(r.Method, rw.statusCode, time.Since(start))
		})
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.WritePrometheus(w)
}

// recordSave is a nil-safe RecordSave.
func (s *Server) recordSave(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSave(kind, outcome)
	}
}
