// Package telemetry collects service metrics with standard library
// primitives and serves them in Prometheus text exposition format. The
// footprint is deliberately small: labeled counters, gauges and one
// request-duration histogram family.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Config identifies the service on the exposition page.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "paracetamol-od"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// ---------------------------------------------------------------------------
// Counter store, keyed by "name|label1|label2|..."
// ---------------------------------------------------------------------------

type counterStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{items: make(map[string]*int64)}
}

func (s *counterStore) inc(key string) {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, 1)
		return
	}
	s.mu.Lock()
	p, ok = s.items[key]
	if !ok {
		v := int64(1)
		s.items[key] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.AddInt64(p, 1)
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

func (s *counterStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]int64, len(s.items))
	for k, p := range s.items {
		cp[k] = atomic.LoadInt64(p)
	}
	return cp
}

// ---------------------------------------------------------------------------
// Gauge store, keyed by name
// ---------------------------------------------------------------------------

type gaugeStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newGaugeStore() *gaugeStore {
	return &gaugeStore{items: make(map[string]*int64)}
}

func (s *gaugeStore) add(name string, delta int64) {
	s.mu.RLock()
	p, ok := s.items[name]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, delta)
		return
	}
	s.mu.Lock()
	p, ok = s.items[name]
	if !ok {
		v := delta
		s.items[name] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.AddInt64(p, delta)
}

func (s *gaugeStore) get(name string) int64 {
	s.mu.RLock()
	p, ok := s.items[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// durationBuckets are the request latency boundaries in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

// histogram is a thread-safe histogram. Bucket counts are stored
// non-cumulative; the exposition writer accumulates them.
type histogram struct {
	mu           sync.Mutex
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits, updated by CAS
}

func newHistogram() *histogram {
	return &histogram{bucketCounts: make([]int64, len(durationBuckets))}
}

func (h *histogram) observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&h.sum, old, next) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range durationBuckets {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
	// Beyond the last boundary the value only lands in +Inf.
}

func (h *histogram) totalCount() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) totalSum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metric names as they appear on the exposition page.
const (
	metricRequests      = "http_requests_total"
	metricDuration      = "http_request_duration_seconds"
	metricActive        = "http_active_requests"
	metricDecisions     = "assessment_decisions_total"
	metricIndications   = "nac_indications_total"
	metricContinuations = "nac_continuations_total"
)

// Metrics is the registry behind /metrics. One instance lives for the
// whole process.
type Metrics struct {
	cfg      Config
	counters *counterStore
	gauges   *gaugeStore

	durMu     sync.RWMutex
	durations map[string]*histogram // keyed method|route|status
}

// New creates a metrics registry.
func New(cfg Config) *Metrics {
	cfg.applyDefaults()
	return &Metrics{
		cfg:       cfg,
		counters:  newCounterStore(),
		gauges:    newGaugeStore(),
		durations: make(map[string]*histogram),
	}
}

func key(name string, labels ...string) string {
	if len(labels) == 0 {
		return name
	}
	return name + "|" + strings.Join(labels, "|")
}

// Counter returns a counter value for tests and introspection.
func (m *Metrics) Counter(name string, labels ...string) int64 {
	return m.counters.get(key(name, labels...))
}

// Gauge returns a gauge value.
func (m *Metrics) Gauge(name string) int64 {
	return m.gauges.get(name)
}

// DurationCount returns how many requests were observed for a label set.
func (m *Metrics) DurationCount(method, route, status string) int64 {
	m.durMu.RLock()
	h, ok := m.durations[method+"|"+route+"|"+status]
	m.durMu.RUnlock()
	if !ok {
		return 0
	}
	return h.totalCount()
}

func (m *Metrics) durationFor(labelKey string) *histogram {
	m.durMu.RLock()
	h, ok := m.durations[labelKey]
	m.durMu.RUnlock()
	if ok {
		return h
	}
	m.durMu.Lock()
	h, ok = m.durations[labelKey]
	if !ok {
		h = newHistogram()
		m.durations[labelKey] = h
	}
	m.durMu.Unlock()
	return h
}

// IncDecision counts one triage decision by recommendation code.
func (m *Metrics) IncDecision(recommendation string) {
	m.counters.inc(key(metricDecisions, recommendation))
}

// IncIndication counts one admission-bloods evaluation.
func (m *Metrics) IncIndication(indicated bool) {
	outcome := "not_indicated"
	if indicated {
		outcome = "indicated"
	}
	m.counters.inc(key(metricIndications, outcome))
}

// IncContinuation counts one reassessment evaluation.
func (m *Metrics) IncContinuation(continued bool) {
	outcome := "stopped"
	if continued {
		outcome = "continued"
	}
	m.counters.inc(key(metricContinuations, outcome))
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// Middleware records request count and latency per route. The route
// pattern is used rather than the raw path so ids do not explode the
// label space. The /metrics page itself is not measured.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}

			m.gauges.add(metricActive, 1)
			start := time.Now()

			err := next(c)

			elapsed := time.Since(start).Seconds()
			m.gauges.add(metricActive, -1)

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}

			// An error return has not reached the error handler yet, so
			// the response status still reads as the default.
			code := c.Response().Status
			if err != nil && !c.Response().Committed {
				code = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					code = he.Code
				}
			}
			status := fmt.Sprintf("%d", code)
			method := c.Request().Method

			m.counters.inc(key(metricRequests, method, route, status))
			m.durationFor(method + "|" + route + "|" + status).observe(elapsed)

			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Exposition
// ---------------------------------------------------------------------------

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		fmt.Fprintf(&b, "# HELP service_build_info Service identity as constant labels.\n")
		fmt.Fprintf(&b, "# TYPE service_build_info gauge\n")
		fmt.Fprintf(&b, "service_build_info{service=%q,version=%q,environment=%q} 1\n\n",
			m.cfg.ServiceName, m.cfg.ServiceVersion, m.cfg.Environment)

		counters := m.counters.snapshot()

		writeCounter(&b, counters, metricRequests,
			"Total HTTP requests by method, route and status.",
			[]string{"method", "route", "status"})

		m.writeDurations(&b)

		fmt.Fprintf(&b, "# HELP %s Number of HTTP requests currently in flight.\n", metricActive)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", metricActive)
		fmt.Fprintf(&b, "%s %d\n\n", metricActive, m.gauges.get(metricActive))

		writeCounter(&b, counters, metricDecisions,
			"Total triage decisions by recommendation.",
			[]string{"recommendation"})
		writeCounter(&b, counters, metricIndications,
			"Total acetylcysteine indication evaluations by outcome.",
			[]string{"outcome"})
		writeCounter(&b, counters, metricContinuations,
			"Total acetylcysteine continuation evaluations by outcome.",
			[]string{"outcome"})

		return c.String(http.StatusOK, b.String())
	}
}

func writeCounter(b *strings.Builder, snapshot map[string]int64, name, help string, labelNames []string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		if strings.HasPrefix(k, name+"|") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		values := strings.Split(k[len(name)+1:], "|")
		if len(values) != len(labelNames) {
			continue
		}
		pairs := make([]string, len(labelNames))
		for i, ln := range labelNames {
			pairs[i] = fmt.Sprintf("%s=%q", ln, values[i])
		}
		fmt.Fprintf(b, "%s{%s} %d\n", name, strings.Join(pairs, ","), snapshot[k])
	}
	b.WriteByte('\n')
}

func (m *Metrics) writeDurations(b *strings.Builder) {
	fmt.Fprintf(b, "# HELP %s Duration of HTTP requests in seconds.\n", metricDuration)
	fmt.Fprintf(b, "# TYPE %s histogram\n", metricDuration)

	m.durMu.RLock()
	snap := make(map[string]*histogram, len(m.durations))
	for k, h := range m.durations {
		snap[k] = h
	}
	m.durMu.RUnlock()

	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		parts := strings.SplitN(k, "|", 3)
		if len(parts) != 3 {
			continue
		}
		labels := fmt.Sprintf("method=%q,route=%q,status=%q", parts[0], parts[1], parts[2])
		h := snap[k]
		cum := h.cumulative()
		total := h.totalCount()

		for i, boundary := range durationBuckets {
			fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", metricDuration, labels, boundary, cum[i])
		}
		fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", metricDuration, labels, total)
		fmt.Fprintf(b, "%s_sum{%s} %g\n", metricDuration, labels, h.totalSum())
		fmt.Fprintf(b, "%s_count{%s} %d\n", metricDuration, labels, total)
	}
	b.WriteByte('\n')
}
