package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics keeps in-process counters and latency windows for the
// admin status endpoint. Prometheus gets the same events via the helpers in
// prometheus.go.
type SystemMetrics struct {
	mu sync.RWMutex

	requestLatency map[string]*LatencyHistogram

	pushesProcessed    uint64
	dispatchDropped    uint64
	transitionRejected uint64
	errorsCount        uint64

	startedAt time.Time
}

// Default is the process-wide metrics instance.
var Default = NewSystemMetrics()

// LatencyHistogram keeps the newest samples (milliseconds) in a ring.
// Stats are recomputed only after new samples arrive.
type LatencyHistogram struct {
	mu     sync.Mutex
	ring   []float64
	next   int
	filled bool
	dirty  bool
	cached LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		requestLatency: make(map[string]*LatencyHistogram),
		startedAt:      time.Now(),
	}
}

// RequestLatency returns the latency window for a context, creating it on
// first use.
func (m *SystemMetrics) RequestLatency(context string) *LatencyHistogram {
	m.mu.RLock()
	h, ok := m.requestLatency[context]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.requestLatency[context]; !ok {
		h = NewLatencyHistogram(1000)
		m.requestLatency[context] = h
	}
	return h
}

func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{ring: make([]float64, size)}
}

// Record adds a sample in milliseconds, overwriting the oldest when full.
func (h *LatencyHistogram) Record(ms float64) {
	h.mu.Lock()
	h.ring[h.next] = ms
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.filled = true
	}
	h.dirty = true
	h.mu.Unlock()
}

func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d) / float64(time.Millisecond))
}

// Stats summarizes the current window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return h.cached
	}

	n := h.next
	if h.filled {
		n = len(h.ring)
	}
	window := make([]float64, n)
	copy(window, h.ring[:n])
	sort.Float64s(window)

	var sum float64
	for _, v := range window {
		sum += v
	}
	h.cached = LatencyStats{Count: n}
	if n > 0 {
		h.cached.Min = window[0]
		h.cached.Max = window[n-1]
		h.cached.Avg = sum / float64(n)
		h.cached.P50 = window[percentileIndex(n, 0.50)]
		h.cached.P95 = window[percentileIndex(n, 0.95)]
		h.cached.P99 = window[percentileIndex(n, 0.99)]
	}
	h.dirty = false
	return h.cached
}

func percentileIndex(n int, p float64) int {
	i := int(float64(n) * p)
	if i >= n {
		i = n - 1
	}
	return i
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *SystemMetrics) IncrementPushes() {
	atomic.AddUint64(&m.pushesProcessed, 1)
}

func (m *SystemMetrics) IncrementDrops() {
	atomic.AddUint64(&m.dispatchDropped, 1)
}

func (m *SystemMetrics) IncrementRejects() {
	atomic.AddUint64(&m.transitionRejected, 1)
}

// IncrementErrors increments error counter.
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// MetricsSnapshot is a point-in-time view for the admin API.
type MetricsSnapshot struct {
	RequestLatency     map[string]LatencyStats `json:"request_latency"`
	PushesProcessed    uint64                  `json:"pushes_processed"`
	DispatchDropped    uint64                  `json:"dispatch_dropped"`
	TransitionRejected uint64                  `json:"transition_rejected"`
	ErrorsCount        uint64                  `json:"errors_count"`
	GoroutineCount     int                     `json:"goroutine_count"`
	HeapAlloc          uint64                  `json:"heap_alloc_bytes"`
	Uptime             string                  `json:"uptime"`
	Timestamp          time.Time               `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	latency := make(map[string]LatencyStats, len(m.requestLatency))
	for name, h := range m.requestLatency {
		latency[name] = h.Stats()
	}
	m.mu.RUnlock()

	return MetricsSnapshot{
		RequestLatency:     latency,
		PushesProcessed:    atomic.LoadUint64(&m.pushesProcessed),
		DispatchDropped:    atomic.LoadUint64(&m.dispatchDropped),
		TransitionRejected: atomic.LoadUint64(&m.transitionRejected),
		ErrorsCount:        atomic.LoadUint64(&m.errorsCount),
		GoroutineCount:     runtime.NumGoroutine(),
		HeapAlloc:          memStats.HeapAlloc,
		Uptime:             time.Since(m.startedAt).Truncate(time.Second).String(),
		Timestamp:          time.Now(),
	}
}
