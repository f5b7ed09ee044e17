package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the number of latency samples retained.
const DefaultWindow = 1000

// Targets the collaboration engine is measured against.
const (
	TargetLatencyMs           = 50.0
	TargetConnectionSetupMs   = 100.0
	TargetThroughputPerSecond = 10000.0
	TargetUptimePercent       = 99.95
)

// Snapshot is a point-in-time view of engine performance.
type Snapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalMessagesSent int64     `json:"total_messages_sent"`
	AverageLatencyMs  float64   `json:"average_message_latency_ms"`
	P95LatencyMs      float64   `json:"p95_message_latency_ms"`
	P99LatencyMs      float64   `json:"p99_message_latency_ms"`
	MessagesPerSecond float64   `json:"messages_per_second"`
	Samples           int       `json:"samples"`
	TotalConnections  int       `json:"total_connections"`
	ActiveRooms       int       `json:"active_rooms"`
	OpenCircuits      int       `json:"open_circuits"`
	QueueDepth        int       `json:"queue_depth"`
	QueueDropped      int64     `json:"queue_dropped"`
	LatencyTargetMet  bool      `json:"latency_target_met"`
}

// Collector keeps a fixed ring of recent latencies plus running totals.
type Collector struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool

	total     int64
	meanMs    float64
	lastTotal int64
	lastTick  time.Time
	rate      float64
	conns     int
	rooms     int
}

// NewCollector creates a collector retaining window samples.
func NewCollector(window int) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Collector{samples: make([]float64, window)}
}

// Record adds one delivery latency sample.
func (c *Collector) Record(latencyMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.meanMs += (latencyMs - c.meanMs) / float64(c.total)

	c.samples[c.next] = latencyMs
	c.next++
	if c.next == len(c.samples) {
		c.next = 0
		c.filled = true
	}
}

func (c *Collector) window() []float64 {
	if c.filled {
		return c.samples
	}
	return c.samples[:c.next]
}

// Percentiles returns p95 and p99 of the retained window, indexing the
// sorted samples at floor(0.95n) and floor(0.99n).
func (c *Collector) Percentiles() (p95, p99 float64) {
	c.mu.Lock()
	w := append([]float64(nil), c.window()...)
	c.mu.Unlock()

	return percentile(w, 0.95), percentile(w, 0.99)
}

func percentile(samples []float64, q float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sort.Float64s(samples)
	idx := int(float64(n) * q)
	if idx >= n {
		idx = n - 1
	}
	return samples[idx]
}

// Aggregate recomputes throughput and records live counts. It is called by
// the metrics worker.
func (c *Collector) Aggregate(now time.Time, connections, rooms int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastTick.IsZero() {
		if dt := now.Sub(c.lastTick).Seconds(); dt > 0 {
			c.rate = float64(c.total-c.lastTotal) / dt
		}
	}
	c.lastTick = now
	c.lastTotal = c.total
	c.conns = connections
	c.rooms = rooms
}

// Snapshot combines the running totals with derived percentiles.
func (c *Collector) Snapshot(now time.Time) Snapshot {
	p95, p99 := c.Percentiles()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Timestamp:         now.UTC(),
		TotalMessagesSent: c.total,
		AverageLatencyMs:  c.meanMs,
		P95LatencyMs:      p95,
		P99LatencyMs:      p99,
		MessagesPerSecond: c.rate,
		Samples:           len(c.window()),
		TotalConnections:  c.conns,
		ActiveRooms:       c.rooms,
		LatencyTargetMet:  p95 < TargetLatencyMs,
	}
}
