package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// MetricsCollector tracks request counts and latency distribution
type MetricsCollector struct {
	TotalRequests uint64
	TotalErrors   uint64
	StatusCounts  map[int]uint64
	ClientUsage   map[string]uint64

	// sliding window of the most recent latencies
	latencies  []time.Duration
	maxSamples int
	started    time.Time
	mu         sync.RWMutex
}

func NewCollector(maxSamples int) *MetricsCollector {
	return &MetricsCollector{
		StatusCounts: make(map[int]uint64),
		ClientUsage:  make(map[string]uint64),
		latencies:    make([]time.Duration, 0, maxSamples),
		maxSamples:   maxSamples,
		started:      time.Now(),
	}
}

// Record counts one finished request. clientID is empty for
// unauthenticated calls.
func (c *MetricsCollector) Record(duration time.Duration, statusCode int, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.TotalRequests++
	if statusCode >= 400 {
		c.TotalErrors++
	}
	c.StatusCounts[statusCode]++
	if clientID != "" {
		c.ClientUsage[clientID]++
	}

	if c.maxSamples <= 0 {
		return
	}
	if len(c.latencies) == c.maxSamples {
		copy(c.latencies, c.latencies[1:])
		c.latencies = c.latencies[:len(c.latencies)-1]
	}
	c.latencies = append(c.latencies, duration)
}

// Stats is a point-in-time snapshot.
type Stats struct {
	TotalRequests uint64            `json:"total_requests"`
	TotalErrors   uint64            `json:"total_errors"`
	ErrorRate     float64           `json:"error_rate"`
	P50Latency    string            `json:"p50_latency"`
	P95Latency    string            `json:"p95_latency"`
	P99Latency    string            `json:"p99_latency"`
	StatusCounts  map[int]uint64    `json:"status_counts"`
	ClientUsage   map[string]uint64 `json:"client_usage"`
	Uptime        string            `json:"uptime"`
}

func (c *MetricsCollector) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sorted := slices.Clone(c.latencies)
	slices.Sort(sorted)

	errorRate := 0.0
	if c.TotalRequests > 0 {
		errorRate = float64(c.TotalErrors) / float64(c.TotalRequests)
	}

	return Stats{
		TotalRequests: c.TotalRequests,
		TotalErrors:   c.TotalErrors,
		ErrorRate:     errorRate,
		P50Latency:    percentile(sorted, 0.50).String(),
		P95Latency:    percentile(sorted, 0.95).String(),
		P99Latency:    percentile(sorted, 0.99).String(),
		StatusCounts:  maps.Clone(c.StatusCounts),
		ClientUsage:   maps.Clone(c.ClientUsage),
		Uptime:        time.Since(c.started).Truncate(time.Second).String(),
	}
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
