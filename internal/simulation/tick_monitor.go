package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed step durations.
type TickMetricsSnapshot struct {
	Samples int
	Errors  int
	Average time.Duration
	Max     time.Duration
	Last    time.Duration
}

// AverageRate derives the iterations-per-second equivalent of the sampled step duration.
func (s TickMetricsSnapshot) AverageRate() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the stepping loop.
type TickMonitor struct {
	mu      sync.Mutex
	samples int
	errors  int
	total   time.Duration
	max     time.Duration
	last    time.Duration
}

// NewTickMonitor constructs an empty monitor.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the duration of a completed step.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	//1.- Fold the step into the running average.
	m.samples++
	m.total += duration
	//2.- Keep the slowest step seen since the last reset.
	if duration > m.max {
		m.max = duration
	}
	//3.- Remember the latest step.
	m.last = duration
	m.mu.Unlock()
}

// ObserveError counts a failed step.
func (m *TickMonitor) ObserveError() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	average := time.Duration(0)
	if m.samples > 0 {
		average = m.total / time.Duration(m.samples)
	}
	return TickMetricsSnapshot{Samples: m.samples, Errors: m.errors, Average: average, Max: m.max, Last: m.last}
}

// Reset clears the accumulated statistics when a new run starts.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	//1.- Zero every counter so the next run starts from an empty snapshot.
	m.samples, m.errors = 0, 0
	m.total, m.max, m.last = 0, 0, 0
	m.mu.Unlock()
}
