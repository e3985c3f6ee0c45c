package networking

import "sync"

// SnapshotMetrics tracks payload sizes and dropped deliveries per viewer.
type SnapshotMetrics struct {
	mu        sync.RWMutex
	bytes     map[string]int64
	drops     map[string]int64
	published int64
}

// NewSnapshotMetrics constructs an empty metrics tracker.
func NewSnapshotMetrics() *SnapshotMetrics {
	return &SnapshotMetrics{
		bytes: make(map[string]int64),
		drops: make(map[string]int64),
	}
}

// ObservePublish counts one fan-out of a snapshot.
func (m *SnapshotMetrics) ObservePublish() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.published++
	m.mu.Unlock()
}

// ObserveDelivery records the payload size last delivered to clientID.
func (m *SnapshotMetrics) ObserveDelivery(clientID string, payloadBytes int) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	m.bytes[clientID] = int64(max(payloadBytes, 0))
	m.mu.Unlock()
}

// ObserveDrop counts a snapshot that could not be delivered to clientID.
func (m *SnapshotMetrics) ObserveDrop(clientID string) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	m.drops[clientID]++
	m.mu.Unlock()
}

// ForgetClient removes the gauges for a disconnected client. Drop totals survive.
func (m *SnapshotMetrics) ForgetClient(clientID string) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	delete(m.bytes, clientID)
	m.mu.Unlock()
}

// BytesPerClient returns a copy of the latest payload size per client.
func (m *SnapshotMetrics) BytesPerClient() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyCounts(m.bytes)
}

// DropCounts returns the cumulative dropped deliveries per client.
func (m *SnapshotMetrics) DropCounts() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyCounts(m.drops)
}

// Published returns how many snapshots were fanned out.
func (m *SnapshotMetrics) Published() int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published
}

// TotalDrops sums DropCounts.
func (m *SnapshotMetrics) TotalDrops() int64 {
	var total int64
	for _, count := range m.DropCounts() {
		total += count
	}
	return total
}

func copyCounts(in map[string]int64) map[string]int64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int64, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
