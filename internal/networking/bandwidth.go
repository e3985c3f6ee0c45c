package networking

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultViewerBytesPerSecond caps per-viewer snapshot throughput.
const DefaultViewerBytesPerSecond = 512 * 1024

// BandwidthUsage captures the throttling state for a single client.
type BandwidthUsage struct {
	ClientID         string
	AvailableBytes   float64
	BytesPerSecond   float64
	ObservedSeconds  float64
	SentBytes        int64
	DeniedDeliveries int64
}

type bandwidthBucket struct {
	limiter *rate.Limiter
	since   time.Time
	sent    int64
	denied  int64
}

// BandwidthRegulator enforces a per-client byte budget. Each client may burst
// one second worth of bytes.
type BandwidthRegulator struct {
	mu      sync.Mutex
	buckets map[string]*bandwidthBucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewBandwidthRegulator constructs a regulator enforcing the supplied byte rate.
func NewBandwidthRegulator(bytesPerSecond float64, clock func() time.Time) *BandwidthRegulator {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultViewerBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &BandwidthRegulator{
		buckets: make(map[string]*bandwidthBucket),
		limit:   rate.Limit(bytesPerSecond),
		burst:   int(bytesPerSecond),
		now:     clock,
	}
}

// Allow charges payloadBytes against the client's budget.
func (r *BandwidthRegulator) Allow(clientID string, payloadBytes int) bool {
	if r == nil || clientID == "" || payloadBytes <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket := r.buckets[clientID]
	if bucket == nil {
		limiter := rate.NewLimiter(r.limit, r.burst)
		bucket = &bandwidthBucket{limiter: limiter, since: now}
		r.buckets[clientID] = bucket
	}
	if !bucket.limiter.AllowN(now, payloadBytes) {
		bucket.denied++
		return false
	}
	bucket.sent += int64(payloadBytes)
	return true
}

// Forget removes the budget for a disconnected client.
func (r *BandwidthRegulator) Forget(clientID string) {
	if r == nil || clientID == "" {
		return
	}
	r.mu.Lock()
	delete(r.buckets, clientID)
	r.mu.Unlock()
}

// SnapshotUsage reports the throttling statistics per client.
func (r *BandwidthRegulator) SnapshotUsage() map[string]BandwidthUsage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buckets) == 0 {
		return nil
	}

	now := r.now()
	usage := make(map[string]BandwidthUsage, len(r.buckets))
	for clientID, bucket := range r.buckets {
		observed := now.Sub(bucket.since).Seconds()
		throughput := 0.0
		if observed > 0 {
			throughput = float64(bucket.sent) / observed
		}
		usage[clientID] = BandwidthUsage{
			ClientID:         clientID,
			AvailableBytes:   max(bucket.limiter.TokensAt(now), 0),
			BytesPerSecond:   throughput,
			ObservedSeconds:  max(observed, 0),
			SentBytes:        bucket.sent,
			DeniedDeliveries: bucket.denied,
		}
	}
	return usage
}
