package replay

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"rdpso/simulator/internal/logging"
)

// RetentionPolicy defines how many run bundles are retained on disk.
type RetentionPolicy struct {
	// MaxRuns keeps at most this many bundles; zero disables the limit.
	MaxRuns int
	// MaxAge removes bundles older than this; zero disables the limit.
	MaxAge time.Duration
}

// StorageStats summarises the disk footprint of persisted replays.
type StorageStats struct {
	Runs      int
	Bytes     int64
	Removed   int
	LastSweep time.Time
}

// Cleaner periodically prunes run bundles according to a retention policy.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	// skip names the bundle currently being written, which is never pruned.
	skip  func() string
	stats StorageStats
}

// NewCleaner constructs a cleaner for the provided replay directory.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now, skip: func() string { return "" }}
}

// Protect registers a callback returning the active bundle directory.
func (c *Cleaner) Protect(active func() string) {
	if c == nil || active == nil {
		return
	}
	c.mu.Lock()
	c.skip = active
	c.mu.Unlock()
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.RunOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce performs a single retention sweep.
func (c *Cleaner) RunOnce() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	//1.- Resolve the bundle being recorded so it survives the sweep.
	c.mu.RLock()
	active := c.skip()
	c.mu.RUnlock()

	bundles := c.collect(entries)
	now := c.now()
	stats := StorageStats{LastSweep: now}
	//2.- Walk newest first so the run budget keeps the most recent bundles.
	kept := 0
	for _, b := range bundles {
		protected := active != "" && filepath.Clean(active) == b.path
		if reason := c.removalReason(b, now, kept); reason != "" && !protected {
			if err := os.RemoveAll(b.path); err != nil {
				c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("bundle", b.name))
			} else {
				c.log.Info("replay retention removed bundle", logging.String("bundle", b.name), logging.String("reason", reason))
				stats.Removed++
				continue
			}
		}
		kept++
		stats.Runs++
		stats.Bytes += b.size
	}
	//3.- Publish the sweep totals for the metrics endpoint.
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()

}

// Stats returns the last recorded storage statistics.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundleDir struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

// collect returns bundle directories (those holding a manifest) newest first.
func (c *Cleaner) collect(entries []os.DirEntry) []bundleDir {
	bundles := make([]bundleDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if _, err := os.Stat(filepath.Join(path, manifestFile)); err != nil {
			continue
		}
		size, modTime, err := directoryUsage(path)
		if err != nil {
			c.log.Warn("replay retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		bundles = append(bundles, bundleDir{name: entry.Name(), path: filepath.Clean(path), size: size, modTime: modTime})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].modTime.After(bundles[j].modTime) })
	return bundles
}

func (c *Cleaner) removalReason(b bundleDir, now time.Time, kept int) string {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(b.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxRuns > 0 && kept >= c.policy.MaxRuns {
		reasons = append(reasons, fmt.Sprintf(">=%d runs", c.policy.MaxRuns))
	}
	return strings.Join(reasons, ", ")
}

// directoryUsage sums file sizes and returns the newest modification time.
func directoryUsage(root string) (int64, time.Time, error) {
	var total int64
	var newest time.Time
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return total, newest, err
}
