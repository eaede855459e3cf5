package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"
)

// Stats contains inventory counts for gauge refresh
type Stats struct {
	Instances int64
	Templates int64
	Mappings  int64
}

// StatsProvider reports current inventory counts
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Collector keeps the system and inventory gauges current
type Collector struct {
	metrics     *Metrics
	stats       StatsProvider
	storagePath string
	interval    time.Duration
	startTime   time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new gauge collector. storagePath is the SQLite
// database file whose size is reported.
func NewCollector(m *Metrics, stats StatsProvider, storagePath string, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &Collector{
		metrics:     m,
		stats:       stats,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background refresh loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.refreshLoop(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) refreshLoop(ctx context.Context) {
	defer c.wg.Done()

	// Prime the gauges before the first tick
	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// collect refreshes every gauge from current system state
func (c *Collector) collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.stats != nil {
		stats, err := c.stats.Stats(ctx)
		if err == nil {
			c.metrics.InstancesConfigured.Set(float64(stats.Instances))
			c.metrics.TemplatesTracked.Set(float64(stats.Templates))
		}
	}
}
