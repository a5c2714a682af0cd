// Package cache memoizes finished reports for a short time so repeated
// queries skip the pipeline.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/ObiAU/newsrag/internal/models"
)

type entry struct {
	report   models.Report
	storedAt time.Time
}

type Cache struct {
	mu            sync.RWMutex
	reports       map[string]entry
	retention     time.Duration
	hits          int
	misses        int
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	closeOnce     sync.Once
}

// New keeps reports for retention. A non-positive retention disables
// caching.
func New(retention time.Duration) *Cache {
	c := &Cache{
		reports:   make(map[string]entry),
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}

	interval := time.Hour
	if retention > 0 && retention < interval {
		interval = retention
	}
	c.cleanupTicker = time.NewTicker(interval)
	go c.cleanup()

	return c
}

// Key normalises query and tasks so equivalent requests share an entry.
func Key(query string, tasks []models.Task) string {
	parts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		parts = append(parts, string(t))
	}
	return strings.ToLower(strings.Join(strings.Fields(query), " ")) + "|" + strings.Join(parts, ",")
}

func (c *Cache) Get(key string) (models.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.reports[key]
	if !ok || c.expired(e) {
		c.misses++
		return models.Report{}, false
	}
	c.hits++
	return e.report, true
}

// Put stores report unless caching is disabled. Reports from a failed
// search or a degraded run are dropped so the next request retries.
func (c *Cache) Put(key string, report models.Report) {
	if c.retention <= 0 || report.Status == models.StatusSearchUnavailable || report.Degraded {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[key] = entry{report: report, storedAt: c.now()}
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(e.storedAt) >= c.retention
}

func (c *Cache) cleanup() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.performCleanup()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Cache) performCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.reports {
		if c.expired(e) {
			delete(c.reports, key)
		}
	}
}

func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.cleanupTicker.Stop()
		close(c.stopChan)
	})
}

func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"cached_reports": len(c.reports),
		"hits":           c.hits,
		"misses":         c.misses,
		"retention":      c.retention.String(),
	}
}
