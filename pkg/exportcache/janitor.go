package exportcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ocsearch/ocsearch/pkg/log"
)

// Janitor periodically removes stale export files from the cache directory.
// Reads only evict the one entry they hit, so without the janitor a file for
// a query nobody repeats would sit on disk forever.
type Janitor struct {
	cache    *Cache
	interval time.Duration
	logger   *log.Logger

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor sweeping cache's directory every interval.
// An interval of 0 falls back to the cache freshness window.
func NewJanitor(cache *Cache, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = cache.freshness
	}
	return &Janitor{
		cache:    cache,
		interval: interval,
		logger:   log.ForService("exportcache"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep. It returns immediately.
func (j *Janitor) Start(ctx context.Context) {
	j.ticker = time.NewTicker(j.interval)
	j.wg.Add(1)
	go j.run(ctx)
	j.logger.Debugf("janitor started, sweeping every %v", j.interval)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()
	defer j.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-j.ticker.C:
			if n, err := j.Sweep(); err != nil {
				j.logger.Warnf("sweep failed: %v", err)
			} else if n > 0 {
				j.logger.Debugf("removed %d stale export files", n)
			}
		}
	}
}

// Sweep removes export files older than the freshness window and abandoned
// temp files. It returns the number of files removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.cache.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-j.cache.freshness)
	for _, entry := range entries {
		if entry.IsDir() || !exportArtifact(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.cache.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Warnf("removing %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func exportArtifact(name string) bool {
	if strings.HasPrefix(name, ".export-") {
		return true
	}
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz")
}
