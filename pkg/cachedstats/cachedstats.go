package cachedstats

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Source produces a fresh stats document. stats.Collector is the production
// source.
type Source interface {
	HandleImageStatsData() gin.H
	GetDiskUsage() gin.H
	GetSystemInfo() gin.H
}

// CachedStats holds the last computed statistics so status requests never
// walk the data directory themselves.
type CachedStats struct {
	sync.RWMutex
	Data          gin.H
	source        Source
	interval      time.Duration
	isInitialized bool
}

func New(source Source) *CachedStats {
	return &CachedStats{
		Data:     make(gin.H),
		source:   source,
		interval: 30 * time.Second,
	}
}

// RunUpdater refreshes the cache immediately and then on every interval
// until ctx is cancelled.
func (cs *CachedStats) RunUpdater(ctx context.Context) {
	ticker := time.NewTicker(cs.interval)
	go func() {
		defer ticker.Stop()
		for {
			cs.Update()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (cs *CachedStats) Update() {
	data := gin.H{
		"images":      cs.source.HandleImageStatsData(),
		"disk":        cs.source.GetDiskUsage(),
		"system_info": cs.source.GetSystemInfo(),
		"updated_at":  time.Now().Format(time.RFC3339),
	}

	cs.Lock()
	defer cs.Unlock()
	cs.Data = data
	cs.isInitialized = true
}

func (cs *CachedStats) GetData() gin.H {
	cs.RLock()
	defer cs.RUnlock()
	if !cs.isInitialized {
		return gin.H{
			"is_loading": true,
			"images":     "Loading...",
			"disk":       "Loading...",
		}
	}
	return cs.Data
}
