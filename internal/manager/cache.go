package manager

import (
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
)

// #region read-cache

// readCache fronts the store for read APIs. Every RefreshInterval-th access
// bypasses the cache so hot keys re-read their backing record.
type readCache struct {
	cache    *ristretto.Cache
	interval int64
	reads    atomic.Int64
}

func newReadCache(config CacheConfig) (*readCache, error) {
	if !config.Enabled {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.Size * 10,
		MaxCost:     config.Size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &readCache{cache: c, interval: config.RefreshInterval}, nil
}

// get returns the cached value unless this access falls on a refresh tick.
// A nil *readCache always misses.
func (rc *readCache) get(key string) (interface{}, bool) {
	if rc == nil {
		return nil, false
	}
	if rc.reads.Add(1)%rc.interval == 0 {
		rc.cache.Del(key)
		return nil, false
	}
	return rc.cache.Get(key)
}

func (rc *readCache) set(key string, value interface{}) {
	if rc == nil {
		return
	}
	rc.cache.Set(key, value, 1)
}

func (rc *readCache) clear() {
	if rc == nil {
		return
	}
	rc.cache.Clear()
}

// #endregion read-cache
