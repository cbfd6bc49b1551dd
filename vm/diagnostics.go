package scm

import (
	"runtime"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
)

/*
	allocSiteCache is an optional debug-build aid: a bounded LRU of
	"file:line" call sites mapped to allocation counts, sampled from
	runtime.Caller at every AllocTagged call when enabled. It exists
	purely so an embedder chasing a GC-pressure regression can ask "which
	call sites are allocating the most" without an unbounded map growing
	for the life of the process -- the same bounded-cache shape
	hashicorp/golang-lru is built for, just applied to allocation sites
	instead of to evicted cache entries.
*/
type AllocSiteStats struct {
	cache *lru.Cache
}

func newAllocSiteStats(size int) *AllocSiteStats {
	c, err := lru.New(size)
	if err != nil {
		c, _ = lru.New(1024)
	}
	return &AllocSiteStats{cache: c}
}

func (s *AllocSiteStats) record(skip int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return
	}
	key := file + ":" + strconv.Itoa(line)
	if v, ok := s.cache.Get(key); ok {
		s.cache.Add(key, v.(int)+1)
	} else {
		s.cache.Add(key, 1)
	}
}

// Top returns up to n (site, count) observations currently resident in
// the cache. Eviction means this is a sample, not an exhaustive count --
// fine for "where is this coming from", wrong for billing.
func (s *AllocSiteStats) Top(n int) map[string]int {
	out := make(map[string]int)
	for _, key := range s.cache.Keys() {
		if len(out) >= n {
			break
		}
		if v, ok := s.cache.Get(key); ok {
			out[key.(string)] = v.(int)
		}
	}
	return out
}

// EnableAllocSiteTracking turns on the debug allocation-site sampler.
// Disabled by default since runtime.Caller is too slow to leave on in
// the hot allocation path of a normal run.
func (rt *Runtime) EnableAllocSiteTracking(cacheSize int) {
	rt.allocStats = newAllocSiteStats(cacheSize)
}

func (rt *Runtime) AllocSiteStats() *AllocSiteStats { return rt.allocStats }
