package metadata

import (
	"sync"

	"github.com/aogier/nsdb/pkg/types"
)

// key identifies a cache entry by its full (db, ns, metric) coordinate.
type key struct {
	db, ns, metric string
}

// Cache is the in-memory keyed store described for the metadata
// coordinator: two keyspaces, one holding a list of Locations per
// metric, the other a single MetricInfo per metric. The coordinator's
// Mailbox already serializes every mutation, so Cache itself only
// needs a lock to protect against being read from outside the actor
// (e.g. by a test or a secondary read path); the mutex is not on any
// hot path inside the coordinator's own goroutine.
type Cache struct {
	mu        sync.Mutex
	locations map[key][]types.Location
	infos     map[key]types.MetricInfo
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		locations: make(map[key][]types.Location),
		infos:     make(map[key]types.MetricInfo),
	}
}

// PutLocation appends loc to the list cached for (db, ns, metric).
// It does not deduplicate.
func (c *Cache) PutLocation(db, ns, metric string, loc types.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{db, ns, metric}
	c.locations[k] = append(c.locations[k], loc)
}

// GetLocations returns every Location cached for (db, ns, metric).
func (c *Cache) GetLocations(db, ns, metric string) []types.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	locs := c.locations[key{db, ns, metric}]
	out := make([]types.Location, len(locs))
	copy(out, locs)
	return out
}

// DeleteLocations removes every Location cached for (db, ns, metric).
func (c *Cache) DeleteLocations(db, ns, metric string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locations, key{db, ns, metric})
}

// DeleteAllLocations removes every Location cached for any metric
// under (db, ns).
func (c *Cache) DeleteAllLocations(db, ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.locations {
		if k.db == db && k.ns == ns {
			delete(c.locations, k)
		}
	}
}

// PutMetricInfo stores info for (db, ns, metric). It is the caller's
// responsibility to check GetMetricInfo first — PutMetricInfo
// overwrites unconditionally, matching the single-valued-per-metric
// keyspace contract; the coordinator enforces the "fails if already
// set" rule before calling this.
func (c *Cache) PutMetricInfo(db, ns, metric string, info types.MetricInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos[key{db, ns, metric}] = info
}

// GetMetricInfo returns the MetricInfo cached for (db, ns, metric), if any.
func (c *Cache) GetMetricInfo(db, ns, metric string) (types.MetricInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.infos[key{db, ns, metric}]
	return info, ok
}

// DeleteMetricInfo removes the MetricInfo cached for (db, ns, metric).
func (c *Cache) DeleteMetricInfo(db, ns, metric string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.infos, key{db, ns, metric})
}

// DeleteAllMetricInfo removes every MetricInfo cached for any metric
// under (db, ns).
func (c *Cache) DeleteAllMetricInfo(db, ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.infos {
		if k.db == db && k.ns == ns {
			delete(c.infos, k)
		}
	}
}

// Namespaces returns the distinct namespace names holding at least one
// registered Location or MetricInfo under db.
func (c *Cache) Namespaces(db string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{})
	for k := range c.locations {
		if k.db == db {
			seen[k.ns] = struct{}{}
		}
	}
	for k := range c.infos {
		if k.db == db {
			seen[k.ns] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	return out
}

// Metrics returns the distinct metric names holding at least one
// registered Location or MetricInfo under (db, ns).
func (c *Cache) Metrics(db, ns string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{})
	for k := range c.locations {
		if k.db == db && k.ns == ns {
			seen[k.metric] = struct{}{}
		}
	}
	for k := range c.infos {
		if k.db == db && k.ns == ns {
			seen[k.metric] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	return out
}
