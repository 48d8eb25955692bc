// Package metadata implements the Metadata Coordinator: the
// single-writer owner of Location assignment and MetricInfo for every
// metric, backed by an in-memory Cache and an optional durable Store.
package metadata

import (
	"context"
	"time"

	"github.com/aogier/nsdb/internal/actor"
	"github.com/aogier/nsdb/internal/errors"
	"github.com/aogier/nsdb/internal/router"
	"github.com/aogier/nsdb/pkg/types"
)

// NodeSelector assigns the node that should own a newly allocated
// Location for metric. Cluster membership and placement policy are
// out of scope here; callers inject whatever policy fits their
// deployment — a single fixed node for a standalone instance, a
// round-robin or consistent-hash selector for a cluster.
type NodeSelector func(metric string, from, to int64) string

// WarmUpSeed is the state a Coordinator replays before it becomes
// ready: every Location and MetricInfo a node already knows about,
// typically loaded from a Store or received from a peer.
type WarmUpSeed struct {
	Locations   map[[3]string][]types.Location
	MetricInfos map[[3]string]types.MetricInfo
}

// Coordinator is the Metadata Coordinator actor. It holds a lifecycle
// with two states — warm-up and ready — and WarmUp moves it to ready;
// asks, write-location assignment included, are served in either state.
type Coordinator struct {
	mailbox       *actor.Mailbox
	cache         *Cache
	store         *Store // nil if no durable backing configured
	notifier      *router.Notifier
	selectNode    NodeSelector
	defaultShard  int64 // nsdb.sharding.interval, in the same unit as Location.From/To
	ready         bool
}

// NewCoordinator creates a Metadata Coordinator. store may be nil.
func NewCoordinator(selectNode NodeSelector, defaultShardInterval time.Duration, notifier *router.Notifier, store *Store) *Coordinator {
	return &Coordinator{
		mailbox:      actor.NewMailbox(256),
		cache:        NewCache(),
		store:        store,
		notifier:     notifier,
		selectNode:   selectNode,
		defaultShard: defaultShardInterval.Milliseconds(),
	}
}

// Start begins processing asks.
func (c *Coordinator) Start(ctx context.Context) {
	c.mailbox.Start(ctx)
}

// Stop halts the coordinator's goroutine.
func (c *Coordinator) Stop() {
	c.mailbox.Stop()
}

// WarmUp replays seed into the cache and transitions the coordinator
// from warm-up to ready, publishing a NodeWarmedUp notification on
// completion. WarmUp is idempotent: calling it again simply replays
// a fresh seed and re-publishes readiness.
func (c *Coordinator) WarmUp(ctx context.Context, node string, seed WarmUpSeed) error {
	_, err := actor.Ask(ctx, c.mailbox, "WarmUp", func() (struct{}, error) {
		for k, locs := range seed.Locations {
			known := c.cache.GetLocations(k[0], k[1], k[2])
		seedLoop:
			for _, loc := range locs {
				for _, have := range known {
					if have == loc {
						continue seedLoop
					}
				}
				c.cache.PutLocation(k[0], k[1], k[2], loc)
			}
		}
		for k, info := range seed.MetricInfos {
			c.cache.PutMetricInfo(k[0], k[1], k[2], info)
		}
		c.ready = true
		if c.notifier != nil {
			c.notifier.Publish(router.Notification{
				Type:      router.NodeWarmedUp,
				Node:      node,
				Timestamp: 0,
			})
		}
		return struct{}{}, nil
	})
	return err
}

// GetLocations returns every known Location for (db, ns, metric).
func (c *Coordinator) GetLocations(ctx context.Context, db, ns, metric string) ([]types.Location, error) {
	return actor.Ask(ctx, c.mailbox, "GetLocations", func() ([]types.Location, error) {
		return c.cache.GetLocations(db, ns, metric), nil
	})
}

// AddLocation appends loc to the cache (and durable store, if
// configured) for (db, ns, metric), publishing a LocationAdded
// notification. It does not deduplicate: callers may register
// multiple replicas covering the same range, one per node.
func (c *Coordinator) AddLocation(ctx context.Context, db, ns, metric string, loc types.Location) error {
	_, err := actor.Ask(ctx, c.mailbox, "AddLocation", func() (struct{}, error) {
		c.cache.PutLocation(db, ns, metric, loc)
		if c.store != nil {
			if err := c.store.SaveLocation(ctx, db, ns, metric, loc); err != nil {
				return struct{}{}, errors.NewStorageError("failed to persist location", err)
			}
		}
		if c.notifier != nil {
			c.notifier.Publish(router.Notification{
				Type:      router.LocationAdded,
				Metric:    metric,
				Node:      loc.Node,
				Timestamp: loc.From,
			})
		}
		return struct{}{}, nil
	})
	return err
}

// GetWriteLocations deterministically assigns (or reuses) the
// Location that should own timestamp for (db, ns, metric): the shard
// interval comes from a registered MetricInfo, falling back to the
// coordinator's configured default, and the bucket is
// floor(timestamp / interval). A Location already covering that
// bucket is reused; otherwise one is allocated via the node selector,
// cached, persisted, and announced.
func (c *Coordinator) GetWriteLocations(ctx context.Context, db, ns, metric string, timestamp int64) (types.Location, error) {
	return actor.Ask(ctx, c.mailbox, "GetWriteLocations", func() (types.Location, error) {
		info, ok := c.cache.GetMetricInfo(db, ns, metric)
		if !ok {
			info = types.MetricInfo{Metric: metric, ShardInterval: c.defaultShard}
		}
		if info.ShardInterval <= 0 {
			info.ShardInterval = c.defaultShard
		}

		from, to := info.LocationForBucket(info.Bucket(timestamp))

		for _, loc := range c.cache.GetLocations(db, ns, metric) {
			if loc.From == from && loc.To == to {
				return loc, nil
			}
		}

		node := c.selectNode(metric, from, to)
		loc := types.Location{Metric: metric, Node: node, From: from, To: to}
		c.cache.PutLocation(db, ns, metric, loc)
		if c.store != nil {
			if err := c.store.SaveLocation(ctx, db, ns, metric, loc); err != nil {
				return types.Location{}, errors.NewStorageError("failed to persist location", err)
			}
		}
		if c.notifier != nil {
			c.notifier.Publish(router.Notification{
				Type:      router.LocationAdded,
				Metric:    metric,
				Node:      node,
				Timestamp: from,
			})
		}
		return loc, nil
	})
}

// GetMetricInfo returns the MetricInfo registered for (db, ns, metric).
func (c *Coordinator) GetMetricInfo(ctx context.Context, db, ns, metric string) (types.MetricInfo, bool, error) {
	type result struct {
		info types.MetricInfo
		ok   bool
	}
	r, err := actor.Ask(ctx, c.mailbox, "GetMetricInfo", func() (result, error) {
		info, ok := c.cache.GetMetricInfo(db, ns, metric)
		return result{info, ok}, nil
	})
	return r.info, r.ok, err
}

// PutMetricInfo registers info for (db, ns, metric). It fails with a
// DuplicateMetricInfo error if an info is already registered.
func (c *Coordinator) PutMetricInfo(ctx context.Context, db, ns, metric string, info types.MetricInfo) error {
	_, err := actor.Ask(ctx, c.mailbox, "PutMetricInfo", func() (struct{}, error) {
		if _, ok := c.cache.GetMetricInfo(db, ns, metric); ok {
			return struct{}{}, errors.NewDuplicateMetricInfo(metric)
		}
		c.cache.PutMetricInfo(db, ns, metric, info)
		if c.store != nil {
			if err := c.store.SaveMetricInfo(ctx, db, ns, metric, info); err != nil {
				return struct{}{}, errors.NewStorageError("failed to persist metric info", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// GetNamespaces returns every namespace under db known to the cache.
func (c *Coordinator) GetNamespaces(ctx context.Context, db string) ([]string, error) {
	return actor.Ask(ctx, c.mailbox, "GetNamespaces", func() ([]string, error) {
		return c.cache.Namespaces(db), nil
	})
}

// GetMetrics returns every metric under (db, ns) known to the cache.
func (c *Coordinator) GetMetrics(ctx context.Context, db, ns string) ([]string, error) {
	return actor.Ask(ctx, c.mailbox, "GetMetrics", func() ([]string, error) {
		return c.cache.Metrics(db, ns), nil
	})
}

// DeleteNamespace clears every Location and MetricInfo cached for any
// metric under (db, ns). It does not touch the durable store: callers
// that need the deletion to survive a restart must also clear it
// there, which this coordinator has no API for yet.
func (c *Coordinator) DeleteNamespace(ctx context.Context, db, ns string) error {
	_, err := actor.Ask(ctx, c.mailbox, "DeleteNamespace", func() (struct{}, error) {
		c.cache.DeleteAllLocations(db, ns)
		c.cache.DeleteAllMetricInfo(db, ns)
		return struct{}{}, nil
	})
	return err
}

// IsReady reports whether WarmUp has completed.
func (c *Coordinator) IsReady(ctx context.Context) (bool, error) {
	return actor.Ask(ctx, c.mailbox, "IsReady", func() (bool, error) {
		return c.ready, nil
	})
}
