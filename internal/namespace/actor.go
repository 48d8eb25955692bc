// Package namespace implements the Namespace Data Actor: the owner of
// one (db, ns) pair's metric indexers, durable through a write-ahead
// log ahead of a periodic flush to object storage.
package namespace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aogier/nsdb/internal/actor"
	"github.com/aogier/nsdb/internal/errors"
	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/internal/storage"
	"github.com/aogier/nsdb/internal/wal"
	"github.com/aogier/nsdb/pkg/types"
)

// metricState pairs a metric's in-memory indexer with the WAL backing
// its durability ahead of the next flush.
type metricState struct {
	indexer Indexer
	log     *wal.WAL
	dirty   bool
}

// Actor is the Namespace Data Actor for a single (db, ns) pair. All
// indexer and WAL access happens on its Mailbox goroutine.
type Actor struct {
	mailbox *actor.Mailbox

	db, ns  string
	dataDir string
	store   storage.ObjectStorage

	metrics map[string]*metricState

	flushInterval time.Duration
	stopFlush     context.CancelFunc
}

// NewActor creates a Namespace Data Actor for (db, ns). dataDir is the
// local directory used for the actor's WAL segments and staging
// snapshot files before they're handed to store.
func NewActor(db, ns, dataDir string, store storage.ObjectStorage, flushInterval time.Duration) *Actor {
	return &Actor{
		mailbox:       actor.NewMailbox(256),
		db:            db,
		ns:            ns,
		dataDir:       dataDir,
		store:         store,
		metrics:       make(map[string]*metricState),
		flushInterval: flushInterval,
	}
}

// Start begins processing asks and, if a positive flush interval was
// configured, starts the background flush scheduler.
func (a *Actor) Start(ctx context.Context) {
	a.mailbox.Start(ctx)
	if a.flushInterval > 0 {
		flushCtx, cancel := context.WithCancel(ctx)
		a.stopFlush = cancel
		go a.runFlushScheduler(flushCtx)
	}
}

// Stop halts the flush scheduler and the actor's goroutine, closing
// every open metric's WAL.
func (a *Actor) Stop() {
	if a.stopFlush != nil {
		a.stopFlush()
	}
	a.mailbox.Stop()
	for _, ms := range a.metrics {
		ms.log.Close()
		ms.indexer.Close()
	}
}

// AddRecord appends bit to metric's indexer, writing it to the WAL
// first so the record survives a crash before the next flush.
// Duplicate delivery (the write coordinator does not roll back
// partial successes across replicas) is absorbed silently: Insert
// reports whether the bit was newly applied.
func (a *Actor) AddRecord(ctx context.Context, metric string, bit types.Bit) error {
	_, err := actor.Ask(ctx, a.mailbox, "AddRecord", func() (struct{}, error) {
		ms, err := a.metricStateFor(metric)
		if err != nil {
			return struct{}{}, err
		}
		if _, err := ms.log.Append(&wal.Entry{
			Metric:    metric,
			Bits:      []types.Bit{bit},
			Timestamp: bit.Timestamp,
		}); err != nil {
			return struct{}{}, errors.NewStorageError("failed to append to wal", err)
		}
		if ms.indexer.Insert(bit) {
			ms.dirty = true
		}
		return struct{}{}, nil
	})
	return err
}

// DeleteRecord removes every bit in metric's indexer matching where.
func (a *Actor) DeleteRecord(ctx context.Context, metric string, where parser.Expression) (int, error) {
	return actor.Ask(ctx, a.mailbox, "DeleteRecord", func() (int, error) {
		ms, ok := a.metrics[metric]
		if !ok {
			return 0, nil
		}
		n := ms.indexer.Delete(where)
		if n > 0 {
			ms.dirty = true
		}
		return n, nil
	})
}

// DropMetric discards metric's indexer and WAL entirely, without
// flushing first.
func (a *Actor) DropMetric(ctx context.Context, metric string) error {
	_, err := actor.Ask(ctx, a.mailbox, "DropMetric", func() (struct{}, error) {
		ms, ok := a.metrics[metric]
		if !ok {
			return struct{}{}, nil
		}
		ms.log.Close()
		ms.indexer.Close()
		delete(a.metrics, metric)
		return struct{}{}, nil
	})
	return err
}

// DeleteNamespace discards every metric's indexer and WAL this actor
// holds, without flushing first, and removes the namespace's on-disk
// WAL directory. After it returns, Metrics is empty and GetCount
// returns 0 for any metric.
func (a *Actor) DeleteNamespace(ctx context.Context) error {
	_, err := actor.Ask(ctx, a.mailbox, "DeleteNamespace", func() (struct{}, error) {
		for metric, ms := range a.metrics {
			ms.log.Close()
			ms.indexer.Close()
			delete(a.metrics, metric)
		}
		if err := os.RemoveAll(a.dataDir); err != nil {
			return struct{}{}, errors.NewStorageError("failed to remove namespace wal directory", err)
		}
		return struct{}{}, nil
	})
	return err
}

// GetCount returns the number of bits currently indexed for metric.
func (a *Actor) GetCount(ctx context.Context, metric string) (int, error) {
	return actor.Ask(ctx, a.mailbox, "GetCount", func() (int, error) {
		ms, ok := a.metrics[metric]
		if !ok {
			return 0, nil
		}
		return ms.indexer.Count(), nil
	})
}

// ExecuteSelectStatement returns every bit in metric's indexer matching
// where (nil matches everything).
func (a *Actor) ExecuteSelectStatement(ctx context.Context, metric string, where parser.Expression) ([]types.Bit, error) {
	return actor.Ask(ctx, a.mailbox, "ExecuteSelectStatement", func() ([]types.Bit, error) {
		ms, ok := a.metrics[metric]
		if !ok {
			return nil, nil
		}
		return ms.indexer.Select(where), nil
	})
}

// Metrics returns the names of every metric this actor currently holds
// an indexer for.
func (a *Actor) Metrics(ctx context.Context) ([]string, error) {
	return actor.Ask(ctx, a.mailbox, "Metrics", func() ([]string, error) {
		out := make([]string, 0, len(a.metrics))
		for m := range a.metrics {
			out = append(out, m)
		}
		return out, nil
	})
}

// Flush snapshots every dirty metric indexer to a local staging file
// and uploads it to object storage, clearing the dirty flag on
// success. It is safe to call concurrently with normal traffic: it
// runs on the actor's own goroutine like every other operation.
func (a *Actor) Flush(ctx context.Context) error {
	_, err := actor.Ask(ctx, a.mailbox, "Flush", func() (struct{}, error) {
		var firstErr error
		for metric, ms := range a.metrics {
			if !ms.dirty {
				continue
			}
			if err := a.flushMetric(ctx, metric, ms); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return struct{}{}, firstErr
	})
	return err
}

func (a *Actor) flushMetric(ctx context.Context, metric string, ms *metricState) error {
	bits := ms.indexer.Select(nil)

	stagingPath := filepath.Join(a.dataDir, fmt.Sprintf("%s.snapshot.tmp", metric))
	f, err := os.Create(stagingPath)
	if err != nil {
		return errors.NewStorageError("failed to create snapshot staging file", err)
	}
	if err := json.NewEncoder(f).Encode(bits); err != nil {
		f.Close()
		return errors.NewStorageError("failed to encode snapshot", err)
	}
	if err := f.Close(); err != nil {
		return errors.NewStorageError("failed to close snapshot staging file", err)
	}
	defer os.Remove(stagingPath)

	objectPath := filepath.Join(a.db, a.ns, metric, fmt.Sprintf("%d.snapshot", shardRangeKey(bits)))
	if err := a.store.Upload(ctx, stagingPath, objectPath); err != nil {
		return errors.NewStorageError("failed to upload snapshot", err)
	}

	ms.dirty = false
	return nil
}

// shardRangeKey picks a stable file name for a metric's snapshot: the
// earliest timestamp among its current bits, or zero for an empty set.
func shardRangeKey(bits []types.Bit) int64 {
	if len(bits) == 0 {
		return 0
	}
	min := bits[0].Timestamp
	for _, b := range bits[1:] {
		if b.Timestamp < min {
			min = b.Timestamp
		}
	}
	return min
}

func (a *Actor) metricStateFor(metric string) (*metricState, error) {
	if ms, ok := a.metrics[metric]; ok {
		return ms, nil
	}

	dir := filepath.Join(a.dataDir, metric)
	w, err := wal.NewWAL(dir, 64*1024*1024)
	if err != nil {
		return nil, errors.NewStorageError("failed to open wal", err)
	}

	ms := &metricState{
		indexer: NewMemIndexer(metric),
		log:     w,
	}
	a.metrics[metric] = ms
	return ms, nil
}

// runFlushScheduler periodically flushes dirty metric indexers,
// mirroring a ticker-driven background daemon: no merge, no garbage
// collection, flush only.
func (a *Actor) runFlushScheduler(ctx context.Context) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}
