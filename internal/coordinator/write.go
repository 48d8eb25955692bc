package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aogier/nsdb/internal/errors"
	"github.com/aogier/nsdb/internal/metadata"
	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/internal/schema"
	"github.com/aogier/nsdb/pkg/types"
)

// NamespaceActor is the narrow surface the Write and Read Coordinators
// need from a Namespace Data Actor. internal/namespace.Actor satisfies
// it; a coordinator built for testing can supply a fake.
type NamespaceActor interface {
	AddRecord(ctx context.Context, metric string, bit types.Bit) error
	DeleteRecord(ctx context.Context, metric string, where parser.Expression) (int, error)
	DropMetric(ctx context.Context, metric string) error
	DeleteNamespace(ctx context.Context) error
	ExecuteSelectStatement(ctx context.Context, metric string, where parser.Expression) ([]types.Bit, error)
	GetCount(ctx context.Context, metric string) (int, error)
}

// NamespaceResolver returns the Namespace Data Actor that owns a given
// node name. Node identity is opaque here: cluster placement is out of
// scope, and a single-node deployment can return the same actor for
// every node.
type NamespaceResolver func(node string) (NamespaceActor, bool)

// WriteCoordinator maps an incoming statement to the schema, metadata,
// and namespace actors that need to see it, forwarding writes to every
// replica location a metric currently has registered.
type WriteCoordinator struct {
	schema    *schema.Actor
	metadata  *metadata.Coordinator
	resolve   NamespaceResolver
	ulidGen   *types.ULIDGenerator
}

// NewWriteCoordinator creates a Write Coordinator. It has no mailbox of
// its own: MapInput fans out concurrently to namespace actors and
// blocking here would gain nothing, since the actors it calls into
// already serialize their own state.
func NewWriteCoordinator(schemaActor *schema.Actor, metadataCoord *metadata.Coordinator, resolve NamespaceResolver) *WriteCoordinator {
	return &WriteCoordinator{
		schema:   schemaActor,
		metadata: metadataCoord,
		resolve:  resolve,
		ulidGen:  types.NewULIDGenerator(),
	}
}

// MapInput accepts a parsed INSERT statement: it widens the metric's
// schema, resolves the write location, and forwards the resulting bit
// to every Namespace Data Actor holding a replica of that location.
// Successful replicas are not rolled back if a sibling replica fails —
// over-replication is tolerated, since a shard indexer's Insert already
// deduplicates identical bits on insert.
func (w *WriteCoordinator) MapInput(ctx context.Context, db string, stmt *parser.Insert) (InputMapped, error) {
	timestamp := time.Now().UnixMilli()
	if stmt.Timestamp != nil {
		timestamp = *stmt.Timestamp
	}

	id, err := w.ulidGen.GenerateWithTime(time.UnixMilli(timestamp))
	if err != nil {
		return InputMapped{}, errors.NewInternalError("failed to generate id", err)
	}

	bit := types.Bit{
		ID:         id,
		Timestamp:  timestamp,
		Value:      stmt.Value,
		Dimensions: stmt.Dimensions,
	}

	if _, err := w.schema.UpdateSchemaFromRecord(ctx, db, stmt.Ns, stmt.Metric, bit); err != nil {
		return InputMapped{}, err
	}

	primary, err := w.metadata.GetWriteLocations(ctx, db, stmt.Ns, stmt.Metric, timestamp)
	if err != nil {
		return InputMapped{}, err
	}

	replicas, err := w.metadata.GetLocations(ctx, db, stmt.Ns, stmt.Metric)
	if err != nil {
		return InputMapped{}, err
	}

	var targets []types.Location
	for _, loc := range replicas {
		if loc.From == primary.From && loc.To == primary.To {
			targets = append(targets, loc)
		}
	}
	if len(targets) == 0 {
		targets = []types.Location{primary}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reasons []string
	)
	for _, loc := range targets {
		ns, ok := w.resolve(loc.Node)
		if !ok {
			mu.Lock()
			reasons = append(reasons, fmt.Sprintf("no namespace actor for node %q", loc.Node))
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(loc types.Location, ns NamespaceActor) {
			defer wg.Done()
			if err := ns.AddRecord(ctx, stmt.Metric, bit); err != nil {
				mu.Lock()
				reasons = append(reasons, fmt.Sprintf("%s: %v", loc.Node, err))
				mu.Unlock()
			}
		}(loc, ns)
	}
	wg.Wait()

	if len(reasons) > 0 {
		return InputMapped{}, &recordRejectedError{RecordRejected{Reasons: reasons}}
	}

	return InputMapped{Location: primary}, nil
}

// ExecuteDeleteStatement widens no schema; it forwards the delete
// predicate to the namespace actor at every registered Location for
// the metric.
func (w *WriteCoordinator) ExecuteDeleteStatement(ctx context.Context, db string, stmt *parser.Delete) (int, error) {
	locations, err := w.metadata.GetLocations(ctx, db, stmt.Ns, stmt.Metric)
	if err != nil {
		return 0, err
	}

	total := 0
	var reasons []string
	for _, loc := range locations {
		ns, ok := w.resolve(loc.Node)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("no namespace actor for node %q", loc.Node))
			continue
		}
		n, err := ns.DeleteRecord(ctx, stmt.Metric, stmt.Where)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", loc.Node, err))
			continue
		}
		total += n
	}

	if len(reasons) > 0 {
		return total, &recordRejectedError{RecordRejected{Reasons: reasons}}
	}
	return total, nil
}

// DropMetric removes a metric's schema and every replica's indexer for it.
func (w *WriteCoordinator) DropMetric(ctx context.Context, db string, stmt *parser.Drop) error {
	if err := w.schema.DeleteSchema(ctx, db, stmt.Ns, stmt.Metric); err != nil {
		return err
	}

	locations, err := w.metadata.GetLocations(ctx, db, stmt.Ns, stmt.Metric)
	if err != nil {
		return err
	}

	var reasons []string
	for _, loc := range locations {
		ns, ok := w.resolve(loc.Node)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("no namespace actor for node %q", loc.Node))
			continue
		}
		if err := ns.DropMetric(ctx, stmt.Metric); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", loc.Node, err))
		}
	}

	if len(reasons) > 0 {
		return &recordRejectedError{RecordRejected{Reasons: reasons}}
	}
	return nil
}

// DeleteNamespace tears down every metric this namespace holds,
// cluster-wide: it stops and erases every replica's indexer and WAL,
// clears the metadata coordinator's cached Locations and MetricInfos
// for the namespace, and drops its schemas. It tries every step even
// if an earlier one reports a partial failure, so a single unreachable
// replica doesn't leave metadata or schemas stuck referencing data
// that's already gone everywhere else.
func (w *WriteCoordinator) DeleteNamespace(ctx context.Context, db, ns string) (NamespaceDeleted, error) {
	var reasons []string

	metrics, err := w.metadata.GetMetrics(ctx, db, ns)
	if err != nil {
		reasons = append(reasons, err.Error())
	}

	seen := make(map[string]bool)
	for _, metric := range metrics {
		locations, err := w.metadata.GetLocations(ctx, db, ns, metric)
		if err != nil {
			reasons = append(reasons, err.Error())
			continue
		}
		for _, loc := range locations {
			if seen[loc.Node] {
				continue
			}
			seen[loc.Node] = true
			nsActor, ok := w.resolve(loc.Node)
			if !ok {
				reasons = append(reasons, fmt.Sprintf("no namespace actor for node %q", loc.Node))
				continue
			}
			if err := nsActor.DeleteNamespace(ctx); err != nil {
				reasons = append(reasons, fmt.Sprintf("%s: %v", loc.Node, err))
			}
		}
	}

	if err := w.metadata.DeleteNamespace(ctx, db, ns); err != nil {
		reasons = append(reasons, err.Error())
	}
	if err := w.schema.DeleteNamespace(ctx, db, ns); err != nil {
		reasons = append(reasons, err.Error())
	}

	if len(reasons) > 0 {
		return NamespaceDeleted{}, &recordRejectedError{RecordRejected{Reasons: reasons}}
	}
	return NamespaceDeleted{Db: db, Ns: ns}, nil
}

// recordRejectedError adapts a RecordRejected reply into an error so
// MapInput's partial-failure path can be returned through the normal
// (value, error) idiom every other actor method uses.
type recordRejectedError struct {
	RecordRejected
}

func (e *recordRejectedError) Error() string {
	return fmt.Sprintf("record rejected: %v", e.Reasons)
}
