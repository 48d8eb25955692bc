package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/aogier/nsdb/internal/coordinator"
	"github.com/aogier/nsdb/internal/metadata"
	"github.com/aogier/nsdb/internal/namespace"
	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/internal/schema"
	"github.com/aogier/nsdb/internal/storage"
	"github.com/aogier/nsdb/pkg/types"
)

// cluster wires every NSDb core component the way cmd/nsdb does, on a
// configurable number of simulated nodes, so a test can exercise the
// full insert/select path without a running process.
type cluster struct {
	schema   *schema.Actor
	metadata *metadata.Coordinator
	nodes    map[string]*namespace.Actor
}

func newCluster(t *testing.T, nodeSelector metadata.NodeSelector) *cluster {
	return newClusterWithShardInterval(t, nodeSelector, time.Hour)
}

func newClusterWithShardInterval(t *testing.T, nodeSelector metadata.NodeSelector, shardInterval time.Duration) *cluster {
	t.Helper()
	ctx := context.Background()

	schemaActor := schema.NewActor()
	schemaActor.Start(ctx)
	t.Cleanup(schemaActor.Stop)

	metadataCoord := metadata.NewCoordinator(nodeSelector, shardInterval, nil, nil)
	metadataCoord.Start(ctx)
	t.Cleanup(metadataCoord.Stop)
	if err := metadataCoord.WarmUp(ctx, "node-1", metadata.WarmUpSeed{}); err != nil {
		t.Fatal(err)
	}

	return &cluster{schema: schemaActor, metadata: metadataCoord, nodes: make(map[string]*namespace.Actor)}
}

func (c *cluster) nodeActor(t *testing.T, node string) *namespace.Actor {
	t.Helper()
	if a, ok := c.nodes[node]; ok {
		return a
	}
	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "store", node))
	if err != nil {
		t.Fatal(err)
	}
	a := namespace.NewActor("db1", "default", filepath.Join(t.TempDir(), "wal", node), store, 0)
	a.Start(context.Background())
	t.Cleanup(a.Stop)
	c.nodes[node] = a
	return a
}

func (c *cluster) resolver(t *testing.T) coordinator.NamespaceResolver {
	return func(node string) (coordinator.NamespaceActor, bool) {
		return c.nodeActor(t, node), true
	}
}

func (c *cluster) coordinators(t *testing.T) (*coordinator.WriteCoordinator, *coordinator.ReadCoordinator) {
	resolve := c.resolver(t)
	return coordinator.NewWriteCoordinator(c.schema, c.metadata, resolve),
		coordinator.NewReadCoordinator(c.schema, c.metadata, resolve)
}

// TestEndToEnd_InsertAndSelect drives the write coordinator with a
// parsed INSERT and confirms the read coordinator's plain SELECT sees
// it, round-tripping through the schema actor and a real namespace
// data actor's WAL-backed indexer.
func TestEndToEnd_InsertAndSelect(t *testing.T) {
	c := newCluster(t, func(metric string, from, to int64) string { return "node-1" })
	ctx := context.Background()
	wc, rc := c.coordinators(t)

	stmt, err := parser.Parse("default", "INSERT INTO cpu DIM (host = 'a') VAL = 42.5;")
	if err != nil {
		t.Fatal(err)
	}
	insert, ok := stmt.(*parser.Insert)
	if !ok {
		t.Fatalf("expected *parser.Insert, got %T", stmt)
	}

	if _, err := wc.MapInput(ctx, "db1", insert); err != nil {
		t.Fatal(err)
	}

	selectStmt, err := parser.Parse("default", "SELECT * FROM cpu;")
	if err != nil {
		t.Fatal(err)
	}
	sel, ok := selectStmt.(*parser.Select)
	if !ok {
		t.Fatalf("expected *parser.Select, got %T", selectStmt)
	}

	result, err := rc.ExecuteStatement(ctx, "db1", sel)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result.Rows))
	}
}

// TestEndToEnd_SchemaConflictAcrossStatements confirms a write coordinator
// sharing a schema actor with an earlier statement rejects a type
// conflict on the metric's "value" field, and that the rejection
// leaves the previously accepted record intact.
func TestEndToEnd_SchemaConflictAcrossStatements(t *testing.T) {
	c := newCluster(t, func(metric string, from, to int64) string { return "node-1" })
	ctx := context.Background()
	wc, rc := c.coordinators(t)

	first, err := parser.Parse("default", "INSERT INTO cpu VAL = 1.0;")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wc.MapInput(ctx, "db1", first.(*parser.Insert)); err != nil {
		t.Fatal(err)
	}

	second, err := parser.Parse("default", "INSERT INTO cpu VAL = 2;")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wc.MapInput(ctx, "db1", second.(*parser.Insert)); err == nil {
		t.Fatal("expected the conflicting write to be rejected")
	}

	sel, err := parser.Parse("default", "SELECT * FROM cpu;")
	if err != nil {
		t.Fatal(err)
	}
	result, err := rc.ExecuteStatement(ctx, "db1", sel.(*parser.Select))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected the rejected write to leave the prior record untouched, got %d rows", len(result.Rows))
	}
}

// TestEndToEnd_ReplicatedWriteSurvivesOneReplicaFailure registers a
// second Location covering the same shard range on a node that is
// never reachable, and confirms the coordinator still accepts the
// write on the reachable replica while surfacing the partial failure.
func TestEndToEnd_ReplicatedWriteSurvivesOneReplicaFailure(t *testing.T) {
	c := newCluster(t, func(metric string, from, to int64) string { return "node-1" })
	ctx := context.Background()

	insert, err := parser.Parse("default", "INSERT INTO cpu VAL = 1.0;")
	if err != nil {
		t.Fatal(err)
	}
	stmt := insert.(*parser.Insert)

	ts := time.Now().UnixMilli()
	stmt.Timestamp = &ts
	primary, err := c.metadata.GetWriteLocations(ctx, "db1", "default", "cpu", ts)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.metadata.AddLocation(ctx, "db1", "default", "cpu", types.Location{
		Metric: "cpu", Node: "node-down", From: primary.From, To: primary.To,
	}); err != nil {
		t.Fatal(err)
	}

	resolve := func(node string) (coordinator.NamespaceActor, bool) {
		if node == "node-down" {
			return nil, false
		}
		return c.nodeActor(t, node), true
	}
	wc := coordinator.NewWriteCoordinator(c.schema, c.metadata, resolve)

	if _, err := wc.MapInput(ctx, "db1", stmt); err == nil {
		t.Fatal("expected the unreachable replica to surface as a partial failure")
	}

	rc := coordinator.NewReadCoordinator(c.schema, c.metadata, resolve)
	sel, err := parser.Parse("default", "SELECT * FROM cpu;")
	if err != nil {
		t.Fatal(err)
	}
	result, err := rc.ExecuteStatement(ctx, "db1", sel.(*parser.Select))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected the successful replica's copy to survive, got %d rows", len(result.Rows))
	}
}

// TestEndToEnd_GroupedAggregateAcrossDimensions inserts several bits
// sharing a "host" dimension and confirms a GROUP BY SUM aggregates
// per-group through the full write/read path.
func TestEndToEnd_GroupedAggregateAcrossDimensions(t *testing.T) {
	c := newCluster(t, func(metric string, from, to int64) string { return "node-1" })
	ctx := context.Background()
	wc, rc := c.coordinators(t)

	inserts := []string{
		"INSERT INTO cpu DIM (host = 'a') VAL = 1.0;",
		"INSERT INTO cpu DIM (host = 'a') VAL = 2.0;",
		"INSERT INTO cpu DIM (host = 'b') VAL = 5.0;",
	}
	for _, q := range inserts {
		stmt, err := parser.Parse("default", q)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := wc.MapInput(ctx, "db1", stmt.(*parser.Insert)); err != nil {
			t.Fatal(err)
		}
	}

	sel, err := parser.Parse("default", "SELECT SUM(value) FROM cpu GROUP BY host;")
	if err != nil {
		t.Fatal(err)
	}
	result, err := rc.ExecuteStatement(ctx, "db1", sel.(*parser.Select))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(result.Rows))
	}
}

// TestEndToEnd_DropMetricRemovesSchemaAndData confirms a DROP
// statement clears both the schema actor's record and every
// namespace actor's indexed data for the metric.
func TestEndToEnd_DropMetricRemovesSchemaAndData(t *testing.T) {
	c := newCluster(t, func(metric string, from, to int64) string { return "node-1" })
	ctx := context.Background()
	wc, rc := c.coordinators(t)

	insert, err := parser.Parse("default", "INSERT INTO cpu VAL = 1.0;")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wc.MapInput(ctx, "db1", insert.(*parser.Insert)); err != nil {
		t.Fatal(err)
	}

	drop, err := parser.Parse("default", "DROP cpu;")
	if err != nil {
		t.Fatal(err)
	}
	if err := wc.DropMetric(ctx, "db1", drop.(*parser.Drop)); err != nil {
		t.Fatal(err)
	}

	sel, err := parser.Parse("default", "SELECT * FROM cpu;")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rc.ExecuteStatement(ctx, "db1", sel.(*parser.Select)); err == nil {
		t.Fatal("expected a dropped metric to have no schema for subsequent reads")
	}
}

// TestEndToEnd_AggregateMergesPartialsAcrossLocations inserts bits
// that land in two distinct shard ranges, placed on two distinct
// nodes, and confirms a SUM aggregate reflects both shards' data: the
// read coordinator must compute one partial per Location and merge
// them rather than only ever seeing whichever shard happens to be
// collected first.
func TestEndToEnd_AggregateMergesPartialsAcrossLocations(t *testing.T) {
	nodeSelector := func(metric string, from, to int64) string {
		return fmt.Sprintf("node-%d", from)
	}
	c := newClusterWithShardInterval(t, nodeSelector, time.Second)
	ctx := context.Background()
	wc, rc := c.coordinators(t)

	for _, ts := range []int64{1000, 2000} {
		stmt, err := parser.Parse("default", "INSERT INTO cpu VAL = 1.0;")
		if err != nil {
			t.Fatal(err)
		}
		insert := stmt.(*parser.Insert)
		insert.Timestamp = &ts
		if _, err := wc.MapInput(ctx, "db1", insert); err != nil {
			t.Fatal(err)
		}
	}

	locations, err := c.metadata.GetLocations(ctx, "db1", "default", "cpu")
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, loc := range locations {
		seen[loc.Node] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected the two inserts to land on 2 distinct shard/node pairs, got %v", locations)
	}

	sel, err := parser.Parse("default", "SELECT SUM(value) FROM cpu;")
	if err != nil {
		t.Fatal(err)
	}
	result, err := rc.ExecuteStatement(ctx, "db1", sel.(*parser.Select))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0].Double != 2 {
		t.Fatalf("expected the sum across both shards to be 2, got %v", result.Rows)
	}
}

// TestEndToEnd_DeleteNamespaceWipesSchemaMetadataAndData confirms
// DeleteNamespace clears every metric's schema, the metadata
// coordinator's cached Locations and MetricInfos, and every namespace
// data actor's indexed bits for the namespace, cluster-wide.
func TestEndToEnd_DeleteNamespaceWipesSchemaMetadataAndData(t *testing.T) {
	c := newCluster(t, func(metric string, from, to int64) string { return "node-1" })
	ctx := context.Background()
	wc, rc := c.coordinators(t)

	for _, q := range []string{
		"INSERT INTO cpu VAL = 1.0;",
		"INSERT INTO mem VAL = 2.0;",
	} {
		stmt, err := parser.Parse("default", q)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := wc.MapInput(ctx, "db1", stmt.(*parser.Insert)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := wc.DeleteNamespace(ctx, "db1", "default"); err != nil {
		t.Fatal(err)
	}

	sel, err := parser.Parse("default", "SELECT * FROM cpu;")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rc.ExecuteStatement(ctx, "db1", sel.(*parser.Select)); err == nil {
		t.Fatal("expected a deleted namespace to leave no schema for a metric it held")
	}

	metrics, err := c.metadata.GetMetrics(ctx, "db1", "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 0 {
		t.Fatalf("expected no metrics left registered under the deleted namespace, got %v", metrics)
	}

	node := c.nodeActor(t, "node-1")
	count, err := node.GetCount(ctx, "cpu")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected the namespace data actor to report 0 records post-delete, got %d", count)
	}
}
