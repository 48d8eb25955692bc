package coordinator

import (
	"context"
	"sort"

	"github.com/aogier/nsdb/internal/errors"
	"github.com/aogier/nsdb/internal/metadata"
	"github.com/aogier/nsdb/internal/query/aggregator"
	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/internal/schema"
	"github.com/aogier/nsdb/pkg/types"
)

// ReadCoordinator resolves a parsed SELECT against the schema and
// metadata actors, prunes the Locations a query needs to touch, and
// merges the per-location partials the namespace actors return.
type ReadCoordinator struct {
	schema   *schema.Actor
	metadata *metadata.Coordinator
	resolve  NamespaceResolver
}

// NewReadCoordinator creates a Read Coordinator.
func NewReadCoordinator(schemaActor *schema.Actor, metadataCoord *metadata.Coordinator, resolve NamespaceResolver) *ReadCoordinator {
	return &ReadCoordinator{schema: schemaActor, metadata: metadataCoord, resolve: resolve}
}

// GetNamespaces forwards to the metadata coordinator.
func (r *ReadCoordinator) GetNamespaces(ctx context.Context, db string) ([]string, error) {
	return r.metadata.GetNamespaces(ctx, db)
}

// GetMetrics forwards to the metadata coordinator.
func (r *ReadCoordinator) GetMetrics(ctx context.Context, db, ns string) ([]string, error) {
	return r.metadata.GetMetrics(ctx, db, ns)
}

// GetSchema forwards to the schema actor.
func (r *ReadCoordinator) GetSchema(ctx context.Context, db, ns, metric string) (types.Schema, error) {
	return r.schema.GetSchema(ctx, db, ns, metric)
}

// ExecuteStatement runs a parsed SELECT: it confirms the metric has a
// schema, prunes the metric's Locations to the ranges the WHERE clause
// implies, collects the matching bits from one namespace actor per
// distinct range, and merges, groups, orders, and limits the result.
func (r *ReadCoordinator) ExecuteStatement(ctx context.Context, db string, stmt *parser.Select) (SelectResult, error) {
	if _, err := r.schema.GetSchema(ctx, db, stmt.Ns, stmt.From); err != nil {
		return SelectResult{}, err
	}

	locations, err := r.metadata.GetLocations(ctx, db, stmt.Ns, stmt.From)
	if err != nil {
		return SelectResult{}, err
	}

	predicates := parser.ExtractPredicates(stmt.Where)
	targets := pruneLocations(locations, parser.TimeRanges(predicates, "timestamp"))

	perLocation, err := r.collectBitsByLocation(ctx, stmt, targets)
	if err != nil {
		return SelectResult{}, err
	}

	return projectResult(stmt, perLocation)
}

// pruneLocations keeps one Location per distinct [From, To) range,
// restricted to ranges overlapping the query's time predicates when
// any were given.
func pruneLocations(locations []types.Location, ranges []struct{ From, To int64 }) []types.Location {
	seen := make(map[[2]int64]bool)
	var out []types.Location
	for _, loc := range locations {
		if len(ranges) > 0 && !overlapsAny(loc, ranges) {
			continue
		}
		key := [2]int64{loc.From, loc.To}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, loc)
	}
	return out
}

func overlapsAny(loc types.Location, ranges []struct{ From, To int64 }) bool {
	for _, rg := range ranges {
		if loc.Overlaps(types.Location{From: rg.From, To: rg.To}) {
			return true
		}
	}
	return false
}

// collectBitsByLocation asks one namespace actor per targeted Location
// for its matching bits, keeping each Location's result separate so an
// aggregate query can compute one partial per Location and merge them,
// rather than aggregating over a result set that already mixed several
// shards' rows together.
func (r *ReadCoordinator) collectBitsByLocation(ctx context.Context, stmt *parser.Select, locations []types.Location) ([][]types.Bit, error) {
	var out [][]types.Bit
	for _, loc := range locations {
		ns, ok := r.resolve(loc.Node)
		if !ok {
			continue
		}
		bits, err := ns.ExecuteSelectStatement(ctx, stmt.From, stmt.Where)
		if err != nil {
			return nil, err
		}
		out = append(out, bits)
	}
	if len(out) == 0 {
		out = [][]types.Bit{nil}
	}
	return out, nil
}

// projectResult turns the bits collected per targeted Location into
// the column/row shape ExecuteStatement returns, applying aggregation,
// grouping, ordering, and the LIMIT clause. An aggregate query computes
// one partial per Location first and merges them; a plain query
// flattens every Location's rows directly.
func projectResult(stmt *parser.Select, perLocation [][]types.Bit) (SelectResult, error) {
	if aggregator.IsAggregateQuery(stmt) {
		aggFields := aggregator.ExtractAggregateFields(stmt)
		if stmt.GroupBy != "" {
			return projectGrouped(stmt, perLocation, aggFields)
		}
		return projectAggregate(stmt, perLocation, aggFields)
	}
	return projectPlain(stmt, flatten(perLocation))
}

func flatten(perLocation [][]types.Bit) []types.Bit {
	var out []types.Bit
	for _, bits := range perLocation {
		out = append(out, bits...)
	}
	return out
}

func projectAggregate(stmt *parser.Select, perLocation [][]types.Bit, aggFields []parser.Field) (SelectResult, error) {
	sets := make([][]*aggregator.PartialAggregate, 0, len(perLocation))
	for _, bits := range perLocation {
		aggs, err := aggregator.ComputeAggregates(bits, aggFields)
		if err != nil {
			return SelectResult{}, errors.NewInternalError("failed to compute aggregates", err)
		}
		sets = append(sets, aggs)
	}
	columns := fieldColumns(aggFields)
	rows := [][]types.Value{aggregator.MergePartialSets(sets)}
	return SelectResult{Columns: columns, Rows: rows}, nil
}

func projectGrouped(stmt *parser.Select, perLocation [][]types.Bit, aggFields []parser.Field) (SelectResult, error) {
	partials := make([]map[aggregator.GroupKey]*aggregator.GroupedPartialResult, 0, len(perLocation))
	for _, bits := range perLocation {
		partials = append(partials, aggregator.ComputeGroupedPartials(bits, aggFields, stmt.GroupBy))
	}

	merger := aggregator.NewGroupByMerger(aggFields)
	merged := merger.MergeGroupedPartials(partials)
	rows := merger.ToRows(merged)
	columns := append([]string{stmt.GroupBy}, fieldColumns(aggFields)...)

	sorter := aggregator.NewOrderBySorter(stmt.Order, columns)
	rows, err := sorter.SortAndLimit(rows, stmt.Limit)
	if err != nil {
		return SelectResult{}, errors.NewInternalError("failed to order results", err)
	}
	return SelectResult{Columns: columns, Rows: rows}, nil
}

func projectPlain(stmt *parser.Select, bits []types.Bit) (SelectResult, error) {
	columns := plainColumns(stmt, bits)
	rows := make([][]types.Value, 0, len(bits))
	for _, b := range bits {
		row := make([]types.Value, len(columns))
		for i, col := range columns {
			v, ok := fieldValueFor(b, col)
			if ok {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}

	sorter := aggregator.NewOrderBySorter(stmt.Order, columns)
	rows, err := sorter.SortAndLimit(rows, stmt.Limit)
	if err != nil {
		return SelectResult{}, errors.NewInternalError("failed to order results", err)
	}
	return SelectResult{Columns: columns, Rows: rows}, nil
}

// plainColumns names every projected column for a non-aggregate
// SELECT: the requested fields, or "timestamp"/"value" plus every
// dimension name observed across bits for "SELECT *".
func plainColumns(stmt *parser.Select, bits []types.Bit) []string {
	if !stmt.All {
		out := make([]string, len(stmt.Fields))
		for i, f := range stmt.Fields {
			out[i] = f.Name
		}
		return out
	}

	dims := make(map[string]struct{})
	for _, b := range bits {
		for name := range b.Dimensions {
			dims[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	return append([]string{"timestamp", "value"}, names...)
}

func fieldValueFor(b types.Bit, name string) (types.Value, bool) {
	switch name {
	case "value":
		return b.Value, true
	case "timestamp":
		return types.NewLong(b.Timestamp), true
	default:
		v, ok := b.Dimensions[name]
		return v, ok
	}
}

func fieldColumns(fields []parser.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if f.Agg == "" {
			out[i] = f.Name
			continue
		}
		out[i] = f.Agg + "(" + f.Name + ")"
	}
	return out
}
