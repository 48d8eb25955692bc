package aggregator

import (
	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/pkg/types"
)

// GroupKey is a string representation of a GROUP BY value, used to
// combine groups computed independently across Locations.
type GroupKey = string

// GroupedPartialResult holds the partial aggregates accumulated for a
// single GROUP BY value.
type GroupedPartialResult struct {
	KeyValue   types.Value
	Aggregates []*PartialAggregate
}

// GroupByMerger combines grouped partial results computed at separate
// Locations for the same GROUP BY clause.
type GroupByMerger struct {
	aggFields []parser.Field
}

// NewGroupByMerger creates a merger for the aggregate fields projected
// alongside a GROUP BY clause.
func NewGroupByMerger(aggFields []parser.Field) *GroupByMerger {
	return &GroupByMerger{aggFields: aggFields}
}

// ComputeGroupedPartials computes grouped partial aggregates from bits
// belonging to a single Location.
func ComputeGroupedPartials(bits []types.Bit, aggFields []parser.Field, groupBy string) map[GroupKey]*GroupedPartialResult {
	groups := make(map[GroupKey]*GroupedPartialResult)

	for _, b := range bits {
		keyVal, ok := FieldValue(b, groupBy)
		if !ok {
			continue
		}
		key := keyVal.String()

		gpr, exists := groups[key]
		if !exists {
			aggs := make([]*PartialAggregate, len(aggFields))
			for i, f := range aggFields {
				t, _ := ParseAggregateType(f.Agg)
				aggs[i] = NewPartialAggregate(t)
			}
			gpr = &GroupedPartialResult{KeyValue: keyVal, Aggregates: aggs}
			groups[key] = gpr
		}

		for i, f := range gpr.Aggregates {
			if aggFields[i].Name == "*" {
				f.Accumulate(types.NewLong(1))
				continue
			}
			if v, ok := FieldValue(b, aggFields[i].Name); ok {
				f.Accumulate(v)
			}
		}
	}

	return groups
}

// MergeGroupedPartials merges grouped partial results from multiple
// Locations. Groups sharing a key are combined by merging their
// partial aggregates.
func (m *GroupByMerger) MergeGroupedPartials(partitionResults []map[GroupKey]*GroupedPartialResult) map[GroupKey]*GroupedPartialResult {
	merged := make(map[GroupKey]*GroupedPartialResult)

	for _, partResult := range partitionResults {
		for key, gpr := range partResult {
			existing, exists := merged[key]
			if !exists {
				cloned := &GroupedPartialResult{
					KeyValue:   gpr.KeyValue,
					Aggregates: make([]*PartialAggregate, len(gpr.Aggregates)),
				}
				for i, agg := range gpr.Aggregates {
					cp := *agg
					cloned.Aggregates[i] = &cp
				}
				merged[key] = cloned
				continue
			}
			for i, agg := range gpr.Aggregates {
				if i >= len(existing.Aggregates) {
					break
				}
				existing.Aggregates[i] = MergePartials([]*PartialAggregate{existing.Aggregates[i], agg})
			}
		}
	}

	return merged
}

// ToRows flattens merged grouped results into rows: each row is the
// group's key value followed by its aggregate results, in field order.
func (m *GroupByMerger) ToRows(groups map[GroupKey]*GroupedPartialResult) [][]types.Value {
	rows := make([][]types.Value, 0, len(groups))
	for _, gpr := range groups {
		row := make([]types.Value, 0, 1+len(gpr.Aggregates))
		row = append(row, gpr.KeyValue)
		row = append(row, Results(gpr.Aggregates)...)
		rows = append(rows, row)
	}
	return rows
}
