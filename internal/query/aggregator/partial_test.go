package aggregator

import (
	"testing"

	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/pkg/types"
)

func bitWithValue(v float64) types.Bit {
	return types.Bit{Value: types.NewDouble(v)}
}

func TestComputeAggregates_Sum(t *testing.T) {
	bits := []types.Bit{bitWithValue(1), bitWithValue(2), bitWithValue(3)}
	aggs, err := ComputeAggregates(bits, []parser.Field{{Agg: "SUM", Name: "value"}})
	if err != nil {
		t.Fatal(err)
	}
	got := aggs[0].Result()
	if got.Double != 6 {
		t.Fatalf("expected sum 6, got %v", got)
	}
}

func TestComputeAggregates_CountStar(t *testing.T) {
	bits := []types.Bit{bitWithValue(1), bitWithValue(2)}
	aggs, err := ComputeAggregates(bits, []parser.Field{{Agg: "COUNT", Name: "*"}})
	if err != nil {
		t.Fatal(err)
	}
	if aggs[0].Result().Long != 2 {
		t.Fatalf("expected count 2, got %v", aggs[0].Result())
	}
}

func TestMergePartials_SumAcrossLocations(t *testing.T) {
	a := NewPartialAggregate(AggSum)
	a.Accumulate(types.NewDouble(1))
	b := NewPartialAggregate(AggSum)
	b.Accumulate(types.NewDouble(2))
	b.Accumulate(types.NewDouble(3))

	merged := MergePartials([]*PartialAggregate{a, b})
	if merged.Result().Double != 6 {
		t.Fatalf("expected merged sum 6, got %v", merged.Result())
	}
}

func TestMergePartials_AvgIsWeighted(t *testing.T) {
	a := NewPartialAggregate(AggAvg)
	a.Accumulate(types.NewDouble(10))
	b := NewPartialAggregate(AggAvg)
	b.Accumulate(types.NewDouble(0))
	b.Accumulate(types.NewDouble(0))

	merged := MergePartials([]*PartialAggregate{a, b})
	if merged.Result().Double != 10.0/3.0 {
		t.Fatalf("expected weighted average 10/3, got %v", merged.Result())
	}
}

func TestComputeGroupedPartials_GroupsByDimension(t *testing.T) {
	bits := []types.Bit{
		{Value: types.NewDouble(1), Dimensions: map[string]types.Value{"host": types.NewString("a")}},
		{Value: types.NewDouble(2), Dimensions: map[string]types.Value{"host": types.NewString("a")}},
		{Value: types.NewDouble(3), Dimensions: map[string]types.Value{"host": types.NewString("b")}},
	}
	aggFields := []parser.Field{{Agg: "SUM", Name: "value"}}
	groups := ComputeGroupedPartials(bits, aggFields, "host")
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if got := groups["a"].Aggregates[0].Result().Double; got != 3 {
		t.Fatalf("expected group a sum 3, got %v", got)
	}
	if got := groups["b"].Aggregates[0].Result().Double; got != 3 {
		t.Fatalf("expected group b sum 3, got %v", got)
	}
}

func TestGroupByMerger_MergeAcrossLocations(t *testing.T) {
	aggFields := []parser.Field{{Agg: "SUM", Name: "value"}}
	m := NewGroupByMerger(aggFields)

	part1 := ComputeGroupedPartials([]types.Bit{
		{Value: types.NewDouble(1), Dimensions: map[string]types.Value{"host": types.NewString("a")}},
	}, aggFields, "host")
	part2 := ComputeGroupedPartials([]types.Bit{
		{Value: types.NewDouble(4), Dimensions: map[string]types.Value{"host": types.NewString("a")}},
	}, aggFields, "host")

	merged := m.MergeGroupedPartials([]map[GroupKey]*GroupedPartialResult{part1, part2})
	rows := m.ToRows(merged)
	if len(rows) != 1 {
		t.Fatalf("expected 1 merged group, got %d", len(rows))
	}
	if rows[0][1].Double != 5 {
		t.Fatalf("expected merged sum 5, got %v", rows[0][1])
	}
}
