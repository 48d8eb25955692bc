package aggregator

import "github.com/aogier/nsdb/pkg/types"

// AggregateMerger merges PartialAggregates computed independently by
// several namespace data actors into a single final result.
type AggregateMerger struct{}

// NewAggregateMerger creates a new aggregate merger.
func NewAggregateMerger() *AggregateMerger {
	return &AggregateMerger{}
}

// MergePartials combines multiple PartialAggregate values, one per
// Location, of the same aggregate type, into a single merged
// PartialAggregate:
//   - COUNT: sum of counts
//   - SUM:   sum of sums
//   - MIN:   minimum of mins
//   - MAX:   maximum of maxes
//   - AVG:   weighted average using (sum of sums) / (sum of counts)
func MergePartials(partials []*PartialAggregate) *PartialAggregate {
	if len(partials) == 0 {
		return &PartialAggregate{}
	}

	merged := &PartialAggregate{Type: partials[0].Type}
	for _, p := range partials {
		if !p.IsSet {
			continue
		}
		switch merged.Type {
		case AggCount:
			merged.Count += p.Count
			merged.IsSet = true
		case AggSum, AggAvg:
			merged.Sum += p.Sum
			merged.Count += p.Count
			merged.IsSet = true
		case AggMin:
			if !merged.IsSet || p.Min.Compare(merged.Min) < 0 {
				merged.Min = p.Min
			}
			merged.Count += p.Count
			merged.IsSet = true
		case AggMax:
			if !merged.IsSet || p.Max.Compare(merged.Max) > 0 {
				merged.Max = p.Max
			}
			merged.Count += p.Count
			merged.IsSet = true
		}
	}
	return merged
}

// MergePartialSets merges one PartialAggregate slice per Location into
// the final projected aggregate values, column order preserved.
func MergePartialSets(sets [][]*PartialAggregate) []types.Value {
	if len(sets) == 0 {
		return nil
	}
	numAggs := len(sets[0])
	out := make([]types.Value, numAggs)
	for i := 0; i < numAggs; i++ {
		partials := make([]*PartialAggregate, 0, len(sets))
		for _, set := range sets {
			if i < len(set) {
				partials = append(partials, set[i])
			}
		}
		out[i] = MergePartials(partials).Result()
	}
	return out
}
