// Package aggregator computes and merges partial aggregates, GROUP BY
// groups and ORDER BY/LIMIT over the per-location result sets the read
// coordinator collects from namespace data actors.
package aggregator

import (
	"fmt"
	"strings"

	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/pkg/types"
)

// AggregateType identifies which aggregate function a projected Field
// applies.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

// ParseAggregateType converts a function name, as written in SQL, to an AggregateType.
func ParseAggregateType(name string) (AggregateType, error) {
	switch strings.ToUpper(name) {
	case "COUNT":
		return AggCount, nil
	case "SUM":
		return AggSum, nil
	case "MIN":
		return AggMin, nil
	case "MAX":
		return AggMax, nil
	case "AVG":
		return AggAvg, nil
	default:
		return 0, fmt.Errorf("aggregator: unknown aggregate function %q", name)
	}
}

// PartialAggregate holds the running state of one aggregate computed
// over a subset of rows from a single Location. For AVG, both Sum and
// Count are tracked so a correct weighted average can be computed on merge.
type PartialAggregate struct {
	Type  AggregateType
	Count int64
	Sum   float64
	Min   types.Value
	Max   types.Value
	IsSet bool
}

// NewPartialAggregate creates an empty partial aggregate of the given type.
func NewPartialAggregate(t AggregateType) *PartialAggregate {
	return &PartialAggregate{Type: t}
}

// Accumulate folds one value into the partial aggregate.
func (p *PartialAggregate) Accumulate(v types.Value) {
	switch p.Type {
	case AggCount:
		p.Count++
		p.IsSet = true
	case AggSum, AggAvg:
		if f, ok := v.AsFloat64(); ok {
			p.Sum += f
			p.Count++
			p.IsSet = true
		}
	case AggMin:
		if !p.IsSet || v.Compare(p.Min) < 0 {
			p.Min = v
		}
		p.Count++
		p.IsSet = true
	case AggMax:
		if !p.IsSet || v.Compare(p.Max) > 0 {
			p.Max = v
		}
		p.Count++
		p.IsSet = true
	}
}

// Result returns the aggregate's final value.
func (p *PartialAggregate) Result() types.Value {
	if !p.IsSet {
		if p.Type == AggCount {
			return types.NewLong(0)
		}
		return types.Value{}
	}
	switch p.Type {
	case AggCount:
		return types.NewLong(p.Count)
	case AggSum:
		return types.NewDouble(p.Sum)
	case AggMin:
		return p.Min
	case AggMax:
		return p.Max
	case AggAvg:
		if p.Count == 0 {
			return types.Value{}
		}
		return types.NewDouble(p.Sum / float64(p.Count))
	default:
		return types.Value{}
	}
}

// FieldValue projects the named SELECT field out of one bit. "value"
// and "timestamp" are the two distinguished names every bit carries;
// anything else is looked up among its dimensions.
func FieldValue(b types.Bit, name string) (types.Value, bool) {
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

// IsAggregateQuery reports whether any projected field of a SELECT
// statement applies an aggregate function.
func IsAggregateQuery(stmt *parser.Select) bool {
	for _, f := range stmt.Fields {
		if f.Agg != "" {
			return true
		}
	}
	return false
}

// ExtractAggregateFields returns the subset of stmt's Fields that carry
// an aggregate function, in projection order.
func ExtractAggregateFields(stmt *parser.Select) []parser.Field {
	var out []parser.Field
	for _, f := range stmt.Fields {
		if f.Agg != "" {
			out = append(out, f)
		}
	}
	return out
}

// ComputeAggregates computes one PartialAggregate per field in fields
// over bits, in field order. A field with Name == "*" accumulates the
// constant 1 once per bit into its own aggregate function, so COUNT(*)
// counts every bit.
func ComputeAggregates(bits []types.Bit, fields []parser.Field) ([]*PartialAggregate, error) {
	aggs := make([]*PartialAggregate, len(fields))
	for i, f := range fields {
		t, err := ParseAggregateType(f.Agg)
		if err != nil {
			return nil, err
		}
		aggs[i] = NewPartialAggregate(t)
	}
	for _, b := range bits {
		for i, f := range fields {
			if f.Name == "*" {
				aggs[i].Accumulate(types.NewLong(1))
				continue
			}
			if v, ok := FieldValue(b, f.Name); ok {
				aggs[i].Accumulate(v)
			}
		}
	}
	return aggs, nil
}

// Results extracts the final value of every aggregate in order.
func Results(aggs []*PartialAggregate) []types.Value {
	out := make([]types.Value, len(aggs))
	for i, a := range aggs {
		out[i] = a.Result()
	}
	return out
}
