package aggregator

import (
	"sort"

	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/pkg/types"
)

// OrderBySorter sorts merged result rows according to a single ORDER
// BY clause — the grammar admits exactly one ordering field.
type OrderBySorter struct {
	order   *parser.OrderBy
	columns []string
}

// NewOrderBySorter creates a sorter for order against the named result columns.
func NewOrderBySorter(order *parser.OrderBy, columns []string) *OrderBySorter {
	return &OrderBySorter{order: order, columns: columns}
}

// Sort sorts rows in place. A nil order is a no-op.
func (s *OrderBySorter) Sort(rows [][]types.Value) error {
	if s.order == nil || len(rows) <= 1 {
		return nil
	}

	idx := -1
	for i, c := range s.columns {
		if c == s.order.Field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		var a, b types.Value
		if idx < len(rows[i]) {
			a = rows[i][idx]
		}
		if idx < len(rows[j]) {
			b = rows[j][idx]
		}
		cmp := a.Compare(b)
		if s.order.Desc {
			return cmp > 0
		}
		return cmp < 0
	})

	return nil
}

// SortAndLimit sorts rows and then truncates to limit, if set.
func (s *OrderBySorter) SortAndLimit(rows [][]types.Value, limit *int64) ([][]types.Value, error) {
	if err := s.Sort(rows); err != nil {
		return nil, err
	}
	if limit != nil {
		lim := int(*limit)
		if lim < len(rows) {
			rows = rows[:lim]
		}
	}
	return rows, nil
}
