package aggregator

import (
	"testing"

	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/pkg/types"
)

func TestOrderBySorter_SortAscending(t *testing.T) {
	s := NewOrderBySorter(&parser.OrderBy{Field: "id"}, []string{"id", "name"})
	rows := [][]types.Value{
		{types.NewLong(3), types.NewString("c")},
		{types.NewLong(1), types.NewString("a")},
		{types.NewLong(2), types.NewString("b")},
	}
	if err := s.Sort(rows); err != nil {
		t.Fatal(err)
	}
	for i, expected := range []int64{1, 2, 3} {
		if rows[i][0].Long != expected {
			t.Fatalf("row %d: expected %d, got %v", i, expected, rows[i][0])
		}
	}
}

func TestOrderBySorter_SortDescending(t *testing.T) {
	s := NewOrderBySorter(&parser.OrderBy{Field: "val", Desc: true}, []string{"val"})
	rows := [][]types.Value{
		{types.NewLong(0)}, {types.NewLong(1)}, {types.NewLong(2)},
	}
	if err := s.Sort(rows); err != nil {
		t.Fatal(err)
	}
	for i, expected := range []int64{2, 1, 0} {
		if rows[i][0].Long != expected {
			t.Fatalf("row %d: expected %d, got %v", i, expected, rows[i][0])
		}
	}
}

func TestOrderBySorter_NilOrderIsNoOp(t *testing.T) {
	s := NewOrderBySorter(nil, []string{"id"})
	rows := [][]types.Value{{types.NewLong(3)}, {types.NewLong(1)}}
	if err := s.Sort(rows); err != nil {
		t.Fatal(err)
	}
	if rows[0][0].Long != 3 {
		t.Fatalf("expected unordered rows to be left untouched, got %v", rows)
	}
}

func TestOrderBySorter_SortAndLimit(t *testing.T) {
	s := NewOrderBySorter(&parser.OrderBy{Field: "id"}, []string{"id"})
	rows := [][]types.Value{
		{types.NewLong(5)}, {types.NewLong(1)}, {types.NewLong(3)}, {types.NewLong(2)}, {types.NewLong(4)},
	}
	limit := int64(2)
	result, err := s.SortAndLimit(rows, &limit)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result))
	}
	if result[0][0].Long != 1 || result[1][0].Long != 2 {
		t.Fatalf("expected [1, 2], got %v", result)
	}
}

func TestOrderBySorter_UnknownColumnIsNoOp(t *testing.T) {
	s := NewOrderBySorter(&parser.OrderBy{Field: "missing"}, []string{"id"})
	rows := [][]types.Value{{types.NewLong(3)}, {types.NewLong(1)}}
	if err := s.Sort(rows); err != nil {
		t.Fatal(err)
	}
	if rows[0][0].Long != 3 {
		t.Fatalf("expected rows left unsorted when the column is absent, got %v", rows)
	}
}
