package namespace

import (
	"github.com/aogier/nsdb/internal/bloom"
	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/pkg/types"
)

// Indexer is the narrow surface a namespace data actor needs from a
// metric's shard storage: insert, delete-by-predicate, select-by-predicate,
// count, and close. memIndexer is the one implementation; a caller
// wanting a different backing store only needs to satisfy this.
type Indexer interface {
	Insert(b types.Bit) bool
	Delete(where parser.Expression) int
	Select(where parser.Expression) []types.Bit
	Count() int
	Close() error
}

// memIndexer is an in-memory postings-by-timestamp index over one
// metric's bits, with a per-dimension bloom filter used to skip a full
// scan when an equality predicate's value was never observed.
type memIndexer struct {
	metric   string
	bits     []types.Bit
	byTS     map[int64][]int
	filters  map[string]*bloom.BloomFilter
}

// NewMemIndexer creates an empty in-memory indexer for metric.
func NewMemIndexer(metric string) Indexer {
	return &memIndexer{
		metric:  metric,
		byTS:    make(map[int64][]int),
		filters: make(map[string]*bloom.BloomFilter),
	}
}

// Insert appends b unless a bit with the same logical identity has
// already been applied, tolerating at-least-once delivery from the
// write coordinator. Returns true if b was newly applied.
func (idx *memIndexer) Insert(b types.Bit) bool {
	for _, i := range idx.byTS[b.Timestamp] {
		if idx.bits[i].SameIdentity(b) {
			return false
		}
	}

	i := len(idx.bits)
	idx.bits = append(idx.bits, b)
	idx.byTS[b.Timestamp] = append(idx.byTS[b.Timestamp], i)

	for name, v := range b.Dimensions {
		f, ok := idx.filters[name]
		if !ok {
			f = bloom.NewWithEstimates(1024, 0.01)
			idx.filters[name] = f
		}
		f.Add([]byte(name + "=" + v.String()))
	}

	return true
}

// Delete removes every bit matching where (nil matches everything) and
// returns the count removed.
func (idx *memIndexer) Delete(where parser.Expression) int {
	kept := idx.bits[:0]
	removed := 0
	for _, b := range idx.bits {
		if where == nil || evalExpr(b, where) {
			removed++
			continue
		}
		kept = append(kept, b)
	}
	idx.bits = kept
	idx.rebuildByTS()
	return removed
}

// Select returns every bit matching where (nil matches everything).
// Equality-only predicates are pre-screened with the dimension's bloom
// filter before the full evaluation pass.
func (idx *memIndexer) Select(where parser.Expression) []types.Bit {
	if where == nil {
		out := make([]types.Bit, len(idx.bits))
		copy(out, idx.bits)
		return out
	}

	if idx.canSkipByBloom(where) {
		return nil
	}

	var out []types.Bit
	for _, b := range idx.bits {
		if evalExpr(b, where) {
			out = append(out, b)
		}
	}
	return out
}

// canSkipByBloom reports whether some AND-joined equality predicate in
// where names a dimension value that is definitely absent from this
// indexer, letting Select skip the scan entirely. Bloom filters never
// false-negative, so any "definitely absent" verdict is conclusive.
func (idx *memIndexer) canSkipByBloom(where parser.Expression) bool {
	for _, p := range parser.ExtractPredicates(where) {
		if !parser.CanUseBloomFilter(p) {
			continue
		}
		f, ok := idx.filters[p.Dim]
		if !ok {
			if p.Dim == "value" || p.Dim == "timestamp" {
				continue // distinguished fields have no bloom filter
			}
			return true
		}
		if !f.Contains([]byte(p.Dim + "=" + p.Value.Value.String())) {
			return true
		}
	}
	return false
}

// Count returns the number of bits currently indexed.
func (idx *memIndexer) Count() int {
	return len(idx.bits)
}

// Close releases the indexer's resources. memIndexer holds none beyond
// Go-managed memory.
func (idx *memIndexer) Close() error {
	return nil
}

func (idx *memIndexer) rebuildByTS() {
	idx.byTS = make(map[int64][]int, len(idx.bits))
	for i, b := range idx.bits {
		idx.byTS[b.Timestamp] = append(idx.byTS[b.Timestamp], i)
	}
}

// fieldValue projects the named field out of a bit, mirroring the
// distinguished "timestamp"/"value" names every bit carries alongside
// its dimensions.
func fieldValue(b types.Bit, name string) (types.Value, bool) {
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

// evalExpr evaluates a WHERE expression against a single bit.
func evalExpr(b types.Bit, expr parser.Expression) bool {
	switch e := expr.(type) {
	case *parser.Equality:
		v, ok := fieldValue(b, e.Dim)
		return ok && v.Equal(e.Value)
	case *parser.Comparison:
		actual, ok := comparableValue(b, e.Dim)
		if !ok {
			return false
		}
		switch e.Op {
		case ">":
			return actual > e.Value
		case ">=":
			return actual >= e.Value
		case "<":
			return actual < e.Value
		case "<=":
			return actual <= e.Value
		default:
			return false
		}
	case *parser.Range:
		actual, ok := comparableValue(b, e.Dim)
		return ok && actual >= e.Low && actual < e.High
	case *parser.UnaryLogical:
		if e.Op == "NOT" {
			return !evalExpr(b, e.Expr)
		}
		return false
	case *parser.TupledLogical:
		left := evalExpr(b, e.Left)
		right := evalExpr(b, e.Right)
		if e.Op == "AND" {
			return left && right
		}
		return left || right
	default:
		return false
	}
}

// comparableValue coerces a named field to an int64 for Comparison/Range
// evaluation, as used for timestamp-bounded predicates.
func comparableValue(b types.Bit, dim string) (int64, bool) {
	if dim == "timestamp" {
		return b.Timestamp, true
	}
	v, ok := fieldValue(b, dim)
	if !ok {
		return 0, false
	}
	f, ok := v.AsFloat64()
	if !ok {
		return 0, false
	}
	return int64(f), true
}
