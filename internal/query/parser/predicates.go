package parser

// PredicateType represents the type of a flattened WHERE predicate.
type PredicateType int

const (
	PredicateEquality   PredicateType = iota // dim = value
	PredicateComparison                      // dim (> >= < <=) timestamp
	PredicateRange                           // dim IN (low, high)
)

// Predicate is a flattened leaf of a WHERE expression, used by the
// read coordinator to prune Locations and by the namespace indexer to
// decide whether a bloom filter can answer a dimension check without
// a full scan.
type Predicate struct {
	Type  PredicateType
	Dim   string
	Op    string // only set for PredicateComparison
	Value Equality
	Low   int64
	High  int64
	Not   bool
}

// ExtractPredicates flattens every term.Expr in a WHERE clause built
// from AND-joined terms into a Predicate list. NOT and OR wrap terms
// this extractor does not attempt to invert; terms beneath a NOT or
// reachable only via OR are omitted, since a Location or bloom filter
// can only be pruned using a predicate that is unconditionally true of
// every matching row.
func ExtractPredicates(where Expression) []Predicate {
	var out []Predicate
	extract(where, &out)
	return out
}

func extract(expr Expression, out *[]Predicate) {
	switch e := expr.(type) {
	case *TupledLogical:
		if e.Op == "AND" {
			extract(e.Left, out)
			extract(e.Right, out)
		}
		// OR cannot be safely decomposed into independent prunable
		// predicates; skip it.
	case *Range:
		*out = append(*out, Predicate{Type: PredicateRange, Dim: e.Dim, Low: e.Low, High: e.High})
	case *Comparison:
		*out = append(*out, Predicate{Type: PredicateComparison, Dim: e.Dim, Op: e.Op, Low: e.Value})
	case *Equality:
		*out = append(*out, Predicate{Type: PredicateEquality, Dim: e.Dim, Value: *e})
	// *UnaryLogical (NOT ...) is intentionally not decomposed.
	}
}

// FilterByDim returns the predicates referencing a given dimension name.
func FilterByDim(predicates []Predicate, dim string) []Predicate {
	var out []Predicate
	for _, p := range predicates {
		if p.Dim == dim {
			out = append(out, p)
		}
	}
	return out
}

// TimeRanges returns the [from, to) ranges implied by every Range and
// Comparison predicate against dim — used by the read coordinator to
// narrow the set of Locations a SELECT needs to fan out to.
func TimeRanges(predicates []Predicate, dim string) []struct{ From, To int64 } {
	var out []struct{ From, To int64 }
	for _, p := range FilterByDim(predicates, dim) {
		switch p.Type {
		case PredicateRange:
			out = append(out, struct{ From, To int64 }{p.Low, p.High})
		case PredicateComparison:
			switch p.Op {
			case ">", ">=":
				out = append(out, struct{ From, To int64 }{p.Low, int64(1) << 62})
			case "<":
				out = append(out, struct{ From, To int64 }{-(int64(1) << 62), p.Low})
			case "<=":
				out = append(out, struct{ From, To int64 }{-(int64(1) << 62), p.Low + 1})
			}
		}
	}
	return out
}

// CanUseBloomFilter reports whether a predicate can be answered by a
// dimension-value bloom filter without a full scan: only equality
// (and its negation's complement, which a bloom filter cannot help
// with) qualifies.
func CanUseBloomFilter(p Predicate) bool {
	return p.Type == PredicateEquality && !p.Not
}
