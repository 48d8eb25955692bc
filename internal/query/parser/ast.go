// Package parser implements the NSDb SQL dialect: a lexer and a
// precedence-climbing (Pratt) parser producing a typed Statement AST
// for SELECT, INSERT, DELETE and DROP.
package parser

import (
	"fmt"
	"strings"

	"github.com/aogier/nsdb/pkg/types"
)

// Statement is the tagged variant the parser produces: Select, Insert,
// Delete or Drop, each carrying the namespace it was parsed against.
type Statement interface {
	statementNode()
	Namespace() string
	String() string
}

// Expression is the recursive tagged tree making up a WHERE clause:
// Equality, Comparison, Range, UnaryLogical or TupledLogical.
type Expression interface {
	expressionNode()
	String() string
}

// Field is one SELECT projection: a bare dimension/value name, or an
// aggregate function applied to one.
type Field struct {
	Agg  string // "", or SUM/MIN/MAX/COUNT
	Name string
}

func (f Field) String() string {
	if f.Agg == "" {
		return f.Name
	}
	return fmt.Sprintf("%s(%s)", f.Agg, f.Name)
}

// OrderBy describes the ORDER BY clause: a single field, optionally
// descending.
type OrderBy struct {
	Field string
	Desc  bool
}

func (o OrderBy) String() string {
	if o.Desc {
		return fmt.Sprintf("%s DESC", o.Field)
	}
	return o.Field
}

// Select is the parsed form of `SELECT fields FROM metric [WHERE ...]
// [GROUP BY ...] [ORDER BY ...] [LIMIT n]`.
type Select struct {
	Ns      string
	All     bool // true when fields == "*"
	Fields  []Field
	From    string
	Where   Expression
	GroupBy string // empty if absent
	Order   *OrderBy
	Limit   *int64
}

func (s *Select) statementNode()   {}
func (s *Select) Namespace() string { return s.Ns }

func (s *Select) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.All {
		sb.WriteString("*")
	} else {
		parts := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			parts[i] = f.String()
		}
		sb.WriteString(strings.Join(parts, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.From)
	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where.String())
	}
	if s.GroupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(s.GroupBy)
	}
	if s.Order != nil {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(s.Order.String())
	}
	if s.Limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *s.Limit)
	}
	sb.WriteString(";")
	return sb.String()
}

// Insert is the parsed form of
// `INSERT INTO metric [TS = timestamp] [DIM (...)] VAL = value`.
type Insert struct {
	Ns         string
	Metric     string
	Timestamp  *int64
	Dimensions map[string]types.Value
	Value      types.Value
}

func (i *Insert) statementNode()   {}
func (i *Insert) Namespace() string { return i.Ns }

func (i *Insert) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s", i.Metric)
	if i.Timestamp != nil {
		fmt.Fprintf(&sb, " TS = %d", *i.Timestamp)
	}
	if len(i.Dimensions) > 0 {
		names := make([]string, 0, len(i.Dimensions))
		for n := range i.Dimensions {
			names = append(names, n)
		}
		sortStringsAST(names)
		parts := make([]string, len(names))
		for idx, n := range names {
			parts[idx] = fmt.Sprintf("%s = %s", n, literalString(i.Dimensions[n]))
		}
		fmt.Fprintf(&sb, " DIM (%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&sb, " VAL = %s", literalString(i.Value))
	sb.WriteString(";")
	return sb.String()
}

// Delete is the parsed form of `DELETE FROM metric WHERE expr`.
type Delete struct {
	Ns     string
	Metric string
	Where  Expression
}

func (d *Delete) statementNode()   {}
func (d *Delete) Namespace() string { return d.Ns }

func (d *Delete) String() string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s;", d.Metric, d.Where.String())
}

// Drop is the parsed form of `DROP metric`.
type Drop struct {
	Ns     string
	Metric string
}

func (d *Drop) statementNode()   {}
func (d *Drop) Namespace() string { return d.Ns }

func (d *Drop) String() string {
	return fmt.Sprintf("DROP %s;", d.Metric)
}

// Equality is `dim = value`.
type Equality struct {
	Dim   string
	Value types.Value
}

func (e *Equality) expressionNode() {}
func (e *Equality) String() string  { return fmt.Sprintf("%s = %s", e.Dim, literalString(e.Value)) }

// Comparison is `dim (>|>=|<|<=) timestamp`.
type Comparison struct {
	Dim   string
	Op    string
	Value int64
}

func (c *Comparison) expressionNode() {}
func (c *Comparison) String() string  { return fmt.Sprintf("%s %s %d", c.Dim, c.Op, c.Value) }

// Range is `dim IN (low, high)` over two timestamps.
type Range struct {
	Dim  string
	Low  int64
	High int64
}

func (r *Range) expressionNode() {}
func (r *Range) String() string  { return fmt.Sprintf("%s IN (%d, %d)", r.Dim, r.Low, r.High) }

// UnaryLogical is `NOT expr`.
type UnaryLogical struct {
	Op   string // "NOT"
	Expr Expression
}

func (u *UnaryLogical) expressionNode() {}
func (u *UnaryLogical) String() string  { return fmt.Sprintf("%s %s", u.Op, u.Expr.String()) }

// TupledLogical is `left (AND|OR) right`, left-associative.
type TupledLogical struct {
	Left  Expression
	Op    string // "AND" or "OR"
	Right Expression
}

func (t *TupledLogical) expressionNode() {}
func (t *TupledLogical) String() string {
	return fmt.Sprintf("%s %s %s", t.Left.String(), t.Op, t.Right.String())
}

func literalString(v types.Value) string {
	switch v.Kind {
	case types.String:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(v.Str, "'", "''"))
	default:
		return v.String()
	}
}

func sortStringsAST(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
