package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aogier/nsdb/pkg/types"
)

// ParseError reports a parse failure together with the offending
// token and the remaining input tail, per the error contract in §4.1.
type ParseError struct {
	Message string
	Pos     int
	Token   Token
	Tail    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %q, remaining %q)", e.Pos, e.Message, e.Token.Literal, e.Tail)
}

// Parser parses NSDb SQL statements into a Statement AST.
type Parser struct {
	ns        string
	input     string
	lexer     *Lexer
	curToken  Token
	peekToken Token
	now       func() int64
}

// NewParser creates a new Parser for the given input, resolving
// unqualified statements against ns.
func NewParser(ns, input string) *Parser {
	nowMs := time.Now().UnixMilli()
	p := &Parser{
		ns:    ns,
		input: input,
		lexer: NewLexer(input),
		now:   func() int64 { return nowMs },
	}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single statement against the given namespace.
func Parse(ns, input string) (Statement, error) {
	p := NewParser(ns, input)
	return p.ParseStatement()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t TokenType) bool { return p.peekToken.Type == t }

// curName returns the current token as written in the input when it can
// name a dimension: an identifier, or a word the lexer also reads as a
// keyword (TS, DIM, VAL, COUNT, SUM, MIN, MAX).
func (p *Parser) curName() (string, bool) {
	switch p.curToken.Type {
	case TokenIdent, TokenTS, TokenDim, TokenVal, TokenCount, TokenSum, TokenMin, TokenMax:
		return p.input[p.curToken.Pos : p.curToken.Pos+len(p.curToken.Literal)], true
	}
	return "", false
}

func (p *Parser) tail() string {
	if p.curToken.Pos >= len(p.input) {
		return ""
	}
	return p.input[p.curToken.Pos:]
}

func (p *Parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Pos:     p.curToken.Pos,
		Token:   p.curToken,
		Tail:    p.tail(),
	}
}

func (p *Parser) expect(t TokenType) error {
	if p.curTokenIs(t) {
		p.nextToken()
		return nil
	}
	return p.errorf("expected %s", t.String())
}

// ParseStatement dispatches on the leading keyword to the matching
// statement-variant parser: select | insert | delete | drop.
func (p *Parser) ParseStatement() (Statement, error) {
	var stmt Statement
	var err error

	switch p.curToken.Type {
	case TokenSelect:
		stmt, err = p.parseSelect()
	case TokenInsert:
		stmt, err = p.parseInsert()
	case TokenDelete:
		stmt, err = p.parseDelete()
	case TokenDrop:
		stmt, err = p.parseDrop()
	default:
		return nil, p.errorf("expected SELECT, INSERT, DELETE or DROP")
	}
	if err != nil {
		return nil, err
	}
	// Statements are terminated by ';'; the parser tolerates either an
	// explicit trailing semicolon or EOF.
	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected trailing input")
	}
	return stmt, nil
}

// select ::= "SELECT" fields "FROM" IDENT [where] [groupBy] [order] [limit]
func (p *Parser) parseSelect() (*Select, error) {
	p.nextToken() // skip SELECT

	stmt := &Select{Ns: p.ns}

	if p.curTokenIs(TokenStar) {
		stmt.All = true
		p.nextToken()
	} else {
		fields, err := p.parseFieldList()
		if err != nil {
			return nil, err
		}
		stmt.Fields = fields
	}

	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected metric name after FROM")
	}
	stmt.From = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.curTokenIs(TokenGroup) {
		p.nextToken()
		if err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		name, ok := p.curName()
		if !ok {
			return nil, p.errorf("expected identifier after GROUP BY")
		}
		stmt.GroupBy = name
		p.nextToken()
	}

	if p.curTokenIs(TokenOrder) {
		p.nextToken()
		if err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		name, ok := p.curName()
		if !ok {
			return nil, p.errorf("expected identifier after ORDER BY")
		}
		ob := &OrderBy{Field: name}
		p.nextToken()
		if p.curTokenIs(TokenDesc) {
			ob.Desc = true
			p.nextToken()
		} else if p.curTokenIs(TokenAsc) {
			p.nextToken()
		}
		stmt.Order = ob
	}

	if p.curTokenIs(TokenLimit) {
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return nil, p.errorf("expected number after LIMIT")
		}
		n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid LIMIT value")
		}
		stmt.Limit = &n
		p.nextToken()
	}

	return stmt, nil
}

// fields ::= "*" | field ("," field)*
// field  ::= IDENT | AGG "(" IDENT ")"
func (p *Parser) parseFieldList() ([]Field, error) {
	var fields []Field
	for {
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return fields, nil
}

func (p *Parser) parseField() (Field, error) {
	switch p.curToken.Type {
	case TokenSum, TokenMin, TokenMax, TokenCount:
		agg := p.curToken.Literal
		p.nextToken()
		if err := p.expect(TokenLParen); err != nil {
			return Field{}, err
		}
		if !p.curTokenIs(TokenIdent) && !p.curTokenIs(TokenStar) {
			return Field{}, p.errorf("expected identifier inside %s(...)", agg)
		}
		name := p.curToken.Literal
		if p.curTokenIs(TokenStar) {
			name = "*"
		}
		p.nextToken()
		if err := p.expect(TokenRParen); err != nil {
			return Field{}, err
		}
		return Field{Agg: agg, Name: name}, nil
	case TokenIdent:
		name := p.curToken.Literal
		p.nextToken()
		return Field{Name: name}, nil
	default:
		return Field{}, p.errorf("expected a field or aggregate function")
	}
}

// insert ::= "INSERT INTO" IDENT ["TS" "=" timestamp] ["DIM" assignments] "VAL" "=" (FLOAT|LONG)
func (p *Parser) parseInsert() (*Insert, error) {
	p.nextToken() // skip INSERT
	if err := p.expect(TokenInto); err != nil {
		return nil, err
	}
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected metric name after INSERT INTO")
	}
	stmt := &Insert{Ns: p.ns, Metric: p.curToken.Literal, Dimensions: make(map[string]types.Value)}
	p.nextToken()

	if p.curTokenIs(TokenTS) {
		p.nextToken()
		if err := p.expect(TokenEq); err != nil {
			return nil, err
		}
		ts, err := p.parseTimestamp()
		if err != nil {
			return nil, err
		}
		stmt.Timestamp = &ts
	}

	if p.curTokenIs(TokenDim) {
		p.nextToken()
		if err := p.expect(TokenLParen); err != nil {
			return nil, err
		}
		for {
			if !p.curTokenIs(TokenIdent) {
				return nil, p.errorf("expected dimension name")
			}
			name := p.curToken.Literal
			p.nextToken()
			if err := p.expect(TokenEq); err != nil {
				return nil, err
			}
			val, err := p.parseLiteralValue()
			if err != nil {
				return nil, err
			}
			stmt.Dimensions[name] = val
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
	}

	if err := p.expect(TokenVal); err != nil {
		return nil, err
	}
	if err := p.expect(TokenEq); err != nil {
		return nil, err
	}
	val, err := p.parseNumericLiteral()
	if err != nil {
		return nil, err
	}
	stmt.Value = val

	return stmt, nil
}

// delete ::= "DELETE FROM" IDENT "WHERE" expr
func (p *Parser) parseDelete() (*Delete, error) {
	p.nextToken() // skip DELETE
	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected metric name after DELETE FROM")
	}
	metric := p.curToken.Literal
	p.nextToken()
	if err := p.expect(TokenWhere); err != nil {
		return nil, err
	}
	where, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Delete{Ns: p.ns, Metric: metric, Where: where}, nil
}

// drop ::= "DROP" IDENT
func (p *Parser) parseDrop() (*Drop, error) {
	p.nextToken() // skip DROP
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected metric name after DROP")
	}
	metric := p.curToken.Literal
	p.nextToken()
	return &Drop{Ns: p.ns, Metric: metric}, nil
}

// expr alternation order (range, unaryLogical, tupledLogical,
// comparison, equality) is encoded structurally: parseExpr assembles
// left-associative AND/OR chains of terms, where each term is either
// a NOT-prefixed term or one of range/comparison/equality — this
// avoids the grammar's direct left recursion on tupledLogical without
// needing a packrat memo table.
func (p *Parser) parseExpr() (Expression, error) {
	left, err := p.parseLogicalTerm()
	if err != nil {
		return nil, err
	}
	for p.curTokenIs(TokenAnd) || p.curTokenIs(TokenOr) {
		op := p.curToken.Literal
		p.nextToken()
		right, err := p.parseLogicalTerm()
		if err != nil {
			return nil, err
		}
		left = &TupledLogical{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) parseLogicalTerm() (Expression, error) {
	if p.curTokenIs(TokenNot) {
		p.nextToken()
		inner, err := p.parseLogicalTerm()
		if err != nil {
			return nil, err
		}
		return &UnaryLogical{Op: "NOT", Expr: inner}, nil
	}
	return p.parseTermExpr()
}

// termExpr ::= range | comparison | equality
func (p *Parser) parseTermExpr() (Expression, error) {
	dim, ok := p.curName()
	if !ok {
		return nil, p.errorf("expected a dimension identifier in expression")
	}
	p.nextToken()

	switch p.curToken.Type {
	case TokenIn:
		p.nextToken()
		if err := p.expect(TokenLParen); err != nil {
			return nil, err
		}
		low, err := p.parseTimestamp()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenComma); err != nil {
			return nil, err
		}
		high, err := p.parseTimestamp()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &Range{Dim: dim, Low: low, High: high}, nil
	case TokenGt, TokenGe, TokenLt, TokenLe:
		op := p.curToken.Literal
		p.nextToken()
		ts, err := p.parseTimestamp()
		if err != nil {
			return nil, err
		}
		return &Comparison{Dim: dim, Op: op, Value: ts}, nil
	case TokenEq:
		p.nextToken()
		val, err := p.parseEqualityValue()
		if err != nil {
			return nil, err
		}
		return &Equality{Dim: dim, Value: val}, nil
	default:
		return nil, p.errorf("expected IN, comparison operator or = after %q", dim)
	}
}

// equality rhs ::= STRING | FLOAT | timestamp
func (p *Parser) parseEqualityValue() (types.Value, error) {
	switch p.curToken.Type {
	case TokenString:
		v := types.NewString(strings.ReplaceAll(p.curToken.Literal, "''", "'"))
		p.nextToken()
		return v, nil
	case TokenNow:
		ts, err := p.parseTimestamp()
		if err != nil {
			return types.Value{}, err
		}
		return types.NewLong(ts), nil
	case TokenNumber:
		return p.parseNumericLiteral()
	default:
		return types.Value{}, p.errorf("expected a string, number or timestamp")
	}
}

// lit ::= STRING | FLOAT | LONG — used inside DIM assignments.
func (p *Parser) parseLiteralValue() (types.Value, error) {
	switch p.curToken.Type {
	case TokenString:
		v := types.NewString(strings.ReplaceAll(p.curToken.Literal, "''", "'"))
		p.nextToken()
		return v, nil
	case TokenNumber:
		return p.parseNumericLiteral()
	default:
		return types.Value{}, p.errorf("expected a string or number literal")
	}
}

func (p *Parser) parseNumericLiteral() (types.Value, error) {
	sign := ""
	if p.curTokenIs(TokenMinus) && p.peekTokenIs(TokenNumber) {
		sign = "-"
		p.nextToken()
	}
	if !p.curTokenIs(TokenNumber) {
		return types.Value{}, p.errorf("expected a number")
	}
	literal := sign + p.curToken.Literal
	p.nextToken()
	if strings.Contains(literal, ".") {
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return types.Value{}, &ParseError{Message: "invalid float literal", Pos: p.curToken.Pos, Token: p.curToken, Tail: p.tail()}
		}
		return types.NewDouble(f), nil
	}
	n, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		return types.Value{}, &ParseError{Message: "invalid integer literal", Pos: p.curToken.Pos, Token: p.curToken, Tail: p.tail()}
	}
	return types.NewLong(n), nil
}

// timestamp ::= delta | LONG
// delta ::= "NOW" [("+"|"-") LONG ("h"|"m"|"s")]
func (p *Parser) parseTimestamp() (int64, error) {
	if p.curTokenIs(TokenNow) {
		p.nextToken()

		sign := int64(1)
		switch p.curToken.Type {
		case TokenPlus:
			sign = 1
		case TokenMinus:
			sign = -1
		default:
			// A bare NOW is the parse-time instant itself.
			return p.now(), nil
		}
		p.nextToken()

		if !p.curTokenIs(TokenNumber) || strings.Contains(p.curToken.Literal, ".") {
			return 0, p.errorf("expected an integer delta after NOW%c", signChar(sign))
		}
		n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			return 0, p.errorf("invalid NOW delta")
		}
		p.nextToken()

		if !p.curTokenIs(TokenIdent) {
			return 0, p.errorf("expected h, m or s unit after NOW delta")
		}
		var unitMs int64
		switch strings.ToLower(p.curToken.Literal) {
		case "h":
			unitMs = 3600000
		case "m":
			unitMs = 60000
		case "s":
			unitMs = 1000
		default:
			return 0, p.errorf("unknown time unit %q", p.curToken.Literal)
		}
		p.nextToken()

		return p.now() + sign*n*unitMs, nil
	}

	if !p.curTokenIs(TokenNumber) || strings.Contains(p.curToken.Literal, ".") {
		return 0, p.errorf("expected a timestamp (NOW delta or integer)")
	}
	n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		return 0, p.errorf("invalid timestamp literal")
	}
	p.nextToken()
	return n, nil
}

func signChar(sign int64) rune {
	if sign < 0 {
		return '-'
	}
	return '+'
}
