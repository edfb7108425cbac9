package opql

import (
	"strconv"
	"strings"
)

// parser holds the state for a recursive-descent, Pratt-style parse of the
// token stream: peek/advance/expect helpers plus one method per precedence
// level, covering OPQL's full statement and expression grammar.
type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) peekAt(n int) Token {
	idx := p.pos + n
	if idx >= len(p.tokens) || idx < 0 {
		return Token{Kind: TokEOF}
	}
	return p.tokens[idx]
}

func (p *parser) advance() Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	t := p.advance()
	if t.Kind != kind {
		return t, &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: kind.String(), Actual: t}
	}
	return t, nil
}

func (p *parser) expectKeyword(word string) error {
	t := p.advance()
	if !t.IsKeyword(word) {
		return &ParseError{Kind: ParseExpectedKeyword, Offset: t.Offset, Expected: word, Actual: t}
	}
	return nil
}

func (p *parser) expectOperator(op string) (Token, error) {
	t := p.advance()
	if !t.IsOperator(op) {
		return t, &ParseError{Kind: ParseExpectedOperator, Offset: t.Offset, Expected: op, Actual: t}
	}
	return t, nil
}

// Parse parses a full OPQL statement. The entry point selects the
// statement kind by its leading keyword; every statement then reads its
// shared base clauses. The parser never recovers: a single syntax error
// aborts the parse.
func Parse(input string) (*Statement, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Kind != TokEOF {
		return nil, &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "end of input", Actual: t}
	}
	return stmt, nil
}

// ParseExpr parses a standalone expression (used by the builder's
// parameter machinery and by tests); the full input must be consumed.
func ParseExpr(input string) (*Expression, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Kind != TokEOF {
		return nil, &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "end of input", Actual: t}
	}
	return expr, nil
}

func (p *parser) parseStatement() (*Statement, error) {
	t := p.peek()
	if t.Kind != TokKeyword {
		return nil, &ParseError{Kind: ParseExpectedKeyword, Offset: t.Offset, Expected: "FIND|COUNT|AGGREGATE|UPDATE|EXPLAIN", Actual: t}
	}
	switch t.Value {
	case "FIND":
		return p.parseFind()
	case "COUNT":
		return p.parseCount()
	case "AGGREGATE":
		return p.parseAggregate()
	case "UPDATE":
		return p.parseUpdate()
	case "EXPLAIN":
		return p.parseExplain()
	default:
		return nil, &ParseError{Kind: ParseUnsupportedConstruct, Offset: t.Offset, Expected: "statement verb", Actual: t}
	}
}

// ---------------------------------------------------------------------
// Statement-level grammar
// ---------------------------------------------------------------------

func (p *parser) parseFind() (*Statement, error) {
	p.advance() // FIND
	stmt := &Statement{Kind: StmtFind}
	if p.peek().IsKeyword("DISTINCT") {
		stmt.Distinct = true
		p.advance()
	}
	if p.peek().Kind == TokAsterisk {
		p.advance()
		stmt.Projections = []string{"*"}
	} else {
		projs, err := p.parseProjectionList()
		if err != nil {
			return nil, err
		}
		stmt.Projections = projs
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if err := p.parseSourceAndAlias(stmt); err != nil {
		return nil, err
	}
	if err := p.parseBaseClauses(stmt, false); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseCount() (*Statement, error) {
	p.advance() // COUNT
	stmt := &Statement{Kind: StmtCount}
	if p.peek().IsKeyword("DISTINCT") {
		stmt.Distinct = true
		p.advance()
	}
	if p.peek().Kind == TokAsterisk {
		p.advance()
		stmt.Projections = []string{"*"}
	} else if p.peek().Kind == TokIdentifier && !p.peek().IsKeyword("FROM") {
		projs, err := p.parseProjectionList()
		if err != nil {
			return nil, err
		}
		stmt.Projections = projs
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if err := p.parseSourceAndAlias(stmt); err != nil {
		return nil, err
	}
	if err := p.parseBaseClauses(stmt, false); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseAggregate() (*Statement, error) {
	p.advance() // AGGREGATE
	stmt := &Statement{Kind: StmtAggregate}
	aggs, err := p.parseAggregateList()
	if err != nil {
		return nil, err
	}
	stmt.Aggregates = aggs
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if err := p.parseSourceAndAlias(stmt); err != nil {
		return nil, err
	}
	if err := p.parseBaseClauses(stmt, true); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseUpdate() (*Statement, error) {
	p.advance() // UPDATE
	stmt := &Statement{Kind: StmtUpdate}
	name, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}
	stmt.Source = name
	if p.peek().IsKeyword("AS") {
		p.advance()
		alias, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		stmt.Alias = alias
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	assigns, err := p.parseAssignments()
	if err != nil {
		return nil, err
	}
	stmt.Assignments = assigns
	if p.peek().IsKeyword("WHERE") {
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}
	if p.peek().IsKeyword("RETURNING") {
		p.advance()
		if p.peek().Kind == TokAsterisk {
			p.advance()
			stmt.Returning = []string{"*"}
		} else {
			names, err := p.parseProjectionList()
			if err != nil {
				return nil, err
			}
			stmt.Returning = names
		}
	}
	return stmt, nil
}

func (p *parser) parseExplain() (*Statement, error) {
	p.advance() // EXPLAIN
	verbose := false
	if p.peek().IsKeyword("VERBOSE") {
		verbose = true
		p.advance()
	}
	target, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &Statement{Kind: StmtExplain, ExplainTarget: target, Verbose: verbose}, nil
}

// ---------------------------------------------------------------------
// Shared base clauses
// ---------------------------------------------------------------------

func (p *parser) parseSourceAndAlias(stmt *Statement) error {
	name, err := p.parseDottedName()
	if err != nil {
		return err
	}
	stmt.Source = name
	if p.peek().IsKeyword("AS") {
		p.advance()
		alias, err := p.parseDottedName()
		if err != nil {
			return err
		}
		stmt.Alias = alias
	} else if p.peek().Kind == TokIdentifier {
		alias, err := p.parseDottedName()
		if err != nil {
			return err
		}
		stmt.Alias = alias
	}
	return nil
}

func (p *parser) parseBaseClauses(stmt *Statement, includeGroupHaving bool) error {
	if err := p.parseJoins(stmt); err != nil {
		return err
	}
	if err := p.parseRelate(stmt); err != nil {
		return err
	}
	if p.peek().IsKeyword("WHERE") {
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return err
		}
		stmt.Where = expr
	}
	if includeGroupHaving {
		if p.peek().IsKeyword("GROUP") {
			p.advance()
			if err := p.expectKeyword("BY"); err != nil {
				return err
			}
			list, err := p.parseExprList()
			if err != nil {
				return err
			}
			stmt.GroupBy = list
		}
		if p.peek().IsKeyword("HAVING") {
			p.advance()
			expr, err := p.parseOr()
			if err != nil {
				return err
			}
			stmt.Having = expr
		}
	}
	if p.peek().IsKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return err
		}
		terms, err := p.parseOrderTerms()
		if err != nil {
			return err
		}
		stmt.OrderBy = terms
	}
	if err := p.parsePagination(stmt); err != nil {
		return err
	}
	if p.peek().IsKeyword("SECURE") {
		p.advance()
		stmt.Security = &Security{}
	}
	return nil
}

func (p *parser) parseJoins(stmt *Statement) error {
	for {
		kind := JoinInner
		matched := false
		switch {
		case p.peek().IsKeyword("JOIN"):
			matched = true
		case (p.peek().IsKeyword("INNER") || p.peek().IsKeyword("LEFT") ||
			p.peek().IsKeyword("RIGHT") || p.peek().IsKeyword("FULL")) &&
			p.peekAt(1).IsKeyword("JOIN"):
			switch p.peek().Value {
			case "LEFT":
				kind = JoinLeft
			case "RIGHT":
				kind = JoinRight
			case "FULL":
				kind = JoinFull
			default:
				kind = JoinInner
			}
			p.advance()
			matched = true
		}
		if !matched {
			return nil
		}
		p.advance() // JOIN
		src, err := p.parseDottedName()
		if err != nil {
			return err
		}
		alias := ""
		if p.peek().IsKeyword("AS") {
			p.advance()
			a, err := p.parseDottedName()
			if err != nil {
				return err
			}
			alias = a
		} else if p.peek().Kind == TokIdentifier {
			a, err := p.parseDottedName()
			if err != nil {
				return err
			}
			alias = a
		}
		if err := p.expectKeyword("ON"); err != nil {
			return err
		}
		cond, err := p.parseOr()
		if err != nil {
			return err
		}
		stmt.Joins = append(stmt.Joins, Join{Kind: kind, Source: src, Alias: alias, Condition: cond})
	}
}

func (p *parser) parseRelate(stmt *Statement) error {
	if !p.peek().IsKeyword("RELATE") {
		return nil
	}
	p.advance()
	for {
		dir := RelateOutbound
		switch {
		case p.peek().IsKeyword("INBOUND"):
			dir = RelateInbound
			p.advance()
		case p.peek().IsKeyword("OUTBOUND"):
			dir = RelateOutbound
			p.advance()
		case p.peek().IsKeyword("BIDIRECTIONAL"):
			dir = RelateBidirectional
			p.advance()
		}
		name, err := p.parseDottedName()
		if err != nil {
			return err
		}
		rel := Relate{Name: name, Direction: dir}
		if p.peek().IsKeyword("DEPTH") {
			p.advance()
			n, err := p.parseIntLiteral()
			if err != nil {
				return err
			}
			rel.Depth = n
		}
		if p.peek().IsKeyword("CAP") {
			p.advance()
			n, err := p.parseIntLiteral()
			if err != nil {
				return err
			}
			rel.Cap = n
		}
		stmt.Relations = append(stmt.Relations, rel)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		return nil
	}
}

func (p *parser) parseOrderTerms() ([]OrderTerm, error) {
	var terms []OrderTerm
	for {
		expr, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		term := OrderTerm{Expr: expr, Direction: SortAsc}
		if p.peek().IsKeyword("ASC") {
			p.advance()
		} else if p.peek().IsKeyword("DESC") {
			term.Direction = SortDesc
			p.advance()
		}
		if p.peek().IsKeyword("NULLS") {
			p.advance()
			if p.peek().IsKeyword("FIRST") {
				term.Nulls = NullsFirst
				p.advance()
			} else if p.peek().IsKeyword("LAST") {
				term.Nulls = NullsLast
				p.advance()
			} else {
				return nil, &ParseError{Kind: ParseExpectedKeyword, Offset: p.peek().Offset, Expected: "FIRST|LAST", Actual: p.peek()}
			}
		}
		terms = append(terms, term)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		return terms, nil
	}
}

func (p *parser) parsePagination(stmt *Statement) error {
	for {
		switch {
		case p.peek().IsKeyword("PAGINATE") || p.peek().IsKeyword("PAGE"):
			p.advance()
			if p.peek().IsKeyword("AFTER") || p.peek().IsKeyword("CURSOR") {
				p.advance()
				c, err := p.parseCursorValue()
				if err != nil {
					return err
				}
				stmt.Cursor = &c
			}
			if p.peek().IsKeyword("LIMIT") {
				p.advance()
				n, err := p.parseIntLiteral()
				if err != nil {
					return err
				}
				stmt.Limit = &n
			}
		case p.peek().IsKeyword("LIMIT"):
			p.advance()
			n, err := p.parseIntLiteral()
			if err != nil {
				return err
			}
			stmt.Limit = &n
		case p.peek().IsKeyword("OFFSET"):
			p.advance()
			n, err := p.parseIntLiteral()
			if err != nil {
				return err
			}
			stmt.Offset = &n
		case p.peek().IsKeyword("CURSOR"):
			p.advance()
			c, err := p.parseCursorValue()
			if err != nil {
				return err
			}
			stmt.Cursor = &c
		default:
			return nil
		}
	}
}

func (p *parser) parseCursorValue() (string, error) {
	t := p.advance()
	if t.Kind != TokString && t.Kind != TokIdentifier && t.Kind != TokNumber {
		return "", &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "cursor value", Actual: t}
	}
	return t.Value, nil
}

func (p *parser) parseIntLiteral() (int, error) {
	t := p.advance()
	if t.Kind != TokNumber {
		return 0, &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "number", Actual: t}
	}
	f, err := strconv.ParseFloat(t.Value, 64)
	if err != nil {
		return 0, &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "number", Actual: t}
	}
	return int(f), nil
}

func (p *parser) parseProjectionList() ([]string, error) {
	var names []string
	for {
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		return names, nil
	}
}

func (p *parser) parseDottedName() (string, error) {
	t := p.advance()
	if t.Kind != TokIdentifier && t.Kind != TokKeyword {
		return "", &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "name", Actual: t}
	}
	name := t.Value
	for p.peek().Kind == TokDot {
		p.advance()
		seg := p.advance()
		if seg.Kind != TokIdentifier && seg.Kind != TokKeyword {
			return "", &ParseError{Kind: ParseUnexpectedToken, Offset: seg.Offset, Expected: "name segment", Actual: seg}
		}
		name += "." + seg.Value
	}
	return name, nil
}

func (p *parser) parseExprList() ([]*Expression, error) {
	var list []*Expression
	for {
		e, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		return list, nil
	}
}

func (p *parser) parseAssignments() ([]Assignment, error) {
	var list []Assignment
	for {
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOperator("="); err != nil {
			return nil, err
		}
		val, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		list = append(list, Assignment{Field: name, Value: val})
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		return list, nil
	}
}

func (p *parser) parseAggregateList() ([]Aggregate, error) {
	var aggs []Aggregate
	for {
		nameTok := p.advance()
		if nameTok.Kind != TokIdentifier && nameTok.Kind != TokKeyword {
			return nil, &ParseError{Kind: ParseUnexpectedToken, Offset: nameTok.Offset, Expected: "aggregate function", Actual: nameTok}
		}
		if _, err := p.expect(TokLParen); err != nil {
			return nil, err
		}
		var arg *Expression
		if p.peek().Kind == TokAsterisk {
			p.advance()
			arg = &Expression{Kind: KindIdentifier, Name: "*"}
		} else {
			a, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			arg = a
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		alias := ""
		if p.peek().IsKeyword("AS") {
			p.advance()
			a, err := p.parseDottedName()
			if err != nil {
				return nil, err
			}
			alias = a
		}
		aggs = append(aggs, Aggregate{Func: strings.ToUpper(nameTok.Value), Arg: arg, Alias: alias})
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		return aggs, nil
	}
}

// ---------------------------------------------------------------------
// Expression grammar (operator precedence table, spec.md §4.2)
// ---------------------------------------------------------------------

// parseOr: level 1 — expr (OR expr)*
func (p *parser) parseOr() (*Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().IsKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expression{Kind: KindBinary, Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

// parseAnd: level 2 — expr (AND expr)*
func (p *parser) parseAnd() (*Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().IsKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Expression{Kind: KindBinary, Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

// parseNot: level 3 — NOT expr | atom. Right-associative unary.
func (p *parser) parseNot() (*Expression, error) {
	if p.peek().IsKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Expression{Kind: KindUnary, UnaryOp: UnaryNot, Operand: operand}, nil
	}
	return p.parseBetweenIn()
}

// parseBetweenIn: level 4 — expr [NOT] BETWEEN lower AND upper | expr [NOT] IN (...)
func (p *parser) parseBetweenIn() (*Expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		negated := false
		if t.IsKeyword("NOT") {
			next := p.peekAt(1)
			if next.IsKeyword("BETWEEN") || next.IsKeyword("IN") {
				negated = true
				p.advance()
				t = p.peek()
			} else {
				return left, nil
			}
		}
		switch {
		case t.IsKeyword("BETWEEN"):
			p.advance()
			lower, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AND"); err != nil {
				return nil, err
			}
			upper, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &Expression{Kind: KindBetween, BetweenValue: left, Lower: lower, Upper: upper, Negated: negated}
		case t.IsKeyword("IN"):
			p.advance()
			opts, err := p.parseParenOptionList()
			if err != nil {
				return nil, err
			}
			left = &Expression{Kind: KindIn, InValue: left, Options: opts, Negated: negated}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseParenOptionList() ([]*Expression, error) {
	if p.peek().Kind == TokLParen {
		p.advance()
		var opts []*Expression
		if p.peek().Kind != TokRParen {
			for {
				v, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				opts = append(opts, v)
				if p.peek().Kind == TokComma {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return opts, nil
	}
	v, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return []*Expression{v}, nil
}

// comparisonKeywords are the keyword-spelled operators at precedence 5.
var comparisonKeywords = map[string]bool{
	"MATCH": true, "LIKE": true, "ILIKE": true, "CONTAINS": true,
	"BEFORE": true, "AFTER": true, "ON": true,
}

// comparisonOperators are the symbolic operators at precedence 5.
var comparisonOperators = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, "<=": true,
	">": true, ">=": true, "~": true, "!~": true, "::": true,
}

// parseComparison: level 5 — comparisons, text-match, IS, WAS/CHANGED,
// DURING, and cast.
func (p *parser) parseComparison() (*Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.IsKeyword("WAS"):
			return p.parseHistoryWas(left)
		case t.IsKeyword("CHANGED"):
			return p.parseHistoryChanged(left)
		case t.IsKeyword("DURING"):
			left, err = p.parseTemporal(left)
			if err != nil {
				return nil, err
			}
			continue
		case t.IsKeyword("IS"):
			left, err = p.parseIs(left)
			if err != nil {
				return nil, err
			}
			continue
		case t.Kind == TokOperator && comparisonOperators[t.Value]:
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &Expression{Kind: KindBinary, Op: t.Value, Left: left, Right: right}
			continue
		case t.Kind == TokKeyword && comparisonKeywords[t.Value]:
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &Expression{Kind: KindBinary, Op: t.Value, Left: left, Right: right}
			continue
		default:
			return left, nil
		}
	}
}

func (p *parser) parseIs(left *Expression) (*Expression, error) {
	p.advance() // IS
	negated := false
	if p.peek().IsKeyword("NOT") {
		negated = true
		p.advance()
	}
	switch {
	case p.peek().IsKeyword("EMPTY"):
		p.advance()
		op := "IS EMPTY"
		if negated {
			op = "IS NOT EMPTY"
		}
		return &Expression{Kind: KindBinary, Op: op, Left: left}, nil
	case p.peek().IsKeyword("NULL"):
		p.advance()
		op := "IS NULL"
		if negated {
			op = "IS NOT NULL"
		}
		return &Expression{Kind: KindBinary, Op: op, Left: left}, nil
	default:
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		op := "IS"
		if negated {
			op = "IS NOT"
		}
		return &Expression{Kind: KindBinary, Op: op, Left: left, Right: right}, nil
	}
}

func (p *parser) parseTemporal(left *Expression) (*Expression, error) {
	p.advance() // DURING
	start, end, err := p.parseDuringRange()
	if err != nil {
		return nil, err
	}
	return &Expression{Kind: KindTemporal, TemporalOp: "DURING", TemporalBase: left, RangeStart: start, RangeEnd: end}, nil
}

func (p *parser) parseDuringRange() (*Expression, *Expression, error) {
	hasParen := false
	if p.peek().Kind == TokLParen {
		hasParen = true
		p.advance()
	}
	start, err := p.parseAdditive()
	if err != nil {
		return nil, nil, err
	}
	t := p.peek()
	switch {
	case t.IsKeyword("AND"):
		p.advance()
	case t.IsKeyword("TO"):
		p.advance()
	case t.Kind == TokComma:
		p.advance()
	default:
		return nil, nil, &ParseError{Kind: ParseExpectedKeyword, Offset: t.Offset, Expected: "AND|TO|,", Actual: t}
	}
	end, err := p.parseAdditive()
	if err != nil {
		return nil, nil, err
	}
	if hasParen {
		if _, err := p.expect(TokRParen); err != nil {
			return nil, nil, err
		}
	}
	return start, end, nil
}

// parseHistoryWas parses: field WAS [NOT] <value|IN list|EMPTY|NULL> qualifiers*
func (p *parser) parseHistoryWas(fieldExpr *Expression) (*Expression, error) {
	p.advance() // WAS
	field, err := fieldName(fieldExpr)
	if err != nil {
		return nil, err
	}
	negated := false
	if p.peek().IsKeyword("NOT") {
		negated = true
		p.advance()
	}
	expr := &Expression{Kind: KindHistory, Field: field, Verb: "WAS", Negated: negated}
	switch {
	case p.peek().IsKeyword("EMPTY"):
		p.advance()
		expr.CompOp = "EMPTY"
	case p.peek().IsKeyword("NULL"):
		p.advance()
		expr.CompOp = "NULL"
	case p.peek().IsKeyword("IN"):
		p.advance()
		opts, err := p.parseParenOptionList()
		if err != nil {
			return nil, err
		}
		expr.CompOp = "IN"
		expr.CompOpts = opts
	default:
		val, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		expr.CompOp = "="
		expr.CompValue = val
	}
	quals, err := p.parseQualifiers()
	if err != nil {
		return nil, err
	}
	expr.Qualifiers = quals
	return expr, nil
}

// parseHistoryChanged parses: field CHANGED qualifiers* (TO/FROM among them)
func (p *parser) parseHistoryChanged(fieldExpr *Expression) (*Expression, error) {
	p.advance() // CHANGED
	field, err := fieldName(fieldExpr)
	if err != nil {
		return nil, err
	}
	expr := &Expression{Kind: KindHistory, Field: field, Verb: "CHANGED"}
	quals, err := p.parseQualifiers()
	if err != nil {
		return nil, err
	}
	expr.Qualifiers = quals
	return expr, nil
}

// parseQualifiers parses zero or more BY/AFTER/BEFORE/ON/DURING/TO/FROM
// qualifiers in any order.
func (p *parser) parseQualifiers() ([]Qualifier, error) {
	var quals []Qualifier
	for {
		t := p.peek()
		if t.Kind != TokKeyword {
			return quals, nil
		}
		switch t.Value {
		case "BY", "AFTER", "BEFORE", "ON":
			p.advance()
			val, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			quals = append(quals, Qualifier{Kind: t.Value, Value: val})
		case "DURING":
			p.advance()
			start, end, err := p.parseDuringRange()
			if err != nil {
				return nil, err
			}
			quals = append(quals, Qualifier{Kind: "DURING", Value: start, End: end})
		case "TO", "FROM":
			p.advance()
			q, err := p.parseToFromQualifier(t.Value)
			if err != nil {
				return nil, err
			}
			quals = append(quals, *q)
		default:
			return quals, nil
		}
	}
}

func (p *parser) parseToFromQualifier(kind string) (*Qualifier, error) {
	negated := false
	if p.peek().IsKeyword("NOT") {
		negated = true
		p.advance()
	}
	switch {
	case p.peek().IsKeyword("IN"):
		p.advance()
		opts, err := p.parseParenOptionList()
		if err != nil {
			return nil, err
		}
		op := "IN"
		if negated {
			op = "NOT IN"
		}
		return &Qualifier{Kind: kind, Op: op, Options: opts, Negated: negated}, nil
	case p.peek().IsKeyword("EMPTY"):
		p.advance()
		return &Qualifier{Kind: kind, Op: "EMPTY", Negated: negated}, nil
	case p.peek().IsKeyword("NULL"):
		p.advance()
		return &Qualifier{Kind: kind, Op: "NULL", Negated: negated}, nil
	default:
		val, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		op := "="
		if negated {
			op = "!="
		}
		return &Qualifier{Kind: kind, Op: op, Value: val}, nil
	}
}

func fieldName(e *Expression) (string, error) {
	if e.Kind != KindIdentifier {
		return "", &ParseError{Kind: ParseUnsupportedConstruct, Expected: "identifier before WAS/CHANGED", Actual: Token{Value: "<expr>"}}
	}
	if len(e.Path) == 0 {
		return e.Name, nil
	}
	return e.Name + "." + strings.Join(e.Path, "."), nil
}

// parseAdditive: level 6 — + -
func (p *parser) parseAdditive() (*Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if !(t.Kind == TokOperator && (t.Value == "+" || t.Value == "-")) {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		if right.Kind == KindDuration && (left.Kind == KindFunction || left.Kind == KindLiteral || left.Kind == KindDateMath) {
			left = &Expression{Kind: KindDateMath, Base: left, MathOp: t.Value, Offset: right}
			continue
		}
		left = &Expression{Kind: KindBinary, Op: t.Value, Left: left, Right: right}
	}
}

// parseMultiplicative: level 7 — * / %
func (p *parser) parseMultiplicative() (*Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		isMul := t.Kind == TokAsterisk || (t.Kind == TokOperator && (t.Value == "/" || t.Value == "%"))
		if !isMul {
			return left, nil
		}
		op := t.Value
		if t.Kind == TokAsterisk {
			op = "*"
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Expression{Kind: KindBinary, Op: op, Left: left, Right: right}
	}
}

// parseUnary handles arithmetic negation, binding tighter than +-*/ so that
// "-5" and "-(a+b)" work as primaries.
func (p *parser) parseUnary() (*Expression, error) {
	if p.peek().Kind == TokOperator && p.peek().Value == "-" {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expression{Kind: KindUnary, UnaryOp: UnaryNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*Expression, error) {
	t := p.peek()

	switch t.Kind {
	case TokNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "number", Actual: t}
		}
		return &Expression{Kind: KindLiteral, Value: f, ValueType: ValueNumber}, nil

	case TokString:
		p.advance()
		return &Expression{Kind: KindLiteral, Value: t.Value, ValueType: ValueString}, nil

	case TokDuration:
		p.advance()
		val, unit := splitDuration(t.Value)
		return &Expression{Kind: KindDuration, DurationValue: val, DurationUnit: unit}, nil

	case TokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}

	if t.Kind == TokKeyword {
		switch t.Value {
		case "TRUE":
			p.advance()
			return &Expression{Kind: KindLiteral, Value: true, ValueType: ValueBoolean}, nil
		case "FALSE":
			p.advance()
			return &Expression{Kind: KindLiteral, Value: false, ValueType: ValueBoolean}, nil
		case "NULL":
			p.advance()
			return &Expression{Kind: KindLiteral, Value: nil, ValueType: ValueNull}, nil
		}
	}

	// A bare keyword or identifier immediately followed by '(' is a
	// function call, not a reserved word or plain identifier — spec.md §9.
	if (t.Kind == TokIdentifier || t.Kind == TokKeyword) && p.peekAt(1).Kind == TokLParen {
		return p.parseFunctionCall()
	}

	if t.Kind == TokIdentifier {
		p.advance()
		name := t.Value
		var path []string
		for p.peek().Kind == TokDot {
			p.advance()
			seg := p.advance()
			if seg.Kind != TokIdentifier && seg.Kind != TokKeyword {
				return nil, &ParseError{Kind: ParseUnexpectedToken, Offset: seg.Offset, Expected: "name segment", Actual: seg}
			}
			path = append(path, seg.Value)
		}
		return &Expression{Kind: KindIdentifier, Name: name, Path: path}, nil
	}

	return nil, &ParseError{Kind: ParseUnexpectedToken, Offset: t.Offset, Expected: "expression", Actual: t}
}

func (p *parser) parseFunctionCall() (*Expression, error) {
	nameTok := p.advance()
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var args []*Expression
	if p.peek().Kind == TokAsterisk {
		p.advance()
		args = append(args, &Expression{Kind: KindIdentifier, Name: "*"})
	} else if p.peek().Kind != TokRParen {
		for {
			a, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().Kind == TokComma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &Expression{Kind: KindFunction, FuncName: nameTok.Value, Args: args}, nil
}

// splitDuration splits a lexed duration token like "7d" or "30mo" into its
// numeric value and unit.
func splitDuration(raw string) (float64, DurationUnit) {
	for _, u := range durationUnits {
		if strings.HasSuffix(strings.ToLower(raw), u) {
			numPart := raw[:len(raw)-len(u)]
			f, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				continue
			}
			return f, DurationUnit(u)
		}
	}
	return 0, ""
}
