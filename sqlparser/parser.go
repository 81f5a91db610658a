package sqlparser

import (
	"strconv"

	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/value"
)

// DefaultLimit is the LIMIT applied when a query omits one.
const DefaultLimit = 100

// parser is a single-use recursive-descent parser over one query's
// token stream; tokens are buffered one at a time (cur), matching the
// one-token-lookahead shape of a hand-written descent parser.
type parser struct {
	lex *lexer
	cur token
}

// Parse implements the external parser contract: str -> *expr.Query,
// or a *errors.QueryError with Kind ParseErr / NotImplementedErr.
func Parse(sql string) (*expr.Query, error) {
	p := &parser{lex: newLexer(sql)}
	if err := p.advance(); err != nil {
		return nil, errors.Parsef("%s", err)
	}
	q, err := p.parseQuery()
	if err != nil {
		if _, ok := err.(*errors.QueryError); !ok {
			return nil, errors.Parsef("%s", err)
		}
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, errors.Parsef("unexpected trailing input at position %d: %q", p.cur.pos, p.cur.text)
	}
	return q, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) isKeyword(word string) bool {
	return p.cur.kind == tokIdent && kw(p.cur) == word
}

func (p *parser) expectKeyword(word string) error {
	if !p.isKeyword(word) {
		return errors.Parsef("expected %s at position %d, got %q", word, p.cur.pos, p.cur.text)
	}
	return p.advance()
}

func (p *parser) parseQuery() (*expr.Query, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	sel, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if p.cur.kind != tokIdent {
		return nil, errors.Parsef("expected table name at position %d", p.cur.pos)
	}
	table := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.isKeyword("JOIN") || p.isKeyword("INNER") || p.isKeyword("LEFT") || p.isKeyword("RIGHT") {
		return nil, errors.NotImplementedf("JOIN")
	}

	q := &expr.Query{Select: sel, Table: table, Limit: expr.LimitClause{Limit: DefaultLimit}}

	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		filter, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	}

	if p.isKeyword("GROUP") {
		// GROUP BY is implicit via aggregator presence; an explicit
		// clause is accepted and ignored rather than re-validated
		// against the select list.
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			if _, err := p.parseExpr(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.isKeyword("HAVING") {
		return nil, errors.NotImplementedf("HAVING")
	}

	if p.isKeyword("ORDER") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		keys, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		q.OrderBy = keys
	}

	if p.isKeyword("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseUint()
		if err != nil {
			return nil, err
		}
		q.Limit.Limit = n
		if p.isKeyword("OFFSET") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			off, err := p.parseUint()
			if err != nil {
				return nil, err
			}
			q.Limit.Offset = off
		}
	}

	return q, nil
}

func (p *parser) parseUint() (uint64, error) {
	if p.cur.kind != tokInt {
		return 0, errors.Parsef("expected integer at position %d, got %q", p.cur.pos, p.cur.text)
	}
	n, err := strconv.ParseUint(p.cur.text, 10, 64)
	if err != nil {
		return 0, errors.Parsef("invalid integer %q at position %d", p.cur.text, p.cur.pos)
	}
	return n, p.advance()
}

// parseSelectList parses either a bare `*` or a comma-separated list of
// aliasable expressions.
func (p *parser) parseSelectList() ([]expr.ColumnInfo, error) {
	if p.cur.kind == tokStar {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return []expr.ColumnInfo{{Expr: expr.ColName{Name: "*"}}}, nil
	}

	var cols []expr.ColumnInfo
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		alias := ""
		if p.isKeyword("AS") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokIdent {
				return nil, errors.Parsef("expected alias at position %d", p.cur.pos)
			}
			alias = p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if p.cur.kind == tokIdent && !isReservedAfterExpr(kw(p.cur)) {
			alias = p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		cols = append(cols, expr.ColumnInfo{Expr: e, Alias: alias})
		if p.cur.kind != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// isReservedAfterExpr reports whether word, if seen immediately after a
// parsed expression, terminates it rather than being a bare (AS-less)
// alias - i.e. every keyword that can legally follow a select item or
// clause.
func isReservedAfterExpr(word string) bool {
	switch word {
	case "FROM", "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET", "AND", "OR", "ASC", "DESC", "BY":
		return true
	default:
		return false
	}
}

func (p *parser) parseOrderByList() ([]expr.OrderKey, error) {
	var keys []expr.OrderKey
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		desc := false
		if p.isKeyword("DESC") {
			desc = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if p.isKeyword("ASC") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		keys = append(keys, expr.OrderKey{Expr: e, Desc: desc})
		if p.cur.kind != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Operator precedence climbing: OR < AND < comparison < additive <
// multiplicative < unary < primary.

func (p *parser) parseExpr() (expr.Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (expr.Expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &expr.Func2{Op: expr.Or, LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (expr.Expr, error) {
	lhs, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		lhs = &expr.Func2{Op: expr.And, LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

var comparisonOps = map[string]expr.BinaryOp{
	"=": expr.Eq, "<>": expr.Neq, "<": expr.Lt, ">": expr.Gt, "<=": expr.Lte, ">=": expr.Gte,
}

func (p *parser) parseComparison() (expr.Expr, error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokOp {
		if op, ok := comparisonOps[p.cur.text]; ok {
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &expr.Func2{Op: op, LHS: lhs, RHS: rhs}, nil
		}
	}
	return lhs, nil
}

func (p *parser) parseAdditive() (expr.Expr, error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOp && (p.cur.text == "+" || p.cur.text == "-") {
		op := expr.Add
		if p.cur.text == "-" {
			op = expr.Sub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = &expr.Func2{Op: op, LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *parser) parseMultiplicative() (expr.Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokStar || (p.cur.kind == tokOp && p.cur.text == "/") {
		op := expr.Mul
		if p.cur.text == "/" {
			op = expr.Div
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &expr.Func2{Op: op, LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *parser) parseUnary() (expr.Expr, error) {
	if p.cur.kind == tokOp && p.cur.text == "-" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &expr.Func1{Op: expr.Negate, Arg: arg}, nil
	}
	return p.parsePrimary()
}

var aggregatorFuncs = map[string]expr.Aggregator{
	"COUNT": expr.Count,
	"SUM":   expr.SumI64,
	"MIN":   expr.MinI64,
	"MAX":   expr.MaxI64,
}

func (p *parser) parsePrimary() (expr.Expr, error) {
	switch p.cur.kind {
	case tokInt:
		n, err := strconv.ParseInt(p.cur.text, 10, 64)
		if err != nil {
			return nil, errors.Parsef("invalid integer literal %q", p.cur.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr.Const{Val: value.Int(n)}, nil
	case tokFloat:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, errors.Parsef("invalid float literal %q", p.cur.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr.Const{Val: value.Float(f)}, nil
	case tokString:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr.Const{Val: value.Str(s)}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isKeyword("SELECT") {
			return nil, errors.NotImplementedf("subquery")
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, errors.Parsef("expected ) at position %d", p.cur.pos)
		}
		return e, p.advance()
	case tokIdent:
		word := kw(p.cur)
		if word == "NULL" {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return expr.Const{Val: value.Null()}, nil
		}
		if word == "TO_YEAR" {
			return p.parseFunc1(expr.ToYear)
		}
		if agg, ok := aggregatorFuncs[word]; ok {
			return p.parseAggregate(agg)
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr.ColName{Name: name}, nil
	default:
		return nil, errors.Parsef("unexpected token %q at position %d", p.cur.text, p.cur.pos)
	}
}

func (p *parser) parseFunc1(op expr.UnaryOp) (expr.Expr, error) {
	if err := p.advance(); err != nil { // consume function name
		return nil, err
	}
	if p.cur.kind != tokLParen {
		return nil, errors.Parsef("expected ( after %s at position %d", op, p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	arg, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokRParen {
		return nil, errors.Parsef("expected ) at position %d", p.cur.pos)
	}
	return &expr.Func1{Op: op, Arg: arg}, p.advance()
}

// parseAggregate parses COUNT(*) / COUNT(1) / COUNT(expr) / SUM(expr) /
// MIN(expr) / MAX(expr). COUNT(*) and COUNT(1) both compile to
// Aggregate{Count, Const(1)}: count every selected row.
func (p *parser) parseAggregate(agg expr.Aggregator) (expr.Expr, error) {
	if err := p.advance(); err != nil { // consume function name
		return nil, err
	}
	if p.cur.kind != tokLParen {
		return nil, errors.Parsef("expected ( after aggregate function at position %d", p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var arg expr.Expr
	if p.cur.kind == tokStar {
		arg = expr.Const{Val: value.Int(1)}
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		arg = e
	}

	if p.cur.kind != tokRParen {
		return nil, errors.Parsef("expected ) at position %d", p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &expr.Aggregate{Agg: agg, Arg: arg}, nil
}
