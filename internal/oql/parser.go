package oql

import (
	"fmt"
	"strings"
)

// ParseError reports malformed query or rule text. No partial tree is
// returned alongside it.
type ParseError struct {
	Pos      int      // rune offset of the offending token
	Found    string   // offending token as written
	Expected []string // acceptable alternatives, when known
	Msg      string   // free-form description when Expected is empty
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = fmt.Sprintf("unexpected %s, expected %s", e.Found, strings.Join(e.Expected, " or "))
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, msg)
}

func newParseError(pos int, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Parse parses a SELECT, UPDATE or DELETE statement.
func Parse(input string) (*Tree, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	var id NodeID
	switch {
	case p.at("SELECT"):
		id, err = p.parseSelect(KindSelect)
	case p.at("UPDATE"):
		id, err = p.parseUpdate()
	case p.at("DELETE"):
		id, err = p.parseDelete()
	default:
		return nil, p.unexpected("SELECT", "UPDATE", "DELETE")
	}
	if err != nil {
		return nil, err
	}
	return p.finish(id)
}

// ParseRule parses an access rule declaration:
//
//	GRANT [CREATE] [READ] [UPDATE] [DELETE] ACCESS TO <from-item> [WHERE <condition>]
func ParseRule(input string) (*Tree, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	if !p.accept("GRANT") {
		return nil, p.unexpected("GRANT")
	}
	var flags Flags
loop:
	for {
		switch {
		case p.accept("CREATE"):
			flags |= FlagCreate
		case p.accept("READ"):
			flags |= FlagRead
		case p.accept("UPDATE"):
			flags |= FlagUpdate
		case p.accept("DELETE"):
			flags |= FlagDelete
		default:
			break loop
		}
	}
	if err := p.expectKeyword("ACCESS", "TO"); err != nil {
		return nil, err
	}
	from, err := p.parseFrom()
	if err != nil {
		return nil, err
	}
	children := []NodeID{from}
	if p.accept("WHERE") {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		children = append(children, p.tree.New(KindWhere, "", cond))
	}
	rule := p.tree.New(KindRule, "", children...)
	p.tree.SetFlags(rule, flags)
	return p.finish(rule)
}

// ParseWhereClause parses a bare condition, optionally prefixed by WHERE.
// The root of the returned tree is the condition itself.
func ParseWhereClause(input string) (*Tree, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	p.accept("WHERE")
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	return p.finish(cond)
}

type parser struct {
	toks []Token
	pos  int
	tree *Tree
}

func newParser(input string) (*parser, error) {
	toks, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, tree: NewTree()}, nil
}

func (p *parser) finish(id NodeID) (*Tree, error) {
	if p.peek().Kind != TokEOF {
		return nil, p.unexpected("end of input")
	}
	p.tree.SetRoot(id)
	return p.tree, nil
}

// --- Statements ---

// parseSelect parses a top-level SELECT or, with KindSubquery, the body of
// a subselect (no ORDER BY).
func (p *parser) parseSelect(kind Kind) (NodeID, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return NoNode, err
	}
	distinct := p.accept("DISTINCT")
	var items []NodeID
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return NoNode, err
		}
		items = append(items, item)
		if !p.acceptKind(TokComma) {
			break
		}
	}
	sel := p.tree.New(KindSelectClause, "", items...)
	p.tree.SetFlag(sel, FlagDistinct, distinct)

	if err := p.expectKeyword("FROM"); err != nil {
		return NoNode, err
	}
	from, err := p.parseFrom()
	if err != nil {
		return NoNode, err
	}
	children := []NodeID{sel, from}

	if p.accept("WHERE") {
		cond, err := p.parseCondition()
		if err != nil {
			return NoNode, err
		}
		children = append(children, p.tree.New(KindWhere, "", cond))
	}
	if p.accept("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return NoNode, err
		}
		exprs, err := p.parseScalarList()
		if err != nil {
			return NoNode, err
		}
		children = append(children, p.tree.New(KindGroupBy, "", exprs...))
	}
	if p.accept("HAVING") {
		cond, err := p.parseCondition()
		if err != nil {
			return NoNode, err
		}
		children = append(children, p.tree.New(KindHaving, "", cond))
	}
	if kind == KindSelect && p.accept("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return NoNode, err
		}
		var order []NodeID
		for {
			expr, err := p.parseScalar()
			if err != nil {
				return NoNode, err
			}
			item := p.tree.New(KindOrderItem, "", expr)
			if p.accept("DESC") {
				p.tree.SetFlag(item, FlagDesc, true)
			} else {
				p.accept("ASC")
			}
			order = append(order, item)
			if !p.acceptKind(TokComma) {
				break
			}
		}
		children = append(children, p.tree.New(KindOrderBy, "", order...))
	}
	return p.tree.New(kind, "", children...), nil
}

func (p *parser) parseSelectItem() (NodeID, error) {
	if p.accept("NEW") {
		name, err := p.parseQualifiedName()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokLParen); err != nil {
			return NoNode, err
		}
		args, err := p.parseScalarList()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return NoNode, err
		}
		return p.tree.New(KindConstructor, name, args...), nil
	}
	expr, err := p.parseScalar()
	if err != nil {
		return NoNode, err
	}
	explicit := p.accept("AS")
	if tok := p.peek(); tok.Kind == TokIdent && !IsReserved(tok.Lit) {
		p.advance()
		return p.tree.New(KindAs, tok.Lit, expr), nil
	}
	if explicit {
		return NoNode, p.unexpected("result variable")
	}
	return expr, nil
}

func (p *parser) parseUpdate() (NodeID, error) {
	if err := p.expectKeyword("UPDATE"); err != nil {
		return NoNode, err
	}
	rng, err := p.parseRangeHead()
	if err != nil {
		return NoNode, err
	}
	from := p.tree.New(KindFrom, "", rng)
	if err := p.expectKeyword("SET"); err != nil {
		return NoNode, err
	}
	var assigns []NodeID
	for {
		target, err := p.parsePathExpr()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokEq); err != nil {
			return NoNode, err
		}
		value, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		assigns = append(assigns, p.tree.New(KindAssign, "", target, value))
		if !p.acceptKind(TokComma) {
			break
		}
	}
	children := []NodeID{from, p.tree.New(KindSet, "", assigns...)}
	if p.accept("WHERE") {
		cond, err := p.parseCondition()
		if err != nil {
			return NoNode, err
		}
		children = append(children, p.tree.New(KindWhere, "", cond))
	}
	return p.tree.New(KindUpdate, "", children...), nil
}

func (p *parser) parseDelete() (NodeID, error) {
	if err := p.expectKeyword("DELETE", "FROM"); err != nil {
		return NoNode, err
	}
	rng, err := p.parseRangeHead()
	if err != nil {
		return NoNode, err
	}
	children := []NodeID{p.tree.New(KindFrom, "", rng)}
	if p.accept("WHERE") {
		cond, err := p.parseCondition()
		if err != nil {
			return NoNode, err
		}
		children = append(children, p.tree.New(KindWhere, "", cond))
	}
	return p.tree.New(KindDelete, "", children...), nil
}

// --- FROM ---

func (p *parser) parseFrom() (NodeID, error) {
	var items []NodeID
	for {
		item, err := p.parseFromItem()
		if err != nil {
			return NoNode, err
		}
		items = append(items, item)
		if !p.acceptKind(TokComma) {
			break
		}
	}
	return p.tree.New(KindFrom, "", items...), nil
}

func (p *parser) parseFromItem() (NodeID, error) {
	if p.at("IN") && p.peekAt(1).Kind == TokLParen {
		p.advance()
		p.advance()
		path, err := p.parsePathExpr()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return NoNode, err
		}
		alias, ok, err := p.parseAlias()
		if err != nil {
			return NoNode, err
		}
		if !ok {
			return NoNode, p.unexpected("identification variable")
		}
		return p.tree.New(KindCollectionMember, "", path, alias), nil
	}

	rng, err := p.parseRangeHead()
	if err != nil {
		return NoNode, err
	}
	for p.at("LEFT") || p.at("INNER") || p.at("JOIN") {
		join, err := p.parseJoin()
		if err != nil {
			return NoNode, err
		}
		p.tree.AppendChild(rng, join)
	}
	return rng, nil
}

// parseRangeHead parses "Entity [AS] alias" without joins.
func (p *parser) parseRangeHead() (NodeID, error) {
	name, err := p.parseQualifiedName()
	if err != nil {
		return NoNode, err
	}
	rng := p.tree.New(KindRangeDecl, name)
	alias, ok, err := p.parseAlias()
	if err != nil {
		return NoNode, err
	}
	if ok {
		p.tree.AppendChild(rng, alias)
	}
	return rng, nil
}

func (p *parser) parseJoin() (NodeID, error) {
	var flags Flags
	switch {
	case p.accept("LEFT"):
		p.accept("OUTER")
		flags |= FlagOuter
	case p.accept("INNER"):
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return NoNode, err
	}
	if p.accept("FETCH") {
		flags |= FlagFetch
	}
	path, err := p.parsePathExpr()
	if err != nil {
		return NoNode, err
	}
	children := []NodeID{path}
	alias, ok, err := p.parseAlias()
	if err != nil {
		return NoNode, err
	}
	if ok {
		children = append(children, alias)
	}
	withKeyword := p.at("WITH")
	if p.accept("ON") || p.accept("WITH") {
		cond, err := p.parseCondition()
		if err != nil {
			return NoNode, err
		}
		children = append(children, cond)
		if withKeyword {
			flags |= FlagWith
		}
	}
	join := p.tree.New(KindJoin, "", children...)
	p.tree.SetFlags(join, flags)
	return join, nil
}

func (p *parser) parseAlias() (NodeID, bool, error) {
	explicit := p.accept("AS")
	if tok := p.peek(); tok.Kind == TokIdent && !IsReserved(tok.Lit) {
		p.advance()
		return p.tree.New(KindAlias, tok.Lit), true, nil
	}
	if explicit {
		return NoNode, false, p.unexpected("identification variable")
	}
	return NoNode, false, nil
}

// parsePathExpr parses a navigable expression: alias, alias.path or
// KEY(alias)/VALUE(alias) followed by an optional path.
func (p *parser) parsePathExpr() (NodeID, error) {
	tok := p.peek()
	id, err := p.parsePrimary()
	if err != nil {
		return NoNode, err
	}
	switch p.tree.Kind(id) {
	case KindIdent, KindPath, KindKey, KindValue:
		return id, nil
	}
	return NoNode, &ParseError{Pos: tok.Pos, Found: tok.display(), Expected: []string{"path expression"}}
}

func (p *parser) parseQualifiedName() (string, error) {
	tok, err := p.expect(TokIdent)
	if err != nil {
		return "", err
	}
	name := tok.Lit
	for p.peek().Kind == TokDot && p.peekAt(1).Kind == TokIdent {
		p.advance()
		name += "." + p.advance().Lit
	}
	return name, nil
}

// --- Conditions ---

func (p *parser) parseCondition() (NodeID, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (NodeID, error) {
	first, err := p.parseAnd()
	if err != nil || !p.at("OR") {
		return first, err
	}
	terms := []NodeID{first}
	for p.accept("OR") {
		next, err := p.parseAnd()
		if err != nil {
			return NoNode, err
		}
		terms = append(terms, next)
	}
	return p.tree.New(KindOr, "", terms...), nil
}

func (p *parser) parseAnd() (NodeID, error) {
	first, err := p.parseNot()
	if err != nil || !p.at("AND") {
		return first, err
	}
	terms := []NodeID{first}
	for p.accept("AND") {
		next, err := p.parseNot()
		if err != nil {
			return NoNode, err
		}
		terms = append(terms, next)
	}
	return p.tree.New(KindAnd, "", terms...), nil
}

// parseNot folds NOT into negatable predicates instead of wrapping them.
func (p *parser) parseNot() (NodeID, error) {
	if !p.accept("NOT") {
		return p.parsePredicate()
	}
	operand, err := p.parseNot()
	if err != nil {
		return NoNode, err
	}
	if p.tree.Kind(operand).Negatable() {
		p.tree.SetFlag(operand, FlagNegated, !p.tree.Has(operand, FlagNegated))
		return operand, nil
	}
	return p.tree.New(KindNot, "", operand), nil
}

func (p *parser) parsePredicate() (NodeID, error) {
	if p.accept("EXISTS") {
		sub, err := p.parseSubquery()
		if err != nil {
			return NoNode, err
		}
		return p.tree.New(KindExists, "", sub), nil
	}
	if p.peek().Kind == TokLParen && !p.peekAt(1).Is("SELECT") {
		if id, ok := p.tryParenCondition(); ok {
			return id, nil
		}
	}
	left, err := p.parseScalar()
	if err != nil {
		return NoNode, err
	}
	return p.parsePredicateTail(left)
}

// tryParenCondition parses "( condition )" unless the parenthesized text
// turns out to be the left operand of a larger scalar expression, in which
// case the parser is rewound.
func (p *parser) tryParenCondition() (NodeID, bool) {
	pos, mark := p.pos, p.tree.Len()
	p.advance()
	cond, err := p.parseCondition()
	if err == nil && p.acceptKind(TokRParen) && !p.continuesScalar() {
		return p.tree.New(KindParen, "", cond), true
	}
	p.pos = pos
	p.tree.truncate(mark)
	return NoNode, false
}

func (p *parser) continuesScalar() bool {
	tok := p.peek()
	switch tok.Kind {
	case TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte, TokPlus, TokMinus, TokStar, TokSlash:
		return true
	}
	if tok.Is("IS") || p.atPredicateKeyword(0) {
		return true
	}
	return tok.Is("NOT") && p.atPredicateKeyword(1)
}

func (p *parser) atPredicateKeyword(offset int) bool {
	tok := p.peekAt(offset)
	return tok.Is("BETWEEN") || tok.Is("LIKE") || tok.Is("IN") || tok.Is("MEMBER")
}

func (p *parser) parsePredicateTail(left NodeID) (NodeID, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte:
		p.advance()
		var right NodeID
		var err error
		if p.at("ALL") || p.at("ANY") || p.at("SOME") {
			quant := strings.ToUpper(p.advance().Lit)
			sub, err := p.parseSubquery()
			if err != nil {
				return NoNode, err
			}
			right = p.tree.New(KindAllAny, quant, sub)
		} else if right, err = p.parseScalar(); err != nil {
			return NoNode, err
		}
		return p.tree.New(KindCompare, tok.Lit, left, right), nil
	}

	negated := false
	if p.at("NOT") && p.atPredicateKeyword(1) {
		p.advance()
		negated = true
	}

	var id NodeID
	switch {
	case p.accept("BETWEEN"):
		low, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return NoNode, err
		}
		high, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		id = p.tree.New(KindBetween, "", left, low, high)
	case p.accept("LIKE"):
		pattern, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		id = p.tree.New(KindLike, "", left, pattern)
		if p.accept("ESCAPE") {
			esc, err := p.parseScalar()
			if err != nil {
				return NoNode, err
			}
			p.tree.AppendChild(id, esc)
		}
	case p.accept("IN"):
		var err error
		if id, err = p.parseInTail(left); err != nil {
			return NoNode, err
		}
	case p.accept("MEMBER"):
		p.accept("OF")
		coll, err := p.parsePathExpr()
		if err != nil {
			return NoNode, err
		}
		id = p.tree.New(KindMemberOf, "", left, coll)
	case p.accept("IS"):
		negated = p.accept("NOT")
		switch {
		case p.accept("NULL"):
			id = p.tree.New(KindIsNull, "", left)
		case p.accept("EMPTY"):
			id = p.tree.New(KindIsEmpty, "", left)
		default:
			return NoNode, p.unexpected("NULL", "EMPTY")
		}
	default:
		return left, nil
	}
	p.tree.SetFlag(id, FlagNegated, negated)
	return id, nil
}

func (p *parser) parseInTail(left NodeID) (NodeID, error) {
	switch p.peek().Kind {
	case TokNamedParam, TokPosParam:
		param, err := p.parsePrimary()
		if err != nil {
			return NoNode, err
		}
		id := p.tree.New(KindIn, "", left, param)
		p.tree.SetFlag(id, FlagBare, true)
		return id, nil
	case TokLParen:
		if p.peekAt(1).Is("SELECT") {
			sub, err := p.parseSubquery()
			if err != nil {
				return NoNode, err
			}
			return p.tree.New(KindIn, "", left, sub), nil
		}
		p.advance()
		items, err := p.parseScalarList()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return NoNode, err
		}
		return p.tree.New(KindIn, "", append([]NodeID{left}, items...)...), nil
	}
	return NoNode, p.unexpected("(", "parameter")
}

func (p *parser) parseSubquery() (NodeID, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return NoNode, err
	}
	sub, err := p.parseSelect(KindSubquery)
	if err != nil {
		return NoNode, err
	}
	if _, err := p.expect(TokRParen); err != nil {
		return NoNode, err
	}
	return sub, nil
}

// --- Scalar expressions ---

func (p *parser) parseScalarList() ([]NodeID, error) {
	var items []NodeID
	for {
		item, err := p.parseScalar()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.acceptKind(TokComma) {
			return items, nil
		}
	}
}

// parseScalar: term { ("+" | "-") term }
func (p *parser) parseScalar() (NodeID, error) {
	left, err := p.parseTerm()
	if err != nil {
		return NoNode, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokPlus && tok.Kind != TokMinus {
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return NoNode, err
		}
		left = p.tree.New(KindArith, tok.Lit, left, right)
	}
}

// parseTerm: unary { ("*" | "/") unary }
func (p *parser) parseTerm() (NodeID, error) {
	left, err := p.parseUnary()
	if err != nil {
		return NoNode, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokStar && tok.Kind != TokSlash {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return NoNode, err
		}
		left = p.tree.New(KindArith, tok.Lit, left, right)
	}
}

func (p *parser) parseUnary() (NodeID, error) {
	switch p.peek().Kind {
	case TokMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return NoNode, err
		}
		return p.tree.New(KindNegate, "", operand), nil
	case TokPlus:
		p.advance()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (NodeID, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokNumber:
		p.advance()
		return p.tree.New(KindNumber, tok.Lit), nil
	case TokString:
		p.advance()
		return p.tree.New(KindString, tok.Lit), nil
	case TokNamedParam:
		p.advance()
		return p.tree.New(KindNamedParam, tok.Lit), nil
	case TokPosParam:
		p.advance()
		return p.tree.New(KindPositionalParam, tok.Lit), nil
	case TokLParen:
		if p.peekAt(1).Is("SELECT") {
			return p.parseSubquery()
		}
		p.advance()
		inner, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return NoNode, err
		}
		return p.tree.New(KindParen, "", inner), nil
	case TokIdent:
		return p.parseIdentExpr()
	}
	return NoNode, p.unexpected("expression")
}

func (p *parser) parseIdentExpr() (NodeID, error) {
	tok := p.advance()
	upper := strings.ToUpper(tok.Lit)
	switch upper {
	case "TRUE", "FALSE":
		return p.tree.New(KindBoolean, upper), nil
	case "NULL":
		return p.tree.New(KindNull, ""), nil
	case "CASE":
		return p.parseCase()
	case "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP":
		return p.tree.New(KindFunc, upper), nil
	}

	if p.peek().Kind == TokLParen {
		switch upper {
		case "KEY", "VALUE", "ENTRY":
			return p.parseMapAccessor(upper)
		case "COALESCE":
			args, err := p.parseArgs(tok, 2, -1)
			if err != nil {
				return NoNode, err
			}
			return p.tree.New(KindCoalesce, "", args...), nil
		case "NULLIF":
			args, err := p.parseArgs(tok, 2, 2)
			if err != nil {
				return NoNode, err
			}
			return p.tree.New(KindNullIf, "", args...), nil
		case "TRIM":
			return p.parseTrim()
		case "AVG", "MAX", "MIN", "SUM", "COUNT":
			return p.parseAggregate(upper)
		}
		if fn, ok := GetFunction(upper); ok && fn.Returns != ValueTemporal {
			args, err := p.parseArgs(tok, fn.Args, fn.maxArgs())
			if err != nil {
				return NoNode, err
			}
			return p.tree.New(KindFunc, upper, args...), nil
		}
		return NoNode, p.errorf(tok.Pos, "unknown function %s", tok.Lit)
	}

	if reserved[upper] {
		return NoNode, &ParseError{Pos: tok.Pos, Found: tok.Lit, Expected: []string{"expression"}}
	}
	return p.parsePathTail(p.tree.New(KindIdent, tok.Lit))
}

// parsePathTail wraps root in a Path node when dotted segments follow.
func (p *parser) parsePathTail(root NodeID) (NodeID, error) {
	var segs []string
	for p.acceptKind(TokDot) {
		seg, err := p.expect(TokIdent)
		if err != nil {
			return NoNode, err
		}
		segs = append(segs, seg.Lit)
	}
	if len(segs) == 0 {
		return root, nil
	}
	return p.tree.New(KindPath, strings.Join(segs, "."), root), nil
}

func (p *parser) parseMapAccessor(name string) (NodeID, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return NoNode, err
	}
	tok := p.peek()
	if tok.Kind != TokIdent || IsReserved(tok.Lit) {
		return NoNode, p.unexpected("identification variable")
	}
	p.advance()
	if _, err := p.expect(TokRParen); err != nil {
		return NoNode, err
	}
	kind := map[string]Kind{"KEY": KindKey, "VALUE": KindValue, "ENTRY": KindEntry}[name]
	id := p.tree.New(kind, "", p.tree.New(KindIdent, tok.Lit))
	if kind == KindEntry {
		return id, nil
	}
	return p.parsePathTail(id)
}

func (p *parser) parseArgs(fn Token, minArgs, maxArgs int) ([]NodeID, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var args []NodeID
	if p.peek().Kind != TokRParen {
		var err error
		if args, err = p.parseScalarList(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	if len(args) < minArgs || (maxArgs >= 0 && len(args) > maxArgs) {
		return nil, p.errorf(fn.Pos, "%s: wrong number of arguments (%d)", strings.ToUpper(fn.Lit), len(args))
	}
	return args, nil
}

func (p *parser) parseAggregate(name string) (NodeID, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return NoNode, err
	}
	distinct := p.accept("DISTINCT")
	arg, err := p.parseScalar()
	if err != nil {
		return NoNode, err
	}
	if _, err := p.expect(TokRParen); err != nil {
		return NoNode, err
	}
	id := p.tree.New(KindAggregate, name, arg)
	p.tree.SetFlag(id, FlagDistinct, distinct)
	return id, nil
}

// parseTrim: TRIM([[LEADING|TRAILING|BOTH] [char] FROM] source)
func (p *parser) parseTrim() (NodeID, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return NoNode, err
	}
	spec := ""
	for _, s := range []string{"LEADING", "TRAILING", "BOTH"} {
		if p.accept(s) {
			spec = s
			break
		}
	}
	char, source := NoNode, NoNode
	switch {
	case spec != "" && p.accept("FROM"):
		src, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		source = src
	default:
		first, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		if p.accept("FROM") {
			char = first
			if source, err = p.parseScalar(); err != nil {
				return NoNode, err
			}
		} else if spec != "" {
			return NoNode, p.unexpected("FROM")
		} else {
			source = first
		}
	}
	if _, err := p.expect(TokRParen); err != nil {
		return NoNode, err
	}
	id := p.tree.New(KindTrim, spec)
	if char != NoNode {
		p.tree.AppendChild(id, char)
		p.tree.SetFlag(id, FlagTrimChar, true)
	}
	p.tree.AppendChild(id, source)
	return id, nil
}

func (p *parser) parseCase() (NodeID, error) {
	var kids []NodeID
	simple := !p.at("WHEN")
	if simple {
		operand, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		kids = append(kids, operand)
	}
	if !p.at("WHEN") {
		return NoNode, p.unexpected("WHEN")
	}
	for p.accept("WHEN") {
		var cond NodeID
		var err error
		if simple {
			cond, err = p.parseScalar()
		} else {
			cond, err = p.parseCondition()
		}
		if err != nil {
			return NoNode, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return NoNode, err
		}
		result, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		kids = append(kids, p.tree.New(KindWhen, "", cond, result))
	}
	if p.accept("ELSE") {
		result, err := p.parseScalar()
		if err != nil {
			return NoNode, err
		}
		kids = append(kids, p.tree.New(KindElse, "", result))
	}
	if err := p.expectKeyword("END"); err != nil {
		return NoNode, err
	}
	id := p.tree.New(KindCase, "", kids...)
	p.tree.SetFlag(id, FlagOperand, simple)
	return id, nil
}

// --- Token helpers ---

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) Token {
	if i := p.pos + offset; i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() Token {
	tok := p.toks[p.pos]
	if tok.Kind != TokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) at(keyword string) bool {
	return p.peek().Is(keyword)
}

func (p *parser) accept(keyword string) bool {
	if p.at(keyword) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) acceptKind(kind TokenKind) bool {
	if p.peek().Kind == kind {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return Token{}, p.unexpected(kind.String())
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(keywords ...string) error {
	for _, kw := range keywords {
		if !p.accept(kw) {
			return p.unexpected(kw)
		}
	}
	return nil
}

func (p *parser) unexpected(expected ...string) error {
	tok := p.peek()
	return &ParseError{Pos: tok.Pos, Found: tok.display(), Expected: expected}
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return newParseError(pos, format, args...)
}
