package oql

import (
	"strings"
)

// Binding strength used to decide where parentheses are required.
const (
	precOr = iota + 1
	precAnd
	precNot
	precPredicate
	precAdditive
	precMultiplicative
	precUnary
	precPrimary
)

// Render serializes the subtree rooted at id back to query text. The output
// parses to an equivalent tree; keyword casing and spacing are normalized.
func Render(t *Tree, id NodeID) string {
	var b strings.Builder
	r := renderer{t: t, b: &b}
	r.node(id)
	return b.String()
}

// String renders the whole tree.
func (t *Tree) String() string {
	if t.root == NoNode {
		return ""
	}
	return Render(t, t.root)
}

// Precedence returns how tightly the node binds when rendered.
func Precedence(t *Tree, id NodeID) int {
	switch t.Kind(id) {
	case KindOr:
		return precOr
	case KindAnd:
		return precAnd
	case KindNot:
		return precNot
	case KindCompare, KindBetween, KindLike, KindIsNull, KindIsEmpty,
		KindIn, KindMemberOf, KindExists:
		return precPredicate
	case KindArith:
		if op := t.Text(id); op == "*" || op == "/" {
			return precMultiplicative
		}
		return precAdditive
	case KindNegate:
		return precUnary
	}
	return precPrimary
}

type renderer struct {
	t *Tree
	b *strings.Builder
}

func (r *renderer) write(parts ...string) {
	for _, s := range parts {
		r.b.WriteString(s)
	}
}

// operand renders id, parenthesized when it binds looser than min.
func (r *renderer) operand(id NodeID, min int) {
	if Precedence(r.t, id) < min {
		r.write("(")
		r.node(id)
		r.write(")")
		return
	}
	r.node(id)
}

func (r *renderer) list(ids []NodeID, sep string, min int) {
	for i, c := range ids {
		if i > 0 {
			r.write(sep)
		}
		r.operand(c, min)
	}
}

func (r *renderer) not(id NodeID) {
	if r.t.Has(id, FlagNegated) {
		r.write(" NOT")
	}
}

func (r *renderer) node(id NodeID) {
	t := r.t
	kids := t.Children(id)
	switch t.Kind(id) {
	case KindSelect:
		r.selectBody(id)
	case KindSubquery:
		r.write("(")
		r.selectBody(id)
		r.write(")")
	case KindUpdate:
		r.write("UPDATE ")
		r.list(t.Children(t.Find(id, KindFrom)), ", ", 0)
		r.write(" SET ")
		r.list(t.Children(t.Find(id, KindSet)), ", ", 0)
		r.clause(id, KindWhere, " WHERE ")
	case KindDelete:
		r.write("DELETE FROM ")
		r.list(t.Children(t.Find(id, KindFrom)), ", ", 0)
		r.clause(id, KindWhere, " WHERE ")
	case KindRule:
		r.write("GRANT ")
		for _, a := range []struct {
			flag Flags
			word string
		}{{FlagCreate, "CREATE "}, {FlagRead, "READ "}, {FlagUpdate, "UPDATE "}, {FlagDelete, "DELETE "}} {
			if t.Has(id, a.flag) {
				r.write(a.word)
			}
		}
		r.write("ACCESS TO ")
		r.list(t.Children(t.Find(id, KindFrom)), ", ", 0)
		r.clause(id, KindWhere, " WHERE ")

	case KindSelectClause:
		if t.Has(id, FlagDistinct) {
			r.write("DISTINCT ")
		}
		r.list(kids, ", ", 0)
	case KindFrom, KindGroupBy, KindOrderBy, KindSet:
		r.list(kids, ", ", 0)
	case KindWhere:
		r.write("WHERE ")
		r.node(kids[0])
	case KindHaving:
		r.write("HAVING ")
		r.node(kids[0])
	case KindOrderItem:
		r.node(kids[0])
		if t.Has(id, FlagDesc) {
			r.write(" DESC")
		}
	case KindAssign:
		r.node(kids[0])
		r.write(" = ")
		r.operand(kids[1], precAdditive)

	case KindRangeDecl:
		r.write(t.Text(id))
		for _, c := range kids {
			r.write(" ")
			r.node(c)
		}
	case KindJoin:
		switch {
		case t.Has(id, FlagOuter):
			r.write("LEFT OUTER JOIN ")
		default:
			r.write("JOIN ")
		}
		if t.Has(id, FlagFetch) {
			r.write("FETCH ")
		}
		r.node(kids[0])
		for _, c := range kids[1:] {
			if t.Kind(c) == KindAlias {
				r.write(" ")
				r.node(c)
				continue
			}
			if t.Has(id, FlagWith) {
				r.write(" WITH ")
			} else {
				r.write(" ON ")
			}
			r.node(c)
		}
	case KindCollectionMember:
		r.write("IN(")
		r.node(kids[0])
		r.write(") ")
		r.node(kids[1])
	case KindAlias, KindIdent:
		r.write(t.Text(id))
	case KindPath:
		r.operand(kids[0], precPrimary)
		r.write(".", t.Text(id))

	case KindOr:
		r.list(kids, " OR ", precAnd)
	case KindAnd:
		r.list(kids, " AND ", precNot)
	case KindNot:
		r.write("NOT ")
		r.operand(kids[0], precNot)
	case KindParen:
		r.write("(")
		r.node(kids[0])
		r.write(")")
	case KindCompare:
		r.operand(kids[0], precAdditive)
		r.write(" ", t.Text(id), " ")
		r.operand(kids[1], precAdditive)
	case KindBetween:
		r.operand(kids[0], precAdditive)
		r.not(id)
		r.write(" BETWEEN ")
		r.operand(kids[1], precAdditive)
		r.write(" AND ")
		r.operand(kids[2], precAdditive)
	case KindLike:
		r.operand(kids[0], precAdditive)
		r.not(id)
		r.write(" LIKE ")
		r.operand(kids[1], precAdditive)
		if len(kids) > 2 {
			r.write(" ESCAPE ")
			r.operand(kids[2], precAdditive)
		}
	case KindIsNull, KindIsEmpty:
		r.operand(kids[0], precAdditive)
		r.write(" IS")
		r.not(id)
		if t.Kind(id) == KindIsNull {
			r.write(" NULL")
		} else {
			r.write(" EMPTY")
		}
	case KindIn:
		r.operand(kids[0], precAdditive)
		r.not(id)
		r.write(" IN ")
		switch {
		case t.Has(id, FlagBare), len(kids) == 2 && t.Kind(kids[1]) == KindSubquery:
			r.node(kids[1])
		default:
			r.write("(")
			r.list(kids[1:], ", ", 0)
			r.write(")")
		}
	case KindMemberOf:
		r.operand(kids[0], precAdditive)
		r.not(id)
		r.write(" MEMBER OF ")
		r.node(kids[1])
	case KindExists:
		if t.Has(id, FlagNegated) {
			r.write("NOT ")
		}
		r.write("EXISTS ")
		r.node(kids[0])
	case KindAllAny:
		r.write(t.Text(id), " ")
		r.node(kids[0])

	case KindArith:
		prec := Precedence(t, id)
		r.operand(kids[0], prec)
		r.write(" ", t.Text(id), " ")
		r.operand(kids[1], prec+1)
	case KindNegate:
		r.write("-")
		// "--" would start a comment.
		if k := t.Kind(kids[0]); k == KindNegate || k == KindNumber && strings.HasPrefix(t.Text(kids[0]), "-") {
			r.write(" ")
		}
		r.operand(kids[0], precUnary)
	case KindFunc:
		r.write(t.Text(id))
		if fn, ok := GetFunction(t.Text(id)); !ok || fn.Returns != ValueTemporal {
			r.write("(")
			r.list(kids, ", ", 0)
			r.write(")")
		}
	case KindTrim:
		r.write("TRIM(")
		if spec := t.Text(id); spec != "" {
			r.write(spec, " ")
		}
		if t.Has(id, FlagTrimChar) {
			r.node(kids[0])
			r.write(" ")
		}
		if t.Text(id) != "" || t.Has(id, FlagTrimChar) {
			r.write("FROM ")
		}
		r.node(kids[len(kids)-1])
		r.write(")")
	case KindAggregate:
		r.write(t.Text(id), "(")
		if t.Has(id, FlagDistinct) {
			r.write("DISTINCT ")
		}
		r.node(kids[0])
		r.write(")")
	case KindCase:
		r.write("CASE ")
		for _, c := range kids {
			r.node(c)
			r.write(" ")
		}
		r.write("END")
	case KindWhen:
		r.write("WHEN ")
		r.node(kids[0])
		r.write(" THEN ")
		r.node(kids[1])
	case KindElse:
		r.write("ELSE ")
		r.node(kids[0])
	case KindCoalesce:
		r.write("COALESCE(")
		r.list(kids, ", ", 0)
		r.write(")")
	case KindNullIf:
		r.write("NULLIF(")
		r.list(kids, ", ", 0)
		r.write(")")
	case KindConstructor:
		r.write("NEW ", t.Text(id), "(")
		r.list(kids, ", ", 0)
		r.write(")")
	case KindAs:
		r.node(kids[0])
		r.write(" AS ", t.Text(id))
	case KindKey, KindValue, KindEntry:
		r.write(strings.ToUpper(t.Kind(id).String()), "(")
		r.node(kids[0])
		r.write(")")

	case KindString:
		r.write("'", strings.ReplaceAll(t.Text(id), "'", "''"), "'")
	case KindNumber, KindBoolean:
		r.write(t.Text(id))
	case KindNull:
		r.write("NULL")
	case KindNamedParam:
		r.write(":", t.Text(id))
	case KindPositionalParam:
		r.write("?", t.Text(id))
	case KindInvalid:
		r.write("<invalid>")
	}
}

func (r *renderer) selectBody(id NodeID) {
	t := r.t
	r.write("SELECT ")
	r.node(t.Find(id, KindSelectClause))
	r.write(" FROM ")
	r.node(t.Find(id, KindFrom))
	r.clause(id, KindWhere, " WHERE ")
	if g := t.Find(id, KindGroupBy); g != NoNode {
		r.write(" GROUP BY ")
		r.node(g)
	}
	r.clause(id, KindHaving, " HAVING ")
	if o := t.Find(id, KindOrderBy); o != NoNode {
		r.write(" ORDER BY ")
		r.node(o)
	}
}

// clause renders the condition of a WHERE or HAVING child, if present.
func (r *renderer) clause(id NodeID, kind Kind, prefix string) {
	c := r.t.Find(id, kind)
	if c == NoNode {
		return
	}
	r.write(prefix)
	r.node(r.t.Child(c, 0))
}
