package access

import "github.com/atlekbai/accessql/internal/oql"

// arm is one branch of a conditional selection. The default arm has no
// guard; an arm whose result is NULL has no result.
type arm struct {
	guard  oql.NodeID
	result oql.NodeID
}

// arms lists the branches of a CASE, COALESCE or NULLIF in evaluation order.
// Guards synthesized for simple CASE, COALESCE and NULLIF are detached
// nodes of t.
func arms(t *oql.Tree, id oql.NodeID) []arm {
	var out []arm
	switch t.Kind(id) {
	case oql.KindCase:
		operand := oql.NoNode
		kids := t.Children(id)
		if t.Has(id, oql.FlagOperand) {
			operand, kids = kids[0], kids[1:]
		}
		for _, c := range kids {
			switch t.Kind(c) {
			case oql.KindWhen:
				guard := t.Child(c, 0)
				if operand != oql.NoNode {
					guard = t.New(oql.KindCompare, "=", t.Copy(t, operand), t.Copy(t, guard))
				}
				out = append(out, arm{guard: guard, result: t.Child(c, 1)})
			case oql.KindElse:
				out = append(out, arm{guard: oql.NoNode, result: t.Child(c, 0)})
			}
		}
	case oql.KindCoalesce:
		kids := t.Children(id)
		last := len(kids) - 1
		for _, c := range kids[:last] {
			notNull := t.New(oql.KindIsNull, "", t.Copy(t, c))
			t.SetFlag(notNull, oql.FlagNegated, true)
			out = append(out, arm{guard: notNull, result: c})
		}
		out = append(out, arm{guard: oql.NoNode, result: kids[last]})
	case oql.KindNullIf:
		a, b := t.Child(id, 0), t.Child(id, 1)
		out = append(out,
			arm{guard: t.New(oql.KindCompare, "=", t.Copy(t, a), t.Copy(t, b)), result: oql.NoNode},
			arm{guard: oql.NoNode, result: a},
		)
	}
	return out
}

var negatedOps = map[string]string{
	"=":  "<>",
	"<>": "=",
	"!=": "=",
	"<":  ">=",
	">=": "<",
	">":  "<=",
	"<=": ">",
}

// negate returns the logical complement of the condition id, rewriting it
// in place where possible. id must be a copy the caller owns.
func negate(t *oql.Tree, id oql.NodeID) oql.NodeID {
	kind := t.Kind(id)
	if kind.Negatable() {
		t.SetFlag(id, oql.FlagNegated, !t.Has(id, oql.FlagNegated))
		return id
	}
	switch kind {
	case oql.KindCompare:
		if t.Kind(t.Child(id, 1)) != oql.KindAllAny {
			if op, ok := negatedOps[t.Text(id)]; ok {
				t.SetText(id, op)
				return id
			}
		}
	case oql.KindNot:
		inner := t.Child(id, 0)
		t.Detach(inner)
		return inner
	case oql.KindAnd, oql.KindOr:
		flipped := oql.KindOr
		if kind == oql.KindOr {
			flipped = oql.KindAnd
		}
		kids := append([]oql.NodeID(nil), t.Children(id)...)
		out := t.New(flipped, "")
		for _, c := range kids {
			t.AppendChild(out, negate(t, c))
		}
		return out
	case oql.KindParen:
		inner := t.Child(id, 0)
		t.Detach(inner)
		return t.New(oql.KindParen, "", negate(t, inner))
	case oql.KindBoolean:
		if t.Text(id) == "TRUE" {
			t.SetText(id, "FALSE")
		} else {
			t.SetText(id, "TRUE")
		}
		return id
	}
	t.Detach(id)
	return t.New(oql.KindNot, "", id)
}

// conditional builds one term per arm: the arm's restriction must hold
// unless the arm is not the one selected, i.e.
//
//	g1 OR ... OR g(i-1) OR NOT gi OR restriction(ri)
//
// The default arm omits NOT gi.
func (rw *rewrite) conditional(id oql.NodeID) []oql.NodeID {
	t := rw.tree
	list := arms(t, id)
	var out []oql.NodeID
	for i, a := range list {
		if a.result == oql.NoNode {
			continue
		}
		restriction := rw.conjunction(rw.terms(a.result))
		if isBoolean(t, restriction, "TRUE") {
			continue
		}
		parts := make([]oql.NodeID, 0, i+2)
		for _, prev := range list[:i] {
			parts = append(parts, t.Copy(t, prev.guard))
		}
		if a.guard != oql.NoNode {
			parts = append(parts, negate(t, t.Copy(t, a.guard)))
		}
		parts = append(parts, restriction)
		out = append(out, t.New(oql.KindParen, "", disjunction(t, parts)))
	}
	return out
}

// disjunction joins parts with OR, flattening nested ORs.
func disjunction(t *oql.Tree, parts []oql.NodeID) oql.NodeID {
	if len(parts) == 1 {
		return parts[0]
	}
	or := t.New(oql.KindOr, "")
	for _, p := range parts {
		if t.Kind(p) == oql.KindOr {
			for _, c := range append([]oql.NodeID(nil), t.Children(p)...) {
				t.AppendChild(or, c)
			}
			continue
		}
		t.AppendChild(or, p)
	}
	return or
}

func isBoolean(t *oql.Tree, id oql.NodeID, value string) bool {
	return t.Kind(id) == oql.KindBoolean && t.Text(id) == value
}
