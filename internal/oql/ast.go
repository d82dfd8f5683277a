package oql

import "fmt"

// NodeID addresses a node inside a Tree.
type NodeID int32

// NoNode is the absent node.
const NoNode NodeID = -1

// Kind tags a node. The set is closed; every traversal switches over it.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Statements.
	KindSelect   // [SelectClause, From, Where?, GroupBy?, Having?, OrderBy?]
	KindUpdate   // [From, Set, Where?]
	KindDelete   // [From, Where?]
	KindRule     // [From, Where?]; access keywords in Flags
	KindSubquery // [SelectClause, From, Where?, GroupBy?, Having?]

	// Clauses.
	KindSelectClause // select items; FlagDistinct
	KindFrom         // RangeDecl | CollectionMember
	KindWhere        // [condition]
	KindGroupBy      // expressions
	KindHaving       // [condition]
	KindOrderBy      // OrderItem...
	KindOrderItem    // [expr]; FlagDesc
	KindSet          // Assign...
	KindAssign       // [path, value]

	// FROM items.
	KindRangeDecl        // Text = entity name; [Alias?, Join...]
	KindJoin             // [path, Alias?, condition?]; FlagOuter, FlagFetch, FlagWith
	KindCollectionMember // [path, Alias]
	KindAlias            // Text = identification variable

	// Names.
	KindIdent // Text = identifier
	KindPath  // Text = dotted segments; [root]

	// Conditions.
	KindAnd      // operands...
	KindOr       // operands...
	KindNot      // [operand]
	KindParen    // [operand]
	KindCompare  // Text = operator; [left, right]
	KindBetween  // [expr, low, high]; FlagNegated
	KindLike     // [expr, pattern, escape?]; FlagNegated
	KindIsNull   // [expr]; FlagNegated
	KindIsEmpty  // [expr]; FlagNegated
	KindIn       // [expr, item... | Subquery]; FlagNegated, FlagBare
	KindMemberOf // [expr, collection]; FlagNegated
	KindExists   // [Subquery]; FlagNegated
	KindAllAny   // Text = ALL | ANY | SOME; [Subquery]

	// Scalar expressions.
	KindArith       // Text = operator; [left, right]
	KindNegate      // [operand]
	KindFunc        // Text = upper-case function name; args...
	KindTrim        // Text = LEADING | TRAILING | BOTH | ""; [char?, source]; FlagTrimChar
	KindAggregate   // Text = upper-case function name; [arg]; FlagDistinct
	KindCase        // [operand?, When..., Else?]; FlagOperand
	KindWhen        // [condition, result]
	KindElse        // [result]
	KindCoalesce    // args...
	KindNullIf      // [a, b]
	KindConstructor // Text = class name; args...
	KindAs          // Text = result variable; [expr]
	KindKey         // [alias]
	KindValue       // [alias]
	KindEntry       // [alias]

	// Literals and parameters.
	KindString          // Text = unescaped value
	KindNumber          // Text = literal
	KindBoolean         // Text = TRUE | FALSE
	KindNull            //
	KindNamedParam      // Text = name without ':'
	KindPositionalParam // Text = position without '?'

	numKinds
)

var kindNames = [...]string{
	KindInvalid:          "Invalid",
	KindSelect:           "Select",
	KindUpdate:           "Update",
	KindDelete:           "Delete",
	KindRule:             "Rule",
	KindSubquery:         "Subquery",
	KindSelectClause:     "SelectClause",
	KindFrom:             "From",
	KindWhere:            "Where",
	KindGroupBy:          "GroupBy",
	KindHaving:           "Having",
	KindOrderBy:          "OrderBy",
	KindOrderItem:        "OrderItem",
	KindSet:              "Set",
	KindAssign:           "Assign",
	KindRangeDecl:        "RangeDecl",
	KindJoin:             "Join",
	KindCollectionMember: "CollectionMember",
	KindAlias:            "Alias",
	KindIdent:            "Ident",
	KindPath:             "Path",
	KindAnd:              "And",
	KindOr:               "Or",
	KindNot:              "Not",
	KindParen:            "Paren",
	KindCompare:          "Compare",
	KindBetween:          "Between",
	KindLike:             "Like",
	KindIsNull:           "IsNull",
	KindIsEmpty:          "IsEmpty",
	KindIn:               "In",
	KindMemberOf:         "MemberOf",
	KindExists:           "Exists",
	KindAllAny:           "AllAny",
	KindArith:            "Arith",
	KindNegate:           "Negate",
	KindFunc:             "Func",
	KindTrim:             "Trim",
	KindAggregate:        "Aggregate",
	KindCase:             "Case",
	KindWhen:             "When",
	KindElse:             "Else",
	KindCoalesce:         "Coalesce",
	KindNullIf:           "NullIf",
	KindConstructor:      "Constructor",
	KindAs:               "As",
	KindKey:              "Key",
	KindValue:            "Value",
	KindEntry:            "Entry",
	KindString:           "String",
	KindNumber:           "Number",
	KindBoolean:          "Boolean",
	KindNull:             "Null",
	KindNamedParam:       "NamedParam",
	KindPositionalParam:  "PositionalParam",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Negatable reports whether NOT folds into the node as FlagNegated.
func (k Kind) Negatable() bool {
	switch k {
	case KindBetween, KindLike, KindIsNull, KindIsEmpty, KindIn, KindMemberOf, KindExists:
		return true
	}
	return false
}

// Flags holds per-node boolean attributes.
type Flags uint16

const (
	FlagNegated  Flags = 1 << iota // NOT folded into a predicate
	FlagDistinct                   // SELECT DISTINCT, COUNT(DISTINCT x)
	FlagDesc                       // ORDER BY x DESC
	FlagOuter                      // LEFT [OUTER] JOIN
	FlagFetch                      // JOIN FETCH
	FlagWith                       // join condition written with WITH instead of ON
	FlagOperand                    // simple CASE with an operand
	FlagBare                       // IN :param without parentheses
	FlagTrimChar                   // TRIM with an explicit trim character

	// Rule head access keywords.
	FlagCreate
	FlagRead
	FlagUpdate
	FlagDelete
)

type node struct {
	kind     Kind
	flags    Flags
	text     string
	parent   NodeID
	children []NodeID
}

// Tree is an arena of nodes addressed by NodeID. Parent links are kept in
// step with child lists by every mutating method.
type Tree struct {
	nodes []node
	root  NodeID
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{root: NoNode}
}

// Root returns the root node, or NoNode.
func (t *Tree) Root() NodeID { return t.root }

// SetRoot makes id the root of the tree.
func (t *Tree) SetRoot(id NodeID) {
	t.detach(id)
	t.root = id
}

// Len returns the number of nodes in the arena, attached or not.
func (t *Tree) Len() int { return len(t.nodes) }

// New adds a node and adopts the given children, detaching them from any
// previous parent.
func (t *Tree) New(kind Kind, text string, children ...NodeID) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{kind: kind, text: text, parent: NoNode})
	for _, c := range children {
		t.AppendChild(id, c)
	}
	return id
}

func (t *Tree) Kind(id NodeID) Kind     { return t.nodes[id].kind }
func (t *Tree) Text(id NodeID) string   { return t.nodes[id].text }
func (t *Tree) Flags(id NodeID) Flags   { return t.nodes[id].flags }
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].parent }

// SetText replaces the node's text.
func (t *Tree) SetText(id NodeID, text string) { t.nodes[id].text = text }

// Has reports whether all of f are set on the node.
func (t *Tree) Has(id NodeID, f Flags) bool { return t.nodes[id].flags&f == f }

// SetFlags overwrites the node's flags.
func (t *Tree) SetFlags(id NodeID, f Flags) { t.nodes[id].flags = f }

// SetFlag turns f on or off.
func (t *Tree) SetFlag(id NodeID, f Flags, on bool) {
	if on {
		t.nodes[id].flags |= f
	} else {
		t.nodes[id].flags &^= f
	}
}

// Children returns the child list. The slice must not be modified.
func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].children }

// NumChildren returns the number of children of id.
func (t *Tree) NumChildren(id NodeID) int { return len(t.nodes[id].children) }

// Child returns the i-th child, or NoNode when out of range.
func (t *Tree) Child(id NodeID, i int) NodeID {
	c := t.nodes[id].children
	if i < 0 || i >= len(c) {
		return NoNode
	}
	return c[i]
}

// Find returns the first direct child of the given kind, or NoNode.
func (t *Tree) Find(id NodeID, kind Kind) NodeID {
	for _, c := range t.nodes[id].children {
		if t.nodes[c].kind == kind {
			return c
		}
	}
	return NoNode
}

// AppendChild adds child as the last child of parent.
func (t *Tree) AppendChild(parent, child NodeID) {
	t.InsertChild(parent, len(t.nodes[parent].children), child)
}

// InsertChild inserts child at position i of parent's child list.
func (t *Tree) InsertChild(parent NodeID, i int, child NodeID) {
	t.detach(child)
	c := t.nodes[parent].children
	c = append(c, NoNode)
	copy(c[i+1:], c[i:])
	c[i] = child
	t.nodes[parent].children = c
	t.nodes[child].parent = parent
}

// Replace puts repl in old's position. old is left detached.
func (t *Tree) Replace(old, repl NodeID) {
	if old == repl {
		return
	}
	t.detach(repl)
	p := t.nodes[old].parent
	if p == NoNode {
		if t.root == old {
			t.root = repl
		}
		return
	}
	for i, c := range t.nodes[p].children {
		if c == old {
			t.nodes[p].children[i] = repl
			break
		}
	}
	t.nodes[repl].parent = p
	t.nodes[old].parent = NoNode
}

// Detach removes id from its parent's child list.
func (t *Tree) Detach(id NodeID) { t.detach(id) }

func (t *Tree) detach(id NodeID) {
	if t.root == id {
		t.root = NoNode
	}
	p := t.nodes[id].parent
	if p == NoNode {
		return
	}
	c := t.nodes[p].children
	for i, x := range c {
		if x == id {
			t.nodes[p].children = append(c[:i:i], c[i+1:]...)
			break
		}
	}
	t.nodes[id].parent = NoNode
}

// Copy deep-copies the subtree rooted at id in src into t and returns the
// new, detached root. src may be t itself.
func (t *Tree) Copy(src *Tree, id NodeID) NodeID {
	n := src.nodes[id]
	kids := make([]NodeID, len(n.children))
	for i, c := range n.children {
		kids[i] = t.Copy(src, c)
	}
	cp := t.New(n.kind, n.text, kids...)
	t.nodes[cp].flags = n.flags
	return cp
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if !fn(id) {
		return
	}
	for _, c := range t.nodes[id].children {
		t.Walk(c, fn)
	}
}

// truncate drops every node created at or after n. Only nodes unreachable
// from earlier nodes may be dropped.
func (t *Tree) truncate(n int) {
	t.nodes = t.nodes[:n]
}
