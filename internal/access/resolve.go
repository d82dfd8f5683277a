package access

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/atlekbai/accessql/internal/oql"
	"github.com/atlekbai/accessql/internal/schema"
)

// Mapping is the entity-mapping model consulted for type resolution.
// *schema.Cache implements it.
type Mapping interface {
	Get(name string) *schema.EntityDef
	IsAssignable(super, sub string) bool
}

// JoinKind records how an identification variable was introduced.
type JoinKind uint8

const (
	JoinNone JoinKind = iota // range variable
	JoinInner
	JoinOuter
	JoinInnerFetch
	JoinOuterFetch
)

func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "INNER"
	case JoinOuter:
		return "OUTER"
	case JoinInnerFetch:
		return "INNER FETCH"
	case JoinOuterFetch:
		return "OUTER FETCH"
	}
	return "NONE"
}

func joinKind(f oql.Flags) JoinKind {
	switch {
	case f&oql.FlagOuter != 0 && f&oql.FlagFetch != 0:
		return JoinOuterFetch
	case f&oql.FlagOuter != 0:
		return JoinOuter
	case f&oql.FlagFetch != 0:
		return JoinInnerFetch
	}
	return JoinInner
}

// TypeDefinition binds an identification variable to an entity type.
type TypeDefinition struct {
	Alias  string
	Entity *schema.EntityDef // element or map value type
	// Collection is set when the variable ranges over a collection- or
	// map-valued relationship.
	Collection bool
	Map        bool
	Basic      string            // element type of a basic collection or map
	KeyEntity  *schema.EntityDef // entity key of a map, if any
	KeyType    string            // basic key type of a map, if any
	Join       JoinKind
}

// Type is the static type of an expression.
type Type struct {
	Entity     *schema.EntityDef
	Basic      string
	Collection bool // value is a collection of Entity
	Map        bool
	KeyEntity  *schema.EntityDef
	KeyType    string
}

// IsEntity reports whether the expression denotes a single entity.
func (t Type) IsEntity() bool {
	return t.Entity != nil && !t.Collection
}

// Scope holds the TypeDefinitions of one FROM clause. Lookups fall back to
// the enclosing scope, which is how correlated subselects see outer aliases.
type Scope struct {
	parent *Scope
	defs   []TypeDefinition
	index  map[string]int
	fold   cases.Caser
}

// NewScope creates an empty scope nested in parent, which may be nil.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, index: make(map[string]int), fold: cases.Fold()}
}

// Parent returns the enclosing scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Definitions returns the local bindings in declaration order.
func (s *Scope) Definitions() []TypeDefinition {
	return append([]TypeDefinition(nil), s.defs...)
}

// Lookup finds alias in this scope or an enclosing one.
func (s *Scope) Lookup(alias string) (*TypeDefinition, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if def, ok := sc.LookupLocal(alias); ok {
			return def, true
		}
	}
	return nil, false
}

// LookupLocal finds alias in this scope only.
func (s *Scope) LookupLocal(alias string) (*TypeDefinition, bool) {
	if i, ok := s.index[s.fold.String(alias)]; ok {
		return &s.defs[i], true
	}
	return nil, false
}

func (s *Scope) add(def TypeDefinition) error {
	key := s.fold.String(def.Alias)
	if _, dup := s.index[key]; dup {
		return notEvaluatable(def.Alias, "identification variable declared twice")
	}
	s.index[key] = len(s.defs)
	s.defs = append(s.defs, def)
	return nil
}

// Resolver binds aliases and paths to mapped types. It holds no per-call
// state and may be shared.
type Resolver struct {
	mapping Mapping
}

func NewResolver(mapping Mapping) *Resolver {
	return &Resolver{mapping: mapping}
}

// ResolveTypeDefinitions walks a FROM clause left to right and returns its
// scope. parent is the scope of the enclosing query for subselects.
func (r *Resolver) ResolveTypeDefinitions(tree *oql.Tree, from oql.NodeID, parent *Scope) (*Scope, error) {
	scope := NewScope(parent)
	for _, item := range tree.Children(from) {
		switch tree.Kind(item) {
		case oql.KindRangeDecl:
			if err := r.bindRange(tree, item, scope); err != nil {
				return nil, err
			}
		case oql.KindCollectionMember:
			path := tree.Child(item, 0)
			typ, err := r.ResolveType(tree, path, scope)
			if err != nil {
				return nil, err
			}
			if !typ.Collection || typ.Entity == nil {
				return nil, notEvaluatable(oql.Render(tree, path), "IN requires a collection of entities")
			}
			def := collectionDefinition(tree.Text(tree.Child(item, 1)), typ, JoinInner)
			if err := scope.add(def); err != nil {
				return nil, err
			}
		}
	}
	return scope, nil
}

func (r *Resolver) bindRange(tree *oql.Tree, item oql.NodeID, scope *Scope) error {
	name := tree.Text(item)
	def := TypeDefinition{Join: JoinNone}
	if ent := r.mapping.Get(name); ent != nil {
		def.Entity = ent
	} else if root, rest, ok := strings.Cut(name, "."); ok {
		// Derived path in a subselect: FROM t.children c.
		outer, found := scope.Lookup(root)
		if !found {
			return notEvaluatable(name, "unknown entity or identification variable %q", root)
		}
		typ, err := r.navigate(name, outer.elementType(), strings.Split(rest, "."))
		if err != nil {
			return err
		}
		def = collectionDefinition("", typ, JoinInner)
	} else {
		return fmt.Errorf("%w %q", ErrUnknownEntity, name)
	}

	if alias := tree.Find(item, oql.KindAlias); alias != oql.NoNode {
		def.Alias = tree.Text(alias)
		if err := scope.add(def); err != nil {
			return err
		}
	}

	for _, join := range tree.Children(item) {
		if tree.Kind(join) != oql.KindJoin {
			continue
		}
		path := tree.Child(join, 0)
		typ, err := r.ResolveType(tree, path, scope)
		if err != nil {
			return err
		}
		if typ.Entity == nil && !typ.Collection {
			return notEvaluatable(oql.Render(tree, path), "join target is not a relationship")
		}
		alias := tree.Find(join, oql.KindAlias)
		if alias == oql.NoNode {
			continue
		}
		if err := scope.add(collectionDefinition(tree.Text(alias), typ, joinKind(tree.Flags(join)))); err != nil {
			return err
		}
	}
	return nil
}

func collectionDefinition(alias string, typ Type, join JoinKind) TypeDefinition {
	return TypeDefinition{
		Alias:      alias,
		Entity:     typ.Entity,
		Collection: typ.Collection,
		Map:        typ.Map,
		Basic:      typ.Basic,
		KeyEntity:  typ.KeyEntity,
		KeyType:    typ.KeyType,
		Join:       join,
	}
}

// elementType is the type an identification variable denotes.
func (d *TypeDefinition) elementType() Type {
	return Type{Entity: d.Entity, Basic: d.Basic, Map: d.Map, KeyEntity: d.KeyEntity, KeyType: d.KeyType}
}

// ResolveType computes the static type of expr.
func (r *Resolver) ResolveType(tree *oql.Tree, expr oql.NodeID, scope *Scope) (Type, error) {
	switch tree.Kind(expr) {
	case oql.KindIdent:
		def, ok := scope.Lookup(tree.Text(expr))
		if !ok {
			return Type{}, notEvaluatable(tree.Text(expr), "unknown identification variable")
		}
		return def.elementType(), nil
	case oql.KindKey:
		def, err := mapVariable(tree, expr, scope)
		if err != nil {
			return Type{}, err
		}
		return Type{Entity: def.KeyEntity, Basic: def.KeyType}, nil
	case oql.KindValue:
		def, err := mapVariable(tree, expr, scope)
		if err != nil {
			return Type{}, err
		}
		return Type{Entity: def.Entity, Basic: def.Basic}, nil
	case oql.KindEntry:
		if _, err := mapVariable(tree, expr, scope); err != nil {
			return Type{}, err
		}
		return Type{Basic: "entry"}, nil
	case oql.KindPath:
		root, err := r.ResolveType(tree, tree.Child(expr, 0), scope)
		if err != nil {
			return Type{}, err
		}
		return r.navigate(oql.Render(tree, expr), root, strings.Split(tree.Text(expr), "."))
	case oql.KindParen, oql.KindAs:
		return r.ResolveType(tree, tree.Child(expr, 0), scope)
	case oql.KindCase:
		for _, c := range tree.Children(expr) {
			switch tree.Kind(c) {
			case oql.KindWhen:
				return r.ResolveType(tree, tree.Child(c, 1), scope)
			case oql.KindElse:
				return r.ResolveType(tree, tree.Child(c, 0), scope)
			}
		}
		return Type{}, notEvaluatable(oql.Render(tree, expr), "CASE without branches")
	case oql.KindCoalesce, oql.KindNullIf:
		return r.ResolveType(tree, tree.Child(expr, 0), scope)
	case oql.KindSubquery:
		sub, err := r.ResolveTypeDefinitions(tree, tree.Find(expr, oql.KindFrom), scope)
		if err != nil {
			return Type{}, err
		}
		sel := tree.Find(expr, oql.KindSelectClause)
		return r.ResolveType(tree, tree.Child(sel, 0), sub)
	case oql.KindAggregate:
		if tree.Text(expr) == "COUNT" {
			return Type{Basic: "number"}, nil
		}
		arg, err := r.ResolveType(tree, tree.Child(expr, 0), scope)
		if err != nil {
			return Type{}, err
		}
		if arg.Basic == "" {
			return Type{Basic: "number"}, nil
		}
		return Type{Basic: arg.Basic}, nil
	case oql.KindFunc:
		if fn, ok := oql.GetFunction(tree.Text(expr)); ok {
			switch fn.Returns {
			case oql.ValueString:
				return Type{Basic: "string"}, nil
			case oql.ValueTemporal:
				return Type{Basic: "temporal"}, nil
			}
		}
		return Type{Basic: "number"}, nil
	case oql.KindArith, oql.KindNegate, oql.KindNumber:
		return Type{Basic: "number"}, nil
	case oql.KindString, oql.KindTrim:
		return Type{Basic: "string"}, nil
	case oql.KindNull:
		return Type{Basic: "null"}, nil
	case oql.KindNamedParam, oql.KindPositionalParam:
		return Type{Basic: "parameter"}, nil
	case oql.KindConstructor:
		return Type{Basic: tree.Text(expr)}, nil
	}
	return Type{Basic: "boolean"}, nil
}

// ResolvePropertyMapping returns the mapped property a path ends at.
func (r *Resolver) ResolvePropertyMapping(tree *oql.Tree, path oql.NodeID, scope *Scope) (*schema.PropertyDef, error) {
	text := oql.Render(tree, path)
	if tree.Kind(path) != oql.KindPath {
		return nil, notEvaluatable(text, "not a property path")
	}
	owner, err := r.ResolveType(tree, tree.Child(path, 0), scope)
	if err != nil {
		return nil, err
	}
	segs := strings.Split(tree.Text(path), ".")
	if owner, err = r.navigate(text, owner, segs[:len(segs)-1]); err != nil {
		return nil, err
	}
	last := segs[len(segs)-1]
	if owner.Entity == nil || owner.Collection {
		return nil, notEvaluatable(text, "cannot navigate to %q", last)
	}
	prop, ok := owner.Entity.Property(last)
	if !ok {
		return nil, notEvaluatable(text, "entity %s has no property %q", owner.Entity.Name, last)
	}
	return prop, nil
}

func (r *Resolver) navigate(expr string, t Type, segs []string) (Type, error) {
	for _, seg := range segs {
		if t.Entity == nil {
			return Type{}, notEvaluatable(expr, "cannot navigate %q on a basic value", seg)
		}
		if t.Collection {
			return Type{}, notEvaluatable(expr, "cannot navigate %q through a collection-valued path", seg)
		}
		prop, ok := t.Entity.Property(seg)
		if !ok {
			return Type{}, notEvaluatable(expr, "entity %s has no property %q", t.Entity.Name, seg)
		}
		t = r.propertyType(prop)
	}
	return t, nil
}

func (r *Resolver) propertyType(p *schema.PropertyDef) Type {
	switch p.Kind {
	case schema.PropertyReference:
		return Type{Entity: r.mapping.Get(p.Target)}
	case schema.PropertyCollection:
		return Type{Entity: r.mapping.Get(p.Target), Collection: true}
	case schema.PropertyMap:
		t := Type{Collection: true, Map: true, KeyType: p.KeyType}
		if p.Target != "" {
			t.Entity = r.mapping.Get(p.Target)
		} else {
			t.Basic = p.Type
		}
		if p.KeyTarget != "" {
			t.KeyEntity = r.mapping.Get(p.KeyTarget)
		}
		return t
	}
	return Type{Basic: p.Type}
}

func mapVariable(tree *oql.Tree, expr oql.NodeID, scope *Scope) (*TypeDefinition, error) {
	name := tree.Text(tree.Child(expr, 0))
	def, ok := scope.Lookup(name)
	if !ok {
		return nil, notEvaluatable(oql.Render(tree, expr), "unknown identification variable")
	}
	if !def.Map {
		return nil, notEvaluatable(oql.Render(tree, expr), "%s is not bound to a map", name)
	}
	return def, nil
}
