package access

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"golang.org/x/text/cases"

	"github.com/atlekbai/accessql/internal/oql"
	"github.com/atlekbai/accessql/internal/schema"
)

// FilterResult is the outcome of rewriting one query.
type FilterResult struct {
	Tree  *oql.Tree
	Query string
	// Parameters binds the placeholders the injected restrictions use.
	Parameters map[string]any
	// SelectedPaths are the restricted selected values, rendered.
	SelectedPaths   []string
	TypeDefinitions []TypeDefinition
	// AlwaysFalse is set when the restriction can never hold; the caller
	// should return an empty result without running the query.
	AlwaysFalse bool
	Modified    bool
}

// Filter injects access restrictions into queries and checks single
// entities. It is safe for concurrent use once constructed.
type Filter struct {
	mapping  Mapping
	resolver *Resolver
	rules    []*AccessRule
	logger   *slog.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithLogger sets the logger for rewrite diagnostics.
func WithLogger(l *slog.Logger) FilterOption {
	return func(f *Filter) { f.logger = l }
}

func NewFilter(mapping Mapping, rules []*AccessRule, opts ...FilterOption) *Filter {
	f := &Filter{
		mapping:  mapping,
		resolver: NewResolver(mapping),
		rules:    append([]*AccessRule(nil), rules...),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Rules returns the compiled rule set.
func (f *Filter) Rules() []*AccessRule {
	return append([]*AccessRule(nil), f.rules...)
}

// RulesFor returns the rules granting access on instances of entity: rules
// declared for entity itself or for one of its supertypes.
func (f *Filter) RulesFor(entity string, access AccessType) []*AccessRule {
	var out []*AccessRule
	for _, r := range f.rules {
		if r.Grants(access) && f.mapping.IsAssignable(r.Entity.Name, entity) {
			out = append(out, r)
		}
	}
	return out
}

// FilterQuery parses text and restricts it for the given access type.
func (f *Filter) FilterQuery(text string, access AccessType, sc SecurityContext) (*FilterResult, error) {
	tree, err := oql.Parse(text)
	if err != nil {
		return nil, err
	}
	return f.FilterTree(tree, access, sc)
}

// FilterTree restricts a parsed statement in place.
func (f *Filter) FilterTree(tree *oql.Tree, access AccessType, sc SecurityContext) (*FilterResult, error) {
	root := tree.Root()
	switch tree.Kind(root) {
	case oql.KindSelect, oql.KindUpdate, oql.KindDelete:
	default:
		return nil, fmt.Errorf("%w: cannot filter %s", ErrUnsupportedStatement, tree.Kind(root))
	}
	scope, err := f.resolver.ResolveTypeDefinitions(tree, tree.Find(root, oql.KindFrom), nil)
	if err != nil {
		return nil, fmt.Errorf("resolve FROM clause: %w", err)
	}

	rw := &rewrite{
		f:       f,
		tree:    tree,
		scope:   scope,
		access:  access,
		sc:      sc,
		fold:    cases.Fold(),
		params:  make(map[string]any),
		paths:   make(map[string]bool),
		aliases: make(map[string]bool),
	}
	for _, def := range scope.Definitions() {
		if def.Alias != "" {
			rw.aliases[rw.fold.String(def.Alias)] = true
		}
	}
	res := &FilterResult{
		Tree:            tree,
		TypeDefinitions: scope.Definitions(),
	}
	res.TypeDefinitions = append(res.TypeDefinitions, rw.subqueryDefinitions(root, scope)...)

	var raw []oql.NodeID
	switch tree.Kind(root) {
	case oql.KindSelect:
		for _, item := range tree.Children(tree.Find(root, oql.KindSelectClause)) {
			raw = append(raw, rw.terms(item)...)
		}
	default:
		raw = rw.targetTerms(root)
	}

	terms := make([]oql.NodeID, len(raw))
	for i, term := range raw {
		terms[i] = simplify(tree, term)
	}

	var present []oql.NodeID
	if where := tree.Find(root, oql.KindWhere); where != oql.NoNode {
		present = conjuncts(tree, tree.Child(where, 0), nil)
	}
	res.Parameters = rw.bindParams(root, terms, present)
	existing := make(map[string]bool, len(present))
	for _, c := range present {
		existing[oql.Render(tree, c)] = true
	}

	var inject []oql.NodeID
	seen := make(map[string]bool)
	for _, term := range terms {
		if isBoolean(tree, term, "TRUE") {
			continue
		}
		if isBoolean(tree, term, "FALSE") {
			res.AlwaysFalse = true
			inject = inject[:0]
			if !existing["FALSE"] {
				inject = append(inject, term)
			}
			break
		}
		text := oql.Render(tree, term)
		if seen[text] || existing[text] {
			continue
		}
		seen[text] = true
		inject = append(inject, term)
	}

	if len(inject) > 0 {
		injectWhere(tree, root, inject)
		res.Modified = true
	}
	res.SelectedPaths = rw.selected
	res.Query = tree.String()

	f.logger.Debug("filtered query",
		"access", access.String(),
		"terms", len(inject),
		"always_false", res.AlwaysFalse,
		"query", res.Query,
	)
	return res, nil
}

// injectWhere ANDs terms onto the statement's WHERE clause, creating it
// when absent. An existing condition is parenthesized.
func injectWhere(t *oql.Tree, stmt oql.NodeID, terms []oql.NodeID) {
	where := t.Find(stmt, oql.KindWhere)
	if where == oql.NoNode {
		cond := terms[0]
		if len(terms) > 1 {
			cond = t.New(oql.KindAnd, "", terms...)
		}
		after := oql.KindFrom
		if t.Kind(stmt) == oql.KindUpdate {
			after = oql.KindSet
		}
		pos := 0
		for i, c := range t.Children(stmt) {
			if t.Kind(c) == after {
				pos = i + 1
			}
		}
		t.InsertChild(stmt, pos, t.New(oql.KindWhere, "", cond))
		return
	}

	old := t.Child(where, 0)
	if t.Kind(old) != oql.KindParen {
		wrap := t.New(oql.KindParen, "")
		t.Replace(old, wrap)
		t.AppendChild(wrap, old)
		old = wrap
	}
	and := t.New(oql.KindAnd, "")
	t.Replace(old, and)
	t.AppendChild(and, old)
	for _, term := range terms {
		t.AppendChild(and, term)
	}
}

// conjuncts appends cond and every conjunct below it to out, looking
// through parentheses.
func conjuncts(t *oql.Tree, cond oql.NodeID, out []oql.NodeID) []oql.NodeID {
	out = append(out, cond)
	switch t.Kind(cond) {
	case oql.KindAnd:
		for _, c := range t.Children(cond) {
			out = conjuncts(t, c, out)
		}
	case oql.KindParen:
		out = conjuncts(t, t.Child(cond, 0), out)
	}
	return out
}

// bindParams names the parameters the terms introduce and returns their
// bindings. A name the statement already uses for a parameter of its own
// gets a numeric suffix; conjuncts equal to a term were injected by an
// earlier rewrite and are not the statement's own.
func (rw *rewrite) bindParams(stmt oql.NodeID, terms, present []oql.NodeID) map[string]any {
	t := rw.tree
	for suffix := 0; ; suffix++ {
		for _, p := range rw.paramNodes {
			t.SetText(p.id, paramName(p.name, suffix))
		}
		injected := make(map[string]bool, len(terms))
		for _, term := range terms {
			injected[oql.Render(t, term)] = true
		}
		skip := make(map[oql.NodeID]bool)
		for _, c := range present {
			if injected[oql.Render(t, c)] {
				skip[c] = true
			}
		}
		used := make(map[string]bool)
		t.Walk(stmt, func(n oql.NodeID) bool {
			if skip[n] {
				return false
			}
			if t.Kind(n) == oql.KindNamedParam {
				used[t.Text(n)] = true
			}
			return true
		})

		out := make(map[string]any, len(rw.params))
		clash := false
		for name, v := range rw.params {
			renamed := paramName(name, suffix)
			if used[renamed] {
				clash = true
				break
			}
			out[renamed] = v
		}
		if !clash {
			return out
		}
	}
}

func paramName(name string, suffix int) string {
	if suffix == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, suffix)
}

// simplify folds boolean literals out of AND, OR, NOT and parentheses.
func simplify(t *oql.Tree, id oql.NodeID) oql.NodeID {
	switch kind := t.Kind(id); kind {
	case oql.KindAnd, oql.KindOr:
		absorbing, neutral := "FALSE", "TRUE"
		if kind == oql.KindOr {
			absorbing, neutral = "TRUE", "FALSE"
		}
		kids := append([]oql.NodeID(nil), t.Children(id)...)
		keep := make([]oql.NodeID, 0, len(kids))
		changed := false
		for _, c := range kids {
			s := simplify(t, c)
			if s != c {
				changed = true
			}
			if isBoolean(t, s, absorbing) {
				return t.New(oql.KindBoolean, absorbing)
			}
			if isBoolean(t, s, neutral) {
				changed = true
				continue
			}
			keep = append(keep, s)
		}
		switch {
		case len(keep) == 0:
			return t.New(oql.KindBoolean, neutral)
		case len(keep) == 1:
			t.Detach(keep[0])
			return keep[0]
		case changed:
			return t.New(kind, "", keep...)
		}
	case oql.KindParen:
		inner := t.Child(id, 0)
		s := simplify(t, inner)
		if t.Kind(s) == oql.KindBoolean {
			return s
		}
		if s != inner {
			return t.New(oql.KindParen, "", s)
		}
	case oql.KindNot:
		inner := t.Child(id, 0)
		s := simplify(t, inner)
		if t.Kind(s) == oql.KindBoolean {
			return negate(t, s)
		}
		if s != inner {
			return t.New(oql.KindNot, "", s)
		}
	}
	return id
}

// rewrite is the per-call state of one FilterTree call.
type rewrite struct {
	f        *Filter
	tree     *oql.Tree
	scope    *Scope
	access   AccessType
	sc       SecurityContext
	fold     cases.Caser
	params   map[string]any
	paths    map[string]bool
	selected []string
	// aliases holds the folded identification variables of the statement.
	aliases    map[string]bool
	paramNodes []paramNode
}

// paramNode is a parameter a graft introduced, named after its placeholder
// until bindParams settles the final name.
type paramNode struct {
	id   oql.NodeID
	name string
}

func (rw *rewrite) subqueryDefinitions(id oql.NodeID, scope *Scope) []TypeDefinition {
	var out []TypeDefinition
	for _, c := range rw.tree.Children(id) {
		inner := scope
		if rw.tree.Kind(c) == oql.KindSubquery {
			sub, err := rw.f.resolver.ResolveTypeDefinitions(rw.tree, rw.tree.Find(c, oql.KindFrom), scope)
			if err != nil {
				rw.f.logger.Debug("subquery not resolvable", "subquery", oql.Render(rw.tree, c), "error", err)
				continue
			}
			out = append(out, sub.Definitions()...)
			inner = sub
		}
		out = append(out, rw.subqueryDefinitions(c, inner)...)
	}
	return out
}

// terms returns the restrictions a selected expression requires.
func (rw *rewrite) terms(expr oql.NodeID) []oql.NodeID {
	t := rw.tree
	switch t.Kind(expr) {
	case oql.KindCase, oql.KindCoalesce, oql.KindNullIf:
		return rw.conditional(expr)
	case oql.KindEntry:
		alias := t.Child(expr, 0)
		value := t.New(oql.KindValue, "", t.Copy(t, alias))
		key := t.New(oql.KindKey, "", t.Copy(t, alias))
		return append(rw.terms(value), rw.terms(key)...)
	case oql.KindPath:
		if term, ok := rw.restrictElements(expr); ok {
			return []oql.NodeID{term}
		}
		return []oql.NodeID{rw.restrictPath(expr)}
	case oql.KindIdent, oql.KindKey, oql.KindValue:
		return []oql.NodeID{rw.restrictPath(expr)}
	case oql.KindFunc:
		// SIZE(t.children) reads the owner, not the elements.
		var out []oql.NodeID
		for _, c := range t.Children(expr) {
			if t.Kind(c) == oql.KindPath {
				out = append(out, rw.restrictPath(c))
				continue
			}
			out = append(out, rw.terms(c)...)
		}
		return out
	case oql.KindAs, oql.KindConstructor, oql.KindArith, oql.KindNegate,
		oql.KindParen, oql.KindTrim, oql.KindAggregate:
		var out []oql.NodeID
		for _, c := range t.Children(expr) {
			out = append(out, rw.terms(c)...)
		}
		return out
	}
	return nil
}

// conjunction joins terms with AND; no terms is TRUE.
func (rw *rewrite) conjunction(terms []oql.NodeID) oql.NodeID {
	switch len(terms) {
	case 0:
		return rw.tree.New(oql.KindBoolean, "TRUE")
	case 1:
		return terms[0]
	}
	return rw.tree.New(oql.KindAnd, "", terms...)
}

// targetTerms restricts the target entity of an UPDATE or DELETE.
func (rw *rewrite) targetTerms(stmt oql.NodeID) []oql.NodeID {
	t := rw.tree
	decl := t.Find(t.Find(stmt, oql.KindFrom), oql.KindRangeDecl)
	if decl == oql.NoNode {
		return nil
	}
	if alias := t.Find(decl, oql.KindAlias); alias != oql.NoNode {
		return []oql.NodeID{rw.restrictPath(t.New(oql.KindIdent, t.Text(alias)))}
	}
	// Without an alias there is no way to reference the target in a
	// condition, so any conditional rule denies.
	entity := rw.f.mapping.Get(t.Text(decl))
	if entity == nil {
		return nil
	}
	rw.addSelected(entity.Name)
	rules := rw.f.RulesFor(entity.Name, rw.access)
	if len(rules) == 0 {
		return nil
	}
	for _, r := range rules {
		if r.Unrestricted() {
			return nil
		}
	}
	rw.f.logger.Warn("access restriction denied",
		"entity", entity.Name,
		"reason", "target has no identification variable",
	)
	return []oql.NodeID{t.New(oql.KindBoolean, "FALSE")}
}

func (rw *rewrite) addSelected(path string) {
	if !rw.paths[path] {
		rw.paths[path] = true
		rw.selected = append(rw.selected, path)
	}
}

// restrictPath returns the rule disjunction for the entity a selected path
// denotes: TRUE when unrestricted, FALSE when the path cannot be resolved.
func (rw *rewrite) restrictPath(expr oql.NodeID) oql.NodeID {
	t := rw.tree
	prefix, entity, err := rw.entityPrefix(expr)
	if err != nil {
		rw.f.logger.Warn("access restriction denied",
			"path", oql.Render(t, expr),
			"error", err,
		)
		return t.New(oql.KindBoolean, "FALSE")
	}
	if prefix == oql.NoNode {
		return t.New(oql.KindBoolean, "TRUE")
	}
	rw.addSelected(oql.Render(t, prefix))

	rules := rw.f.RulesFor(entity.Name, rw.access)
	if len(rules) == 0 {
		return t.New(oql.KindBoolean, "TRUE")
	}
	alts := make([]oql.NodeID, 0, len(rules))
	for _, r := range rules {
		if r.Unrestricted() {
			return t.New(oql.KindBoolean, "TRUE")
		}
		cond, err := rw.graft(r, prefix)
		if err != nil {
			rw.f.logger.Warn("access rule not applicable",
				"rule", r.Name,
				"path", oql.Render(t, prefix),
				"error", err,
			)
			cond = t.New(oql.KindBoolean, "FALSE")
		}
		alts = append(alts, t.New(oql.KindParen, "", cond))
	}
	return disjunction(t, alts)
}

// restrictElements handles a selected collection- or map-valued path. A
// row condition cannot filter the elements one by one, so the term denies
// unless every element entity type is unrestricted. ok is false when expr
// is not such a path or its elements need no restriction.
func (rw *rewrite) restrictElements(expr oql.NodeID) (oql.NodeID, bool) {
	t := rw.tree
	typ, err := rw.f.resolver.ResolveType(t, expr, rw.scope)
	if err != nil || !typ.Collection {
		return oql.NoNode, false
	}
	for _, e := range []*schema.EntityDef{typ.Entity, typ.KeyEntity} {
		if e == nil || !rw.restricted(e) {
			continue
		}
		path := oql.Render(t, expr)
		rw.addSelected(path)
		rw.f.logger.Warn("access restriction denied",
			"path", path,
			"entity", e.Name,
			"reason", "collection elements cannot be restricted; join the collection instead",
		)
		return t.New(oql.KindBoolean, "FALSE"), true
	}
	return oql.NoNode, false
}

// restricted reports whether some rule conditions access to entity.
func (rw *rewrite) restricted(entity *schema.EntityDef) bool {
	rules := rw.f.RulesFor(entity.Name, rw.access)
	for _, r := range rules {
		if r.Unrestricted() {
			return false
		}
	}
	return len(rules) > 0
}

// entityPrefix returns the longest entity-valued prefix of expr, or NoNode
// when expr does not involve an entity.
func (rw *rewrite) entityPrefix(expr oql.NodeID) (oql.NodeID, *schema.EntityDef, error) {
	t := rw.tree
	r := rw.f.resolver
	typ, err := r.ResolveType(t, expr, rw.scope)
	if err != nil {
		return oql.NoNode, nil, err
	}
	if typ.IsEntity() {
		return expr, typ.Entity, nil
	}
	if t.Kind(expr) != oql.KindPath {
		return oql.NoNode, nil, nil
	}

	root := t.Child(expr, 0)
	cur, err := r.ResolveType(t, root, rw.scope)
	if err != nil {
		return oql.NoNode, nil, err
	}
	segs := strings.Split(t.Text(expr), ".")
	best, bestType := -1, cur
	if cur.IsEntity() {
		best = 0
	}
	for i, seg := range segs {
		if cur, err = r.navigate(oql.Render(t, expr), cur, []string{seg}); err != nil {
			return oql.NoNode, nil, err
		}
		if cur.IsEntity() {
			best, bestType = i+1, cur
		}
	}
	switch best {
	case -1:
		return oql.NoNode, nil, nil
	case 0:
		return root, bestType.Entity, nil
	}
	return t.New(oql.KindPath, strings.Join(segs[:best], "."), t.Copy(t, root)), bestType.Entity, nil
}

// graft copies the rule's condition into the query tree with the rule alias
// replaced by prefix and placeholders replaced by bound parameters.
func (rw *rewrite) graft(rule *AccessRule, prefix oql.NodeID) (oql.NodeID, error) {
	g := grafter{
		rw:     rw,
		rule:   rule,
		prefix: prefix,
		alias:  rw.fold.String(rule.Alias),
		taken:  make(map[string]bool),
	}
	rule.tree.Walk(rule.where, func(n oql.NodeID) bool {
		if rule.tree.Kind(n) == oql.KindAlias {
			g.taken[rw.fold.String(rule.tree.Text(n))] = true
		}
		return true
	})
	return g.copy(rule.where)
}

type grafter struct {
	rw     *rewrite
	rule   *AccessRule
	prefix oql.NodeID
	alias  string // folded rule alias
	// scopes maps the folded variables of the enclosing rule subqueries to
	// their names in the query, innermost last.
	scopes []map[string]string
	taken  map[string]bool // folded names a renamed variable must avoid
}

func (g *grafter) lookup(name string) (string, bool) {
	folded := g.rw.fold.String(name)
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if renamed, ok := g.scopes[i][folded]; ok {
			return renamed, true
		}
	}
	return "", false
}

func (g *grafter) isAlias(name string) bool {
	if _, ok := g.lookup(name); ok {
		return false
	}
	return g.rw.fold.String(name) == g.alias
}

func (g *grafter) placeholder(name string) (string, bool) {
	if _, ok := g.lookup(name); ok || g.isAlias(name) {
		return "", false
	}
	for _, p := range g.rule.Placeholders {
		if strings.EqualFold(p, name) {
			return p, true
		}
	}
	return "", false
}

// variables returns the alias nodes a FROM item declares.
func (g *grafter) variables(item oql.NodeID) []oql.NodeID {
	src := g.rule.tree
	var out []oql.NodeID
	src.Walk(item, func(n oql.NodeID) bool {
		switch src.Kind(n) {
		case oql.KindAlias:
			out = append(out, n)
		case oql.KindSubquery:
			return false
		}
		return true
	})
	return out
}

// enter opens the scope of a rule subquery. Its variables keep their names
// unless the statement binds the same name, which would capture the
// grafted prefix.
func (g *grafter) enter(sub oql.NodeID) {
	src := g.rule.tree
	names := make(map[string]string)
	for _, item := range src.Children(src.Find(sub, oql.KindFrom)) {
		for _, v := range g.variables(item) {
			name := src.Text(v)
			folded := g.rw.fold.String(name)
			if !g.rw.aliases[folded] {
				names[folded] = name
				continue
			}
			for i := 1; ; i++ {
				fresh := fmt.Sprintf("%s_%d", name, i)
				f := g.rw.fold.String(fresh)
				if !g.rw.aliases[f] && !g.taken[f] {
					g.taken[f] = true
					names[folded] = fresh
					break
				}
			}
		}
	}
	g.scopes = append(g.scopes, names)
}

// rangePath rebases the path of a derived range declaration such as
// "FROM t.children c". Only variables of earlier FROM items of the same
// subquery are visible to it.
func (g *grafter) rangePath(decl oql.NodeID) (string, error) {
	src, dst := g.rule.tree, g.rw.tree
	text := src.Text(decl)
	root, rest, ok := strings.Cut(text, ".")
	if !ok || g.rw.f.mapping.Get(text) != nil {
		return text, nil
	}
	folded := g.rw.fold.String(root)

	hidden := make(map[string]bool)
	after := false
	for _, item := range src.Children(src.Parent(decl)) {
		after = after || item == decl
		if !after {
			continue
		}
		for _, v := range g.variables(item) {
			hidden[g.rw.fold.String(src.Text(v))] = true
		}
	}
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if i == len(g.scopes)-1 && hidden[folded] {
			continue
		}
		if renamed, ok := g.scopes[i][folded]; ok {
			return renamed + "." + rest, nil
		}
	}
	if folded != g.alias {
		return text, nil
	}
	switch dst.Kind(g.prefix) {
	case oql.KindIdent, oql.KindPath:
		return oql.Render(dst, g.prefix) + "." + rest, nil
	}
	return "", notEvaluatable(text, "cannot range over a path of %s", oql.Render(dst, g.prefix))
}

func (g *grafter) copy(id oql.NodeID) (oql.NodeID, error) {
	src, dst := g.rule.tree, g.rw.tree
	text := src.Text(id)
	switch src.Kind(id) {
	case oql.KindIdent:
		if renamed, ok := g.lookup(text); ok {
			return dst.New(oql.KindIdent, renamed), nil
		}
		if g.isAlias(text) {
			return dst.Copy(dst, g.prefix), nil
		}
		if canon, ok := g.placeholder(text); ok {
			return g.param(canon)
		}
	case oql.KindAlias:
		if renamed, ok := g.lookup(text); ok {
			text = renamed
		}
	case oql.KindPath:
		root := src.Child(id, 0)
		if src.Kind(root) == oql.KindIdent && g.isAlias(src.Text(root)) {
			return g.extend(text), nil
		}
	case oql.KindRangeDecl:
		path, err := g.rangePath(id)
		if err != nil {
			return oql.NoNode, err
		}
		text = path
	case oql.KindSubquery:
		g.enter(id)
		defer func() { g.scopes = g.scopes[:len(g.scopes)-1] }()
	case oql.KindIn:
		return g.copyIn(id)
	}

	out := dst.New(src.Kind(id), text)
	dst.SetFlags(out, src.Flags(id))
	for _, c := range src.Children(id) {
		cp, err := g.copy(c)
		if err != nil {
			return oql.NoNode, err
		}
		dst.AppendChild(out, cp)
	}
	return out, nil
}

// extend rebases a rule path onto the prefix: t.name on child.parent
// becomes child.parent.name.
func (g *grafter) extend(segs string) oql.NodeID {
	dst := g.rw.tree
	if dst.Kind(g.prefix) == oql.KindPath {
		return dst.New(oql.KindPath, dst.Text(g.prefix)+"."+segs, dst.Copy(dst, dst.Child(g.prefix, 0)))
	}
	return dst.New(oql.KindPath, segs, dst.Copy(dst, g.prefix))
}

// copyIn expands collection placeholders in an IN list into one parameter
// per element. An empty list makes the predicate constant.
func (g *grafter) copyIn(id oql.NodeID) (oql.NodeID, error) {
	src, dst := g.rule.tree, g.rw.tree
	kids := src.Children(id)
	if src.Has(id, oql.FlagBare) || src.Kind(kids[1]) == oql.KindSubquery {
		out := dst.New(oql.KindIn, "")
		dst.SetFlags(out, src.Flags(id))
		for _, c := range kids {
			cp, err := g.copy(c)
			if err != nil {
				return oql.NoNode, err
			}
			dst.AppendChild(out, cp)
		}
		return out, nil
	}

	left, err := g.copy(kids[0])
	if err != nil {
		return oql.NoNode, err
	}
	var items []oql.NodeID
	for _, c := range kids[1:] {
		if src.Kind(c) == oql.KindIdent {
			if canon, ok := g.placeholder(src.Text(c)); ok {
				expanded, err := g.expand(canon)
				if err != nil {
					return oql.NoNode, err
				}
				items = append(items, expanded...)
				continue
			}
		}
		cp, err := g.copy(c)
		if err != nil {
			return oql.NoNode, err
		}
		items = append(items, cp)
	}
	negated := src.Has(id, oql.FlagNegated)
	if len(items) == 0 {
		if negated {
			return dst.New(oql.KindBoolean, "TRUE"), nil
		}
		return dst.New(oql.KindBoolean, "FALSE"), nil
	}
	out := dst.New(oql.KindIn, "", append([]oql.NodeID{left}, items...)...)
	dst.SetFlag(out, oql.FlagNegated, negated)
	return out, nil
}

func (g *grafter) value(name string) (any, error) {
	if g.rw.sc == nil {
		return nil, notEvaluatable(name, "no security context")
	}
	v, ok := g.rw.sc.ValueOf(name)
	if !ok {
		return nil, notEvaluatable(name, "security context has no value")
	}
	return v, nil
}

func (g *grafter) param(name string) (oql.NodeID, error) {
	v, err := g.value(name)
	if err != nil {
		return oql.NoNode, err
	}
	g.rw.params[name] = v
	return g.newParam(name), nil
}

func (g *grafter) newParam(name string) oql.NodeID {
	id := g.rw.tree.New(oql.KindNamedParam, name)
	g.rw.paramNodes = append(g.rw.paramNodes, paramNode{id: id, name: name})
	return id
}

func (g *grafter) expand(name string) ([]oql.NodeID, error) {
	v, err := g.value(name)
	if err != nil {
		return nil, err
	}
	elems, ok := sliceValues(v)
	if !ok {
		g.rw.params[name] = v
		return []oql.NodeID{g.newParam(name)}, nil
	}
	out := make([]oql.NodeID, len(elems))
	for i, e := range elems {
		pname := fmt.Sprintf("%s_%d", name, i)
		g.rw.params[pname] = e
		out[i] = g.newParam(pname)
	}
	return out, nil
}

// sliceValues returns the elements of a slice or array value. Byte slices
// are scalars.
func sliceValues(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}
