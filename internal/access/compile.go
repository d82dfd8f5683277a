package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atlekbai/accessql/internal/oql"
	"github.com/atlekbai/accessql/internal/schema"
)

var ruleNamespace = uuid.MustParse("0e4f6a5c-2b61-4c1e-9a0f-1f3c5b7d9e21")

var errParameters = errors.New("parameters not allowed in access rules")

// RuleSource is an access rule as declared in a rule file or table.
type RuleSource struct {
	ID   uuid.UUID `yaml:"id"`
	Name string    `yaml:"name"`
	Text string    `yaml:"rule"`
}

// AccessRule is a compiled rule. It is never modified after Compile returns
// and may be shared between goroutines.
type AccessRule struct {
	ID     uuid.UUID
	Name   string
	Source string
	Alias  string
	Entity *schema.EntityDef
	Access AccessType
	// Placeholders lists the security placeholders the condition
	// references, sorted.
	Placeholders []string

	tree  *oql.Tree
	where oql.NodeID
}

// Condition renders the rule's WHERE condition, or "" when the rule has
// none.
func (r *AccessRule) Condition() string {
	if r.where == oql.NoNode {
		return ""
	}
	return oql.Render(r.tree, r.where)
}

// Unrestricted reports whether the rule grants access to every instance.
func (r *AccessRule) Unrestricted() bool { return r.where == oql.NoNode }

// Grants reports whether the rule covers every operation in a.
func (r *AccessRule) Grants(a AccessType) bool { return r.Access.Has(a) }

// String returns the normalized rule text.
func (r *AccessRule) String() string { return r.tree.String() }

// Compiler turns rule text into AccessRules.
type Compiler struct {
	resolver     *Resolver
	placeholders map[string]string // upper-case name -> canonical name
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithPlaceholders replaces the default placeholder names
// (CURRENT_PRINCIPAL, CURRENT_ROLES).
func WithPlaceholders(names ...string) CompilerOption {
	return func(c *Compiler) {
		c.placeholders = make(map[string]string, len(names))
		for _, n := range names {
			c.placeholders[strings.ToUpper(n)] = n
		}
	}
}

func NewCompiler(mapping Mapping, opts ...CompilerOption) *Compiler {
	c := &Compiler{resolver: NewResolver(mapping)}
	WithPlaceholders(CurrentPrincipal, CurrentRoles)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) placeholder(name string) (string, bool) {
	canon, ok := c.placeholders[strings.ToUpper(name)]
	return canon, ok
}

// Compile parses and validates one rule.
func (c *Compiler) Compile(src RuleSource) (*AccessRule, error) {
	label := src.Name
	if label == "" {
		label = src.Text
	}
	fail := func(msg string, err error) error {
		return &RuleConfigurationError{Rule: label, Msg: msg, Err: err}
	}

	tree, err := oql.ParseRule(src.Text)
	if err != nil {
		return nil, fail("cannot parse rule", err)
	}
	root := tree.Root()
	from := tree.Find(root, oql.KindFrom)
	scope, err := c.resolver.ResolveTypeDefinitions(tree, from, nil)
	if err != nil {
		return nil, fail("cannot resolve rule type", err)
	}
	defs := scope.Definitions()
	if len(defs) != 1 || tree.NumChildren(from) != 1 {
		return nil, fail("rule must have exactly one alias", nil)
	}

	rule := &AccessRule{
		ID:     src.ID,
		Name:   src.Name,
		Source: src.Text,
		Alias:  defs[0].Alias,
		Entity: defs[0].Entity,
		Access: accessFromFlags(tree.Flags(root)),
		tree:   tree,
		where:  oql.NoNode,
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.NewSHA1(ruleNamespace, []byte(tree.String()))
	}

	if w := tree.Find(root, oql.KindWhere); w != oql.NoNode {
		rule.where = tree.Child(w, 0)
		used := make(map[string]struct{})
		if err := c.validate(tree, rule.where, scope, used); err != nil {
			if errors.Is(err, errParameters) {
				return nil, fail(errParameters.Error(), nil)
			}
			return nil, fail("invalid rule condition", err)
		}
		for name := range used {
			rule.Placeholders = append(rule.Placeholders, name)
		}
		sort.Strings(rule.Placeholders)
	}
	return rule, nil
}

// validate checks that every name in the condition is an alias in scope or
// a placeholder, and that every path resolves.
func (c *Compiler) validate(tree *oql.Tree, id oql.NodeID, scope *Scope, used map[string]struct{}) error {
	switch tree.Kind(id) {
	case oql.KindNamedParam, oql.KindPositionalParam:
		return errParameters
	case oql.KindIdent:
		name := tree.Text(id)
		if _, ok := scope.Lookup(name); ok {
			return nil
		}
		if canon, ok := c.placeholder(name); ok {
			used[canon] = struct{}{}
			return nil
		}
		return fmt.Errorf("unknown identifier %s", name)
	case oql.KindPath:
		root := tree.Child(id, 0)
		if tree.Kind(root) == oql.KindIdent {
			if _, ok := scope.Lookup(tree.Text(root)); !ok {
				if _, ok := c.placeholder(tree.Text(root)); ok {
					return fmt.Errorf("placeholder %s cannot be navigated", tree.Text(root))
				}
			}
		}
		_, err := c.resolver.ResolveType(tree, id, scope)
		return err
	case oql.KindKey, oql.KindValue, oql.KindEntry:
		_, err := c.resolver.ResolveType(tree, id, scope)
		return err
	case oql.KindSubquery:
		sub, err := c.resolver.ResolveTypeDefinitions(tree, tree.Find(id, oql.KindFrom), scope)
		if err != nil {
			return err
		}
		scope = sub
	}
	for _, child := range tree.Children(id) {
		if err := c.validate(tree, child, scope, used); err != nil {
			return err
		}
	}
	return nil
}

// CompileAll compiles independent rule sources in parallel. The first
// failure cancels the rest.
func (c *Compiler) CompileAll(ctx context.Context, sources []RuleSource) ([]*AccessRule, error) {
	rules := make([]*AccessRule, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rule, err := c.Compile(src)
			if err != nil {
				return err
			}
			rules[i] = rule
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rules, nil
}
