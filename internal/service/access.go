package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/accessql/internal/access"
)

const AccessServiceName = "accessql.v1.AccessService"

// AccessService exposes query filtering, single-entity checks and rule
// validation over connect.
type AccessService struct {
	filter   *access.Filter
	compiler *access.Compiler
	mapping  access.Mapping
}

func NewAccessService(filter *access.Filter, compiler *access.Compiler, mapping access.Mapping) *AccessService {
	return &AccessService{filter: filter, compiler: compiler, mapping: mapping}
}

func (s *AccessService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	return serviceHandler(AccessServiceName, map[string]unary{
		"FilterQuery":  s.FilterQuery,
		"IsAccessible": s.IsAccessible,
		"ValidateRule": s.ValidateRule,
		"ListRules":    s.ListRules,
	}, interceptors)
}

// FilterQuery restricts {query} for {access} on behalf of {principal, roles,
// context}.
func (s *AccessService) FilterQuery(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg := req.Msg.AsMap()
	text := stringField(msg, "query")
	if text == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("query is required"))
	}
	at, err := accessType(msg)
	if err != nil {
		return nil, err
	}

	res, err := s.filter.FilterQuery(text, at, securityContext(msg))
	if err != nil {
		return nil, connectError(err)
	}

	params := make(map[string]any, len(res.Parameters))
	for k, v := range res.Parameters {
		params[k] = jsonValue(v)
	}
	paths := make([]any, len(res.SelectedPaths))
	for i, p := range res.SelectedPaths {
		paths[i] = p
	}
	return newResponse(map[string]any{
		"query":          res.Query,
		"parameters":     params,
		"selected_paths": paths,
		"always_false":   res.AlwaysFalse,
		"modified":       res.Modified,
	})
}

// IsAccessible evaluates the rules for {entity} against the property
// {values} of one instance.
func (s *AccessService) IsAccessible(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg := req.Msg.AsMap()
	name := stringField(msg, "entity")
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("entity is required"))
	}
	at, err := accessType(msg)
	if err != nil {
		return nil, err
	}
	values, _ := msg["values"].(map[string]any)
	if s.mapping.Get(name) == nil {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no entity registered with name %q", name))
	}
	entity, err := access.NewMapEntity(s.mapping, name, values)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	ok, err := s.filter.IsAccessible(entity, at, securityContext(msg))
	if err != nil {
		return nil, connectError(err)
	}
	return newResponse(map[string]any{"accessible": ok})
}

// ValidateRule compiles {rule} against the loaded mapping without adding it
// to the rule set.
func (s *AccessService) ValidateRule(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg := req.Msg.AsMap()
	text := stringField(msg, "rule")
	if text == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("rule is required"))
	}
	r, err := s.compiler.Compile(access.RuleSource{Name: stringField(msg, "name"), Text: text})
	if err != nil {
		return nil, connectError(err)
	}
	return newResponse(ruleStruct(r))
}

// ListRules returns the loaded rules, optionally only those applying to
// {entity} for {access}.
func (s *AccessService) ListRules(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg := req.Msg.AsMap()
	rules := s.filter.Rules()
	if name := stringField(msg, "entity"); name != "" {
		def := s.mapping.Get(name)
		if def == nil {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no entity registered with name %q", name))
		}
		at := access.AccessAll
		if stringField(msg, "access") != "" {
			var err error
			if at, err = accessType(msg); err != nil {
				return nil, err
			}
		}
		rules = rulesAnyAccess(s.filter, def.Name, at)
	}

	out := make([]any, len(rules))
	for i, r := range rules {
		out[i] = ruleStruct(r)
	}
	return newResponse(map[string]any{"rules": out})
}

// rulesAnyAccess collects the rules granting at least one type in at.
func rulesAnyAccess(f *access.Filter, entity string, at access.AccessType) []*access.AccessRule {
	seen := make(map[*access.AccessRule]bool)
	var out []*access.AccessRule
	for _, single := range []access.AccessType{access.AccessCreate, access.AccessRead, access.AccessUpdate, access.AccessDelete} {
		if !at.Has(single) {
			continue
		}
		for _, r := range f.RulesFor(entity, single) {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func ruleStruct(r *access.AccessRule) map[string]any {
	placeholders := make([]any, len(r.Placeholders))
	for i, p := range r.Placeholders {
		placeholders[i] = p
	}
	return map[string]any{
		"id":           r.ID.String(),
		"name":         r.Name,
		"entity":       r.Entity.Name,
		"alias":        r.Alias,
		"access":       r.Access.String(),
		"condition":    r.Condition(),
		"unrestricted": r.Unrestricted(),
		"placeholders": placeholders,
		"rule":         r.String(),
	}
}
