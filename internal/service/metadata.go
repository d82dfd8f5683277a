package service

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/accessql/internal/schema"
)

const MetadataServiceName = "accessql.v1.MetadataService"

// MetadataService serves the entity mapping the rules are compiled against.
type MetadataService struct {
	cache *schema.Cache
}

func NewMetadataService(cache *schema.Cache) *MetadataService {
	return &MetadataService{cache: cache}
}

func (s *MetadataService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	return serviceHandler(MetadataServiceName, map[string]unary{
		"ListEntities": s.ListEntities,
		"GetEntity":    s.GetEntity,
	}, interceptors)
}

// ── Entities ────────────────────────────────────────────────────────

func (s *MetadataService) ListEntities(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	names := s.cache.Names()
	out := make([]any, 0, len(names))
	for _, n := range names {
		if e := s.cache.Get(n); e != nil {
			out = append(out, s.entityStruct(e))
		}
	}
	return newResponse(map[string]any{"entities": out})
}

func (s *MetadataService) GetEntity(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg := req.Msg.AsMap()
	if id := stringField(msg, "id"); id != "" {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid ID format: %w", err))
		}
		e := s.cache.GetByID(uid)
		if e == nil {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("entity not found"))
		}
		return newResponse(s.entityStruct(e))
	}
	name := stringField(msg, "name")
	e := s.cache.Get(name)
	if e == nil {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no entity registered with name %q", name))
	}
	return newResponse(s.entityStruct(e))
}

// properties lists declared and inherited properties, supertypes first,
// skipping inherited ones the entity redeclares.
func (s *MetadataService) properties(e *schema.EntityDef) []*schema.PropertyDef {
	var chain []*schema.EntityDef
	for cur := e; cur != nil; cur = s.cache.Get(cur.Extends) {
		chain = append([]*schema.EntityDef{cur}, chain...)
	}
	var out []*schema.PropertyDef
	for _, def := range chain {
		for i := range def.Properties {
			p := &def.Properties[i]
			if e.PropertiesByName[p.Name] == p {
				out = append(out, p)
			}
		}
	}
	return out
}

func (s *MetadataService) entityStruct(e *schema.EntityDef) map[string]any {
	declared := s.properties(e)
	props := make([]any, 0, len(declared))
	for _, p := range declared {
		m := map[string]any{
			"name": p.Name,
			"kind": string(p.Kind),
		}
		if p.EntityID != e.ID {
			m["inherited"] = true
		}
		for k, v := range map[string]string{
			"type":       p.Type,
			"target":     p.Target,
			"key_target": p.KeyTarget,
			"key_type":   p.KeyType,
		} {
			if v != "" {
				m[k] = v
			}
		}
		props = append(props, m)
	}
	out := map[string]any{
		"id":         e.ID.String(),
		"name":       e.Name,
		"properties": props,
	}
	if e.Extends != "" {
		out["extends"] = e.Extends
	}
	return out
}
