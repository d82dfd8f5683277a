package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool used to load metadata.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// entityNamespace seeds deterministic IDs for entities declared without one.
var entityNamespace = uuid.MustParse("6f1d7a3e-3c1b-4f7e-9a55-0b7c2f6e1d42")

func loadQuery() (string, []any, error) {
	return sq.Select(
		"e.id", "e.name", "e.extends",
		"p.id", "p.name", "p.kind", "p.type", "p.target", "p.key_target", "p.key_type",
	).
		From("metadata.entities e").
		LeftJoin("metadata.properties p ON p.entity_id = e.id").
		OrderBy("e.name", "p.position").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// Cache holds the entity mapping model. Readers may run concurrently with
// Load and Replace.
type Cache struct {
	mu       sync.RWMutex
	entities map[string]*EntityDef
	byID     map[uuid.UUID]*EntityDef
}

func NewCache() *Cache {
	return &Cache{
		entities: make(map[string]*EntityDef),
		byID:     make(map[uuid.UUID]*EntityDef),
	}
}

// NewCacheFromEntities builds a linked cache from in-memory definitions.
func NewCacheFromEntities(defs []*EntityDef) (*Cache, error) {
	c := NewCache()
	if err := c.Replace(defs); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads metadata.entities and metadata.properties and replaces the
// cache contents.
func (c *Cache) Load(ctx context.Context, q Querier) error {
	query, args, err := loadQuery()
	if err != nil {
		return fmt.Errorf("schema cache query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("schema cache load: %w", err)
	}
	defer rows.Close()

	var order []*EntityDef
	byName := make(map[string]*EntityDef)

	for rows.Next() {
		var (
			eID        uuid.UUID
			eName      string
			eExtends   *string
			pID        *uuid.UUID
			pName      *string
			pKind      *string
			pType      *string
			pTarget    *string
			pKeyTarget *string
			pKeyType   *string
		)
		err := rows.Scan(
			&eID, &eName, &eExtends,
			&pID, &pName, &pKind, &pType, &pTarget, &pKeyTarget, &pKeyType,
		)
		if err != nil {
			return fmt.Errorf("schema cache scan: %w", err)
		}

		ent, exists := byName[eName]
		if !exists {
			ent = &EntityDef{ID: eID, Name: eName, Extends: deref(eExtends)}
			byName[eName] = ent
			order = append(order, ent)
		}
		if pID != nil {
			ent.Properties = append(ent.Properties, PropertyDef{
				ID:        *pID,
				EntityID:  eID,
				Name:      deref(pName),
				Kind:      PropertyKind(deref(pKind)),
				Type:      deref(pType),
				Target:    deref(pTarget),
				KeyTarget: deref(pKeyTarget),
				KeyType:   deref(pKeyType),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema cache rows: %w", err)
	}
	return c.Replace(order)
}

// Replace validates and links defs, then swaps them in.
func (c *Cache) Replace(defs []*EntityDef) error {
	entities, byID, err := link(defs)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entities = entities
	c.byID = byID
	c.mu.Unlock()
	return nil
}

func (c *Cache) Get(name string) *EntityDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entities[name]
}

// GetByID finds an entity definition by its UUID.
func (c *Cache) GetByID(id uuid.UUID) *EntityDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// EntityCount returns the number of loaded entities.
func (c *Cache) EntityCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// Names returns the entity names in sorted order.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entities))
	for n := range c.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsAssignable reports whether an instance of sub is also an instance of
// super, i.e. super is sub or one of its ancestors.
func (c *Cache) IsAssignable(super, sub string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for e := c.entities[sub]; e != nil; e = c.entities[e.Extends] {
		if e.Name == super {
			return true
		}
	}
	return false
}

func link(defs []*EntityDef) (map[string]*EntityDef, map[uuid.UUID]*EntityDef, error) {
	entities := make(map[string]*EntityDef, len(defs))
	byID := make(map[uuid.UUID]*EntityDef, len(defs))
	for _, e := range defs {
		if e.Name == "" {
			return nil, nil, fmt.Errorf("schema: entity without name")
		}
		if _, dup := entities[e.Name]; dup {
			return nil, nil, fmt.Errorf("schema: duplicate entity %q", e.Name)
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.NewSHA1(entityNamespace, []byte(e.Name))
		}
		entities[e.Name] = e
		byID[e.ID] = e
	}

	for _, e := range defs {
		if e.Extends != "" && entities[e.Extends] == nil {
			return nil, nil, fmt.Errorf("schema: entity %q extends unknown entity %q", e.Name, e.Extends)
		}
		for i := range e.Properties {
			if err := checkProperty(entities, e, &e.Properties[i]); err != nil {
				return nil, nil, err
			}
		}
	}

	done := make(map[string]bool, len(defs))
	for _, e := range defs {
		if err := flatten(entities, e, done, map[string]bool{}); err != nil {
			return nil, nil, err
		}
	}
	return entities, byID, nil
}

func checkProperty(entities map[string]*EntityDef, e *EntityDef, p *PropertyDef) error {
	if p.Name == "" {
		return fmt.Errorf("schema: entity %q has a property without name", e.Name)
	}
	if p.Kind == "" {
		p.Kind = PropertyBasic
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("schema: %s.%s has unknown kind %q", e.Name, p.Name, p.Kind)
	}
	p.EntityID = e.ID
	if p.Kind == PropertyBasic {
		return nil
	}
	if p.Target == "" && p.Kind != PropertyMap {
		return fmt.Errorf("schema: %s.%s needs a target entity", e.Name, p.Name)
	}
	for _, ref := range []string{p.Target, p.KeyTarget} {
		if ref != "" && entities[ref] == nil {
			return fmt.Errorf("schema: %s.%s references unknown entity %q", e.Name, p.Name, ref)
		}
	}
	return nil
}

// flatten fills PropertiesByName with inherited properties first, so that
// redeclared properties shadow the inherited ones.
func flatten(entities map[string]*EntityDef, e *EntityDef, done, visiting map[string]bool) error {
	if done[e.Name] {
		return nil
	}
	if visiting[e.Name] {
		return fmt.Errorf("schema: inheritance cycle through %q", e.Name)
	}
	visiting[e.Name] = true

	props := make(map[string]*PropertyDef)
	if e.Extends != "" {
		super := entities[e.Extends]
		if err := flatten(entities, super, done, visiting); err != nil {
			return err
		}
		for name, p := range super.PropertiesByName {
			props[name] = p
		}
	}
	for i := range e.Properties {
		props[e.Properties[i].Name] = &e.Properties[i]
	}
	e.PropertiesByName = props
	done[e.Name] = true
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
