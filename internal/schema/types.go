package schema

import (
	"github.com/google/uuid"
)

// PropertyKind classifies how a property maps.
type PropertyKind string

const (
	PropertyBasic      PropertyKind = "BASIC"
	PropertyReference  PropertyKind = "REFERENCE"
	PropertyCollection PropertyKind = "COLLECTION"
	PropertyMap        PropertyKind = "MAP"
)

// Valid reports whether k is a known kind.
func (k PropertyKind) Valid() bool {
	switch k {
	case PropertyBasic, PropertyReference, PropertyCollection, PropertyMap:
		return true
	}
	return false
}

type PropertyDef struct {
	ID       uuid.UUID    `yaml:"-"`
	EntityID uuid.UUID    `yaml:"-"`
	Name     string       `yaml:"name"`
	Kind     PropertyKind `yaml:"kind"`
	// Type names the basic type of a BASIC property or of a MAP key/value
	// that is not an entity.
	Type string `yaml:"type,omitempty"`
	// Target is the related entity of a REFERENCE, COLLECTION or MAP property.
	Target string `yaml:"target,omitempty"`
	// KeyTarget is the entity used as the key of a MAP property, if any.
	KeyTarget string `yaml:"key_target,omitempty"`
	// KeyType is the basic key type of a MAP property keyed by value.
	KeyType string `yaml:"key_type,omitempty"`
}

// IsRelationship reports whether the property navigates to another entity.
func (p *PropertyDef) IsRelationship() bool {
	return p.Kind != PropertyBasic && p.Target != ""
}

// IsCollection reports whether the property holds many values.
func (p *PropertyDef) IsCollection() bool {
	return p.Kind == PropertyCollection || p.Kind == PropertyMap
}

type EntityDef struct {
	ID         uuid.UUID     `yaml:"id,omitempty"`
	Name       string        `yaml:"name"`
	Extends    string        `yaml:"extends,omitempty"`
	Properties []PropertyDef `yaml:"properties"`
	// PropertiesByName includes inherited properties once the entity is
	// linked into a Cache.
	PropertiesByName map[string]*PropertyDef `yaml:"-"`
}

// Property looks up a declared or inherited property.
func (e *EntityDef) Property(name string) (*PropertyDef, bool) {
	p, ok := e.PropertiesByName[name]
	return p, ok
}
