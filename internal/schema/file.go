package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mappingFile is the YAML layout of an entity mapping file:
//
//	entities:
//	  - name: Employee
//	    extends: Person
//	    properties:
//	      - {name: manager, kind: REFERENCE, target: Employee}
type mappingFile struct {
	Entities []*EntityDef `yaml:"entities"`
}

// ParseMapping decodes YAML mapping data into entity definitions.
func ParseMapping(data []byte) ([]*EntityDef, error) {
	var f mappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("schema mapping: %w", err)
	}
	return f.Entities, nil
}

// LoadFile reads a YAML mapping file and replaces the cache contents.
func (c *Cache) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("schema mapping: %w", err)
	}
	defs, err := ParseMapping(data)
	if err != nil {
		return err
	}
	return c.Replace(defs)
}
