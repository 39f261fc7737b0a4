package importer

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/rentiq/rentiq_backend/models"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var aliasesYAML []byte

type Column struct {
	Name     string   `yaml:"name"`
	Required bool     `yaml:"required"`
	Aliases  []string `yaml:"aliases"`
	Example  string   `yaml:"example"`
}

type Schema struct {
	Entity  models.ImportEntity
	Columns []Column
	lookup  map[string]string
}

var (
	schemasOnce sync.Once
	schemas     map[models.ImportEntity]*Schema
	schemasErr  error
)

func parseSchemas(data []byte) (map[models.ImportEntity]*Schema, error) {
	raw := map[string][]Column{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("import aliases: %w", err)
	}
	result := make(map[models.ImportEntity]*Schema, len(raw))
	for name, columns := range raw {
		entity, err := models.ParseImportEntity(name)
		if err != nil {
			return nil, fmt.Errorf("import aliases: %w", err)
		}
		s := &Schema{Entity: entity, Columns: columns, lookup: map[string]string{}}
		for _, c := range columns {
			for _, key := range append([]string{c.Name}, c.Aliases...) {
				key = NormalizeHeader(key)
				if owner, dup := s.lookup[key]; dup && owner != c.Name {
					return nil, fmt.Errorf("import aliases: %s: %q maps to both %s and %s", name, key, owner, c.Name)
				}
				s.lookup[key] = c.Name
			}
		}
		result[entity] = s
	}
	return result, nil
}

// SchemaFor returns the column layout of an import entity.
func SchemaFor(entity models.ImportEntity) (*Schema, error) {
	schemasOnce.Do(func() {
		schemas, schemasErr = parseSchemas(aliasesYAML)
	})
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[entity]
	if !ok {
		return nil, fmt.Errorf("no import layout for %s", entity)
	}
	return s, nil
}

// Canonical resolves a normalised header cell to its column name.
func (s *Schema) Canonical(header string) (string, bool) {
	name, ok := s.lookup[NormalizeHeader(header)]
	return name, ok
}

func (s *Schema) Required() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Required {
			names = append(names, c.Name)
		}
	}
	return names
}

// NormalizeHeader trims and lower-cases a header and turns spaces, dashes
// and dots into single underscores.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '/', '\t':
			return '_'
		}
		return r
	}, h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return strings.Trim(h, "_")
}
