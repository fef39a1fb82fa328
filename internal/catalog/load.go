package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/default.yaml
var defaultYAML []byte

// document is the on-disk shape of a catalog file.
type document struct {
	Categories []Category `yaml:"categories"`
}

// rawCategory mirrors Category for decoding so that an omitted tier is
// reported instead of silently meaning "high" (allowed at every level).
type rawCategory struct {
	Name                string          `yaml:"name"`
	Description         string          `yaml:"description"`
	Patterns            []string        `yaml:"patterns"`
	Exceptions          []Exception     `yaml:"exceptions"`
	Tier                *Level          `yaml:"tier"`
	Forbidden           bool            `yaml:"forbidden"`
	RequiresInteraction bool            `yaml:"requires_interaction"`
	Interaction         InteractionKind `yaml:"interaction"`
}

// Default returns the built-in catalog.
// The embedded table is validated by tests, so failure here is a build defect.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in table: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns the built-in catalog.
// Unlike optional config files, a named catalog that cannot be read is an
// error: startup must not continue with a different table than requested.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Marshal encodes categories as a catalog document that Parse accepts.
func Marshal(categories []Category) ([]byte, error) {
	return yaml.Marshal(document{Categories: categories})
}

// Parse decodes and validates a YAML catalog. The catalog hash is computed
// over the raw bytes.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Categories []rawCategory `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalidCatalog, err)
	}

	categories := make([]Category, 0, len(doc.Categories))
	for i, rc := range doc.Categories {
		if rc.Tier == nil {
			return nil, fmt.Errorf("%w: categories[%d] %q: tier is required", ErrInvalidCatalog, i, rc.Name)
		}
		categories = append(categories, Category{
			Name:                rc.Name,
			Description:         rc.Description,
			Patterns:            rc.Patterns,
			Exceptions:          rc.Exceptions,
			Tier:                *rc.Tier,
			Forbidden:           rc.Forbidden,
			RequiresInteraction: rc.RequiresInteraction,
			Interaction:         rc.Interaction,
		})
	}
	return build(categories, hashBytes(data))
}
