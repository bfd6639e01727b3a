package persona

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultCatalog []byte

type catalogFile struct {
	Default  string    `yaml:"default"`
	Personas []Persona `yaml:"personas"`
}

// Catalog is an immutable set of personas keyed by id.
type Catalog struct {
	defaultID string
	byID      map[string]*Persona
}

// Default parses the catalogue shipped with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalogue from a YAML file. An empty path loads Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("decode personas: no personas defined")
	}

	c := &Catalog{defaultID: f.Default, byID: make(map[string]*Persona, len(f.Personas))}
	for i := range f.Personas {
		p := &f.Personas[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("persona %s defined twice", p.ID)
		}
		c.byID[p.ID] = p
	}
	if c.defaultID == "" {
		c.defaultID = f.Personas[0].ID
	}
	if _, ok := c.byID[c.defaultID]; !ok {
		return nil, fmt.Errorf("default persona %s: %w", c.defaultID, ErrUnknown)
	}
	return c, nil
}

// DefaultID is the persona used when a request names none.
func (c *Catalog) DefaultID() string { return c.defaultID }

// Get looks up a persona by id.
func (c *Catalog) Get(id string) (*Persona, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return p, nil
}

// List returns all personas ordered by id.
func (c *Catalog) List() []*Persona {
	list := make([]*Persona, 0, len(c.byID))
	for _, p := range c.byID {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
