package models

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Model struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

type Catalog struct {
	Models []Model `yaml:"models" json:"models"`
}

// DefaultCatalog returns the built-in model list.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file. An empty path yields the built-in list.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read model catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse model catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Models))
	out := c.Models[:0]
	for _, m := range c.Models {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		if strings.Count(m.Name, "-") == 0 {
			return Catalog{}, fmt.Errorf("model %q: name must look like a serial prefix (e.g. RC-102)", m.Name)
		}
		if _, dup := seen[m.Name]; dup {
			continue
		}
		seen[m.Name] = struct{}{}
		out = append(out, m)
	}
	c.Models = out
	if len(c.Models) == 0 {
		return Catalog{}, fmt.Errorf("model catalog is empty")
	}
	return c, nil
}

func (c Catalog) Lookup(name string) (Model, bool) {
	name = strings.TrimSpace(name)
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

func (c Catalog) Names() []string {
	out := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, m.Name)
	}
	return out
}
