package osint

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dorks.yaml
var defaultCatalogYAML []byte

const targetPlaceholder = "{target}"

// Dork is one structured query template.
type Dork struct {
	Template string `yaml:"template"`
	Results  int    `yaml:"results"`
	Require  string `yaml:"require,omitempty"`
}

// Query renders the dork for target.
func (d Dork) Query(target string) string {
	return strings.ReplaceAll(d.Template, targetPlaceholder, target)
}

// Accepts reports whether a hit qualifies as a lead for this dork.
func (d Dork) Accepts(s Snippet) bool {
	if d.Require == "" {
		return true
	}
	return strings.Contains(s.Title, d.Require) || strings.Contains(s.Text, d.Require)
}

// DescriptionRule selects the report description from the general results.
type DescriptionRule struct {
	Default          string   `yaml:"default"`
	PreferredDomains []string `yaml:"preferred_domains"`
	Window           int      `yaml:"window"`
}

// Catalog is the fixed set of queries issued per investigation.
type Catalog struct {
	General     Dork            `yaml:"general"`
	Email       Dork            `yaml:"email"`
	Phone       Dork            `yaml:"phone"`
	Description DescriptionRule `yaml:"description"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parsing dork catalog: %w", err)
	}
	for name, d := range map[string]Dork{"general": c.General, "email": c.Email, "phone": c.Phone} {
		if !strings.Contains(d.Template, targetPlaceholder) {
			return Catalog{}, fmt.Errorf("dork %q has no %s placeholder", name, targetPlaceholder)
		}
		if d.Results <= 0 {
			return Catalog{}, fmt.Errorf("dork %q must request at least one result", name)
		}
	}
	if c.Description.Default == "" {
		return Catalog{}, errors.New("description default must not be empty")
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}
