// Package catalog holds the immutable table of providers the relay can call.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/advisor/internal/domain"
)

//go:embed providers.yaml
var defaultProviders []byte

const defaultGeminiVersion = "v1beta"

// Catalog resolves provider identifiers. It is never mutated after Load.
type Catalog struct {
	order []string
	byID  map[string]domain.ProviderConfig
}

type file struct {
	Providers []domain.ProviderConfig `yaml:"providers"`
}

// Default returns the built-in provider table.
func Default() (*Catalog, error) {
	return Parse(defaultProviders)
}

// Load reads a provider table from path, or the built-in table when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML provider table.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}
	if len(f.Providers) == 0 {
		return nil, fmt.Errorf("parse providers: no providers defined")
	}

	c := &Catalog{byID: make(map[string]domain.ProviderConfig, len(f.Providers))}
	for i, p := range f.Providers {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("provider %d (%q): %w", i, p.Identifier, err)
		}
		if _, dup := c.byID[p.Identifier]; dup {
			return nil, fmt.Errorf("provider %q defined twice", p.Identifier)
		}
		if p.UpstreamModel == "" {
			p.UpstreamModel = p.Identifier
		}
		if p.APIVersion == "" && p.Backend == domain.BackendGemini {
			p.APIVersion = defaultGeminiVersion
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Identifier
		}
		c.byID[p.Identifier] = p
		c.order = append(c.order, p.Identifier)
	}
	return c, nil
}

func validate(p domain.ProviderConfig) error {
	if p.Identifier == "" {
		return fmt.Errorf("id is required")
	}
	if !p.EndpointKind.Valid() {
		return fmt.Errorf("unknown endpoint kind %q", p.EndpointKind)
	}
	if !p.Backend.Valid() {
		return fmt.Errorf("unknown backend %q", p.Backend)
	}
	if len(p.Capabilities) == 0 {
		return fmt.Errorf("at least one capability is required")
	}
	for _, c := range p.Capabilities {
		if !c.Valid() {
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	if p.EndpointKind == domain.EndpointGenerateImage {
		if !p.Has(domain.CapabilityImageGeneration) {
			return fmt.Errorf("image endpoint without image-generation capability")
		}
		if p.Backend == domain.BackendOllama {
			return fmt.Errorf("backend %q cannot generate images", p.Backend)
		}
	}
	return nil
}

// Lookup returns the provider for id. Unknown ids are never defaulted.
func (c *Catalog) Lookup(id string) (domain.ProviderConfig, error) {
	p, ok := c.byID[id]
	if !ok {
		return domain.ProviderConfig{}, &domain.SelectorError{Kind: "model", Value: id}
	}
	return clone(p), nil
}

// List returns every provider in declaration order.
func (c *Catalog) List() []domain.ProviderConfig {
	out := make([]domain.ProviderConfig, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, clone(c.byID[id]))
	}
	return out
}

// Backends returns the distinct backends referenced by the table.
func (c *Catalog) Backends() []domain.Backend {
	seen := make(map[domain.Backend]bool)
	var out []domain.Backend
	for _, id := range c.order {
		b := c.byID[id].Backend
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

func clone(p domain.ProviderConfig) domain.ProviderConfig {
	p.Capabilities = append([]domain.Capability(nil), p.Capabilities...)
	return p
}
