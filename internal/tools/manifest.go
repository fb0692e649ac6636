package tools

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest declares extra tools loaded from a YAML file at startup. Manifest
// tools are schema-only: their invoker returns the canned response, which is
// enough to exercise planning, parameter synthesis, and HITL flows against
// tools that have no Go implementation yet.
type Manifest struct {
	Tools []ManifestTool `yaml:"tools"`
}

// ManifestTool is one manifest entry: a schema plus a canned response.
type ManifestTool struct {
	Schema   `yaml:",inline"`
	Response map[string]any `yaml:"response"`
}

// LoadManifest parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse tool manifest: %w", err)
	}
	for i, t := range m.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool manifest entry %d: missing name", i)
		}
	}
	return &m, nil
}

// SeedRegistry registers every manifest tool. Duplicate names fail the seed.
func (m *Manifest) SeedRegistry(reg *Registry) error {
	for _, t := range m.Tools {
		response := t.Response
		if err := reg.Register(t.Schema, func(ctx context.Context, args map[string]any) (any, error) {
			if response == nil {
				return map[string]any{"ok": true}, nil
			}
			return response, nil
		}); err != nil {
			return fmt.Errorf("seed manifest tool %s: %w", t.Name, err)
		}
	}
	return nil
}
