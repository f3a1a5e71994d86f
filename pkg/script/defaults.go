package script

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// LoadDefaults reads baseline directives from a YAML mapping file, e.g.:
//
//	job_name: default
//	partition: cpu
//	mem: 2G
//
// Document order is preserved so defaults render deterministically. The path
// is always explicit; there is no install-relative lookup.
func LoadDefaults(path string) ([]Directive, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefaults(b)
}

// ParseDefaults decodes a YAML mapping into ordered directives.
func ParseDefaults(data []byte) ([]Directive, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	if len(doc.Content) == 0 {
		// Empty document: no defaults.
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("defaults: document root must be a mapping")
	}

	out := make([]Directive, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k := root.Content[i]
		v := root.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("defaults: directive %q: value must be a scalar", k.Value)
		}
		out = append(out, Directive{Name: k.Value, Value: v.Value})
	}
	return out, nil
}
