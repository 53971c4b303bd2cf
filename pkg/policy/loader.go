package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a policy document from a YAML file.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("policy: read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	if doc.Version == "" {
		doc.Version = "1"
	}
	if doc.Settings.DefaultAction == "" {
		doc.Settings.DefaultAction = string(ActionAllow)
	}
	for i, p := range doc.Policies {
		if p.ID == "" {
			return Document{}, fmt.Errorf("policy: policy at index %d missing id", i)
		}
	}
	return doc, nil
}
