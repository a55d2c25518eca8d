// Package vartree loads per-target variable documents from the
// devices/<id>/vars.yaml and services/<id>/vars.yaml tree rooted under
// ANANKE_CONFIG (SPEC_FULL.md §4.A).
package vartree

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doubleverify/ananke/internal/model"
)

// Tree holds the variable documents for every known target, keyed by
// target id (the directory name under devices/ or services/).
type Tree struct {
	Devices  map[string]model.Variables
	Services map[string]model.Variables
}

// All returns Devices and Services merged, devices taking precedence on a
// naming collision.
func (t *Tree) All() map[string]model.Variables {
	merged := make(map[string]model.Variables, len(t.Devices)+len(t.Services))
	for id, v := range t.Services {
		merged[id] = v
	}
	for id, v := range t.Devices {
		merged[id] = v
	}
	return merged
}

// Load walks configDir/devices and configDir/services for vars.yaml files.
func Load(configDir string) (*Tree, error) {
	tree := &Tree{
		Devices:  map[string]model.Variables{},
		Services: map[string]model.Variables{},
	}
	if err := loadKind(configDir, "devices", tree.Devices); err != nil {
		return nil, err
	}
	if err := loadKind(configDir, "services", tree.Services); err != nil {
		return nil, err
	}
	return tree, nil
}

func loadKind(configDir, kind string, into map[string]model.Variables) error {
	root := filepath.Join(configDir, kind)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("listing %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		varsPath := filepath.Join(root, entry.Name(), "vars.yaml")
		raw, err := os.ReadFile(varsPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("reading %s: %w", varsPath, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", varsPath, err)
		}
		into[entry.Name()] = model.Variables(doc)
	}
	return nil
}
