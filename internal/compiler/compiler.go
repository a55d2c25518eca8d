// Package compiler discovers, renders, and merges the YAML+Jinja2-style
// templates under ANANKE_CONFIG into the ordered ConfigPack list a
// connector deploys (SPEC_FULL.md §4.C, ported from struct/config.py).
package compiler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"dario.cat/mergo"
	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/doubleverify/ananke/internal/logging"
	"github.com/doubleverify/ananke/internal/model"
)

var platformSuffix = regexp.MustCompile(`_([^/_]+)\.yaml\.j2$`)

// Compiler renders and merges config fragments for a single target.
type Compiler struct {
	ConfigDir string
	Settings  *model.Settings
	Variables model.Variables

	filePaths map[string][]string   // file basename -> paths defined in it
	mapping   map[string][]map[string]any // path -> fragments, in discovery order
	order     []string              // paths in first-seen order (host, then role, then all)
	seen      map[string]bool
}

// New builds a Compiler scoped to one target's variables.
func New(configDir string, settings *model.Settings, variables model.Variables) *Compiler {
	return &Compiler{
		ConfigDir: configDir,
		Settings:  settings,
		Variables: variables,
		filePaths: map[string][]string{},
		mapping:   map[string][]map[string]any{},
		seen:      map[string]bool{},
	}
}

// Compile runs the full pipeline: discover, render, merge, assemble.
// sections is the set of already-resolved path/file tokens the caller
// wants (resolver.Resolve's output for this target); an empty set means
// "everything".
func (c *Compiler) Compile(targetID string, sections map[string]struct{}) (*model.Config, error) {
	targetID = strings.Split(targetID, ".")[0]

	if err := c.parse(targetID); err != nil {
		return nil, err
	}

	resolvedSections := c.resolveSections(sections)

	if err := c.mergePaths(); err != nil {
		return nil, err
	}

	packs := c.buildPacks(resolvedSections)
	if len(resolvedSections) > 0 && len(packs) == 0 {
		if logging.Sugar != nil {
			logging.Sugar.Warnf("could not find match for target %s given sections %v in configured paths, skipping", targetID, sectionKeys(resolvedSections))
		}
	}

	return &model.Config{
		TargetID:  targetID,
		Settings:  c.Settings,
		Variables: c.Variables,
		Packs:     packs,
	}, nil
}

// discoverFiles walks ConfigDir for *.yaml.j2 files whose parent directory
// is the target id, one of its roles, or "all" — in that priority order.
func (c *Compiler) discoverFiles(targetID string) ([]string, error) {
	roles := c.Variables.Roles()
	isRole := make(map[string]bool, len(roles))
	for _, r := range roles {
		isRole[r] = true
	}

	var host, role, all []string
	err := filepath.Walk(c.ConfigDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".yaml.j2") {
			return nil
		}
		parent := filepath.Base(filepath.Dir(path))
		switch {
		case parent == targetID:
			host = append(host, path)
		case isRole[parent]:
			role = append(role, path)
		case parent == "all":
			all = append(all, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering config files under %s: %w", c.ConfigDir, err)
	}
	sort.Strings(host)
	sort.Strings(role)
	sort.Strings(all)
	return append(append(host, role...), all...), nil
}

// parse renders every applicable file through text/template+sprig,
// parses the YAML result, and populates mapping and filePaths.
func (c *Compiler) parse(targetID string) error {
	files, err := c.discoverFiles(targetID)
	if err != nil {
		return err
	}
	if logging.Sugar != nil {
		logging.Sugar.Debugf("files discovered for %s: %v", targetID, files)
	}

	isService := c.Variables.IsService()
	platform := c.Variables.String("platform", "os")

	for _, file := range files {
		if m := platformSuffix.FindStringSubmatch(file); m != nil {
			if isService {
				continue
			}
			if m[1] != platform {
				if logging.Sugar != nil {
					logging.Sugar.Debugf("platform suffix for %s does not match device platform %s, skipping", file, platform)
				}
				continue
			}
		}

		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}

		tmpl, err := template.New(filepath.Base(file)).Funcs(sprig.TxtFuncMap()).Parse(string(raw))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", file, err)
		}
		var rendered bytes.Buffer
		if err := tmpl.Execute(&rendered, map[string]any(c.Variables)); err != nil {
			return fmt.Errorf("rendering template %s: %w", file, err)
		}

		var spec map[string]map[string]any
		if err := yaml.Unmarshal(rendered.Bytes(), &spec); err != nil {
			return fmt.Errorf("parsing rendered yaml %s: %w", file, err)
		}

		base := filepath.Base(file)
		for path, content := range spec {
			c.filePaths[base] = append(c.filePaths[base], path)
			c.mapping[path] = append(c.mapping[path], content)
			if !c.seen[path] {
				c.seen[path] = true
				c.order = append(c.order, path)
			}
		}
	}
	return nil
}

// resolveSections turns a mix of file names (foo.yaml.j2) and raw path
// substrings into a flat set of path substrings.
func (c *Compiler) resolveSections(sections map[string]struct{}) map[string]struct{} {
	resolved := map[string]struct{}{}
	for section := range sections {
		if strings.HasSuffix(section, ".yaml.j2") {
			for _, path := range c.filePaths[section] {
				resolved[path] = struct{}{}
			}
			continue
		}
		resolved[section] = struct{}{}
	}
	return resolved
}

// mergePaths merges multi-fragment paths via settings.merge-bindings.
// A path with no configured binding is logged and the merge stops
// entirely: every remaining multi-fragment path (in map iteration order)
// is left with only its first discovered fragment, exactly as the
// original config compiler behaved.
func (c *Compiler) mergePaths() error {
	any2 := false
	for _, fragments := range c.mapping {
		if len(fragments) > 1 {
			any2 = true
			break
		}
	}
	if !any2 {
		return nil
	}
	if c.Settings.MergeBindings == nil && logging.Sugar != nil {
		logging.Sugar.Warn("no merge bindings defined in settings.yaml, but a path with more than one config element exists, one entry may overwrite the other")
		return nil
	}

	for path, fragments := range c.mapping {
		if len(fragments) == 1 {
			continue
		}
		if _, ok := c.Settings.MergeBindings[path]; !ok {
			if logging.Sugar != nil {
				logging.Sugar.Warnf("path %s has multiple entries but no binding mapping, one entry may overwrite the other", path)
			}
			return nil
		}
		merged := map[string]any{}
		for _, fragment := range fragments {
			if err := mergo.Merge(&merged, fragment, mergo.WithOverride); err != nil {
				return fmt.Errorf("merging path %s: %w", path, err)
			}
		}
		c.mapping[path] = []map[string]any{merged}
	}
	return nil
}

// buildPacks assembles the final ordered pack list: priority paths first
// in settings.priority order, then every remaining path in discovery
// order (host, then role, then "all" — the precedence discoverFiles
// builds), each filtered against the resolved section set when
// non-empty.
func (c *Compiler) buildPacks(sections map[string]struct{}) []*model.ConfigPack {
	var packs []*model.ConfigPack
	used := map[string]bool{}

	writeMethod := func(path string) model.WriteMethod {
		return c.Settings.WriteMethodFor(path)
	}
	matches := func(path string) bool {
		if len(sections) == 0 {
			return true
		}
		for section := range sections {
			if strings.Contains(path, section) {
				return true
			}
		}
		return false
	}

	for _, priorityPath := range c.Settings.Priority {
		content, ok := c.mapping[priorityPath]
		if !ok || used[priorityPath] || !matches(priorityPath) {
			continue
		}
		used[priorityPath] = true
		packs = append(packs, newPack(priorityPath, content[0], writeMethod(priorityPath)))
	}

	for _, path := range c.order {
		if used[path] || !matches(path) {
			continue
		}
		packs = append(packs, newPack(path, c.mapping[path][0], writeMethod(path)))
	}
	return packs
}

func newPack(path string, content map[string]any, method model.WriteMethod) *model.ConfigPack {
	original := make(map[string]any, len(content))
	for k, v := range content {
		original[k] = v
	}
	return &model.ConfigPack{
		Path:            path,
		OriginalContent: original,
		Content:         content,
		WriteMethod:     method,
	}
}

func sectionKeys(sections map[string]struct{}) []string {
	out := make([]string, 0, len(sections))
	for s := range sections {
		out = append(out, s)
	}
	return out
}
