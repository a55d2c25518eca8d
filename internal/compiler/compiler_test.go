package compiler_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doubleverify/ananke/internal/compiler"
	"github.com/doubleverify/ananke/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func baseSettings() *model.Settings {
	return &model.Settings{WriteMethods: map[string]string{"default": "replace"}}
}

func TestCompile_RendersAndOrdersByDiscoveryWithoutPriority(t *testing.T) {
	dir := t.TempDir()
	// "zzz" sorts after "interfaces" alphabetically, but it's a host file
	// and must still come first: host beats "all" regardless of name.
	writeFile(t, dir, "router1/zzz.yaml.j2", "openconfig:/interfaces:\n  name: {{ .hostname }}\n")
	writeFile(t, dir, "all/aaa.yaml.j2", "openconfig:/system:\n  hostname: {{ .hostname }}\n")

	vars := model.Variables{"hostname": "router1"}
	cfg, err := compiler.New(dir, baseSettings(), vars).Compile("router1", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Packs, 2)
	assert.Equal(t, "openconfig:/interfaces", cfg.Packs[0].Path, "host pack must precede the all pack despite alphabetically sorting after it")
	assert.Equal(t, "router1", cfg.Packs[0].Content["name"])
	assert.Equal(t, "openconfig:/system", cfg.Packs[1].Path)
}

func TestCompile_PlatformSuffixSkipsMismatchedDevice(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "router1/interfaces_iosxr.yaml.j2", "openconfig:/interfaces:\n  vendor: iosxr\n")
	writeFile(t, dir, "router1/interfaces_nxos.yaml.j2", "openconfig:/interfaces:\n  vendor: nxos\n")

	vars := model.Variables{"platform": map[string]any{"os": "nxos"}}
	cfg, err := compiler.New(dir, baseSettings(), vars).Compile("router1", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Packs, 1)
	assert.Equal(t, "nxos", cfg.Packs[0].Content["vendor"])
}

func TestCompile_SectionFilterMatchesPathSubstring(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "router1/interfaces.yaml.j2", "openconfig:/interfaces:\n  a: 1\n")
	writeFile(t, dir, "router1/system.yaml.j2", "openconfig:/system:\n  b: 2\n")

	cfg, err := compiler.New(dir, baseSettings(), model.Variables{}).
		Compile("router1", map[string]struct{}{"system": {}})
	require.NoError(t, err)

	require.Len(t, cfg.Packs, 1)
	assert.Equal(t, "openconfig:/system", cfg.Packs[0].Path)
}

func TestCompile_MergeWithoutBindingKeepsFirstFragmentOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "router1/a.yaml.j2", "openconfig:/interfaces:\n  a: 1\n")
	writeFile(t, dir, "router1/b.yaml.j2", "openconfig:/interfaces:\n  b: 2\n")

	settings := baseSettings()
	cfg, err := compiler.New(dir, settings, model.Variables{}).Compile("router1", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Packs, 1)
	// No merge-bindings configured: the merge pass aborts immediately,
	// leaving only the first-discovered fragment (a.yaml.j2, alphabetically
	// first) behind.
	assert.Equal(t, 1, cfg.Packs[0].Content["a"])
	assert.NotContains(t, cfg.Packs[0].Content, "b")
}

func TestCompile_MergeWithBindingCombinesFragments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "router1/a.yaml.j2", "openconfig:/interfaces:\n  a: 1\n")
	writeFile(t, dir, "router1/b.yaml.j2", "openconfig:/interfaces:\n  b: 2\n")

	settings := baseSettings()
	settings.MergeBindings = map[string]model.MergeBinding{
		"openconfig:/interfaces": {Binding: "openconfig-interfaces", Object: "Interfaces"},
	}
	cfg, err := compiler.New(dir, settings, model.Variables{}).Compile("router1", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Packs, 1)
	assert.Equal(t, 1, cfg.Packs[0].Content["a"])
	assert.Equal(t, 2, cfg.Packs[0].Content["b"])
}
