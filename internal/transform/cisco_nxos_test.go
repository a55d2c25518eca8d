package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doubleverify/ananke/internal/model"
	"github.com/doubleverify/ananke/internal/transform"
)

func ifaceFixture() *model.ConfigPack {
	return &model.ConfigPack{
		Path: "openconfig:/interfaces",
		Content: map[string]any{
			"openconfig-interfaces:interface": []any{
				map[string]any{
					"name":   "Ethernet1/1",
					"config": map[string]any{"type": "iana-if-type:l2vlan"},
					"openconfig-if-ethernet:ethernet": map[string]any{
						"config": map[string]any{"openconfig-if-aggregate:aggregate-id": "Po1"},
					},
				},
			},
		},
	}
}

func TestCiscoNXOS_StripsNamespaceAlways(t *testing.T) {
	pack := ifaceFixture()
	pack.WriteMethod = model.Replace
	out := transform.CiscoNXOS(pack)

	interfaces := out.Content["openconfig-interfaces:interface"].([]any)
	iface := interfaces[0].(map[string]any)
	cfg := iface["config"].(map[string]any)
	assert.Equal(t, "l2vlan", cfg["type"])
}

func TestCiscoNXOS_ReplaceModeLeavesEthernetConfigIntact(t *testing.T) {
	pack := ifaceFixture()
	pack.WriteMethod = model.Replace
	out := transform.CiscoNXOS(pack)

	interfaces := out.Content["openconfig-interfaces:interface"].([]any)
	iface := interfaces[0].(map[string]any)
	assert.Contains(t, iface, "config")
}

func TestCiscoNXOS_UpdateModeReducesPortChannelMember(t *testing.T) {
	pack := ifaceFixture()
	pack.WriteMethod = model.Update
	out := transform.CiscoNXOS(pack)

	interfaces := out.Content["openconfig-interfaces:interface"].([]any)
	iface := interfaces[0].(map[string]any)
	assert.NotContains(t, iface, "config", "update mode must drop everything but name + aggregate-id")
	assert.Equal(t, "Ethernet1/1", iface["name"])

	ethernet := iface["openconfig-if-ethernet:ethernet"].(map[string]any)
	cfg := ethernet["config"].(map[string]any)
	assert.Equal(t, "Po1", cfg["openconfig-if-aggregate:aggregate-id"])
}

func TestCiscoNXOS_IgnoresOtherPaths(t *testing.T) {
	pack := &model.ConfigPack{Path: "openconfig:/other", Content: map[string]any{"x": 1}}
	out := transform.CiscoNXOS(pack)
	assert.Same(t, pack, out)
}

func TestRegistry_LooksUpByPlatformID(t *testing.T) {
	fn, ok := transform.Lookup("nxos")
	assert.True(t, ok)
	assert.NotNil(t, fn)
}
