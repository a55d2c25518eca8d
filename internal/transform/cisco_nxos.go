package transform

import (
	"strings"

	"github.com/doubleverify/ananke/internal/model"
)

func init() {
	Register("nxos", CiscoNXOS)
}

// CiscoNXOS undoes two NX-OS quirks ported from sample/transforms/cisco_nxos.py:
//  1. the device rejects the "iana-if-type" namespace prefix NX-OS's own
//     YANG models add to interface type values.
//  2. in update mode (replace mode is fine), an interface already part of
//     a port-channel must carry nothing but its aggregate-id — any other
//     field in the same write trips a CLI-only config collision. Status
//     and description changes for such interfaces must go out via a
//     replace call instead.
func CiscoNXOS(pack *model.ConfigPack) *model.ConfigPack {
	if pack.Path != "openconfig:/interfaces" {
		return pack
	}
	interfaces, _ := pack.Content["openconfig-interfaces:interface"].([]any)
	for i, raw := range interfaces {
		iface, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if cfg, ok := iface["config"].(map[string]any); ok {
			if t, ok := cfg["type"].(string); ok {
				cfg["type"] = stripNamespace(t)
			}
		}
		ethernet, ok := iface["openconfig-if-ethernet:ethernet"].(map[string]any)
		if !ok {
			continue
		}
		if pack.WriteMethod == model.Replace {
			continue
		}
		cfg, _ := ethernet["config"].(map[string]any)
		aggrID := cfg["openconfig-if-aggregate:aggregate-id"]
		interfaces[i] = map[string]any{
			"name": iface["name"],
			"openconfig-if-ethernet:ethernet": map[string]any{
				"config": map[string]any{
					"openconfig-if-aggregate:aggregate-id": aggrID,
				},
			},
		}
	}
	return pack
}

func stripNamespace(ifType string) string {
	return strings.ReplaceAll(ifType, "iana-if-type:l2vlan", "l2vlan")
}
