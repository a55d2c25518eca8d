// Package statuscheck subscribes to a target's operational telemetry,
// snapshots it, and diffs later polls against that snapshot with a
// percent tolerance for numeric counters (SPEC_FULL.md §4.F, ported
// from post_checks/telemetry.py's CheckSubscriber/StatusCheck).
package statuscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

// reading is one flattened path/value pair pulled out of a subscribe
// response, after NX-OS's unified responses have been split to match
// IOS-XR's per-object shape.
type reading struct {
	path string
	val  map[string]any
}

func readingsFromUpdates(updates []*gpb.Update) ([]reading, error) {
	out := make([]reading, 0, len(updates))
	for _, u := range updates {
		val, err := typedValueToAny(u.Val)
		if err != nil {
			return nil, err
		}
		m, ok := val.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, reading{path: pathString(u.Path), val: m})
	}
	return out, nil
}

func typedValueToAny(tv *gpb.TypedValue) (any, error) {
	if tv == nil {
		return nil, nil
	}
	switch v := tv.Value.(type) {
	case *gpb.TypedValue_JsonIetfVal:
		var out any
		if err := json.Unmarshal(v.JsonIetfVal, &out); err != nil {
			return nil, fmt.Errorf("decoding json_ietf_val: %w", err)
		}
		return out, nil
	case *gpb.TypedValue_JsonVal:
		var out any
		if err := json.Unmarshal(v.JsonVal, &out); err != nil {
			return nil, fmt.Errorf("decoding json_val: %w", err)
		}
		return out, nil
	case *gpb.TypedValue_StringVal:
		return v.StringVal, nil
	default:
		return nil, nil
	}
}

func pathString(p *gpb.Path) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	for _, elem := range p.Elem {
		b.WriteByte('/')
		b.WriteString(elem.Name)
		for k, v := range elem.Key {
			fmt.Fprintf(&b, "[%s=%s]", k, v)
		}
	}
	return strings.TrimPrefix(b.String(), "/")
}

// splitUnifiedResponses expands NX-OS's single bulk "network-instances",
// "interfaces", and "lldp" readings into one reading per leaf object,
// mirroring how IOS-XR reports them natively. Platforms that already
// report per-object (nothing matches these three top-level names) pass
// through untouched.
func splitUnifiedResponses(readings []reading) []reading {
	var split []reading
	for _, r := range readings {
		switch r.path {
		case "network-instances":
			split = append(split, splitNetworkInstances(r)...)
		case "interfaces":
			split = append(split, splitInterfaces(r)...)
		case "lldp":
			split = append(split, splitLLDP(r)...)
		}
	}
	if len(split) == 0 {
		return readings
	}
	return split
}

func splitNetworkInstances(r reading) []reading {
	var out []reading
	instances, _ := r.val["network-instance"].([]any)
	for _, rawInst := range instances {
		inst, ok := rawInst.(map[string]any)
		if !ok {
			continue
		}
		name := fmt.Sprint(inst["name"])
		instPrefix := fmt.Sprintf("network-instances/network-instance[name=%s]/", name)

		protocols, _ := inst["protocols"].(map[string]any)
		protoList, _ := protocols["protocol"].([]any)
		for _, rawProto := range protoList {
			proto, ok := rawProto.(map[string]any)
			if !ok {
				continue
			}
			protoPrefix := fmt.Sprintf("%sprotocols/protocol[identifier=%v][name=%v]/",
				instPrefix, proto["identifier"], proto["name"])

			bgp, _ := proto["bgp"].(map[string]any)
			neighbors, _ := bgp["neighbors"].(map[string]any)
			neighborList, _ := neighbors["neighbor"].([]any)
			for _, rawNeighbor := range neighborList {
				neighbor, ok := rawNeighbor.(map[string]any)
				if !ok {
					continue
				}
				addr := fmt.Sprint(neighbor["neighbor-address"])
				if afiSafis, ok := neighbor["afi-safis"].(map[string]any); ok {
					afiSafiList, _ := afiSafis["afi-safi"].([]any)
					for _, rawAfiSafi := range afiSafiList {
						afiSafi, ok := rawAfiSafi.(map[string]any)
						if !ok {
							continue
						}
						path := fmt.Sprintf(
							"%sbgp/neighbors/neighbor[neighbor-address=%s]/afi-safis/afi-safi[afi-safi-name=%v]//state",
							protoPrefix, addr, afiSafi["afi-safi-name"])
						out = append(out, reading{path: path, val: afiSafi})
					}
					continue
				}
				path := fmt.Sprintf("%sbgp/neighbors/neighbor[neighbor-address=%s]/state", protoPrefix, addr)
				out = append(out, reading{path: path, val: neighbor})
			}
		}
	}
	return out
}

func splitInterfaces(r reading) []reading {
	var out []reading
	interfaces, _ := r.val["interface"].([]any)
	for _, raw := range interfaces {
		iface, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := fmt.Sprint(iface["name"])
		if _, hasEthernet := iface["ethernet"]; hasEthernet {
			out = append(out, reading{path: fmt.Sprintf("interfaces/interface[name=%s]", name), val: iface})
		} else {
			out = append(out, reading{path: fmt.Sprintf("interfaces/interface[name=%s]/state", name), val: iface})
		}
	}
	return out
}

func splitLLDP(r reading) []reading {
	var out []reading
	interfaces, _ := r.val["interfaces"].(map[string]any)
	ifaceList, _ := interfaces["interface"].([]any)
	for _, rawIface := range ifaceList {
		iface, ok := rawIface.(map[string]any)
		if !ok {
			continue
		}
		name := fmt.Sprint(iface["name"])
		neighbors, _ := iface["neighbors"].(map[string]any)
		neighborList, _ := neighbors["neighbor"].([]any)
		for _, rawNeighbor := range neighborList {
			neighbor, ok := rawNeighbor.(map[string]any)
			if !ok {
				continue
			}
			path := fmt.Sprintf("lldp/interfaces/interface[name=%s]//neighbors/neighbor[id=%v]/state", name, neighbor["id"])
			out = append(out, reading{path: path, val: neighbor})
		}
	}
	return out
}

// formatBGPPeer strips a BGP neighbor reading down to the stable fields
// worth diffing: address and a binary up/down session state, dropping
// the volatile counters and timers the full state blob carries.
func formatBGPPeer(r reading) reading {
	val := r.val
	if _, ok := val["neighbor-address"]; !ok {
		return r
	}
	if state, ok := val["state"].(map[string]any); ok {
		val = state
	}
	sessionState := "DOWN"
	if s, ok := val["session-state"].(string); ok && s == "ESTABLISHED" {
		sessionState = "UP"
	}
	r.val = map[string]any{
		"neighbor-address": val["neighbor-address"],
		"session-state":    sessionState,
	}
	return r
}

// formatInterface strips an interface reading down to name/admin-status/
// oper-status plus only the error/discard counters, dropping byte and
// packet counters that change on every poll regardless of health.
func formatInterface(r reading) reading {
	switch {
	case strings.HasSuffix(r.path, "/state/counters"):
		counters := sanitizeCounters(r.val)
		delete(r.val, "counters")
		r.val["counters"] = counters
	case strings.HasSuffix(r.path, "/state"):
		val := r.val
		var counters any
		if c, ok := val["counters"]; ok {
			counters = sanitizeCounters(val)
			delete(val, "counters")
			_ = c
		} else if name, ok := val["name"]; ok {
			if state, ok := val["state"].(map[string]any); ok {
				val = state
			}
			operStatus := "DOWN"
			if s, ok := val["oper-status"].(string); ok {
				operStatus = s
			}
			formatted := map[string]any{
				"name":          name,
				"admin-status":  val["admin-status"],
				"oper-status":   operStatus,
			}
			if counters != nil {
				formatted["counters"] = counters
			}
			r.val = formatted
			return r
		}
		r.val = val
	case strings.HasSuffix(r.path, "]"):
		ethernet, ok := r.val["ethernet"].(map[string]any)
		if !ok {
			return r
		}
		state, ok := ethernet["state"].(map[string]any)
		if !ok {
			return r
		}
		if _, ok := state["counters"]; ok {
			counters := sanitizeCounters(state)
			delete(state, "counters")
			state["counters"] = counters
		}
	}
	return r
}

// sanitizeCounters keeps only error/discard counters, ported from
// CheckSubscriber.format_interface's nested _sanitize_counters.
func sanitizeCounters(container map[string]any) map[string]any {
	var raw map[string]any
	if c, ok := container["counters"].(map[string]any); ok {
		raw = c
	} else if state, ok := container["state"].(map[string]any); ok {
		if c, ok := state["counters"].(map[string]any); ok {
			raw = c
		}
	}
	if raw == nil {
		return nil
	}
	filtered := map[string]any{}
	for key, val := range raw {
		if strings.Contains(key, "err") || strings.Contains(key, "discard") {
			filtered[key] = val
		}
	}
	return filtered
}

// populateState folds a batch of readings into an accumulating
// path->object state map, applying the per-domain formatters.
func populateState(updates []*gpb.Update, into map[string]map[string]any) (map[string]map[string]any, error) {
	readings, err := readingsFromUpdates(updates)
	if err != nil {
		return nil, err
	}
	for _, r := range splitUnifiedResponses(readings) {
		switch {
		case strings.HasPrefix(r.path, "network-instances"):
			r = formatBGPPeer(r)
		case strings.HasPrefix(r.path, "interfaces"):
			r = formatInterface(r)
		}
		existing, ok := into[r.path]
		if !ok {
			existing = map[string]any{}
			into[r.path] = existing
		}
		for k, v := range r.val {
			existing[k] = v
		}
	}
	return into, nil
}

// Device is the subset of the gNMI connector the status checker needs;
// matching gnmi.Device's Subscribe signature keeps this package from
// depending on the rest of the connector abstraction.
type Device interface {
	Subscribe(ctx context.Context, paths []string) ([]*gpb.Update, error)
}
