package restsvc

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/doubleverify/ananke/internal/connector"
	"github.com/doubleverify/ananke/internal/model"
)

// NewPacketFabric builds a connector for a PacketFabric backbone
// service. Its API key ships pre-populated in variables, unlike
// Megaport's OAuth dance.
func NewPacketFabric(targetID string, config *model.Config) (*Resource, error) {
	if config.Variables.String("service-id") != "packetfabric" {
		return nil, fmt.Errorf("target %s does not appear to be a packetfabric service", targetID)
	}
	apiKey := config.Variables.String("ANANKE_PACKETFABRIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("target %s is missing ANANKE_PACKETFABRIC_API_KEY", targetID)
	}

	r := &Resource{
		Base:   connector.NewBase(targetID, config.Settings, config.Variables),
		client: resty.New().SetTimeout(30 * time.Second),
	}
	r.populateHeaders = func() (map[string]string, error) {
		return map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + apiKey,
		}, nil
	}
	r.matchService = matchPacketFabricService
	return r, nil
}

// matchPacketFabricService looks for an existing backbone service whose
// port/VLAN pairs match the configured pack. A bandwidth mismatch on an
// otherwise-matching service triggers a delete-then-recreate instead of
// an in-place update, because PacketFabric has no update-in-place API
// for bandwidth changes; the delete is polled until the circuit
// disappears before the recreate POST fires.
func matchPacketFabricService(r *Resource, pack *model.ConfigPack, serviceList []any) (*resty.Response, error) {
	headers, err := r.headerMap()
	if err != nil {
		return nil, err
	}

	content, _ := pack.Content["interfaces"].([]any)
	configuredPorts := portSet(content)
	bandwidth, _ := pack.Content["bandwidth"].(map[string]any)
	configuredSpeed := bandwidth["speed"]

	for _, raw := range serviceList {
		service, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		svcInterfaces, _ := service["interfaces"].([]any)
		if !setsEqual(configuredPorts, portSet(svcInterfaces)) {
			continue
		}
		svcBandwidth, _ := service["bandwidth"].(map[string]any)
		if configuredSpeed != svcBandwidth["speed"] {
			circuitID, _ := service["vc_circuit_id"].(string)
			toDelete := fmt.Sprintf("%s/%s", pack.Path, circuitID)
			if _, err := r.client.R().SetHeaders(headers).Delete(toDelete); err != nil {
				return nil, fmt.Errorf("deleting stale circuit %s: %w", toDelete, err)
			}
			if err := pollDeleted(r.client, headers, toDelete, 10); err != nil {
				return nil, err
			}
		}
		break
	}

	return r.client.R().SetHeaders(headers).SetBody(pack.Content).
		Post(fmt.Sprintf("%s/backbone", pack.Path))
}

// pollDeleted retries GET against url until the response body reports
// the circuit gone, or retries are exhausted, sleeping one second
// between attempts (ported verbatim from _process_service_match).
func pollDeleted(client *resty.Client, headers map[string]string, url string, retries int) error {
	for retries > 1 {
		var body map[string]any
		resp, err := client.R().SetHeaders(headers).SetResult(&body).Get(url)
		if err == nil && resp != nil {
			if msg, ok := body["message"].(string); ok && strings.Contains(msg, "Virtual circuit not found") {
				return nil
			}
		}
		retries--
		time.Sleep(time.Second)
	}
	return nil
}

type portKey struct {
	circuitID string
	vlan      any
}

func portSet(interfaces []any) map[portKey]struct{} {
	set := make(map[portKey]struct{}, len(interfaces))
	for _, raw := range interfaces {
		port, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		set[portKey{circuitID: fmt.Sprint(port["port_circuit_id"]), vlan: port["vlan"]}] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[portKey]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
