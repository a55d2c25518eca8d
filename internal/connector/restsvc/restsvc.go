// Package restsvc implements the REST-backed service connectors
// (PacketFabric, Megaport) ported from connectors/services.py.
package restsvc

import (
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/doubleverify/ananke/internal/connector"
	"github.com/doubleverify/ananke/internal/model"
)

// Resource is the shared behavior of every REST service connector:
// header population is deferred until the first request, and the
// configured pack path always carries one trailing element ("/false" or
// similar) that must be trimmed before use.
type Resource struct {
	connector.Base

	client     *resty.Client
	headers    map[string]string
	headersSet bool

	// populateHeaders lazily builds the authorization header for the
	// concrete service; set by PacketFabric/Megaport constructors.
	populateHeaders func() (map[string]string, error)
	// matchService resolves a config pack against the service's existing
	// inventory, returning the *resty.Response of whatever create/update
	// call it decided to make.
	matchService func(r *Resource, pack *model.ConfigPack, serviceList []any) (*resty.Response, error)
}

// ConnectorBase exposes the embedded Base for connector.Deploy.
func (r *Resource) ConnectorBase() connector.Base { return r.Base }

// TrimURL removes n trailing "/segment" elements from url, ported
// verbatim from AnankeRestResource.trim_url.
func TrimURL(url string, elements int) string {
	for i := 0; i < elements; i++ {
		if idx := strings.LastIndex(url, "/"); idx >= 0 {
			url = url[:idx]
		}
	}
	return url
}

func (r *Resource) headerMap() (map[string]string, error) {
	if !r.headersSet {
		h, err := r.populateHeaders()
		if err != nil {
			return nil, err
		}
		r.headers = h
		r.headersSet = true
	}
	return r.headers, nil
}

// SetConfig trims the pack's path, fetches the matching service catalog
// for the target resource type, and delegates to the service-specific
// match function to decide create vs. update.
func (r *Resource) SetConfig(pack *model.ConfigPack) (any, error) {
	headers, err := r.headerMap()
	if err != nil {
		return nil, err
	}
	pack.Path = TrimURL(pack.Path, 1)

	var serviceList []any
	var catalogURL string
	switch pack.Path {
	case "https://api.packetfabric.com/v2/services":
		catalogURL = pack.Path
	case "https://api-staging.megaport.com/v3/product/vxc":
		catalogURL = "https://api-staging.megaport.com/v2/products"
	default:
		return nil, fmt.Errorf("unrecognized REST service path %s", pack.Path)
	}

	var catalog any
	resp, err := r.client.R().SetHeaders(headers).SetResult(&catalog).Get(catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetching service catalog %s: %w", catalogURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching service catalog %s: status %s", catalogURL, resp.Status())
	}

	serviceList = extractServiceList(pack.Path, catalog)

	match, err := r.matchService(r, pack, serviceList)
	if err != nil {
		return nil, err
	}
	if match.IsError() {
		return nil, fmt.Errorf("service write failed: status %s, body %s", match.Status(), match.String())
	}
	return match.Result(), nil
}

// extractServiceList normalizes each service's inventory shape: a plain
// array for PacketFabric, or the flattened associatedVxcs across every
// Megaport product for Megaport.
func extractServiceList(path string, catalog any) []any {
	switch path {
	case "https://api.packetfabric.com/v2/services":
		if list, ok := catalog.([]any); ok {
			return list
		}
		return nil
	default:
		var services []any
		body, _ := catalog.(map[string]any)
		products, _ := body["data"].([]any)
		for _, p := range products {
			product, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if vxcs, ok := product["associatedVxcs"].([]any); ok {
				services = append(services, vxcs...)
			}
		}
		return services
	}
}

// GetConfig is not supported for REST services; deploys consume gNMI's
// GetConfig for status-checking targets, REST targets are write-only.
func (r *Resource) GetConfig(path string, operational bool) (any, error) {
	return nil, fmt.Errorf("GetConfig is not implemented for REST service connectors")
}

// Capabilities has no REST equivalent.
func (r *Resource) Capabilities() (any, error) {
	return nil, fmt.Errorf("Capabilities is not implemented for REST service connectors")
}
