package restsvc

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/doubleverify/ananke/internal/connector"
	"github.com/doubleverify/ananke/internal/model"
)

// megaportAuth performs the OAuth2 client-credentials exchange Megaport's
// M2M API requires, ported from struct/util.py's MegaportAuth.
type megaportAuth struct {
	clientID, clientSecret string
	staging                bool
}

func (a megaportAuth) token() (string, error) {
	url := "https://auth-m2m.megaport.com/oauth2/token"
	if a.staging {
		url = "https://oauth-m2m-staging.auth.ap-southeast-2.amazoncognito.com/oauth2/token"
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	resp, err := resty.New().R().
		SetBasicAuth(a.clientID, a.clientSecret).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&body).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("requesting megaport m2m token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("requesting megaport m2m token: status %s", resp.Status())
	}
	return body.AccessToken, nil
}

// NewMegaport builds a connector for a Megaport VXC service, staging
// true by default to match the original's default constructor argument.
func NewMegaport(targetID string, config *model.Config, staging bool) (*Resource, error) {
	if config.Variables.String("service-id") != "megaport" {
		return nil, fmt.Errorf("target %s does not appear to be a megaport service", targetID)
	}
	clientID := config.Variables.String("ANANKE_MEGAPORT_CLIENT_ID")
	clientSecret := config.Variables.String("ANANKE_MEGAPORT_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("target %s is missing megaport OAuth credentials", targetID)
	}

	r := &Resource{
		Base:   connector.NewBase(targetID, config.Settings, config.Variables),
		client: resty.New().SetTimeout(30 * time.Second),
	}
	auth := megaportAuth{clientID: clientID, clientSecret: clientSecret, staging: staging}
	r.populateHeaders = func() (map[string]string, error) {
		token, err := auth.token()
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + token,
		}, nil
	}
	r.matchService = matchMegaportService
	return r, nil
}

// matchMegaportService looks for an existing VXC whose a-end/b-end
// product+VLAN pairs match the pack's original (pre-transform) content.
// A match is updated in place; no match buys a new VXC through the
// networkdesign/buy endpoint, which needs its own, differently shaped
// request body.
func matchMegaportService(r *Resource, pack *model.ConfigPack, serviceList []any) (*resty.Response, error) {
	headers, err := r.headerMap()
	if err != nil {
		return nil, err
	}

	configured := map[[2]any]struct{}{
		{pack.OriginalContent["aEndProductUid"], pack.OriginalContent["aEndVlan"]}: {},
		{pack.OriginalContent["bEndProductUid"], pack.OriginalContent["bEndVlan"]}: {},
	}
	for _, raw := range serviceList {
		service, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		aEnd, _ := service["aEnd"].(map[string]any)
		bEnd, _ := service["bEnd"].(map[string]any)
		candidate := map[[2]any]struct{}{
			{aEnd["productUid"], aEnd["vlan"]}: {},
			{bEnd["productUid"], bEnd["vlan"]}: {},
		}
		if megaportPortsEqual(configured, candidate) {
			productUID, _ := service["productUid"].(string)
			return r.client.R().SetHeaders(headers).SetBody(pack.Content).
				Put(fmt.Sprintf("%s/%s", pack.Path, productUID))
		}
	}

	vxc := map[string]any{
		"productName": pack.Content["name"],
		"rateLimit":   pack.Content["rateLimit"],
		"aEnd":        map[string]any{"vlan": pack.Content["aEndVlan"]},
		"bEnd": map[string]any{
			"productUid": pack.Content["bEndProductUid"],
			"vlan":       pack.OriginalContent["bEndVlan"],
		},
	}
	if pairingKey, ok := pack.Content["pairingKey"]; ok {
		bEnd := vxc["bEnd"].(map[string]any)
		bEnd["partnerConfig"] = map[string]any{
			"connectType": "GOOGLE",
			"pairingKey":  pairingKey,
		}
	}
	purchaseBody := []map[string]any{
		{
			"productUid":    pack.Content["aEndProductUid"],
			"associatedVxcs": []map[string]any{vxc},
		},
	}
	urlPrefix := TrimURL(pack.Path, 2)
	return r.client.R().SetHeaders(headers).SetBody(purchaseBody).
		Post(fmt.Sprintf("%s/networkdesign/buy", urlPrefix))
}

func megaportPortsEqual(a, b map[[2]any]struct{}) bool {
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
