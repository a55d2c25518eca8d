// Package gnmi implements the device Connector over the gNMI protocol
// (SPEC_FULL.md §4.D), ported from connectors/gnmi.py's GnmiDevice.
package gnmi

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/doubleverify/ananke/internal/connector"
	"github.com/doubleverify/ananke/internal/model"
)

const defaultPort = 50051

// Device holds a gNMI session to a single network element.
type Device struct {
	connector.Base

	target     string
	port       int
	username   string
	password   string
	tlsServer  string
	certPath   string
	dialTimeout time.Duration
}

// ConnectorBase exposes the embedded Base for connector.Deploy.
func (d *Device) ConnectorBase() connector.Base { return d.Base }

// New builds a Device connector for targetID, resolving port, TLS
// override, and certificate the way the original GnmiDevice did.
func New(targetID string, config *model.Config, username, password string) (*Device, error) {
	base := connector.NewBase(targetID, config.Settings, config.Variables)

	port := defaultPort
	if p, ok := config.Variables.Int("management", "gnmi-port"); ok {
		port = p
	}

	cert, err := resolveCertificate(config.Settings, config.Variables)
	if err != nil {
		return nil, err
	}

	return &Device{
		Base:        base,
		target:      targetID,
		port:        port,
		username:    username,
		password:    password,
		tlsServer:   config.Variables.String("management", "tls-server"),
		certPath:    cert,
		dialTimeout: 10 * time.Second,
	}, nil
}

// resolveCertificate picks a CA certificate file the way _get_cert did:
// ANANKE_CERTIFICATE_DIR overrides settings.certificate.directory, and a
// per-target variable overrides settings.certificate.name. No directory
// configured anywhere means plaintext (insecure) transport.
func resolveCertificate(settings *model.Settings, variables model.Variables) (string, error) {
	dir := os.Getenv(connector.EnvCertDir)
	if dir == "" {
		dir = settings.Certificate.Directory
	}
	if dir == "" {
		return "", nil
	}

	name := settings.Certificate.Name
	if v := variables.String("management", "certificate"); v != "" {
		name = v
	}
	if name == "" {
		return "", nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading certificate directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.Name() == name {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("configured cert %s not found in %s", name, dir)
}

func (d *Device) dial(ctx context.Context) (*grpc.ClientConn, error) {
	creds, err := d.transportCredentials()
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", d.target, d.port)
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds), grpc.WithBlock())
}

func (d *Device) transportCredentials() (credentials.TransportCredentials, error) {
	if d.certPath == "" {
		return insecure.NewCredentials(), nil
	}
	pem, err := os.ReadFile(d.certPath)
	if err != nil {
		return nil, fmt.Errorf("reading certificate %s: %w", d.certPath, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no valid certificates found in %s", d.certPath)
	}
	cfg := &tls.Config{RootCAs: pool}
	if d.tlsServer != "" {
		cfg.ServerName = d.tlsServer
	}
	return credentials.NewTLS(cfg), nil
}

// context attaches the session's username/password as gRPC metadata, the
// way pygnmi's gNMIclient passes them on every call.
func (d *Device) context(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "username", d.username, "password", d.password)
}

// SetConfig pushes one pack via gNMI Set, retrying once on the known
// transient "Operation failed" YANG framework fault.
func (d *Device) SetConfig(pack *model.ConfigPack) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.dialTimeout)
	defer cancel()

	conn, err := d.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.target, err)
	}
	defer conn.Close()
	client := gpb.NewGNMIClient(conn)

	req, err := buildSetRequest(pack)
	if err != nil {
		return nil, err
	}

	resp, err := client.Set(d.context(ctx), req)
	if err != nil {
		if connector.Recoverable(err) {
			resp, err = client.Set(d.context(ctx), req)
		}
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// GetConfig fetches path's content, requesting config-only data unless
// operational is set.
func (d *Device) GetConfig(path string, operational bool) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.dialTimeout)
	defer cancel()

	conn, err := d.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.target, err)
	}
	defer conn.Close()
	client := gpb.NewGNMIClient(conn)

	gnmiPath, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	req := &gpb.GetRequest{Path: []*gpb.Path{gnmiPath}}
	if !operational {
		req.Type = gpb.GetRequest_CONFIG
	}
	return client.Get(d.context(ctx), req)
}

// Subscribe opens a POLL-mode subscription for paths and immediately
// triggers and collects one poll, returning the flat update list —
// ported from post_checks/gnmi/telemetry.py's subscribe, which also
// only ever pulls a single poll cycle per call.
func (d *Device) Subscribe(ctx context.Context, paths []string) ([]*gpb.Update, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	conn, err := d.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.target, err)
	}
	defer conn.Close()
	client := gpb.NewGNMIClient(conn)

	stream, err := client.Subscribe(d.context(ctx))
	if err != nil {
		return nil, fmt.Errorf("opening subscription to %s: %w", d.target, err)
	}

	subs := make([]*gpb.Subscription, 0, len(paths))
	for _, p := range paths {
		gnmiPath, err := parsePath(p)
		if err != nil {
			return nil, err
		}
		subs = append(subs, &gpb.Subscription{Path: gnmiPath, Mode: gpb.SubscriptionMode_SAMPLE})
	}
	req := &gpb.SubscribeRequest{Request: &gpb.SubscribeRequest_Subscribe{
		Subscribe: &gpb.SubscriptionList{Subscription: subs, Mode: gpb.SubscriptionList_POLL},
	}}
	if err := stream.Send(req); err != nil {
		return nil, fmt.Errorf("sending subscribe request to %s: %w", d.target, err)
	}
	if err := stream.Send(&gpb.SubscribeRequest{Request: &gpb.SubscribeRequest_Poll{Poll: &gpb.Poll{}}}); err != nil {
		return nil, fmt.Errorf("sending poll trigger to %s: %w", d.target, err)
	}

	var updates []*gpb.Update
	for {
		resp, err := stream.Recv()
		if err != nil {
			return nil, fmt.Errorf("receiving subscription update from %s: %w", d.target, err)
		}
		notif, ok := resp.Response.(*gpb.SubscribeResponse_Update)
		if !ok {
			continue
		}
		updates = append(updates, notif.Update.Update...)
		if notif.Update.Atomic || len(updates) > 0 {
			break
		}
	}
	return updates, nil
}

// Capabilities returns the device's advertised gNMI capabilities.
func (d *Device) Capabilities() (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.dialTimeout)
	defer cancel()

	conn, err := d.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.target, err)
	}
	defer conn.Close()
	client := gpb.NewGNMIClient(conn)
	return client.Capabilities(d.context(ctx), &gpb.CapabilityRequest{})
}

func buildSetRequest(pack *model.ConfigPack) (*gpb.SetRequest, error) {
	gnmiPath, err := parsePath(pack.Path)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(pack.Content)
	if err != nil {
		return nil, fmt.Errorf("marshaling pack content for %s: %w", pack.Path, err)
	}
	update := &gpb.Update{
		Path: gnmiPath,
		Val:  &gpb.TypedValue{Value: &gpb.TypedValue_JsonIetfVal{JsonIetfVal: raw}},
	}
	switch pack.WriteMethod {
	case model.Update:
		return &gpb.SetRequest{Update: []*gpb.Update{update}}, nil
	default:
		return &gpb.SetRequest{Replace: []*gpb.Update{update}}, nil
	}
}

var keyElem = regexp.MustCompile(`^([^\[]+)((\[[^\]]+\])*)$`)
var keyPair = regexp.MustCompile(`\[([^=]+)=([^\]]+)\]`)

// parsePath turns an "origin:/a/b[k=v]/c" style path string (the
// convention pygnmi's path strings followed) into a gNMI Path message.
func parsePath(path string) (*gpb.Path, error) {
	origin := ""
	rest := path
	if idx := strings.Index(path, ":/"); idx >= 0 {
		origin = path[:idx]
		rest = path[idx+1:]
	}
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return &gpb.Path{Origin: origin}, nil
	}

	var elems []*gpb.PathElem
	for _, segment := range strings.Split(rest, "/") {
		m := keyElem.FindStringSubmatch(segment)
		if m == nil {
			return nil, fmt.Errorf("invalid path segment %q in %q", segment, path)
		}
		elem := &gpb.PathElem{Name: m[1]}
		if m[2] != "" {
			elem.Key = map[string]string{}
			for _, kv := range keyPair.FindAllStringSubmatch(m[2], -1) {
				elem.Key[kv[1]] = kv[2]
			}
		}
		elems = append(elems, elem)
	}
	return &gpb.Path{Origin: origin, Elem: elems}, nil
}

