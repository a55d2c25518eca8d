package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/doubleverify/ananke/internal/compiler"
	"github.com/doubleverify/ananke/internal/connector"
	"github.com/doubleverify/ananke/internal/connector/gnmi"
	"github.com/doubleverify/ananke/internal/connector/restsvc"
	"github.com/doubleverify/ananke/internal/model"
	"github.com/doubleverify/ananke/internal/resolver"
	"github.com/doubleverify/ananke/internal/secrets"
	"github.com/doubleverify/ananke/internal/settings"
	"github.com/doubleverify/ananke/internal/vartree"
)

// Fleet is everything a CLI command needs to deploy or inspect a
// resolved set of targets.
type Fleet struct {
	ConfigDir string
	Settings  *model.Settings
	Targets   []*model.Target
	Connectors map[string]connector.Connector
}

// BuildFleet loads settings and variables, resolves tokens to targets,
// compiles each target's config, and builds its connector — the shared
// setup path for both `set` and `get` (ported from struct/dispatch.py's
// Dispatch constructor).
func BuildFleet(tokens map[string]resolver.SectionSet, deployTags []string) (*Fleet, error) {
	configDir := os.Getenv(settings.EnvConfigDir)
	s, err := settings.Load(configDir)
	if err != nil {
		return nil, err
	}

	tree, err := vartree.Load(configDir)
	if err != nil {
		return nil, err
	}

	if s.Vault != nil {
		store, err := secrets.NewVaultStore(s.Vault)
		if err != nil {
			return nil, err
		}
		keys, err := store.ReadKeys(s.Vault.Paths)
		if err != nil {
			return nil, err
		}
		mergeSecrets(tree, keys)
	}

	resolved := resolver.Resolve(tokens, tree.All(), s.DomainName)

	fleet := &Fleet{ConfigDir: configDir, Settings: s, Connectors: map[string]connector.Connector{}}
	for targetID, sections := range resolved {
		shortID := strings.Split(targetID, ".")[0]
		vars, ok := tree.All()[shortID]
		if !ok {
			return nil, fmt.Errorf("no variables found for target %s", shortID)
		}

		cfg, err := compiler.New(configDir, s, vars).Compile(targetID, sections)
		if err != nil {
			return nil, fmt.Errorf("compiling config for %s: %w", targetID, err)
		}
		for _, pack := range cfg.Packs {
			pack.Tags = deployTags
		}

		conn, err := buildConnector(targetID, cfg)
		if err != nil {
			return nil, fmt.Errorf("building connector for %s: %w", targetID, err)
		}

		fleet.Targets = append(fleet.Targets, &model.Target{ID: targetID, Config: cfg, Connector: conn})
		fleet.Connectors[targetID] = conn
	}
	return fleet, nil
}

// mergeSecrets layers vault-sourced keys onto every device's variables,
// secret keys winning on collision, exactly as Dispatch.build_targets did.
func mergeSecrets(tree *vartree.Tree, keys map[string]string) {
	if len(keys) == 0 {
		return
	}
	for _, vars := range tree.Devices {
		for k, v := range keys {
			vars[k] = v
		}
	}
	for _, vars := range tree.Services {
		for k, v := range keys {
			vars[k] = v
		}
	}
}

// buildConnector picks the transport for a target based on its
// variables: a service-id routes to the matching REST connector,
// anything else is a gNMI device.
func buildConnector(targetID string, cfg *model.Config) (connector.Connector, error) {
	if cfg.Variables.IsService() {
		switch cfg.Variables.String("service-id") {
		case "packetfabric":
			return restsvc.NewPacketFabric(targetID, cfg)
		case "megaport":
			return restsvc.NewMegaport(targetID, cfg, true)
		default:
			return nil, fmt.Errorf("no connector registered for service-id %q", cfg.Variables.String("service-id"))
		}
	}

	username, password, err := connector.Credentials(cfg.Settings, cfg.Variables)
	if err != nil {
		return nil, err
	}
	return gnmi.New(targetID, cfg, username, password)
}
