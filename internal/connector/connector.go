// Package connector defines the Connector contract every transport
// (gNMI, REST) implements, plus the shared credential-resolution and
// deploy-loop logic common to all of them (SPEC_FULL.md §4.D, ported
// from connectors/shared.py).
package connector

import (
	"fmt"
	"os"

	"github.com/doubleverify/ananke/internal/ankerrors"
	"github.com/doubleverify/ananke/internal/logging"
	"github.com/doubleverify/ananke/internal/model"
	"github.com/doubleverify/ananke/internal/transform"
)

// EnvUsername and EnvPassword name the fallback credential environment
// variables consulted when settings/variables don't carry them.
const (
	EnvUsername     = "ANANKE_CONNECTOR_USERNAME"
	EnvPassword     = "ANANKE_CONNECTOR_PASSWORD"
	EnvCertDir      = "ANANKE_CERTIFICATE_DIR"
	passwordByUserFmt = "ANANKE_CONNECTOR_PASSWORD_%s"
)

// Connector pushes and reads config against one target.
type Connector interface {
	TargetID() string
	// SetConfig pushes a single pack and returns the raw transport reply.
	SetConfig(pack *model.ConfigPack) (any, error)
	// GetConfig fetches the content at path.
	GetConfig(path string, operational bool) (any, error)
	// Capabilities returns the transport's advertised capabilities.
	Capabilities() (any, error)
}

// Base carries the fields and transform bookkeeping common to every
// connector implementation; transport connectors embed it.
type Base struct {
	targetID        string
	Settings        *model.Settings
	Variables       model.Variables
	PlatformID      string
	ConfigTransform bool
}

// NewBase resolves whether a transform is registered for this target's
// platform and returns the shared connector state.
func NewBase(targetID string, settings *model.Settings, variables model.Variables) Base {
	platformID := variables.PlatformID()
	_, hasTransform := transform.Lookup(platformID)
	return Base{
		targetID:        targetID,
		Settings:        settings,
		Variables:       variables,
		PlatformID:      platformID,
		ConfigTransform: hasTransform,
	}
}

// TargetID returns the id this connector was built for.
func (b Base) TargetID() string { return b.targetID }

// Credentials resolves username and password from settings, then
// variables, then the environment, in that order (spec.md §4.D).
func Credentials(settings *model.Settings, variables model.Variables) (username, password string, err error) {
	switch {
	case settings.Username != "":
		username = settings.Username
	case variables.String("ANANKE_CONNECTOR_USERNAME") != "":
		username = variables.String("ANANKE_CONNECTOR_USERNAME")
	case os.Getenv(EnvUsername) != "":
		username = os.Getenv(EnvUsername)
	default:
		return "", "", fmt.Errorf("could not determine username from settings, variables, or environment")
	}

	password, err = Password(username, variables)
	return username, password, err
}

// Password resolves a password for username: a per-user variable or
// environment key wins over the generic one.
func Password(username string, variables model.Variables) (string, error) {
	scopedKey := fmt.Sprintf(passwordByUserFmt, username)
	if p := variables.String(scopedKey); p != "" {
		return p, nil
	}
	if p := variables.String(EnvPassword); p != "" {
		return p, nil
	}
	if p := os.Getenv(scopedKey); p != "" {
		return p, nil
	}
	if p := os.Getenv(EnvPassword); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("could not derive password for username %s", username)
}

// Deploy runs every pack in target's config through conn, applying an
// optional write-method override, the platform transform (if any), the
// dry-run tag, and the per-target disable-set kill switch. It never
// returns an error: transport failures are recorded as response
// messages so a fleet-wide deploy can report partial failure per target.
//
// disable-set short-circuits the whole deploy: the first pack reached
// with the switch on emits a single warning and the Response is
// returned immediately, so remaining packs contribute neither Body
// entries nor additional messages.
func Deploy(conn Connector, target *model.Target, writeMethod model.WriteMethod) *model.Response {
	if logging.Sugar != nil {
		logging.Sugar.Debugf("starting deploy process for %s", conn.TargetID())
	}
	response := &model.Response{Source: conn.TargetID()}

	disableSet := target.Config.Variables.Bool("management", "disable-set")

	if base, ok := connectorBase(conn); ok && base.ConfigTransform {
		transform.Apply(base.PlatformID, target.Config.Packs)
	}

	for _, pack := range target.Config.Packs {
		if writeMethod != "" {
			pack.WriteMethod = writeMethod
		}
		if pack == nil {
			continue
		}

		response.Body = append(response.Body, map[string]any{
			"path":         pack.Path,
			"write-method": string(pack.WriteMethod),
			"content":      pack.Content,
		})

		switch {
		case pack.HasTag(model.TagDryRun):
			response.Messages = append(response.Messages, model.ResponseMessage{Text: "Config dry-run", Priority: model.PriorityInfo})
		case disableSet:
			if logging.Sugar != nil {
				logging.Sugar.Debugf("disable-set enabled for %s, skipping", conn.TargetID())
			}
			response.Messages = append(response.Messages, model.ResponseMessage{Text: "Write disabled, skipping", Priority: model.PriorityWarning})
			return response
		default:
			out, err := conn.SetConfig(pack)
			if err != nil {
				response.Messages = append(response.Messages, model.ResponseMessage{
					Text:     fmt.Sprintf("Config for %s failed: Error: %s", pack.Path, err),
					Priority: model.PriorityError,
				})
				continue
			}
			response.Output = append(response.Output, out)
			response.Messages = append(response.Messages, model.ResponseMessage{
				Text:     fmt.Sprintf("Config for %s pushed to device", pack.Path),
				Priority: model.PriorityInfo,
			})
		}
	}
	return response
}

// connectorBase extracts the embedded Base from any concrete connector
// that carries one, used by Deploy to check ConfigTransform/PlatformID
// without an import cycle on the transport packages.
func connectorBase(conn Connector) (Base, bool) {
	type baser interface{ ConnectorBase() Base }
	if b, ok := conn.(baser); ok {
		return b.ConnectorBase(), true
	}
	return Base{}, false
}

// Recoverable reports whether a transport error is the one known
// transient gNMI fault worth a single retry (ankerrors.Recoverable).
var Recoverable = ankerrors.Recoverable
