package repo

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doubleverify/ananke/internal/logging"
)

// NetworkConfig reads a single-key YAML document out of a Repo, exposes
// its content for editing, and commits it back — ported from
// config_api/network_config.py's NetworkConfig. The original's pyangbind
// schema binding has no equivalent here: content is edited directly as
// the dynamically-typed tree internal/model.Variables already uses
// everywhere else.
type NetworkConfig struct {
	repo     Repo
	filePath string

	// Key is the document's single top-level key (its YANG path, in the
	// original's terms).
	Key     string
	Content map[string]any

	original map[string]any
}

// Load fetches filePath from repo and parses its single-key YAML body.
func Load(repo Repo, filePath string) (*NetworkConfig, error) {
	raw, err := repo.GetFile(filePath)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%s: empty document", filePath)
	}
	if len(doc) > 1 && logging.Sugar != nil {
		logging.Sugar.Warnf("%s contains more than one key, only the first will be used", filePath)
	}
	var key string
	for k := range doc {
		key = k
		break
	}
	return &NetworkConfig{
		repo:     repo,
		filePath: filePath,
		Key:      key,
		Content:  doc,
		original: cloneMap(doc),
	}, nil
}

// DeviceVars fetches and parses a device's vars.yaml.
func DeviceVars(repo Repo, deviceID string) (map[string]any, error) {
	raw, err := repo.GetFile(DeviceVarsPath(deviceID))
	if err != nil {
		return nil, err
	}
	var vars map[string]any
	if err := yaml.Unmarshal(raw, &vars); err != nil {
		return nil, fmt.Errorf("parsing vars for %s: %w", deviceID, err)
	}
	return vars, nil
}

const (
	defaultAuthorName    = "DV Network Configurator"
	defaultAuthorEmail   = "network@doubleverify.com"
	defaultCommitMessage = "Automated commit"
)

// CommitOption customizes CommitFile's author/message.
type CommitOption func(*commitParams)

type commitParams struct {
	authorName, authorEmail, commitMessage string
}

// WithAuthor overrides the default commit author.
func WithAuthor(name, email string) CommitOption {
	return func(p *commitParams) { p.authorName, p.authorEmail = name, email }
}

// WithMessage overrides the default commit message.
func WithMessage(message string) CommitOption {
	return func(p *commitParams) { p.commitMessage = message }
}

// CommitFile serializes Content and commits it, skipping the commit
// entirely if nothing changed since Load.
func (n *NetworkConfig) CommitFile(opts ...CommitOption) error {
	if mapsEqual(n.Content, n.original) {
		return nil
	}
	params := commitParams{
		authorName:    defaultAuthorName,
		authorEmail:   defaultAuthorEmail,
		commitMessage: defaultCommitMessage,
	}
	for _, opt := range opts {
		opt(&params)
	}

	raw, err := yaml.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", n.filePath, err)
	}
	if logging.Sugar != nil {
		logging.Sugar.Infof("committing file %s", n.filePath)
	}
	if err := n.repo.UpdateFile(n.filePath, raw, params.authorName, params.authorEmail, params.commitMessage); err != nil {
		return err
	}
	n.original = cloneMap(n.Content)
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var cloned map[string]any
	_ = yaml.Unmarshal(raw, &cloned)
	return cloned
}

func mapsEqual(a, b map[string]any) bool {
	rawA, errA := yaml.Marshal(a)
	rawB, errB := yaml.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.TrimSpace(string(rawA)) == strings.TrimSpace(string(rawB))
}
