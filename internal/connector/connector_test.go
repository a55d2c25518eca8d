package connector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doubleverify/ananke/internal/connector"
	"github.com/doubleverify/ananke/internal/model"
)

type stubConnector struct {
	id    string
	calls []*model.ConfigPack
	err   error
}

func (s *stubConnector) TargetID() string { return s.id }
func (s *stubConnector) SetConfig(pack *model.ConfigPack) (any, error) {
	s.calls = append(s.calls, pack)
	if s.err != nil {
		return nil, s.err
	}
	return "ok", nil
}
func (s *stubConnector) GetConfig(string, bool) (any, error) { return nil, nil }
func (s *stubConnector) Capabilities() (any, error)          { return nil, nil }

func newTarget(vars model.Variables, tags []string) *model.Target {
	return &model.Target{
		ID: "router1",
		Config: &model.Config{
			TargetID:  "router1",
			Settings:  &model.Settings{},
			Variables: vars,
			Packs: []*model.ConfigPack{
				{Path: "interfaces", Content: map[string]any{"name": "eth0"}, WriteMethod: model.Replace, Tags: tags},
			},
		},
	}
}

func TestDeploy_PushesConfigOnSuccess(t *testing.T) {
	conn := &stubConnector{id: "router1"}
	resp := connector.Deploy(conn, newTarget(model.Variables{}, nil), "")

	require.Len(t, conn.calls, 1)
	assert.Equal(t, model.PriorityInfo, resp.MinPriority())
	assert.Len(t, resp.Output, 1)
}

func TestDeploy_DryRunNeverCallsSetConfig(t *testing.T) {
	conn := &stubConnector{id: "router1"}
	resp := connector.Deploy(conn, newTarget(model.Variables{}, []string{model.TagDryRun}), "")

	assert.Empty(t, conn.calls)
	assert.Len(t, resp.Body, 1, "a dry-run pack is still recorded in the response body")
}

func TestDeploy_DisableSetSkipsWrite(t *testing.T) {
	conn := &stubConnector{id: "router1"}
	vars := model.Variables{"management": map[string]any{"disable-set": true}}
	resp := connector.Deploy(conn, newTarget(vars, nil), "")

	assert.Empty(t, conn.calls)
	assert.Equal(t, model.PriorityWarning, resp.MinPriority())
}

func TestDeploy_DisableSetReturnsEarlyOnMultiPackTarget(t *testing.T) {
	conn := &stubConnector{id: "router1"}
	vars := model.Variables{"management": map[string]any{"disable-set": true}}
	target := &model.Target{
		ID: "router1",
		Config: &model.Config{
			TargetID:  "router1",
			Settings:  &model.Settings{},
			Variables: vars,
			Packs: []*model.ConfigPack{
				{Path: "interfaces", Content: map[string]any{"name": "eth0"}, WriteMethod: model.Replace},
				{Path: "system", Content: map[string]any{"hostname": "router1"}, WriteMethod: model.Replace},
				{Path: "bgp", Content: map[string]any{"asn": 65000}, WriteMethod: model.Replace},
			},
		},
	}
	resp := connector.Deploy(conn, target, "")

	assert.Empty(t, conn.calls, "disable-set must prevent every pack from reaching SetConfig")
	require.Len(t, resp.Messages, 1, "only the first pack reached should warn; the rest must not append further messages")
	assert.Equal(t, model.PriorityWarning, resp.Messages[0].Priority)
	require.Len(t, resp.Body, 1, "the response must stop at the first pack, not carry the remaining two")
	assert.Equal(t, "interfaces", resp.Body[0]["path"])
}

func TestDeploy_TransportFailureRecordedNotReturned(t *testing.T) {
	conn := &stubConnector{id: "router1", err: assertError("boom")}
	resp := connector.Deploy(conn, newTarget(model.Variables{}, nil), "")

	assert.Equal(t, model.PriorityError, resp.MinPriority())
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestCredentials_FallsBackToVariablesThenEnv(t *testing.T) {
	settings := &model.Settings{}
	vars := model.Variables{
		"ANANKE_CONNECTOR_USERNAME": "alice",
		"ANANKE_CONNECTOR_PASSWORD": "secret",
	}
	username, password, err := connector.Credentials(settings, vars)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
	assert.Equal(t, "secret", password)
}

func TestCredentials_MissingEverywhereErrors(t *testing.T) {
	_, _, err := connector.Credentials(&model.Settings{}, model.Variables{})
	assert.Error(t, err)
}
