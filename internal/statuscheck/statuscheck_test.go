package statuscheck_test

import (
	"context"
	"encoding/json"
	"testing"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doubleverify/ananke/internal/statuscheck"
)

// fakeDevice returns its queued responses in order, one per Subscribe call.
type fakeDevice struct {
	responses [][]*gpb.Update
	call      int
}

func (f *fakeDevice) Subscribe(ctx context.Context, paths []string) ([]*gpb.Update, error) {
	resp := f.responses[f.call]
	if f.call < len(f.responses)-1 {
		f.call++
	}
	return resp, nil
}

func jsonUpdate(path string, value map[string]any) *gpb.Update {
	raw, _ := json.Marshal(value)
	return &gpb.Update{
		Path: &gpb.Path{Elem: []*gpb.PathElem{{Name: path}}},
		Val:  &gpb.TypedValue{Value: &gpb.TypedValue_JsonIetfVal{JsonIetfVal: raw}},
	}
}

func TestCheckSubscriber_NoChange(t *testing.T) {
	reading := []*gpb.Update{jsonUpdate("counters", map[string]any{"in-octets": 100})}
	device := &fakeDevice{responses: [][]*gpb.Update{reading, reading}}

	sub, err := statuscheck.New(context.Background(), device, []string{"counters"})
	require.NoError(t, err)

	diffs, err := sub.DiffFromInitial(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestCheckSubscriber_ToleratesSmallNumericDrift(t *testing.T) {
	initial := []*gpb.Update{jsonUpdate("counters", map[string]any{"in-octets": 1000})}
	polled := []*gpb.Update{jsonUpdate("counters", map[string]any{"in-octets": 1010})}
	device := &fakeDevice{responses: [][]*gpb.Update{initial, polled}}

	sub, err := statuscheck.New(context.Background(), device, []string{"counters"})
	require.NoError(t, err)

	diffs, err := sub.DiffFromInitial(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, diffs, "a 1%% drift must fall within a 10%% tolerance")
}

func TestCheckSubscriber_ReportsChangeBeyondTolerance(t *testing.T) {
	initial := []*gpb.Update{jsonUpdate("counters", map[string]any{"in-octets": 1000})}
	polled := []*gpb.Update{jsonUpdate("counters", map[string]any{"in-octets": 5000})}
	device := &fakeDevice{responses: [][]*gpb.Update{initial, polled}}

	sub, err := statuscheck.New(context.Background(), device, []string{"counters"})
	require.NoError(t, err)

	diffs, err := sub.DiffFromInitial(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, statuscheck.Changed, diffs[0].Kind)
}

func TestCheckSubscriber_ReportsRemovedPath(t *testing.T) {
	initial := []*gpb.Update{
		jsonUpdate("counters", map[string]any{"in-octets": 1}),
		jsonUpdate("other", map[string]any{"x": 1}),
	}
	polled := []*gpb.Update{jsonUpdate("counters", map[string]any{"in-octets": 1})}
	device := &fakeDevice{responses: [][]*gpb.Update{initial, polled}}

	sub, err := statuscheck.New(context.Background(), device, []string{"counters", "other"})
	require.NoError(t, err)

	diffs, err := sub.DiffFromInitial(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, statuscheck.Removed, diffs[0].Kind)
	assert.Equal(t, "other", diffs[0].Path)
}

func TestNew_RequiresAtLeastOnePath(t *testing.T) {
	_, err := statuscheck.New(context.Background(), &fakeDevice{responses: [][]*gpb.Update{{}}}, nil)
	assert.Error(t, err)
}
