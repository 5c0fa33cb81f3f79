package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoAskAway/rill-sub003/pkg/proto"
)

func seedReceiver(t *testing.T) *Receiver {
	t.Helper()
	r := New(0)
	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: "View", Props: map[string]any{"token": "password: hunter2", "flex": 1}},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
	))
	require.NoError(t, err)
	return r
}

func TestReceiver_ExportJSONRoundTrips(t *testing.T) {
	r := seedReceiver(t)
	data, err := r.Export("json")
	require.NoError(t, err)

	f, err := LookupFormat("json")
	require.NoError(t, err)
	var snap exportSnapshot
	require.NoError(t, f.Unmarshal(data, &snap))
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "View", snap.Nodes[0].Type)
}

func TestReceiver_ExportYAMLRoundTrips(t *testing.T) {
	r := seedReceiver(t)
	data, err := r.Export("yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestReceiver_ExportMsgpackRoundTrips(t *testing.T) {
	r := seedReceiver(t)
	data, err := r.Export("msgpack")
	require.NoError(t, err)

	f, err := LookupFormat("msgpack")
	require.NoError(t, err)
	var snap exportSnapshot
	require.NoError(t, f.Unmarshal(data, &snap))
	require.Len(t, snap.Nodes, 1)
}

func TestReceiver_ExportUnknownFormatErrors(t *testing.T) {
	r := seedReceiver(t)
	_, err := r.Export("protobuf")
	assert.Error(t, err)
}

func TestReceiver_ExportSanitizedRedactsPropValues(t *testing.T) {
	r := seedReceiver(t)
	data, err := r.ExportSanitized("json", NewSanitizer())
	require.NoError(t, err)

	f, _ := LookupFormat("json")
	var snap exportSnapshot
	require.NoError(t, f.Unmarshal(data, &snap))
	require.Len(t, snap.Nodes, 1)

	token, ok := snap.Nodes[0].Props["token"].(string)
	require.True(t, ok)
	assert.Contains(t, token, "[REDACTED]")
	assert.NotContains(t, token, "hunter2")
	assert.Equal(t, float64(1), snap.Nodes[0].Props["flex"])
}
