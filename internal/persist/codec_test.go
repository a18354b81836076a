package persist

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Name   string         `json:"name"`
	Count  int            `json:"count"`
	Values map[string]int `json:"values"`
}

func sample() testState {
	return testState{
		Name:   "graph",
		Count:  42,
		Values: map[string]int{"functions": 10, "sites": 31},
	}
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, sample()))

	var decoded testState

	require.NoError(t, codec.Decode(&buf, &decoded))
	assert.Equal(t, sample(), decoded)
}

func TestLZ4Codec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewLZ4Codec()

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, sample()))

	// The payload must actually be framed, not passthrough JSON.
	assert.NotEqual(t, byte('{'), buf.Bytes()[0])

	var decoded testState

	require.NoError(t, codec.Decode(&buf, &decoded))
	assert.Equal(t, sample(), decoded)
}

func TestLZ4Codec_Extension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".json.lz4", NewLZ4Codec().Extension())
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "graph.json.lz4")
	codec := NewLZ4Codec()

	require.NoError(t, Save(path, codec, sample()))

	var decoded testState

	require.NoError(t, Load(path, codec, &decoded))
	assert.Equal(t, sample(), decoded)
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	var decoded testState

	err := Load(filepath.Join(t.TempDir(), "absent.json"), NewJSONCodec(), &decoded)
	require.Error(t, err)
}
