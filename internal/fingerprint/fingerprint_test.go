package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfIsDeterministic(t *testing.T) {
	payload := json.RawMessage(`{"movie":{"name":"A","year":2022},"episodes":[{"server_name":"S1"}]}`)

	first, err := Of(payload)
	require.NoError(t, err)
	second, err := Of(payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestOfIgnoresKeyOrder(t *testing.T) {
	a := []byte(`{"b":1,"a":{"y":[1,2,{"k":"v","j":null}],"x":"z"}}`)
	b := []byte(`{ "a": { "x": "z", "y": [1, 2, {"j": null, "k": "v"}] }, "b": 1 }`)

	ha, err := Of(a)
	require.NoError(t, err)
	hb, err := Of(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestOfDetectsChanges(t *testing.T) {
	ha, err := Of([]byte(`{"a":[1,2]}`))
	require.NoError(t, err)
	hb, err := Of([]byte(`{"a":[2,1]}`))
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb, "array order is significant")
}

func TestOfAcceptsGoValues(t *testing.T) {
	fromMap, err := Of(map[string]any{"z": 1, "a": "x"})
	require.NoError(t, err)
	fromRaw, err := Of([]byte(`{"a":"x","z":1}`))
	require.NoError(t, err)
	assert.Equal(t, fromMap, fromRaw)
}

func TestOfRejectsInvalidJSON(t *testing.T) {
	_, err := Of([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestCanonicalKeepsLargeNumbersExact(t *testing.T) {
	out, err := Canonical([]byte(`{"view":12345678901234567890}`))
	require.NoError(t, err)
	assert.Equal(t, `{"view":12345678901234567890}`, string(out))
}
