package canonical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSortsKeysAtEveryLevel(t *testing.T) {
	got, err := Encode(map[string]any{
		"b": 1,
		"a": map[string]any{"z": true, "y": false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":false,"z":true},"b":1}`, string(got))
}

func TestEncodeOrderIndependent(t *testing.T) {
	first := map[string]any{}
	first["gate_id"] = "pre-commit"
	first["decision"] = "pass"
	first["tenant"] = "acme"

	second := map[string]any{}
	second["tenant"] = "acme"
	second["decision"] = "pass"
	second["gate_id"] = "pre-commit"

	a, err := Encode(first)
	require.NoError(t, err)
	b, err := Encode(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodePreservesArrayOrder(t *testing.T) {
	got, err := Encode([]any{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, `["c","a","b"]`, string(got))
}

func TestEncodeStructUsesJSONTags(t *testing.T) {
	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	got, err := Encode(record{Name: "x", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"count":2,"name":"x"}`, string(got))
}

func TestEncodeDoesNotEscapeHTML(t *testing.T) {
	got, err := Encode(map[string]any{"url": "https://example.com/a?b=1&c=<2>"})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"https://example.com/a?b=1&c=<2>"}`, string(got))
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	_, err := Encode(map[string]any{"x": math.NaN()})
	require.Error(t, err)
	var cerr *CanonicalizationError
	assert.ErrorAs(t, err, &cerr)
}

func TestEncodeRejectsCycles(t *testing.T) {
	type node struct {
		Next *node `json:"next"`
	}
	n := &node{}
	n.Next = n
	_, err := Encode(n)
	require.Error(t, err)
	var cerr *CanonicalizationError
	assert.ErrorAs(t, err, &cerr)
}

func TestHashStableAcrossConstructionOrder(t *testing.T) {
	h1, err := Hash(map[string]any{"k1": "v1", "k2": "v2"})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"k2": "v2", "k1": "v1"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Contains(t, h1, "sha256:")
}
