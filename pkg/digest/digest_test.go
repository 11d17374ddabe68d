package digest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonical_Sorting(t *testing.T) {
	input := map[string]interface{}{"c": 3, "a": 1, "b": 2}
	b, err := Canonical(input)
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":2,"c":3}`, string(b))
}

func TestCanonical_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{"y": "foo", "x": "bar"},
		"a": 1,
	}
	b, err := Canonical(input)
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

func TestCanonical_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{"html": "<script>alert('xss')</script> &"}
	b, err := Canonical(input)
	require.NoError(t, err)
	require.Equal(t, `{"html":"<script>alert('xss')</script> &"}`, string(b))
}

func TestCanonical_NumberTypes(t *testing.T) {
	input := map[string]interface{}{"num": json.Number("123.456")}
	b, err := Canonical(input)
	require.NoError(t, err)
	require.Equal(t, `{"num":123.456}`, string(b))
}

func TestCanonical_RejectsNonFinite(t *testing.T) {
	_, err := Canonical(map[string]interface{}{"n": json.Number("NaN")})
	require.Error(t, err)
}

func TestCanonicalHash_Stability(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}
	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	h1, err := CanonicalHash(v1)
	require.NoError(t, err)
	h2, err := CanonicalHash(v2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

// TestHash_Determinism exercises invariant 1 (spec §8): 10 invocations
// produce identical hex for the same input.
func TestHash_Determinism(t *testing.T) {
	data := []byte(`{"a":1,"b":[1,2,3]}`)
	first := Hash(data)
	require.Len(t, first, 64)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Hash(data))
	}
}

func TestHashShort_IsPrefixOfHash(t *testing.T) {
	data := []byte("hello")
	require.Equal(t, Hash(data)[:16], HashShort(data))
}

func TestCanonicalString_IsReachable(t *testing.T) {
	s, err := CanonicalString(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":2}`, s)
}
