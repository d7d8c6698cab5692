package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": int64(2)}, `{"a":2,"b":1}`},
		{"nested", map[string]any{"z": []any{"x", true, int32(-3)}, "a": map[string]any{}}, `{"a":{},"z":["x",true,-3]}`},
		{"string slice", []string{"b", "a"}, `["b","a"]`},
		{"no html escape", "<a&b>", `"<a&b>"`},
		{"nfc", "e\u0301", "\"\u00e9\""},
		{"line separator literal", "a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
		{"escaped backslash kept", `\u2028`, `"\\u2028"`},
		{"utf16 key order", map[string]any{"\uFFFD": 1, "\U0001F600": 2}, "{\"\U0001F600\":2,\"\uFFFD\":1}"},
		{"false", false, `false`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshal_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"null", nil},
		{"float", 1.5},
		{"nested float", map[string]any{"a": []any{float32(1)}}},
		{"unsupported", struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestHash(t *testing.T) {
	v := map[string]any{"b": "x", "a": 1}

	h, err := Hash(DomainStep, v)
	require.NoError(t, err)
	assert.Equal(t, "5ea92e0dbe79bdf3511abcb08fbb011fb2101a16f6fa2a4d5eb6824b1e56d649", h)

	other := MustHash(DomainPropagation, v)
	assert.Len(t, other, 64)
	assert.NotEqual(t, h, other, "domains must separate")

	_, err = Hash(DomainStep, 0.5)
	assert.Error(t, err)
	assert.Panics(t, func() { MustHash(DomainStep, nil) })
}
