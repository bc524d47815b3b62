package toolserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Run("rejects empty URL", func(t *testing.T) {
		cfg := Config{}
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects non-http scheme", func(t *testing.T) {
		cfg := Config{URL: "ws://example.com/sse"}
		require.Error(t, cfg.Validate())
	})

	t.Run("accepts http and https", func(t *testing.T) {
		require.NoError(t, (&Config{URL: "http://example.com/sse"}).Validate())
		require.NoError(t, (&Config{URL: "https://example.com/sse"}).Validate())
	})
}

func TestNormalizeParameters(t *testing.T) {
	t.Run("empty raw yields empty object schema", func(t *testing.T) {
		out := NormalizeParameters(nil)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.Equal(t, "object", decoded["type"])
	})

	t.Run("already-object schema passes through unchanged", func(t *testing.T) {
		raw := json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)
		out := NormalizeParameters(raw)
		assert.JSONEq(t, string(raw), string(out))
	})

	t.Run("bare properties map gets wrapped with required keys promoted", func(t *testing.T) {
		raw := json.RawMessage(`{"city":{"type":"string"}}`)
		out := NormalizeParameters(raw)

		var decoded struct {
			Type       string         `json:"type"`
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.Equal(t, "object", decoded.Type)
		assert.Contains(t, decoded.Properties, "city")
		assert.Equal(t, []string{"city"}, decoded.Required)
	})
}
