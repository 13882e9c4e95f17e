package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeDict(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	require.NotNil(t, raw)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func mustField(t *testing.T, raw json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &out))
	v, ok := out[key]
	require.True(t, ok, "missing field %q", key)
	return v
}
