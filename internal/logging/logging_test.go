package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter("json", "info", &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Warn("session not persisted", "code", "STORE_UNAVAILABLE")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "WARN", entry["level"])
	require.Equal(t, "STORE_UNAVAILABLE", entry["code"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter("text", "debug", &buf)
	require.NoError(t, err)

	log.Debug("event discarded", "sender", "123")
	require.Contains(t, buf.String(), "event discarded")
	require.Contains(t, buf.String(), "123")
}

func TestNew_Invalid(t *testing.T) {
	_, err := newWithWriter("xml", "info", &bytes.Buffer{})
	require.ErrorContains(t, err, "format")

	_, err = newWithWriter("json", "loud", &bytes.Buffer{})
	require.ErrorContains(t, err, "level")
}
