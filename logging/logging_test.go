package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {

	var buf bytes.Buffer

	l, err := New("info", "json", &buf)
	require.NoError(t, err)

	sl := ForSequence(l, "MOT17-02")
	sl.Info().Int("frame", 3).Msg("Frame associated")
	l.Debug().Msg("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "MOT17-02", entry["sequence"])
	assert.Equal(t, float64(3), entry["frame"])
	assert.Equal(t, "Frame associated", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewConsole(t *testing.T) {

	var buf bytes.Buffer

	l, err := New("debug", "console", &buf)
	require.NoError(t, err)

	l.Debug().Str("sequence", "a").Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "sequence=")
}

func TestNewErrors(t *testing.T) {

	_, err := New("loud", "json", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
