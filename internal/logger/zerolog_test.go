package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, zerolog.InfoLevel), "carbon")

	log.Info().Int("blobs", 3).Msg("carbon detected")
	log.Debug().Msg("hidden")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "carbon", event["component"])
	assert.Equal(t, "carbon detected", event["message"])
	assert.EqualValues(t, 3, event["blobs"])
	assert.Contains(t, event, "time")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("quiet"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}
