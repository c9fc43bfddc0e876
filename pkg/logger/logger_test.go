package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wazmeow/internal/app/config"
)

func jsonConfig(level string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: "json"}
}

func TestNew_JSONCarriesServiceAndSession(t *testing.T) {
	var buf bytes.Buffer
	l := newWithOutput(jsonConfig("info"), &buf).WithSessionID("main").WithComponent("session")

	l.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "wazmeow", line["service"])
	assert.Equal(t, "main", line["session_id"])
	assert.Equal(t, "session", line["component"])
	assert.Equal(t, "hello", line["message"])
}

func TestNew_WritesRotatingFile(t *testing.T) {
	cfg := jsonConfig("info")
	cfg.File = filepath.Join(t.TempDir(), "wazmeow.log")
	cfg.MaxSizeMB = 1

	var buf bytes.Buffer
	newWithOutput(cfg, &buf).Info().Msg("to file")

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, buf.String(), "to file")
}

func TestWhatsAppAdapter_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newWithOutput(jsonConfig("debug"), &buf)

	wa := l.WhatsApp("Client", "WARN", false)
	wa.Infof("hidden %d", 1)
	wa.Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	sub := l.WhatsApp("Client", "WARN", true).Sub("Socket")
	sub.Debugf("debug forced")
	assert.Contains(t, buf.String(), "debug forced")
	assert.Contains(t, buf.String(), `"sub":"Socket"`)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("bogus"))
	assert.Equal(t, zerolog.Disabled, parseLogLevel("disabled"))
}
