package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Info("listed", "op", "listNFT")
	logger.Debug("dropped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "listed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "listNFT", line["op"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMaskFieldRedactsCredentials(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("Authorization", "Bearer abc").Value.String())
	require.Equal(t, "0xabc", MaskField("caller", "0xabc").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
}

func TestHandlerMasksSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Warn("token validation failed", "token", "eyJhbGciOi", "caller", "0xb0b0")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["token"])
	require.Equal(t, "0xb0b0", line["caller"])
}
