package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_IsLoadableTOML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote = RemoteConfig{DriveID: "b!d", FolderID: "01F"}
	cfg.Sync.Exclude = []string{"*.tmp"}

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/drivemirror.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "# Effective configuration (file: /etc/drivemirror.toml)")
	assert.Contains(t, out, "[remote]")
	assert.Contains(t, out, `drive_id = "b!d"`)

	path := filepath.Join(t.TempDir(), "roundtrip.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestRenderEffective_RedactsWebhook(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Notify.WebhookURL = "https://hooks.example.test/secret-token"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "", &buf))

	assert.NotContains(t, buf.String(), "secret-token")
	assert.Contains(t, buf.String(), "none, defaults")

	var decoded Config
	_, err := toml.Decode(buf.String(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, redacted, decoded.Notify.WebhookURL)
	assert.Equal(t, "https://hooks.example.test/secret-token", cfg.Notify.WebhookURL, "input untouched")
}
