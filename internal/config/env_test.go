package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		EnvConfig, EnvDriveID, EnvFolderID, EnvSourceDir, EnvRequestDelayMS,
		EnvMaxRetries, EnvBaseBackoffMS, EnvTokenFile, EnvAccessToken, EnvGitHubOutput,
	} {
		t.Setenv(name, "")
	}
}

func TestReadEnvOverrides_AllSet(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvDriveID, "b!drive")
	t.Setenv(EnvFolderID, "01FOLDER")
	t.Setenv(EnvSourceDir, "/srv/site")
	t.Setenv(EnvRequestDelayMS, "250")
	t.Setenv(EnvMaxRetries, "5")
	t.Setenv(EnvBaseBackoffMS, "1000")
	t.Setenv(EnvTokenFile, "/run/token.json")
	t.Setenv(EnvAccessToken, "tok")
	t.Setenv(EnvGitHubOutput, "/tmp/out")

	env, err := ReadEnvOverrides()
	require.NoError(t, err)

	assert.Equal(t, "/custom/config.toml", env.ConfigPath)
	assert.Equal(t, "b!drive", env.DriveID)
	assert.Equal(t, "01FOLDER", env.FolderID)
	assert.Equal(t, "/srv/site", env.SourceDir)
	require.NotNil(t, env.RequestDelay)
	assert.Equal(t, 250*time.Millisecond, *env.RequestDelay)
	require.NotNil(t, env.MaxRetries)
	assert.Equal(t, 5, *env.MaxRetries)
	require.NotNil(t, env.BaseBackoff)
	assert.Equal(t, time.Second, *env.BaseBackoff)
	assert.Equal(t, "/run/token.json", env.TokenFile)
	assert.Equal(t, "tok", env.AccessToken)
	assert.Equal(t, "/tmp/out", env.OutputsFile)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	clearEnv(t)

	env, err := ReadEnvOverrides()
	require.NoError(t, err)

	assert.Empty(t, env.ConfigPath)
	assert.Nil(t, env.RequestDelay)
	assert.Nil(t, env.MaxRetries)
	assert.Nil(t, env.BaseBackoff)
}

func TestReadEnvOverrides_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRequestDelayMS, "fast")
	t.Setenv(EnvMaxRetries, "-1")

	_, err := ReadEnvOverrides()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvRequestDelayMS)
	assert.Contains(t, err.Error(), EnvMaxRetries)
}

func TestReadEnvOverrides_ZeroDelayAllowed(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRequestDelayMS, "0")

	env, err := ReadEnvOverrides()
	require.NoError(t, err)
	require.NotNil(t, env.RequestDelay)
	assert.Zero(t, *env.RequestDelay)
}
