package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.WSPort)
	assert.Equal(t, "wsrelay_sid", cfg.CookieName)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoadAllowListParsing(t *testing.T) {
	os.Clearenv()
	os.Setenv("ENDPOINT_ALLOW_LIST", "/api/docs, /api/health")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/docs", "/api/health"}, cfg.AllowList)
}

func TestLoadFailsFastOnShortSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", "too-short")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadAllowsShortSecretUnderNoSecurity(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", "too-short")
	os.Setenv("NO_SECURITY", "true")
	_, err := Load()
	assert.NoError(t, err)
}

func TestLoadSeedFileEmpty(t *testing.T) {
	out, err := LoadSeedFile("")
	require.NoError(t, err)
	assert.Empty(t, out.Users)
}
