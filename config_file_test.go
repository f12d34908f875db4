package credguard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfigFileMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credguard.yaml")
	content := `
key_prefix: "app:"
redis:
  addr: "redis:6379"
  operation_timeout: 250ms
throttle:
  max_attempts: 3
  base_lockout: 2m
access:
  ttl: 10m
  private_key: "0123456789abcdef0123456789abcdef"
blacklist:
  negative_cache_ttl: 2s
mail:
  link_base_url: "https://example.com/t/"
sweep:
  enabled: true
  interval: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "app:", cfg.KeyPrefix)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.OperationTimeout)
	assert.Equal(t, 3, cfg.Throttle.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Throttle.BaseLockout)
	assert.Equal(t, 10*time.Minute, cfg.Access.TTL)
	assert.Equal(t, 2*time.Second, cfg.Blacklist.NegativeCacheTTL)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Sweep.Interval)

	// untouched sections keep their defaults
	assert.Equal(t, 6, cfg.Throttle.CapMultiplier)
	assert.Equal(t, 7*24*time.Hour, cfg.Refresh.TTL)
	assert.True(t, cfg.Blacklist.LocalFallback)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("throttle: [unclosed"), 0o600))

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
}
