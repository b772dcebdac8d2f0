package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTHGATE_CONFIG", "")
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, BackendMemory, c.Ledger.Backend)
	assert.Equal(t, 1, c.Ledger.SignatureVersion)
	assert.Equal(t, "authgate:", c.Redis.Prefix)
	assert.Equal(t, time.Duration(0), c.Boundary.ActionTTL)
	assert.Equal(t, 16*time.Millisecond, c.Boundary.ProgressInterval)
	assert.Equal(t, ":8080", c.HTTP.Addr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
ledger:
  backend: sqlite
  path: /var/lib/authgate/ledger.db
  signature_version: 2
boundary:
  action_ttl: 5m
`), 0o644))
	t.Setenv("AUTHGATE_LOG_FORMAT", "json")
	t.Setenv("AUTHGATE_BOUNDARY_PROGRESS_INTERVAL", "50ms")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, BackendSQLite, c.Ledger.Backend)
	assert.Equal(t, "/var/lib/authgate/ledger.db", c.Ledger.Path)
	assert.Equal(t, 2, c.Ledger.SignatureVersion)
	assert.Equal(t, 5*time.Minute, c.Boundary.ActionTTL)
	assert.Equal(t, 50*time.Millisecond, c.Boundary.ProgressInterval)
}

func TestLoad_CheckpointKeysFromEnv(t *testing.T) {
	t.Setenv("AUTHGATE_CONFIG", "")
	t.Setenv("AUTHGATE_CHECKPOINT_ENCRYPTION_KEY", "aa")
	t.Setenv("AUTHGATE_CHECKPOINT_FALLBACK_KEYS", "bb,cc")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "aa", c.Checkpoint.EncryptionKey)
	assert.Equal(t, []string{"bb", "cc"}, c.Checkpoint.FallbackKeys)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("AUTHGATE_CONFIG", "")
	t.Setenv("AUTHGATE_LEDGER_BACKEND", "postgres")
	_, err := Load("")
	assert.ErrorContains(t, err, `unknown ledger backend "postgres"`)

	c := Config{
		Ledger:   LedgerConfig{Backend: BackendSQLite},
		Boundary: BoundaryConfig{ProgressInterval: time.Millisecond},
	}
	assert.ErrorContains(t, c.Validate(), "ledger.path")
}
