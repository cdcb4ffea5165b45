package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
remote:
  base_url: https://api.example.com/api/1.1
  token: secret-token
  search_limit: 50
database:
  path: /var/lib/verity/verity.db
sandbox:
  timeout_seconds: 10
  memory_limit_mb: 64
http:
  listen: ":9000"
`))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/api/1.1", cfg.Remote.BaseURL)
	assert.Equal(t, "secret-token", cfg.Remote.Token)
	assert.Equal(t, 50, cfg.Remote.SearchLimit)
	assert.Equal(t, "/var/lib/verity/verity.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, int64(64<<20), cfg.MemoryLimit())
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
}

func TestParse_DefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte(`
remote:
  base_url: https://api.example.com
`))
	require.NoError(t, err)

	assert.Empty(t, cfg.Remote.Token)
	assert.Equal(t, 100, cfg.Remote.SearchLimit)
	assert.Equal(t, "verity.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, int64(128<<20), cfg.MemoryLimit())
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
}

func TestParse_MissingBaseURL(t *testing.T) {
	_, err := Parse([]byte(`
database:
  path: verity.db
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestParse_EmptyBaseURL(t *testing.T) {
	_, err := Parse([]byte(`
remote:
  base_url: ""
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestParse_RejectsOutOfRange(t *testing.T) {
	_, err := Parse([]byte(`
remote:
  base_url: https://api.example.com
sandbox:
  timeout_seconds: 0
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout_seconds")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("remote: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
remote:
  base_url: https://api.example.com
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
