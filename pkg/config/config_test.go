package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", DefaultFile)
	cfg := Default()
	cfg.Copy.Mode = "mirror"
	cfg.Copy.Speed = 1 << 20
	cfg.Copy.CopyRange = false
	cfg.Schedule = "0 2 * * *"
	cfg.Logging.Level = "debug"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("copy:\n  skip_unallocated: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Copy.SkipUnallocated)
	assert.Equal(t, int64(64<<10), cfg.Copy.ClusterSize)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"syntax":   "copy: [",
		"cluster":  "copy:\n  cluster_size: 3000\n",
		"speed":    "copy:\n  speed: -5\n",
		"mode":     "copy:\n  mode: stream\n",
		"driver":   "database:\n  driver: mysql\n",
		"level":    "logging:\n  level: loud\n",
		"schedule": "schedule: every tuesday\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFile)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"
	l := cfg.Logger(&buf)

	l.Info("hidden")
	l.Warn("shown", "job_id", "backup0")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"job_id":"backup0"`)

	lvl, err := ParseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, lvl)
}
