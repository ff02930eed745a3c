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
	t.Setenv("READINESS_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Combo.TaskTimeout)
	assert.Equal(t, 2, cfg.Combo.MaxTimeoutsPerCombo)
	assert.Equal(t, 4096, cfg.Residency.PairContext)
	assert.Equal(t, 8192, cfg.Residency.SingleContext)
	assert.Equal(t, 70, cfg.Readiness.Threshold)
	assert.Equal(t, 70, cfg.Distill.SuccessThreshold)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readiness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
combo:
  mains: [qwen2.5:7b, llama3.1:8b]
  task_timeout: 12s
residency:
  pair_context: 6144
store:
  sqlite_path: /tmp/r.db
`), 0o644))

	t.Setenv("READINESS_EXECUTORS", "phi3:mini, qwen2.5:1.5b")
	t.Setenv("READINESS_TASK_TIMEOUT", "3s")
	t.Setenv("READINESS_THRESHOLD", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5:7b", "llama3.1:8b"}, cfg.Combo.Mains)
	assert.Equal(t, []string{"phi3:mini", "qwen2.5:1.5b"}, cfg.Combo.Executors)
	assert.Equal(t, 3*time.Second, cfg.Combo.TaskTimeout, "env wins over the file")
	assert.Equal(t, 6144, cfg.Residency.PairContext)
	assert.Equal(t, 8192, cfg.Residency.SingleContext, "unset keys keep defaults")
	assert.Equal(t, "/tmp/r.db", cfg.Store.SQLitePath)
	assert.Equal(t, 70, cfg.Readiness.Threshold, "unparsable values fall back")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("READINESS_CONFIG", "")
	t.Setenv("READINESS_MAX_TIMEOUTS", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "max_timeouts_per_combo")
}

func TestParseCommaSeparated(t *testing.T) {
	assert.Equal(t, []string{}, parseCommaSeparated(""))
	assert.Equal(t, []string{"a", "b"}, parseCommaSeparated(" a, ,b "))
}
