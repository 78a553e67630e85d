package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := FromLookup(lookupFrom(nil))
	assert.Equal(t, DefaultOutDir, c.OutDir)
	assert.Empty(t, c.Sinks)
	assert.Equal(t, filepath.Join(DefaultOutDir, "delitos_dicc.csv"), c.DictionaryPath())
	assert.Equal(t, filepath.Join(DefaultOutDir, "delitos.json"), c.IncidencePath())
	assert.Equal(t, filepath.Join(DefaultOutDir, "delitos.db"), c.SQLitePath)
	assert.Equal(t, "delitos", c.RedisPrefix)
	assert.Equal(t, 120*time.Second, c.ExportTimeout)
	assert.Empty(t, c.MetricsFile)
}

func TestOverrides(t *testing.T) {
	c := FromLookup(lookupFrom(map[string]string{
		"DELITOS_OUT_DIR":        "/tmp/out",
		"DELITOS_EXPORT":         " SQLite, redis,unknown ",
		"DELITOS_REDIS_PREFIX":   "snsp",
		"DELITOS_METRICS_FILE":   "/tmp/out/delitos.prom",
		"DELITOS_EXPORT_TIMEOUT": "30",
	}))
	assert.Equal(t, "/tmp/out", c.OutDir)
	assert.True(t, c.Enabled(SinkSQLite))
	assert.True(t, c.Enabled(SinkRedis))
	assert.False(t, c.Enabled(SinkPostgres))
	assert.Len(t, c.Sinks, 2)
	assert.Equal(t, "/tmp/out/delitos.db", c.SQLitePath)
	assert.Equal(t, "snsp", c.RedisPrefix)
	assert.Equal(t, "/tmp/out/delitos.prom", c.MetricsFile)
	assert.Equal(t, 30*time.Second, c.ExportTimeout)
}

func TestBadTimeoutKeepsDefault(t *testing.T) {
	c := FromLookup(lookupFrom(map[string]string{"DELITOS_EXPORT_TIMEOUT": "-3"}))
	assert.Equal(t, 120*time.Second, c.ExportTimeout)
}
