package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.8, cfg.Matching.OrderPenaltyFloor, 1e-9)
	assert.Equal(t, 75, cfg.Matching.DefaultThreshold)
	assert.Equal(t, "tm-import", cfg.Kafka.Topics.UnitImport)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tm.yaml")
	yaml := `
server:
  port: 9000
index:
  dataDir: /var/lib/tm
  flushInterval: 5s
matching:
  orderPenaltyFloor: 0.5
  maxHits: 10
locales:
  supported: [en-US, fr-FR]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("TM_MATCHING_DEFAULT_THRESHOLD", "90")
	t.Setenv("TM_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/tm", cfg.Index.DataDir)
	assert.Equal(t, 5*time.Second, cfg.Index.FlushInterval)
	assert.InDelta(t, 0.5, cfg.Matching.OrderPenaltyFloor, 1e-9)
	assert.Equal(t, 10, cfg.Matching.MaxHits)
	assert.Equal(t, 90, cfg.Matching.DefaultThreshold)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"en-US", "fr-FR"}, cfg.Locales.Supported)
}

func TestValidateRejectsBadMatching(t *testing.T) {
	cfg := Default()
	cfg.Matching.OrderPenaltyFloor = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Matching.DefaultThreshold = 101
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Index.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
