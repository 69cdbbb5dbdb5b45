package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcd.toml")
	require.NoError(t, WriteTemplate(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rcd", cfg.Node)
	assert.True(t, cfg.Tracker.Ledger)
	assert.Equal(t, 100*time.Millisecond, cfg.Reclaim.Interval.D())
	assert.Equal(t, uint64(1024), cfg.Reclaim.RingSize)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcd.toml")
	require.NoError(t, os.WriteFile(path, []byte("node = \"x\"\n"), 0o600))
	assert.Error(t, WriteTemplate(path, false))
	require.NoError(t, WriteTemplate(path, true))
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node: edge-7
tracker:
  max_live: 512
kafka:
  brokers: ["localhost:9092"]
  codec: proto
  stats_interval: 250ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "edge-7", cfg.Node)
	assert.Equal(t, int64(512), cfg.Tracker.MaxLive)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.StatsInterval.D())
	assert.Equal(t, "rc.stats", cfg.Kafka.StatsTopic, "default kept")
	assert.Equal(t, ":50051", cfg.GRPC.Addr, "default kept")
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"ring size":  "[reclaim]\nring_size = 1000\n",
		"interval":   "[reclaim]\ninterval = \"0s\"\n",
		"log level":  "[log]\nlevel = \"loud\"\n",
		"codec":      "[kafka]\nbrokers = [\"b:9092\"]\ncodec = \"xml\"\n",
		"max live":   "[tracker]\nmax_live = -1\n",
		"empty addr": "[grpc]\naddr = \"\"\n",
		"ledger dir": "[tracker]\nledger = true\n[store]\ndir = \"\"\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc), ".toml")
		assert.ErrorIs(t, err, ErrInvalid, name)
	}

	_, err := Parse([]byte(`[reclaim]
interval = "soon"
`), ".toml")
	assert.Error(t, err)
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := Parse([]byte("{}"), ".json")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
