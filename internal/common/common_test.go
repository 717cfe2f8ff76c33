package common

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsConcurrentAdds(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.AddSweeps(1)
				s.AddSamples(3)
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, uint64(8000), snap.Sweeps)
	assert.Equal(t, uint64(24000), snap.Samples)

	s.Reset()
	assert.Zero(t, s.Snapshot().Sweeps)
}

func TestStatsSummary(t *testing.T) {
	s := NewStats()
	s.AddBytes(2048)
	s.AddSamples(1234567)
	s.AddEstimates(42)

	lines := s.Summary()
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "2.0 KiB")
	assert.Contains(t, joined, "1,234,567")
	assert.Contains(t, joined, "Estimates:      42")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CLICKHOUSE_HOST", "ch.example")
	t.Setenv("CLICKHOUSE_PORT", "19000")
	t.Setenv("SUNCAL_DATA_DIR", "/data")
	t.Setenv("LOG_LEVEL", "debug")

	c := DefaultConfig()
	assert.Equal(t, "ch.example:19000", c.ClickHouseAddr())
	assert.Equal(t, "suncal", c.ClickHouseDatabase)
	assert.Equal(t, filepath.Join("/data", "sweeps"), c.SweepDataDir())
	assert.Equal(t, filepath.Join("/data", "estimates"), c.EstimateDir())
	assert.True(t, c.Verbose())

	t.Setenv("CLICKHOUSE_PORT", "nope")
	assert.Equal(t, 9000, DefaultConfig().ClickHousePort)
}

func TestWriteMetrics(t *testing.T) {
	s := NewStats()
	s.AddSweeps(10)
	s.AddSkipped(4)
	s.AddEstimates(5)

	path := filepath.Join(t.TempDir(), "suncal.prom")
	m := NewMetrics("suncal-ingest", "DWN")
	require.NoError(t, m.WriteMetrics(path, s.Snapshot()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `suncal_estimates{site="DWN",tool="suncal-ingest"} 5`)
	assert.Contains(t, text, `suncal_sweeps{site="DWN",status="skipped",tool="suncal-ingest"} 4`)
	assert.Contains(t, text, "# TYPE suncal_last_run_timestamp_seconds gauge")
}
