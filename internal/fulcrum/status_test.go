package fulcrum

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestReduce(t *testing.T) {
	s := Reduce([]string{
		"Processed height: 100, 10.0%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec",
		"Block height 150, up-to-date",
		"noise",
		"Processed height: 200, 25.5%, 1.1 blocks/sec, 2.1 txs/sec, 3.1 addrs/sec",
		"Block height 180, up-to-date",
		"Processed height: 250, 1.2.3%, 1.1 blocks/sec, 2.1 txs/sec, 3.1 addrs/sec",
	})
	require.NotNil(t, s.LastProgress)
	require.NotNil(t, s.LastSynced)
	assert.Equal(t, 3, s.LastProgress.Line)
	assert.Equal(t, int64(200), s.LastProgress.Height)
	assert.Equal(t, 4, s.LastSynced.Line)
	assert.Equal(t, int64(180), s.LastSynced.Height)

	assert.Equal(t, Signals{}, Reduce(nil))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		window []string
		want   Resolution
	}{{
		name:   "no recognizable lines",
		window: []string{"hello", "Processed height: x"},
		want:   Resolution{Status: StatusStarting},
	}, {
		name:   "empty window",
		window: nil,
		want:   Resolution{Status: StatusStarting},
	}, {
		name: "latest progress wins",
		window: []string{
			"Processed height: 100, 10.0%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec",
			"Processed height: 200, 25.5%, 1.1 blocks/sec, 2.1 txs/sec, 3.1 addrs/sec",
		},
		want: Resolution{
			Status:      StatusIndexing,
			Height:      int64p(200),
			SyncPercent: 25.5,
			Speeds:      &Speeds{BlocksPerSec: 1.1, TxsPerSec: 2.1, AddrsPerSec: 3.1},
		},
	}, {
		name: "clamped",
		window: []string{
			"Processed height: 100, 146.2%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec",
		},
		want: Resolution{
			Status:      StatusIndexing,
			Height:      int64p(100),
			SyncPercent: 100,
			Speeds:      &Speeds{BlocksPerSec: 1, TxsPerSec: 2, AddrsPerSec: 3},
		},
	}, {
		name: "rounded",
		window: []string{
			"Processed height: 100, 33.3333%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec",
		},
		want: Resolution{
			Status:      StatusIndexing,
			Height:      int64p(100),
			SyncPercent: 33.33,
			Speeds:      &Speeds{BlocksPerSec: 1, TxsPerSec: 2, AddrsPerSec: 3},
		},
	}, {
		name: "synced after progress",
		window: []string{
			"Processed height: 100, 10.0%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec",
			"Block height 300, up-to-date",
		},
		want: Resolution{Status: StatusSynced, Height: int64p(300), SyncPercent: 100},
	}, {
		name: "synced before progress still wins",
		window: []string{
			"Block height 300, up-to-date",
			"Processed height: 301, 99.0%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec",
		},
		want: Resolution{Status: StatusSynced, Height: int64p(300), SyncPercent: 100},
	}, {
		name:   "synced with unknown height",
		window: []string{"Block height 99999999999999999999, up-to-date"},
		want:   Resolution{Status: StatusSynced, SyncPercent: 100},
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(Reduce(tt.window)))
		})
	}
}

func TestInferStatus(t *testing.T) {
	progress := "Processed height: 200, 25.5%, 1.1 blocks/sec, 2.1 txs/sec, 3.1 addrs/sec\n"
	path := writeLog(t, strings.Repeat("filler\n", 50)+progress)

	t.Run("indexing", func(t *testing.T) {
		snap := InferStatus(Source{TailPath: path, TailLines: 100, StatsEnabled: true, Version: "1.10.0"}, true)
		require.NotNil(t, snap.Version)
		assert.Equal(t, "1.10.0", *snap.Version)
		assert.Equal(t, SourceLogs, snap.Source)
		assert.Equal(t, StatusIndexing, snap.Status)
		assert.Equal(t, int64p(200), snap.Height)
		assert.Equal(t, 25.5, snap.SyncPercent)
		assert.True(t, snap.BitcoinUp)
	})
	t.Run("window too small to see anything", func(t *testing.T) {
		snap := InferStatus(Source{TailPath: writeLog(t, progress+"filler\nfiller\n"), TailLines: 2, StatsEnabled: true}, false)
		assert.Equal(t, StatusStarting, snap.Status)
		assert.Nil(t, snap.Height)
		assert.Nil(t, snap.Version)
		assert.Zero(t, snap.SyncPercent)
	})
	t.Run("hidden", func(t *testing.T) {
		snap := InferStatus(Source{TailPath: path, TailLines: 100, StatsEnabled: false}, true)
		assert.Equal(t, StatusHidden, snap.Status)
		assert.Equal(t, SourceDisabled, snap.Source)
		assert.Nil(t, snap.Height)
		assert.Zero(t, snap.SyncPercent)
		assert.Nil(t, snap.Speeds)
	})
	t.Run("missing log", func(t *testing.T) {
		snap := InferStatus(Source{TailPath: filepath.Join(t.TempDir(), "missing.log"), TailLines: 100, StatsEnabled: true}, true)
		assert.Equal(t, StatusStarting, snap.Status)
		assert.Equal(t, SourceLogs, snap.Source)
		assert.Nil(t, snap.Height)
	})
	t.Run("tail lines far beyond the file", func(t *testing.T) {
		snap := InferStatus(Source{TailPath: path, TailLines: math.MaxInt, StatsEnabled: true}, true)
		assert.Equal(t, StatusIndexing, snap.Status)
		assert.Equal(t, int64p(200), snap.Height)
	})
	t.Run("truncated log is seen immediately", func(t *testing.T) {
		p := writeLog(t, "Block height 300, up-to-date\n")
		src := Source{TailPath: p, TailLines: 10, StatsEnabled: true}
		assert.Equal(t, StatusSynced, InferStatus(src, true).Status)
		writeTo(t, p, "")
		assert.Equal(t, StatusStarting, InferStatus(src, true).Status)
	})
}

func TestInferStatus_concurrentAppends(t *testing.T) {
	path := writeLog(t, "Processed height: 1, 0.5%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec\n")
	src := Source{TailPath: path, TailLines: 50, StatsEnabled: true}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	defer f.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 2; i <= 500; i++ {
			// split each line over two writes so readers see partial lines
			line := fmt.Sprintf("Processed height: %d, %.1f%%, 1.0 blocks/sec, 2.0 txs/sec, 3.0 addrs/sec\n", i, float64(i)/10)
			half := len(line) / 2
			if _, err := f.WriteString(line[:half]); err != nil {
				return
			}
			if _, err := f.WriteString(line[half:]); err != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for i := 0; i < 50; i++ {
				snap := InferStatus(src, true)
				if !assert.Equal(t, StatusIndexing, snap.Status) || !assert.NotNil(t, snap.Height) {
					return
				}
				assert.GreaterOrEqual(t, *snap.Height, last)
				last = *snap.Height
			}
		}()
	}
	wg.Wait()
	<-done

	snap := InferStatus(src, true)
	assert.Equal(t, int64p(500), snap.Height)
	assert.Equal(t, 50.0, snap.SyncPercent)
}

func writeTo(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestSnapshot_JSON(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want string
	}{{
		name: "starting",
		snap: Assemble(Resolution{Status: StatusStarting}, SourceLogs, "", false),
		want: `{"source":"logs","bitcoin_up":false,"version":null,"height":null,"sync_percent":0,"status":"Starting..."}`,
	}, {
		name: "synced",
		snap: Assemble(Resolution{Status: StatusSynced, Height: int64p(300), SyncPercent: 100}, SourceLogs, "1.9.1", true),
		want: `{"source":"logs","bitcoin_up":true,"version":"1.9.1","height":300,"sync_percent":100,"status":"Synced"}`,
	}, {
		name: "indexing",
		snap: Assemble(Resolution{
			Status: StatusIndexing, Height: int64p(200), SyncPercent: 25.5,
			Speeds: &Speeds{BlocksPerSec: 1.1, TxsPerSec: 2.1, AddrsPerSec: 3.1},
		}, SourceLogs, "", true),
		want: `{"source":"logs","bitcoin_up":true,"version":null,"height":200,"sync_percent":25.5,"status":"Indexing",` +
			`"speeds":{"blocks_per_sec":1.1,"txs_per_sec":2.1,"addrs_per_sec":3.1}}`,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.snap)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}
