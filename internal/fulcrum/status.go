package fulcrum

import "math"

type Status string

const (
	StatusStarting Status = "Starting..."
	StatusIndexing Status = "Indexing"
	StatusSynced   Status = "Synced"
	StatusHidden   Status = "Hidden"
)

const (
	SourceLogs     = "logs"
	SourceDisabled = "disabled"
)

// Source describes where and whether to look for indexer progress.
type Source struct {
	TailPath     string
	TailLines    int
	StatsEnabled bool
	// Version is reported as-is, the log never contains it.
	Version string
}

// Resolution is the status derived from a single window.
type Resolution struct {
	Status      Status
	Height      *int64
	SyncPercent float64
	Speeds      *Speeds
}

// Snapshot is what /api/fulcrum returns. It is built fresh for every request.
type Snapshot struct {
	Source      string  `json:"source"`
	BitcoinUp   bool    `json:"bitcoin_up"`
	Version     *string `json:"version"`
	Height      *int64  `json:"height"`
	SyncPercent float64 `json:"sync_percent"`
	Status      Status  `json:"status"`
	Speeds      *Speeds `json:"speeds,omitempty"`
}

// Resolve picks the reported status. A synced marker anywhere in the window
// wins over progress lines, even ones written after it.
func Resolve(s Signals) Resolution {
	if ev := s.LastSynced; ev != nil {
		r := Resolution{Status: StatusSynced, SyncPercent: 100}
		if ev.HeightKnown {
			h := ev.Height
			r.Height = &h
		}
		return r
	}
	if ev := s.LastProgress; ev != nil {
		h := ev.Height
		speeds := ev.Speeds
		return Resolution{
			Status:      StatusIndexing,
			Height:      &h,
			SyncPercent: round2(math.Min(100, ev.Percent)),
			Speeds:      &speeds,
		}
	}
	return Resolution{Status: StatusStarting}
}

// Assemble merges a resolution with values that don't come from the log.
func Assemble(r Resolution, source, version string, bitcoinUp bool) Snapshot {
	snap := Snapshot{
		Source:      source,
		BitcoinUp:   bitcoinUp,
		Height:      r.Height,
		SyncPercent: r.SyncPercent,
		Status:      r.Status,
		Speeds:      r.Speeds,
	}
	if version != "" {
		snap.Version = &version
	}
	return snap
}

// InferStatus reads the indexer's log tail and reports its sync status. It
// never fails, an unreadable log is reported as StatusStarting.
func InferStatus(src Source, bitcoinUp bool) Snapshot {
	if !src.StatsEnabled {
		return Assemble(Resolution{Status: StatusHidden}, SourceDisabled, src.Version, bitcoinUp)
	}
	window, ok := ReadTail(src.TailPath, src.TailLines)
	if !ok {
		return Assemble(Resolution{Status: StatusStarting}, SourceLogs, src.Version, bitcoinUp)
	}
	return Assemble(Resolve(Reduce(window)), SourceLogs, src.Version, bitcoinUp)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
