package fulcrum

import (
	"regexp"
	"strconv"
)

// The indexer writes these lines itself, their wording and field order can't
// change without breaking every deployed version.
var (
	// Processed height: 428000, 46.7%, 4.24 blocks/sec, 6293.2 txs/sec, 22361.2 addrs/sec
	progressRe = regexp.MustCompile(
		`Processed height:\s*(\d+),\s*([0-9.]+)%,\s*([0-9.]+)\s*blocks/sec,\s*` +
			`([0-9.]+)\s*txs/sec,\s*([0-9.]+)\s*addrs/sec`)

	// Block height 840000, up-to-date
	syncedRe = regexp.MustCompile(`(?i)Block height\s*(\d+),\s*up-to-date`)
)

// Speeds are the indexing rates reported on a progress line.
type Speeds struct {
	BlocksPerSec float64 `json:"blocks_per_sec"`
	TxsPerSec    float64 `json:"txs_per_sec"`
	AddrsPerSec  float64 `json:"addrs_per_sec"`
}

type ProgressEvent struct {
	Line    int
	Height  int64
	Percent float64
	Speeds  Speeds
}

type SyncedEvent struct {
	Line   int
	Height int64
	// HeightKnown is false when the marker matched but its height didn't fit
	// in an int64.
	HeightKnown bool
}

// Classification holds the events found on a single line. Both are nil for
// an unrecognized line.
type Classification struct {
	Progress *ProgressEvent
	Synced   *SyncedEvent
}

func (c Classification) Recognized() bool { return c.Progress != nil || c.Synced != nil }

// Classify looks for a progress update and a synced marker anywhere in line.
// The two checks are independent.
func Classify(index int, line string) (c Classification) {
	if m := syncedRe.FindStringSubmatch(line); m != nil {
		ev := &SyncedEvent{Line: index}
		if h, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ev.Height, ev.HeightKnown = h, true
		}
		c.Synced = ev
	}
	if m := progressRe.FindStringSubmatch(line); m != nil {
		c.Progress = parseProgress(index, m)
	}
	return c
}

// parseProgress returns nil if any field doesn't parse, "1.2.3%" matches the
// pattern but isn't a number.
func parseProgress(index int, m []string) *ProgressEvent {
	height, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	var floats [4]float64
	for i := range floats {
		v, err := strconv.ParseFloat(m[i+2], 64)
		if err != nil {
			return nil
		}
		floats[i] = v
	}
	return &ProgressEvent{
		Line:    index,
		Height:  height,
		Percent: floats[0],
		Speeds: Speeds{
			BlocksPerSec: floats[1],
			TxsPerSec:    floats[2],
			AddrsPerSec:  floats[3],
		},
	}
}
