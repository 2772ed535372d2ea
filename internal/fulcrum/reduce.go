package fulcrum

// Signals are the last progress update and the last synced marker in a
// window. Their relative order isn't meaningful, see Resolve.
type Signals struct {
	LastProgress *ProgressEvent
	LastSynced   *SyncedEvent
}

// Reduce scans window oldest line first and keeps the latest event of each
// kind.
func Reduce(window []string) (s Signals) {
	for i, line := range window {
		c := Classify(i, line)
		if c.Progress != nil {
			s.LastProgress = c.Progress
		}
		if c.Synced != nil {
			s.LastSynced = c.Synced
		}
	}
	return s
}
