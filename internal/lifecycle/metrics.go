package lifecycle

import "sync/atomic"

// Metrics counts poller activity. All counters are cumulative since start,
// except ActivePollers.
type Metrics struct {
	polls           atomic.Int64
	pollErrors      atomic.Int64
	downloads       atomic.Int64
	sharedDownloads atomic.Int64
	completed       atomic.Int64
	failed          atomic.Int64
	stalled         atomic.Int64
	abandoned       atomic.Int64
	activePollers   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Polls           int64 `json:"polls"`
	PollErrors      int64 `json:"poll_errors"`
	Downloads       int64 `json:"downloads"`
	SharedDownloads int64 `json:"shared_downloads"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
	Stalled         int64 `json:"stalled"`
	Abandoned       int64 `json:"abandoned"`
	ActivePollers   int64 `json:"active_pollers"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Polls:           m.polls.Load(),
		PollErrors:      m.pollErrors.Load(),
		Downloads:       m.downloads.Load(),
		SharedDownloads: m.sharedDownloads.Load(),
		Completed:       m.completed.Load(),
		Failed:          m.failed.Load(),
		Stalled:         m.stalled.Load(),
		Abandoned:       m.abandoned.Load(),
		ActivePollers:   m.activePollers.Load(),
	}
}
