package domain

import "time"

// QueueItem is a scheduled, not-yet-claimed unit of work. Items are ordered
// by (Bucket, Priority, ID) ascending; ID is the FIFO tie-break within a
// bucket/priority pair.
type QueueItem struct {
	ID       int64
	Codebase string
	Campaign string
	Command  string
	Context  string

	Bucket   string
	Priority int64

	// RequiredBy, when set, expresses a scheduling deadline carried over
	// from the candidate; it is informational only and does not affect
	// ordering.
	RequiredBy *time.Time

	EstimatedDuration time.Duration

	// Refresh instructs the worker to rebuild from scratch instead of
	// resuming a previous branch. Always set by ScheduleConflictRefresh.
	Refresh bool
	// Requestor identifies who asked for this run, when it was triggered
	// on demand rather than by the regular scheduling sweep.
	Requestor string
	// ChangeSetID groups this item with other runs that must publish
	// together as part of a coordinated multi-codebase campaign.
	ChangeSetID string

	// RequiredCapability is the campaign's build target class (see
	// Campaign.BuildTargetClass); next() only hands this item to a worker
	// that has advertised the matching capability. Empty matches any
	// worker.
	RequiredCapability BuildTargetClass

	CreatedAt time.Time
}

// Claim is a QueueItem handed to a worker, tracked so a stalled worker's
// claim can be reclaimed after its keepalive lapses.
type Claim struct {
	QueueItemID int64
	WorkerName  string
	ClaimedAt   time.Time
	LastSeenAt  time.Time
}

// Expired reports whether the claim's keepalive has lapsed as of now, given
// the configured keepalive timeout.
func (c Claim) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(c.LastSeenAt) > timeout
}
