package syncengine

import "time"

// PushResult summarizes the push half of a pass
type PushResult struct {
	Attempted    int // entries submitted to the remote
	Synced       int // entries acknowledged and retired from the queue
	Failed       int // entries whose submission failed (at most one per pass)
	DeadLettered int // entries isolated because they can never be applied
	Remaining    int // entries PENDING when the pass ended, including ones recorded during it
	Err          error
}

// PullResult summarizes the pull half of a pass
type PullResult struct {
	Fetched int // records returned by the remote
	Applied int // records written to the local store
	Skipped int // records left alone by the pull policy
	Invalid int // remote records without an id
	Err     error
}

// Outcome is the result of one Sync call.
// Failures are reported here rather than returned as errors.
type Outcome struct {
	Push      PushResult
	Pull      PullResult
	StartedAt time.Time
	Duration  time.Duration
	// Coalesced is set when the call was served by a follow-up pass because
	// another pass was already running.
	Coalesced bool
	// Err is set when the caller gave up waiting for a coalesced pass, or
	// when the pass did not start because another process holds the lease
	// (ErrSyncBusy).
	Err error
}

// OK reports whether the pass drained the queue and pulled without errors
func (o Outcome) OK() bool {
	return o.Err == nil && o.Push.Err == nil && o.Pull.Err == nil && o.Push.Remaining == 0
}
