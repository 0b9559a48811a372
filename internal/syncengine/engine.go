// Package syncengine reconciles the local store with the remote endpoint.
//
// A sync pass pushes pending queue entries strictly in sequence order, stopping
// at the first failure, and then always pulls the remote snapshot. Passes are
// serialized: a Sync call that arrives while a pass is running is coalesced
// into a single follow-up pass. Across processes sharing one database file,
// a lease in the store admits one pass at a time.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erauner12/todosync/internal/localstore"
	"github.com/erauner12/todosync/internal/syncx"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCallTimeout bounds every remote call made by a pass
const DefaultCallTimeout = 10 * time.Second

var (
	// ErrSyncBusy is reported when another process holds the sync lease
	ErrSyncBusy = errors.New("sync already running in another process")
	// ErrLeaseLost stops a pass whose lease expired and was taken over
	ErrLeaseLost = errors.New("sync lease lost")
)

// Remote is the remote endpoint contract consumed by the engine
type Remote interface {
	ListItems(ctx context.Context) ([]syncx.Todo, error)
	Apply(ctx context.Context, m syncx.Mutation) error
}

// Store is the part of the local store the engine reads and writes.
// None of these operations enqueue.
type Store interface {
	ListPending(ctx context.Context) ([]localstore.QueueEntry, error)
	CountPending(ctx context.Context) (int, error)
	Acknowledge(ctx context.Context, seq int64, id string, keep bool) (bool, error)
	DeadLetter(ctx context.Context, seq int64, reason string) error
	ApplyRemoteSnapshot(ctx context.Context, records []localstore.Record, opts localstore.SnapshotOptions) (localstore.SnapshotResult, error)
	AcquireLease(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, owner string) error
}

// PullPolicy decides what a pull does with records that still have unpushed
// local changes
type PullPolicy string

const (
	// LastPullWins overwrites every id present remotely. An unpushed local
	// edit is lost if a pull lands before its push.
	LastPullWins PullPolicy = "last-pull-wins"
	// SkipPending leaves records with a PENDING queue entry untouched.
	SkipPending PullPolicy = "skip-pending"
)

// ParsePullPolicy validates a configured policy name; empty means LastPullWins
func ParsePullPolicy(s string) (PullPolicy, error) {
	switch p := PullPolicy(s); p {
	case "":
		return LastPullWins, nil
	case LastPullWins, SkipPending:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pull policy %q", s)
	}
}

// Options configures an Engine
type Options struct {
	CallTimeout time.Duration
	Policy      PullPolicy
	// KeepAcknowledged marks acknowledged entries DONE instead of deleting
	// them, so they stay inspectable until purged
	KeepAcknowledged bool
}

// Engine runs sync passes
type Engine struct {
	store  Store
	remote Remote
	opts   Options
	owner  string
	logger zerolog.Logger

	mu       sync.Mutex
	inflight *pass
	next     *pass

	syncing syncState
}

// pass is one push+pull run; waiters block on done
type pass struct {
	done    chan struct{}
	outcome Outcome
}

func newPass() *pass {
	return &pass{done: make(chan struct{})}
}

// New creates an Engine
func New(store Store, remote Remote, opts Options) *Engine {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Policy == "" {
		opts.Policy = LastPullWins
	}
	return &Engine{
		store:  store,
		remote: remote,
		opts:   opts,
		owner:  uuid.NewString(),
		logger: log.With().Str("component", "syncengine").Logger(),
	}
}

// Policy returns the pull policy in effect
func (e *Engine) Policy() PullPolicy {
	return e.opts.Policy
}

// Sync runs push then pull and returns the outcome of the pass that covered
// this call.
//
// If a pass is already running, the call does not start a second concurrent
// pass: it waits for one follow-up pass that starts after the current one
// finishes (shared with every other call that arrived meanwhile). If ctx ends
// while waiting, the outcome carries ctx.Err() and the follow-up still runs.
func (e *Engine) Sync(ctx context.Context) Outcome {
	e.mu.Lock()
	if e.inflight == nil {
		p := newPass()
		e.inflight = p
		e.syncing.set(true)
		e.mu.Unlock()

		e.run(ctx, p, false)
		return p.outcome
	}

	if e.next == nil {
		e.next = newPass()
	}
	p := e.next
	e.mu.Unlock()

	e.logger.Debug().Msg("sync already running, coalescing into follow-up pass")

	select {
	case <-p.done:
		return p.outcome
	case <-ctx.Done():
		return Outcome{Coalesced: true, Err: ctx.Err()}
	}
}

// run executes p, then hands off to the follow-up pass queued while it ran.
// Follow-up passes outlive the initiating caller, so they use a context
// detached from its cancellation; each remote call is still bounded by
// CallTimeout.
func (e *Engine) run(ctx context.Context, p *pass, coalesced bool) {
	p.outcome = e.runPass(ctx)
	p.outcome.Coalesced = coalesced

	e.mu.Lock()
	next := e.next
	e.next = nil
	e.inflight = next
	if next == nil {
		e.syncing.set(false)
	}
	e.mu.Unlock()

	close(p.done)

	if next != nil {
		go e.run(context.WithoutCancel(ctx), next, true)
	}
}

// runPass is push followed unconditionally by pull, under the store lease
func (e *Engine) runPass(ctx context.Context) Outcome {
	start := time.Now()

	ok, err := e.store.AcquireLease(ctx, e.owner, e.leaseTTL())
	if err != nil || !ok {
		if err == nil {
			err = ErrSyncBusy
		}
		e.logger.Info().Err(err).Msg("sync pass not started")
		return Outcome{StartedAt: start, Duration: time.Since(start), Err: err}
	}
	defer func() {
		if err := e.store.ReleaseLease(context.WithoutCancel(ctx), e.owner); err != nil {
			e.logger.Warn().Err(err).Msg("releasing sync lease")
		}
	}()

	push := e.push(ctx)
	pull := e.pull(ctx)

	out := Outcome{
		Push:      push,
		Pull:      pull,
		StartedAt: start,
		Duration:  time.Since(start),
	}

	ev := e.logger.Info()
	if out.Push.Err != nil || out.Pull.Err != nil {
		ev = e.logger.Warn()
	}
	ev.Int("synced", push.Synced).
		Int("failed", push.Failed).
		Int("deadLettered", push.DeadLettered).
		Int("remaining", push.Remaining).
		Int("pulled", pull.Applied).
		Int("skipped", pull.Skipped).
		Dur("duration", out.Duration).
		Msg("sync pass complete")

	return out
}

// leaseTTL covers one remote call with margin; push renews it before every
// submission, so a crashed process blocks others for at most this long
func (e *Engine) leaseTTL() time.Duration {
	return 3 * e.opts.CallTimeout
}

func (e *Engine) renewLease(ctx context.Context) error {
	ok, err := e.store.AcquireLease(ctx, e.owner, e.leaseTTL())
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

// IsSyncing reports whether a pass is running
func (e *Engine) IsSyncing() bool {
	return e.syncing.get()
}

// Subscribe returns a channel that receives the isSyncing value on every
// change, starting with the current value. Slow readers only see the latest
// value. Call the returned func to unsubscribe.
func (e *Engine) Subscribe() (<-chan bool, func()) {
	return e.syncing.subscribe()
}

// RunConnectivity consumes connectivity transitions and runs Sync on every
// false→true transition. The first true value counts as a transition.
// While online, every poll interval it also syncs if the queue has PENDING
// entries, which picks up writes recorded after the reconnect (by this
// process or another one). poll <= 0 disables the check.
// It returns when ctx ends or signals is closed.
func (e *Engine) RunConnectivity(ctx context.Context, signals <-chan bool, poll time.Duration) {
	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	online := false
	for {
		select {
		case <-ctx.Done():
			return
		case connected, ok := <-signals:
			if !ok {
				return
			}
			if connected && !online {
				e.logger.Info().Msg("connectivity restored, starting sync")
				e.Sync(ctx)
			}
			online = connected
		case <-tick:
			if !online {
				continue
			}
			n, err := e.store.CountPending(ctx)
			if err != nil {
				e.logger.Warn().Err(err).Msg("checking queue while online")
				continue
			}
			if n > 0 {
				e.logger.Debug().Int("pending", n).Msg("pending entries while online, starting sync")
				e.Sync(ctx)
			}
		}
	}
}
