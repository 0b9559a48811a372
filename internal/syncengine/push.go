package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/erauner12/todosync/internal/syncx"
)

// push submits PENDING entries one at a time in sequence order.
// The first remote failure stops the pass so no later entry overtakes it.
// Entries whose operation or payload can never be applied are dead-lettered
// instead of blocking the queue.
func (e *Engine) push(ctx context.Context) (res PushResult) {
	// Entries recorded while the pass runs are not in the listing below
	defer e.countRemaining(ctx, &res)

	entries, err := e.store.ListPending(ctx)
	if err != nil {
		res.Err = fmt.Errorf("listing pending entries: %w", err)
		return res
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		logger := e.logger.With().
			Int64("seq", entry.Sequence).
			Str("op", string(entry.Operation)).
			Logger()

		m := syncx.Mutation{Operation: entry.Operation, Payload: entry.Payload}
		todo, err := m.Validate()
		if err != nil {
			if dlErr := e.store.DeadLetter(ctx, entry.Sequence, err.Error()); dlErr != nil {
				res.Err = fmt.Errorf("dead-lettering entry %d: %w", entry.Sequence, dlErr)
				return res
			}
			res.DeadLettered++
			continue
		}

		if err := e.renewLease(ctx); err != nil {
			res.Err = err
			return res
		}

		res.Attempted++
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		err = e.remote.Apply(callCtx, m)
		cancel()
		if err != nil {
			res.Failed = 1
			res.Err = fmt.Errorf("pushing entry %d: %w", entry.Sequence, err)
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Warn().Dur("timeout", e.opts.CallTimeout).Msg("push timed out, stopping pass")
			} else {
				logger.Warn().Err(err).Msg("push failed, stopping pass")
			}
			return res
		}

		// A DELETE has no record left to mark
		id := todo.ID
		if entry.Operation == syncx.OpDelete {
			id = ""
		}
		if _, err := e.store.Acknowledge(ctx, entry.Sequence, id, e.opts.KeepAcknowledged); err != nil {
			res.Err = fmt.Errorf("acknowledging entry %d: %w", entry.Sequence, err)
			return res
		}

		res.Synced++
		logger.Debug().Str("id", todo.ID).Msg("entry acknowledged")
	}

	return res
}

// countRemaining sets Remaining from the store, so it also covers entries
// enqueued after the pass listed the queue
func (e *Engine) countRemaining(ctx context.Context, res *PushResult) {
	n, err := e.store.CountPending(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Warn().Err(err).Msg("counting pending entries")
		if res.Err == nil {
			res.Err = fmt.Errorf("counting pending entries: %w", err)
		}
		return
	}
	res.Remaining = n
}
