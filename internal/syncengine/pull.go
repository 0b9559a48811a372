package syncengine

import (
	"context"
	"fmt"

	"github.com/erauner12/todosync/internal/localstore"
	"github.com/erauner12/todosync/internal/syncx"
)

// pull fetches the remote record set and merges it into the local store
// without enqueueing anything
func (e *Engine) pull(ctx context.Context) PullResult {
	var res PullResult

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	items, err := e.remote.ListItems(callCtx)
	cancel()
	if err != nil {
		res.Err = fmt.Errorf("listing remote items: %w", err)
		e.logger.Warn().Err(err).Msg("pull failed")
		return res
	}
	res.Fetched = len(items)

	records := make([]localstore.Record, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			res.Invalid++
			continue
		}
		if item.Status == "" {
			item.Status = syncx.StatusSynced
		}
		records = append(records, localstore.RecordFromTodo(item))
	}
	if res.Invalid > 0 {
		e.logger.Warn().Int("count", res.Invalid).Msg("ignoring remote items without id")
	}

	snap, err := e.store.ApplyRemoteSnapshot(ctx, records, localstore.SnapshotOptions{
		SkipPending: e.opts.Policy == SkipPending,
	})
	if err != nil {
		res.Err = fmt.Errorf("applying remote snapshot: %w", err)
		return res
	}
	res.Applied = snap.Applied
	res.Skipped = snap.Skipped
	return res
}
