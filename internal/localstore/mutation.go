package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erauner12/todosync/internal/syncx"
)

// LocalMutation is a user-originated write. For DELETE only Record.ID is used.
type LocalMutation struct {
	Operation syncx.Operation
	Record    Record
}

// Payload returns the queue payload snapshot for the mutation
func (m LocalMutation) Payload() (json.RawMessage, error) {
	if m.Operation == syncx.OpDelete {
		return json.Marshal(map[string]string{"id": m.Record.ID})
	}
	return json.Marshal(m.Record.Todo())
}

// ApplyLocalMutation writes the record change and appends its queue entry in
// one transaction. It always enqueues.
func (s *Store) ApplyLocalMutation(ctx context.Context, m LocalMutation) (*QueueEntry, error) {
	if m.Record.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidOp)
	}

	payload, err := m.Payload()
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	var entry *QueueEntry
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		switch m.Operation {
		case syncx.OpInsert, syncx.OpUpdate:
			if err := putRecord(ctx, tx, m.Record); err != nil {
				return err
			}
		case syncx.OpDelete:
			if err := deleteRecord(ctx, tx, m.Record.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: operation %q", ErrInvalidOp, m.Operation)
		}

		e, err := enqueue(ctx, tx, m.Operation, payload)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int64("seq", entry.Sequence).
		Str("op", string(entry.Operation)).
		Str("id", m.Record.ID).
		Msg("local mutation recorded")
	return entry, nil
}

// SnapshotOptions controls how a pulled remote snapshot is merged
type SnapshotOptions struct {
	// SkipPending leaves records untouched while they still have a PENDING
	// queue entry. When false, remote state overwrites every id it carries
	// (last-pull-wins) and an unpushed local edit can be lost.
	SkipPending bool
}

// SnapshotResult reports what ApplyRemoteSnapshot did
type SnapshotResult struct {
	Applied int
	Skipped int
}

// ApplyRemoteSnapshot upserts remote records in one transaction.
// It never enqueues, and never deletes local records that are absent remotely.
func (s *Store) ApplyRemoteSnapshot(ctx context.Context, records []Record, opts SnapshotOptions) (SnapshotResult, error) {
	var result SnapshotResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var skip map[string]bool
		if opts.SkipPending {
			ids, err := pendingIDs(ctx, tx)
			if err != nil {
				return err
			}
			skip = ids
		}

		for _, r := range records {
			if skip[r.ID] {
				result.Skipped++
				continue
			}
			if err := putRecord(ctx, tx, r); err != nil {
				return err
			}
			result.Applied++
		}
		return nil
	})
	if err != nil {
		return SnapshotResult{}, err
	}
	return result, nil
}
