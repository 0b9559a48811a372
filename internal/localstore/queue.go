package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erauner12/todosync/internal/syncx"
)

// QueueState is the lifecycle state of a queue entry
type QueueState string

const (
	StatePending QueueState = "PENDING"
	StateDone    QueueState = "DONE"
	// StateDead isolates an entry whose payload can never be applied so it
	// stops blocking the entries behind it.
	StateDead QueueState = "DEAD"
)

// QueueEntry is one durable, ordered local mutation awaiting remote acknowledgment
type QueueEntry struct {
	Sequence    int64           `json:"seq"`
	Operation   syncx.Operation `json:"operation"`
	Payload     json.RawMessage `json:"payload"`
	State       QueueState      `json:"state"`
	CreatedAtMs int64           `json:"created_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// Enqueue appends an entry and assigns it the next sequence number.
// The operation and payload are stored as given; the sync engine validates
// them when the entry is pushed.
func (s *Store) Enqueue(ctx context.Context, op syncx.Operation, payload json.RawMessage) (*QueueEntry, error) {
	return enqueue(ctx, s.db, op, payload)
}

// ListPending returns PENDING entries in ascending sequence order
func (s *Store) ListPending(ctx context.Context) ([]QueueEntry, error) {
	return s.listByState(ctx, StatePending)
}

// ListDeadLetters returns entries isolated by DeadLetter
func (s *Store) ListDeadLetters(ctx context.Context) ([]QueueEntry, error) {
	return s.listByState(ctx, StateDead)
}

// CountPending returns the number of entries still waiting for the remote
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE state = ?`, string(StatePending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending entries: %w", err)
	}
	return n, nil
}

// PendingIDs returns the record ids that have at least one PENDING entry.
// Entries whose payload has no readable id are ignored.
func (s *Store) PendingIDs(ctx context.Context) (map[string]bool, error) {
	return pendingIDs(ctx, s.db)
}

// MarkDone moves an entry out of the pending set, keeping it for inspection
// until Purge
func (s *Store) MarkDone(ctx context.Context, seq int64) error {
	return setState(ctx, s.db, seq, StateDone, "")
}

// Remove deletes an entry permanently
func (s *Store) Remove(ctx context.Context, seq int64) error {
	return removeEntry(ctx, s.db, seq)
}

// Acknowledge retires an entry the remote accepted and, unless id is empty,
// marks the record synced in the same transaction. The record stays pending
// while any later PENDING entry for the same id exists, including one
// enqueued after the caller listed the queue. keep marks the entry DONE
// instead of deleting it. It reports whether the record was marked synced.
func (s *Store) Acknowledge(ctx context.Context, seq int64, id string, keep bool) (bool, error) {
	var synced bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if keep {
			err = setState(ctx, tx, seq, StateDone, "")
		} else {
			err = removeEntry(ctx, tx, seq)
		}
		if errors.Is(err, ErrNoEntry) {
			s.logger.Debug().Int64("seq", seq).Msg("acknowledged entry already retired")
		} else if err != nil {
			return err
		}

		if id == "" {
			return nil
		}
		later, err := pendingAfter(ctx, tx, id, seq)
		if err != nil {
			return err
		}
		if later {
			return nil
		}
		found, err := setStatus(ctx, tx, id, syncx.StatusSynced)
		if err != nil {
			return err
		}
		synced = found
		return nil
	})
	if err != nil {
		return false, err
	}
	return synced, nil
}

// DeadLetter isolates an entry that can never be applied
func (s *Store) DeadLetter(ctx context.Context, seq int64, reason string) error {
	if err := setState(ctx, s.db, seq, StateDead, reason); err != nil {
		return err
	}
	s.logger.Warn().Int64("seq", seq).Str("reason", reason).Msg("queue entry moved to dead letters")
	return nil
}

// Purge deletes entries already marked DONE and returns how many were removed
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE state = ?`, string(StateDone))
	if err != nil {
		return 0, fmt.Errorf("purging done entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func setState(ctx context.Context, q querier, seq int64, state QueueState, reason string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE sync_queue SET state = ?, last_error = ? WHERE seq = ?`,
		string(state), reason, seq)
	if err != nil {
		return fmt.Errorf("setting queue entry %d to %s: %w", seq, state, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNoEntry, seq)
	}
	return nil
}

func removeEntry(ctx context.Context, q querier, seq int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("removing queue entry %d: %w", seq, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNoEntry, seq)
	}
	return nil
}

func (s *Store) listByState(ctx context.Context, state QueueState) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, operation, payload, state, created_at_ms, last_error
		FROM sync_queue
		WHERE state = ?
		ORDER BY seq ASC
	`, string(state))
	if err != nil {
		return nil, fmt.Errorf("listing %s entries: %w", state, err)
	}
	defer rows.Close()

	entries := make([]QueueEntry, 0)
	for rows.Next() {
		var e QueueEntry
		var payload string
		if err := rows.Scan(&e.Sequence, &e.Operation, &payload, &e.State, &e.CreatedAtMs, &e.LastError); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queue entries: %w", err)
	}
	return entries, nil
}

func enqueue(ctx context.Context, q querier, op syncx.Operation, payload json.RawMessage) (*QueueEntry, error) {
	if op == "" {
		return nil, fmt.Errorf("%w: empty operation", ErrInvalidOp)
	}

	entry := &QueueEntry{
		Operation:   op,
		Payload:     payload,
		State:       StatePending,
		CreatedAtMs: syncx.NowMs(),
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO sync_queue (operation, payload, state, created_at_ms)
		VALUES (?, ?, ?, ?)
	`, string(op), string(payload), string(StatePending), entry.CreatedAtMs)
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s: %w", op, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading queue sequence: %w", err)
	}
	entry.Sequence = seq
	return entry, nil
}

func pendingIDs(ctx context.Context, q querier) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT payload FROM sync_queue WHERE state = ?`, string(StatePending))
	if err != nil {
		return nil, fmt.Errorf("listing pending payloads: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning pending payload: %w", err)
		}
		todo, err := syncx.DecodePayload(json.RawMessage(payload))
		if err != nil {
			continue
		}
		ids[todo.ID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending payloads: %w", err)
	}
	return ids, nil
}

// pendingAfter reports whether a PENDING entry for id sits behind seq
func pendingAfter(ctx context.Context, q querier, id string, seq int64) (bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT payload FROM sync_queue WHERE state = ? AND seq > ?`, string(StatePending), seq)
	if err != nil {
		return false, fmt.Errorf("listing later entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return false, fmt.Errorf("scanning later entry: %w", err)
		}
		if todo, err := syncx.DecodePayload(json.RawMessage(payload)); err == nil && todo.ID == id {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterating later entries: %w", err)
	}
	return false, nil
}
