package localstore

import (
	"context"
	"fmt"
	"time"

	"github.com/erauner12/todosync/internal/syncx"
)

// AcquireLease takes or renews the store-wide sync lease for owner.
// Every process sharing the database file competes for the same row, so at
// most one of them runs a sync pass at a time. A lease held by another owner
// is only taken over once it has expired. It reports whether owner now holds
// the lease.
func (s *Store) AcquireLease(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	now := syncx.NowMs()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_lease (id, owner, expires_at_ms)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner         = excluded.owner,
			expires_at_ms = excluded.expires_at_ms
		WHERE sync_lease.owner = excluded.owner OR sync_lease.expires_at_ms <= ?
	`, owner, now+ttl.Milliseconds(), now)
	if err != nil {
		return false, fmt.Errorf("acquiring sync lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring sync lease: %w", err)
	}
	return n == 1, nil
}

// ReleaseLease drops the lease if owner still holds it
func (s *Store) ReleaseLease(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_lease WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("releasing sync lease: %w", err)
	}
	return nil
}
