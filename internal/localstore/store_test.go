package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/erauner12/todosync/internal/syncx"
)

// newTestStore opens a store in a temp directory, closed when the test completes
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "todos.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetListAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	r := Record{ID: "t1", Title: "Buy milk", Status: syncx.StatusPending, UpdatedAtMs: 10}
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	// Put is idempotent
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put() second call error: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if *got != r {
		t.Errorf("Get() = %+v, want %+v", *got, r)
	}

	r.Title = "Buy oat milk"
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put() replace error: %v", err)
	}
	if err := s.Put(ctx, Record{ID: "t0", Title: "first"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListAll() returned %d records, want 2", len(all))
	}
	if all[1].Title != "Buy oat milk" {
		t.Errorf("replaced title = %q", all[1].Title)
	}

	if err := s.Put(ctx, Record{}); !errors.Is(err, ErrInvalidOp) {
		t.Errorf("Put(empty id) error = %v, want ErrInvalidOp", err)
	}
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Put(ctx, Record{ID: "t1", Title: "x", Status: syncx.StatusPending}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := s.SetStatus(ctx, "t1", syncx.StatusSynced); err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	got, _ := s.Get(ctx, "t1")
	if got.Status != syncx.StatusSynced {
		t.Errorf("Status = %q, want synced", got.Status)
	}
	if got.Title != "x" {
		t.Errorf("SetStatus changed title to %q", got.Title)
	}

	// absent id is a silent no-op
	if err := s.SetStatus(ctx, "gone", syncx.StatusSynced); err != nil {
		t.Errorf("SetStatus(absent) error = %v, want nil", err)
	}
}

func TestEnqueueOrderingAndRemoval(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var seqs []int64
	for _, id := range []string{"a", "b", "c"} {
		e, err := s.Enqueue(ctx, syncx.OpInsert, json.RawMessage(`{"id":"`+id+`"}`))
		if err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		if e.State != StatePending {
			t.Errorf("new entry state = %s", e.State)
		}
		seqs = append(seqs, e.Sequence)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequences not increasing: %v", seqs)
		}
	}

	if err := s.Remove(ctx, seqs[2]); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := s.Remove(ctx, seqs[2]); !errors.Is(err, ErrNoEntry) {
		t.Errorf("Remove() twice error = %v, want ErrNoEntry", err)
	}
	if err := s.MarkDone(ctx, seqs[0]); err != nil {
		t.Fatalf("MarkDone() error: %v", err)
	}

	// sequence numbers are never reused after removal
	e, err := s.Enqueue(ctx, syncx.OpDelete, json.RawMessage(`{"id":"a"}`))
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if e.Sequence <= seqs[2] {
		t.Errorf("sequence %d reused (last was %d)", e.Sequence, seqs[2])
	}

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ListPending() returned %d entries, want 2", len(pending))
	}
	if pending[0].Sequence != seqs[1] || pending[1].Sequence != e.Sequence {
		t.Errorf("pending order = [%d %d], want [%d %d]",
			pending[0].Sequence, pending[1].Sequence, seqs[1], e.Sequence)
	}
	if string(pending[0].Payload) != `{"id":"b"}` {
		t.Errorf("payload = %s", pending[0].Payload)
	}

	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Purge() removed %d entries, want 1", n)
	}

	if _, err := s.Enqueue(ctx, "", nil); !errors.Is(err, ErrInvalidOp) {
		t.Errorf("Enqueue(empty op) error = %v, want ErrInvalidOp", err)
	}
}

func TestDeadLetter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bad, _ := s.Enqueue(ctx, syncx.OpInsert, json.RawMessage(`{not json`))
	good, _ := s.Enqueue(ctx, syncx.OpInsert, json.RawMessage(`{"id":"ok"}`))

	if err := s.DeadLetter(ctx, bad.Sequence, "malformed payload"); err != nil {
		t.Fatalf("DeadLetter() error: %v", err)
	}

	pending, _ := s.ListPending(ctx)
	if len(pending) != 1 || pending[0].Sequence != good.Sequence {
		t.Errorf("pending = %+v, want only seq %d", pending, good.Sequence)
	}

	dead, err := s.ListDeadLetters(ctx)
	if err != nil {
		t.Fatalf("ListDeadLetters() error: %v", err)
	}
	if len(dead) != 1 || dead[0].LastError != "malformed payload" {
		t.Errorf("dead letters = %+v", dead)
	}

	if err := s.DeadLetter(ctx, 9999, "x"); !errors.Is(err, ErrNoEntry) {
		t.Errorf("DeadLetter(missing) error = %v, want ErrNoEntry", err)
	}
}

func TestApplyLocalMutation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := Record{ID: "t1", Title: "Buy milk", Status: syncx.StatusPending, UpdatedAtMs: 42}
	entry, err := s.ApplyLocalMutation(ctx, LocalMutation{Operation: syncx.OpInsert, Record: rec})
	if err != nil {
		t.Fatalf("ApplyLocalMutation(INSERT) error: %v", err)
	}

	if _, err := s.Get(ctx, "t1"); err != nil {
		t.Fatalf("record not written: %v", err)
	}
	todo, err := syncx.DecodePayload(entry.Payload)
	if err != nil {
		t.Fatalf("payload not decodable: %v", err)
	}
	if todo.ID != "t1" || todo.Title != "Buy milk" || todo.Status != syncx.StatusPending {
		t.Errorf("payload snapshot = %+v", todo)
	}

	del, err := s.ApplyLocalMutation(ctx, LocalMutation{Operation: syncx.OpDelete, Record: Record{ID: "t1"}})
	if err != nil {
		t.Fatalf("ApplyLocalMutation(DELETE) error: %v", err)
	}
	if string(del.Payload) != `{"id":"t1"}` {
		t.Errorf("delete payload = %s", del.Payload)
	}
	if _, err := s.Get(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record still present after delete: %v", err)
	}

	pending, _ := s.ListPending(ctx)
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Operation != syncx.OpInsert || pending[1].Operation != syncx.OpDelete {
		t.Errorf("pending ops = %s, %s", pending[0].Operation, pending[1].Operation)
	}

	if _, err := s.ApplyLocalMutation(ctx, LocalMutation{Operation: "MERGE", Record: rec}); !errors.Is(err, ErrInvalidOp) {
		t.Errorf("unknown op error = %v, want ErrInvalidOp", err)
	}
}

func TestApplyLocalMutationIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Make the queue append fail after the record write has happened
	_, err := s.db.Exec(`
		CREATE TRIGGER fail_enqueue BEFORE INSERT ON sync_queue
		BEGIN
			SELECT RAISE(ABORT, 'queue unavailable');
		END`)
	if err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	rec := Record{ID: "t1", Title: "Buy milk", Status: syncx.StatusPending}
	if _, err := s.ApplyLocalMutation(ctx, LocalMutation{Operation: syncx.OpInsert, Record: rec}); err == nil {
		t.Fatal("ApplyLocalMutation() succeeded despite failing enqueue")
	}

	if _, err := s.Get(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record visible without its queue entry: %v", err)
	}
	if n, _ := s.CountPending(ctx); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "todos.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	rec := Record{ID: "t1", Title: "Buy milk", Status: syncx.StatusPending}
	if _, err := s.ApplyLocalMutation(ctx, LocalMutation{Operation: syncx.OpInsert, Record: rec}); err != nil {
		t.Fatalf("ApplyLocalMutation() error: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "t1"); err != nil {
		t.Errorf("record lost across reopen: %v", err)
	}
	if n, _ := s.CountPending(ctx); n != 1 {
		t.Errorf("pending after reopen = %d, want 1", n)
	}
}

func TestApplyRemoteSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("last pull wins and never enqueues", func(t *testing.T) {
		s := newTestStore(t)

		local := Record{ID: "1", Title: "local edit", Status: syncx.StatusPending}
		if _, err := s.ApplyLocalMutation(ctx, LocalMutation{Operation: syncx.OpUpdate, Record: local}); err != nil {
			t.Fatalf("ApplyLocalMutation() error: %v", err)
		}
		if err := s.Put(ctx, Record{ID: "local-only", Title: "keep me"}); err != nil {
			t.Fatalf("Put() error: %v", err)
		}

		remote := []Record{
			{ID: "1", Title: "X", Status: syncx.StatusSynced},
			{ID: "2", Title: "Y", Status: syncx.StatusSynced},
		}
		res, err := s.ApplyRemoteSnapshot(ctx, remote, SnapshotOptions{})
		if err != nil {
			t.Fatalf("ApplyRemoteSnapshot() error: %v", err)
		}
		if res.Applied != 2 || res.Skipped != 0 {
			t.Errorf("result = %+v", res)
		}

		got, _ := s.Get(ctx, "1")
		if got.Title != "X" || got.Status != syncx.StatusSynced {
			t.Errorf("remote did not win: %+v", got)
		}
		if _, err := s.Get(ctx, "local-only"); err != nil {
			t.Errorf("local-only record removed by pull: %v", err)
		}
		if n, _ := s.CountPending(ctx); n != 1 {
			t.Errorf("pending = %d, want 1 (pull must not enqueue)", n)
		}
	})

	t.Run("skip pending", func(t *testing.T) {
		s := newTestStore(t)

		local := Record{ID: "1", Title: "local edit", Status: syncx.StatusPending}
		if _, err := s.ApplyLocalMutation(ctx, LocalMutation{Operation: syncx.OpUpdate, Record: local}); err != nil {
			t.Fatalf("ApplyLocalMutation() error: %v", err)
		}

		remote := []Record{
			{ID: "1", Title: "X", Status: syncx.StatusSynced},
			{ID: "2", Title: "Y", Status: syncx.StatusSynced},
		}
		res, err := s.ApplyRemoteSnapshot(ctx, remote, SnapshotOptions{SkipPending: true})
		if err != nil {
			t.Fatalf("ApplyRemoteSnapshot() error: %v", err)
		}
		if res.Applied != 1 || res.Skipped != 1 {
			t.Errorf("result = %+v, want 1 applied 1 skipped", res)
		}

		got, _ := s.Get(ctx, "1")
		if got.Title != "local edit" {
			t.Errorf("pending local edit overwritten: %+v", got)
		}
	})
}

func TestPendingIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Enqueue(ctx, syncx.OpInsert, json.RawMessage(`{"id":"a"}`))
	s.Enqueue(ctx, syncx.OpUpdate, json.RawMessage(`{"id":"a","title":"again"}`))
	s.Enqueue(ctx, syncx.OpInsert, json.RawMessage(`garbage`))
	done, _ := s.Enqueue(ctx, syncx.OpInsert, json.RawMessage(`{"id":"b"}`))
	s.MarkDone(ctx, done.Sequence)

	ids, err := s.PendingIDs(ctx)
	if err != nil {
		t.Fatalf("PendingIDs() error: %v", err)
	}
	if len(ids) != 1 || !ids["a"] {
		t.Errorf("PendingIDs() = %v, want {a}", ids)
	}
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()

	t.Run("marks synced when nothing newer is pending", func(t *testing.T) {
		s := newTestStore(t)
		entry, _ := s.ApplyLocalMutation(ctx, LocalMutation{
			Operation: syncx.OpInsert,
			Record:    Record{ID: "t1", Title: "Buy milk", Status: syncx.StatusPending},
		})

		synced, err := s.Acknowledge(ctx, entry.Sequence, "t1", false)
		if err != nil {
			t.Fatalf("Acknowledge() error: %v", err)
		}
		if !synced {
			t.Error("Acknowledge() did not mark the record synced")
		}
		if got, _ := s.Get(ctx, "t1"); got.Status != syncx.StatusSynced {
			t.Errorf("status = %q, want synced", got.Status)
		}
		if n, _ := s.CountPending(ctx); n != 0 {
			t.Errorf("pending = %d, want 0", n)
		}
	})

	t.Run("leaves record pending behind a later entry", func(t *testing.T) {
		s := newTestStore(t)
		first, _ := s.ApplyLocalMutation(ctx, LocalMutation{
			Operation: syncx.OpInsert,
			Record:    Record{ID: "t1", Title: "Buy milk", Status: syncx.StatusPending},
		})
		s.ApplyLocalMutation(ctx, LocalMutation{
			Operation: syncx.OpUpdate,
			Record:    Record{ID: "t1", Title: "Buy oat milk", Status: syncx.StatusPending},
		})

		synced, err := s.Acknowledge(ctx, first.Sequence, "t1", false)
		if err != nil {
			t.Fatalf("Acknowledge() error: %v", err)
		}
		if synced {
			t.Error("record marked synced while an update is still pending")
		}
		if got, _ := s.Get(ctx, "t1"); got.Status != syncx.StatusPending {
			t.Errorf("status = %q, want pending", got.Status)
		}
		if n, _ := s.CountPending(ctx); n != 1 {
			t.Errorf("pending = %d, want 1", n)
		}
	})

	t.Run("keep marks done and empty id skips status", func(t *testing.T) {
		s := newTestStore(t)
		entry, _ := s.Enqueue(ctx, syncx.OpDelete, json.RawMessage(`{"id":"gone"}`))

		synced, err := s.Acknowledge(ctx, entry.Sequence, "", true)
		if err != nil {
			t.Fatalf("Acknowledge() error: %v", err)
		}
		if synced {
			t.Error("Acknowledge() with empty id reported synced")
		}
		if n, _ := s.Purge(ctx); n != 1 {
			t.Errorf("Purge() = %d, want 1 done entry", n)
		}
	})
}

func TestSyncLease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "todos.db")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer a.Close()
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open() second handle error: %v", err)
	}
	defer b.Close()

	if ok, err := a.AcquireLease(ctx, "a", time.Minute); err != nil || !ok {
		t.Fatalf("AcquireLease(a) = %v, %v; want true", ok, err)
	}
	if ok, _ := b.AcquireLease(ctx, "b", time.Minute); ok {
		t.Error("second owner acquired a held lease")
	}
	if ok, _ := a.AcquireLease(ctx, "a", time.Minute); !ok {
		t.Error("holder could not renew its lease")
	}

	if err := b.ReleaseLease(ctx, "b"); err != nil {
		t.Fatalf("ReleaseLease(b) error: %v", err)
	}
	if ok, _ := b.AcquireLease(ctx, "b", time.Minute); ok {
		t.Error("release by a non-holder freed the lease")
	}

	if err := a.ReleaseLease(ctx, "a"); err != nil {
		t.Fatalf("ReleaseLease(a) error: %v", err)
	}
	if ok, _ := b.AcquireLease(ctx, "b", -time.Second); !ok {
		t.Fatal("lease not acquirable after release")
	}
	// b's lease is already expired, so a can take it over
	if ok, _ := a.AcquireLease(ctx, "a", time.Minute); !ok {
		t.Error("expired lease was not taken over")
	}
}
