package tentative

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type row struct {
	ID    int
	Notes string
}

func newStore(opts Options) *Store[int, row] {
	s := New[int, row](opts)
	s.Reset([]row{{ID: 1, Notes: "a"}, {ID: 2, Notes: "b"}}, func(r row) int { return r.ID })
	return s
}

func setNotes(n string) func(row) row {
	return func(r row) row {
		r.Notes = n
		return r
	}
}

func TestApplyVisibleBeforeCommitReturns(t *testing.T) {
	s := newStore(Options{})
	seen := ""
	got, err := s.Apply(context.Background(), 1, setNotes("x"), func(ctx context.Context, r row) error {
		cur, _ := s.Get(1)
		seen = cur.Notes
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if seen != "x" || got.Notes != "x" {
		t.Fatalf("tentative value not visible during commit: seen=%q got=%q", seen, got.Notes)
	}
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	s := newStore(Options{Attempts: 2})
	boom := errors.New("collaborator down")
	var calls int32
	_, err := s.Apply(context.Background(), 1, setNotes("x"), func(ctx context.Context, r row) error {
		atomic.AddInt32(&calls, 1)
		return boom
	})
	if !errors.Is(err, ErrRolledBack) || !errors.Is(err, boom) {
		t.Fatalf("expected rolled back wrapping cause, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	cur, _ := s.Get(1)
	if cur.Notes != "a" {
		t.Fatalf("snapshot not restored: %q", cur.Notes)
	}
}

func TestApplyRetriesTransientFailure(t *testing.T) {
	s := newStore(Options{Attempts: 3, Backoff: time.Millisecond})
	var calls int32
	_, err := s.Apply(context.Background(), 2, setNotes("y"), func(ctx context.Context, r row) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cur, _ := s.Get(2); cur.Notes != "y" {
		t.Fatalf("committed value lost: %q", cur.Notes)
	}
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	s := newStore(Options{Attempts: 5})
	var calls int32
	_, err := s.Apply(context.Background(), 1, setNotes("x"), func(ctx context.Context, r row) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("not found"))
	})
	if err == nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestAttemptTimeout(t *testing.T) {
	s := newStore(Options{Attempts: 1, Timeout: 10 * time.Millisecond})
	_, err := s.Apply(context.Background(), 1, setNotes("x"), func(ctx context.Context, r row) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRollbackKeepsNewerWrite(t *testing.T) {
	s := newStore(Options{Attempts: 1})
	_, err := s.Apply(context.Background(), 1, setNotes("first"), func(ctx context.Context, r row) error {
		if _, err := s.Apply(ctx, 1, setNotes("second"), func(context.Context, row) error { return nil }); err != nil {
			t.Fatalf("nested apply: %v", err)
		}
		return errors.New("first failed")
	})
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("expected rollback, got %v", err)
	}
	if cur, _ := s.Get(1); cur.Notes != "second" {
		t.Fatalf("newer write was clobbered: %q", cur.Notes)
	}
}

func TestUnknownKey(t *testing.T) {
	s := newStore(Options{})
	_, err := s.Apply(context.Background(), 9, setNotes("x"), func(context.Context, row) error { return nil })
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestValuesKeepOrder(t *testing.T) {
	s := newStore(Options{})
	vals := s.Values()
	if len(vals) != 2 || vals[0].ID != 1 || vals[1].ID != 2 || s.Len() != 2 {
		t.Fatalf("values: %+v", vals)
	}
}

func TestResetDuringCommitKeepsWrite(t *testing.T) {
	s := newStore(Options{})
	stale := []row{{ID: 1, Notes: "a"}, {ID: 2, Notes: "b2"}}
	got, err := s.Apply(context.Background(), 1, setNotes("x"), func(ctx context.Context, r row) error {
		s.Reset(stale, func(r row) int { return r.ID })
		return nil
	})
	if err != nil || got.Notes != "x" {
		t.Fatalf("apply: %+v %v", got, err)
	}
	if cur, _ := s.Get(1); cur.Notes != "x" {
		t.Fatalf("committed write lost after reset: %q", cur.Notes)
	}
	if cur, _ := s.Get(2); cur.Notes != "b2" {
		t.Fatalf("idle key not refreshed: %q", cur.Notes)
	}

	boom := errors.New("collaborator down")
	_, err = s.Apply(context.Background(), 2, setNotes("y"), func(ctx context.Context, r row) error {
		s.Reset(stale, func(r row) int { return r.ID })
		return Permanent(boom)
	})
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("expected rollback, got %v", err)
	}
	if cur, _ := s.Get(2); cur.Notes != "b2" {
		t.Fatalf("rollback after reset: %q", cur.Notes)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
}
