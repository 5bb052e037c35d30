// Package tentative keeps an in-memory snapshot that accepts writes before
// they are persisted. A write is applied locally at once, committed through a
// caller-supplied function with bounded retries, and rolled back if the
// commit fails.
package tentative

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRolledBack wraps every commit failure returned by Apply.
var ErrRolledBack = errors.New("write rolled back")

// ErrUnknownKey is returned when Apply targets a key not in the snapshot.
var ErrUnknownKey = errors.New("unknown key")

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

type Options struct {
	// Attempts is the total number of commit attempts. Defaults to 3.
	Attempts int
	// Timeout bounds each attempt. Zero means only the caller's context applies.
	Timeout time.Duration
	// Backoff is the pause between attempts, doubled after each failure.
	Backoff time.Duration
	// Retryable decides whether a failed attempt is retried. Errors wrapped
	// with Permanent are never retried.
	Retryable func(error) bool
	Logger    *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type entry[V any] struct {
	value   V
	version uint64
}

// Store is a keyed snapshot. Reads always see the latest tentative value.
type Store[K comparable, V any] struct {
	mu      sync.RWMutex
	keys    []K
	entries map[K]entry[V]
	// inflight counts uncommitted writes per key.
	inflight map[K]int
	clock    uint64
	opts     Options
}

func New[K comparable, V any](opts Options) *Store[K, V] {
	return &Store[K, V]{entries: make(map[K]entry[V]), inflight: make(map[K]int), opts: opts.withDefaults()}
}

// Reset replaces the snapshot. keyOf extracts the key of each value; values
// keep their slice order. Keys with a write still committing keep their
// tentative value, since values may have been read before that write landed.
func (s *Store[K, V]) Reset(values []V, keyOf func(V) K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.entries
	s.keys = make([]K, 0, len(values))
	s.entries = make(map[K]entry[V], len(values))
	for _, v := range values {
		k := keyOf(v)
		if _, dup := s.entries[k]; !dup {
			s.keys = append(s.keys, k)
		}
		if e, ok := old[k]; ok && s.inflight[k] > 0 {
			s.entries[k] = e
			continue
		}
		s.clock++
		s.entries[k] = entry[V]{value: v, version: s.clock}
	}
	for k, n := range s.inflight {
		if n == 0 {
			continue
		}
		if _, ok := s.entries[k]; ok {
			continue
		}
		if e, ok := old[k]; ok {
			s.keys = append(s.keys, k)
			s.entries[k] = e
		}
	}
}

func (s *Store[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[k]
	return e.value, ok
}

// Values returns every value in snapshot order.
func (s *Store[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]V, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.entries[k].value)
	}
	return out
}

func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Apply stores mutate(current) under k, then calls commit with the new value.
// On success the new value stays. On failure the previous value is restored,
// unless a later write to k has landed in the meantime, and the error is
// returned wrapped in ErrRolledBack.
func (s *Store[K, V]) Apply(ctx context.Context, k K, mutate func(V) V, commit func(context.Context, V) error) (V, error) {
	var zero V
	s.mu.Lock()
	prev, ok := s.entries[k]
	if !ok {
		s.mu.Unlock()
		return zero, fmt.Errorf("%w: %v", ErrUnknownKey, k)
	}
	next := mutate(prev.value)
	s.clock++
	version := s.clock
	s.entries[k] = entry[V]{value: next, version: version}
	s.inflight[k]++
	s.mu.Unlock()

	err := s.commit(ctx, next, commit)

	s.mu.Lock()
	if s.inflight[k]--; s.inflight[k] <= 0 {
		delete(s.inflight, k)
	}
	if err == nil {
		s.mu.Unlock()
		return next, nil
	}
	if cur, ok := s.entries[k]; ok && cur.version == version {
		s.clock++
		s.entries[k] = entry[V]{value: prev.value, version: s.clock}
	} else {
		s.opts.Logger.Warn("rollback skipped, newer write present", zap.Any("key", k))
	}
	s.mu.Unlock()
	return zero, fmt.Errorf("%w: %w", ErrRolledBack, err)
}

func (s *Store[K, V]) commit(ctx context.Context, v V, commit func(context.Context, V) error) error {
	backoff := s.opts.Backoff
	var err error
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		err = s.attempt(ctx, v, commit)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || isPermanent(err) || (s.opts.Retryable != nil && !s.opts.Retryable(err)) {
			return err
		}
		if attempt == s.opts.Attempts {
			break
		}
		s.opts.Logger.Debug("commit failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if backoff > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("after %d attempts: %w", s.opts.Attempts, err)
}

func (s *Store[K, V]) attempt(ctx context.Context, v V, commit func(context.Context, V) error) error {
	if s.opts.Timeout <= 0 {
		return commit(ctx, v)
	}
	actx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return commit(actx, v)
}
