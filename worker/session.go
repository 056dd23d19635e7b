package worker

import (
	"context"
	"fmt"
	"sync"

	"precinct-nav/metrics"

	"github.com/google/uuid"
)

// Session delivers only the newest result of a client's queries. A search
// that is superseded still runs to completion; its result is dropped.
type Session[T any] struct {
	ID string

	pool    *Pool
	deliver func(seq uint64, v T)

	mu        sync.Mutex
	latest    uint64
	delivered uint64
	closed    bool
}

// NewSession binds a delivery callback to the pool. deliver is never called
// concurrently for one session and never with an older result after a newer
// one.
func NewSession[T any](p *Pool, deliver func(seq uint64, v T)) *Session[T] {
	return &Session[T]{ID: uuid.NewString(), pool: p, deliver: deliver}
}

// Submit queues a search and returns its sequence number. Earlier searches of
// this session become stale once it is queued; a failed submit leaves them
// current.
func (s *Session[T]) Submit(ctx context.Context, search func() T) (uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrPoolClosed
	}
	s.latest++
	seq := s.latest
	s.mu.Unlock()

	err := s.pool.Submit(ctx, fmt.Sprintf("%s/%d", s.ID, seq), func() {
		v := search()
		s.finish(seq, v)
	})
	if err != nil {
		// a search that never queued must not supersede the one in flight
		s.mu.Lock()
		if s.latest == seq {
			s.latest--
		}
		s.mu.Unlock()
		return 0, err
	}
	return seq, nil
}

func (s *Session[T]) finish(seq uint64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.latest || seq <= s.delivered {
		metrics.WorkerDiscardedTotal.Inc()
		return
	}
	s.delivered = seq
	s.deliver(seq, v)
}

// Latest is the sequence number of the newest submitted search.
func (s *Session[T]) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Close drops every pending result.
func (s *Session[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
