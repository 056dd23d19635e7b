package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsEveryJob(t *testing.T) {
	p := NewPool(4, 16, nil)
	p.Start()
	var n atomic.Int64
	for i := 0; i < 100; i++ {
		if err := p.Submit(context.Background(), "job", func() { n.Add(1) }); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if n.Load() != 100 {
		t.Fatalf("ran %d jobs, want 100", n.Load())
	}
	if err := p.Submit(context.Background(), "late", func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("submit after stop: %v", err)
	}
}

func TestPoolSurvivesPanics(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start()
	done := make(chan struct{})
	_ = p.Submit(context.Background(), "boom", func() { panic("boom") })
	_ = p.Submit(context.Background(), "after", func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker died after a panic")
	}
	_ = p.Stop()
}

func TestSubmitHonoursContext(t *testing.T) {
	p := NewPool(1, 0, nil)
	// not started: nobody receives, so the unbuffered queue blocks
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, "stuck", func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestSessionDeliversOnlyLatest(t *testing.T) {
	p := NewPool(2, 8, nil)
	p.Start()
	defer p.Stop()

	var (
		mu  sync.Mutex
		got []int
	)
	delivered := make(chan struct{}, 4)
	s := NewSession(p, func(seq uint64, v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		delivered <- struct{}{}
	})

	release := make(chan struct{})
	// the first search is slow and finishes after the second was submitted
	if _, err := s.Submit(context.Background(), func() int { <-release; return 1 }); err != nil {
		t.Fatal(err)
	}
	seq, err := s.Submit(context.Background(), func() int { return 2 })
	if err != nil {
		t.Fatal(err)
	}
	if seq != 2 || s.Latest() != 2 {
		t.Fatalf("seq = %d latest = %d, want 2", seq, s.Latest())
	}

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("latest result never delivered")
	}
	close(release)
	// give the stale search time to finish and be dropped
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("delivered %v, want [2]", got)
	}
}

func TestClosedSessionDropsResults(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start()

	var calls atomic.Int64
	s := NewSession(p, func(uint64, string) { calls.Add(1) })
	release := make(chan struct{})
	if _, err := s.Submit(context.Background(), func() string { <-release; return "x" }); err != nil {
		t.Fatal(err)
	}
	s.Close()
	close(release)
	_ = p.Stop()

	if calls.Load() != 0 {
		t.Fatal("closed session received a result")
	}
	if _, err := s.Submit(context.Background(), func() string { return "y" }); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("submit on closed session: %v", err)
	}
}

func TestFailedSubmitKeepsEarlierResult(t *testing.T) {
	p := NewPool(1, 0, nil)
	p.Start()
	defer p.Stop()

	type result struct {
		seq uint64
		v   int
	}
	delivered := make(chan result, 2)
	s := NewSession(p, func(seq uint64, v int) { delivered <- result{seq, v} })

	release := make(chan struct{})
	// the unbuffered queue hands this to the only worker before Submit returns
	if _, err := s.Submit(context.Background(), func() int { <-release; return 1 }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	seq, err := s.Submit(ctx, func() int { return 2 })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if seq != 0 {
		t.Fatalf("failed submit returned seq %d", seq)
	}
	if s.Latest() != 1 {
		t.Fatalf("latest = %d after a failed submit, want 1", s.Latest())
	}

	close(release)
	select {
	case r := <-delivered:
		if r.seq != 1 || r.v != 1 {
			t.Fatalf("delivered %+v, want seq 1 value 1", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight result dropped after a failed submit")
	}
}
