package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leadpipe/internal/leads/domain"

	"github.com/google/uuid"
)

type stubSelector struct {
	leads []domain.Lead
	err   error
	calls atomic.Int32
}

func (s *stubSelector) SelectEligible(_ context.Context, _ domain.Stage, limit int) ([]domain.Lead, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.leads) > limit {
		return s.leads[:limit], nil
	}
	return s.leads, nil
}

func leadsN(n int) []domain.Lead {
	out := make([]domain.Lead, n)
	for i := range out {
		out[i] = domain.Lead{ID: uuid.New(), Status: domain.StatusPending}
	}
	return out
}

func TestRunCycleRespectsConcurrencyCap(t *testing.T) {
	sel := &stubSelector{leads: leadsN(5)}
	started := make(chan uuid.UUID, 5)
	release := make(chan struct{})
	worker := WorkerFunc(func(_ context.Context, lead domain.Lead) error {
		started <- lead.ID
		<-release
		return nil
	})
	s := NewScheduler(domain.StageCall, sel, worker, SchedulerConfig{MaxConcurrent: 2}, nil)

	done := make(chan CycleResult, 1)
	go func() {
		res, err := s.RunCycle(context.Background(), 5)
		if err != nil {
			t.Errorf("run cycle: %v", err)
		}
		done <- res
	}()

	<-started
	<-started
	// Give the dispatch loop time to hit the cap before slots free up.
	time.Sleep(20 * time.Millisecond)
	close(release)

	res := <-done
	if res.Selected != 5 || res.Launched != 2 {
		t.Fatalf("unexpected cycle result: %+v", res)
	}
	if len(started) != 0 {
		t.Fatalf("leads beyond the cap must not be processed")
	}
}

func TestRunCycleIsolatesPanicsAndErrors(t *testing.T) {
	sel := &stubSelector{leads: leadsN(3)}
	var processed atomic.Int32
	worker := WorkerFunc(func(_ context.Context, lead domain.Lead) error {
		processed.Add(1)
		switch lead.ID {
		case sel.leads[0].ID:
			panic("boom")
		case sel.leads[1].ID:
			return errors.New("store unavailable")
		}
		return nil
	})
	s := NewScheduler(domain.StageEntry, sel, worker, SchedulerConfig{MaxConcurrent: 3}, nil)

	res, err := s.RunCycle(context.Background(), 10)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if res.Launched != 3 || res.Failed != 2 || processed.Load() != 3 {
		t.Fatalf("unexpected result %+v processed=%d", res, processed.Load())
	}
}

func TestRunSingleShotReturnsSelectionError(t *testing.T) {
	sel := &stubSelector{err: errors.New("db down")}
	s := NewScheduler(domain.StageCall, sel, WorkerFunc(func(context.Context, domain.Lead) error { return nil }), SchedulerConfig{}, nil)

	if err := s.Run(context.Background(), 5, false); err == nil {
		t.Fatalf("expected selection error")
	}
	if sel.calls.Load() != 1 {
		t.Fatalf("single-shot run selected %d times", sel.calls.Load())
	}
	if err := s.Run(context.Background(), 0, false); err == nil {
		t.Fatalf("expected batch size error")
	}
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	sel := &stubSelector{}
	s := NewScheduler(domain.StageCall, sel, WorkerFunc(func(context.Context, domain.Lead) error { return nil }), SchedulerConfig{IdleDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		n := len(delays)
		mu.Unlock()
		if n == 3 {
			cancel()
		}
		return sleepContext(ctx, 0)
	}

	if err := s.Run(ctx, 5, true); err != nil {
		t.Fatalf("continuous run returned %v", err)
	}
	if sel.calls.Load() != 3 {
		t.Fatalf("expected 3 cycles, got %d", sel.calls.Load())
	}
	for _, d := range delays {
		if d != time.Hour {
			t.Fatalf("idle cycles should use the idle delay, got %v", d)
		}
	}
}

func TestDrainContextOutlivesParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, release := drainContext(parent, 50*time.Millisecond)
	defer release()

	cancel()
	select {
	case <-ctx.Done():
		t.Fatalf("work context cancelled before the drain timeout")
	case <-time.After(10 * time.Millisecond):
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("work context not cancelled after the drain timeout")
	}
}
