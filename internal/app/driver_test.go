package app

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"leadpipe/internal/events"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/scheduler"
	"leadpipe/platform/logger"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

type stubRunner struct {
	stage domain.Stage
	err   error

	mu         sync.Mutex
	calls      int
	batch      int
	continuous bool
}

func (s *stubRunner) Stage() domain.Stage { return s.stage }

func (s *stubRunner) Run(ctx context.Context, batchSize int, continuous bool) error {
	s.mu.Lock()
	s.calls++
	s.batch = batchSize
	s.continuous = continuous
	s.mu.Unlock()
	if continuous {
		<-ctx.Done()
		return nil
	}
	return s.err
}

func TestDriverRunsSelectedStagesOnce(t *testing.T) {
	call := &stubRunner{stage: domain.StageCall}
	entry := &stubRunner{stage: domain.StageEntry}
	d := NewDriver(filepath.Join(t.TempDir(), "driver.lock"), logger.Nop(), call, entry)

	err := d.Run(context.Background(), RunOptions{
		Batches: map[domain.Stage]int{domain.StageCall: 5, domain.StageEntry: 3},
		Once:    true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if call.calls != 1 || call.batch != 5 || call.continuous {
		t.Fatalf("call runner = %+v", call)
	}
	if entry.calls != 1 || entry.batch != 3 || entry.continuous {
		t.Fatalf("entry runner = %+v", entry)
	}
}

func TestDriverStageFailureDoesNotStopSibling(t *testing.T) {
	call := &stubRunner{stage: domain.StageCall, err: errors.New("select failed")}
	entry := &stubRunner{stage: domain.StageEntry}
	d := NewDriver("", logger.Nop(), call, entry)

	err := d.Run(context.Background(), RunOptions{
		Batches: map[domain.Stage]int{domain.StageCall: 5, domain.StageEntry: 3},
		Once:    true,
	})
	if err == nil || !strings.Contains(err.Error(), "select failed") {
		t.Fatalf("expected call stage error, got %v", err)
	}
	if entry.calls != 1 {
		t.Fatalf("entry stage ran %d times, want 1", entry.calls)
	}
}

func TestDriverReportsEveryStageFailure(t *testing.T) {
	callErr := errors.New("select failed")
	entryErr := errors.New("browser crashed")
	d := NewDriver("", logger.Nop(),
		&stubRunner{stage: domain.StageCall, err: callErr},
		&stubRunner{stage: domain.StageEntry, err: entryErr})

	err := d.Run(context.Background(), RunOptions{
		Batches: map[domain.Stage]int{domain.StageCall: 5, domain.StageEntry: 3},
		Once:    true,
	})
	if !errors.Is(err, callErr) || !errors.Is(err, entryErr) {
		t.Fatalf("expected both stage errors, got %v", err)
	}
	if !strings.Contains(err.Error(), "call stage") || !strings.Contains(err.Error(), "entry stage") {
		t.Fatalf("errors should name their stage: %v", err)
	}
}

func TestDriverContinuousStopsOnCancel(t *testing.T) {
	call := &stubRunner{stage: domain.StageCall}
	d := NewDriver("", logger.Nop(), call)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, RunOptions{Batches: map[domain.Stage]int{domain.StageCall: 1}})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("driver did not stop after cancel")
	}
	if !call.continuous {
		t.Fatalf("expected continuous run")
	}
}

func TestDriverRejectsUnknownStageAndHeldLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "driver.lock")
	d := NewDriver(lockPath, logger.Nop(), &stubRunner{stage: domain.StageCall})

	if err := d.Run(context.Background(), RunOptions{Batches: map[domain.Stage]int{domain.StageEntry: 1}, Once: true}); err == nil {
		t.Fatalf("expected error for unconfigured stage")
	}
	if err := d.Run(context.Background(), RunOptions{Once: true}); err == nil {
		t.Fatalf("expected error without stages")
	}

	held := flock.New(lockPath)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	err = d.Run(context.Background(), RunOptions{Batches: map[domain.Stage]int{domain.StageCall: 1}, Once: true})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestSubscribeAuditLogsTransition(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("production", &buf)
	bus := events.NewInMemoryBus(log)
	SubscribeAudit(bus, log)

	leadID := uuid.New()
	err := bus.PublishSync(context.Background(), events.LeadStageFinished{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Stage:     "call",
		From:      "calling",
		To:        "call_failed",
		LastError: "no answer",
		Applied:   true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"lead_transition", leadID.String(), "call_failed", "no answer"} {
		if !strings.Contains(out, want) {
			t.Fatalf("audit log missing %q: %s", want, out)
		}
	}
}

type captureArchiveScheduler struct {
	payloads []scheduler.RecordingArchivePayload
}

func (c *captureArchiveScheduler) ScheduleRecordingArchive(_ context.Context, p scheduler.RecordingArchivePayload) error {
	c.payloads = append(c.payloads, p)
	return nil
}

func TestSubscribeRecordingRetrySchedulesArchive(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Nop())
	sched := &captureArchiveScheduler{}
	SubscribeRecordingRetry(bus, sched, logger.Nop())

	leadID := uuid.New()
	err := bus.PublishSync(context.Background(), events.RecordingArchiveFailed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		CallID:    "call-7",
		Phone:     "+12015550123",
		Reason:    "timeout",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(sched.payloads) != 1 {
		t.Fatalf("scheduled %d archives, want 1", len(sched.payloads))
	}
	got := sched.payloads[0]
	if got.LeadID != leadID.String() || got.CallID != "call-7" || got.Phone != "+12015550123" {
		t.Fatalf("payload = %+v", got)
	}
}
