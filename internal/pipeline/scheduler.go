package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Worker processes one lead through one stage. Implementations claim the
// lead themselves and must not let failures escape as panics.
type Worker interface {
	Process(ctx context.Context, lead domain.Lead) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, lead domain.Lead) error

func (f WorkerFunc) Process(ctx context.Context, lead domain.Lead) error { return f(ctx, lead) }

// Selector is the part of the store a scheduler needs.
type Selector interface {
	SelectEligible(ctx context.Context, stage domain.Stage, limit int) ([]domain.Lead, error)
}

var _ Selector = ports.LeadStore(nil)

// SchedulerConfig tunes one stage loop.
type SchedulerConfig struct {
	// MaxConcurrent is the hard cap M on concurrently running workers.
	MaxConcurrent int
	// IdleDelay is slept after a cycle that found nothing eligible.
	IdleDelay time.Duration
	// BatchDelay is slept between cycles that did work.
	BatchDelay time.Duration
	// DrainTimeout is how long in-flight workers keep running after the
	// loop context is cancelled.
	DrainTimeout time.Duration
}

// CycleResult summarises one scheduler cycle.
type CycleResult struct {
	Selected int
	Launched int
	Failed   int
}

// Scheduler is the batch-select, bounded-dispatch loop for one stage.
type Scheduler struct {
	stage  domain.Stage
	store  Selector
	worker Worker
	cfg    SchedulerConfig
	sem    *semaphore.Weighted
	log    *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a scheduler for stage.
func NewScheduler(stage domain.Stage, store Selector, worker Worker, cfg SchedulerConfig, log *logger.Logger) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		stage:  stage,
		store:  store,
		worker: worker,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log:    log.WithComponent(string(stage) + "_scheduler"),
		sleep:  sleepContext,
	}
}

// Stage returns the stage this scheduler drives.
func (s *Scheduler) Stage() domain.Stage { return s.stage }

// Run processes cycles of up to batchSize leads. With continuous=false it runs
// exactly one cycle and returns that cycle's selection error, if any. In
// continuous mode it returns nil once ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, batchSize int, continuous bool) error {
	if batchSize < 1 {
		return fmt.Errorf("%s scheduler: batch size must be positive", s.stage)
	}
	s.log.Info("scheduler started", "batch_size", batchSize, "max_concurrent", s.cfg.MaxConcurrent, "continuous", continuous)
	defer s.log.Info("scheduler stopped")

	for {
		res, err := s.RunCycle(ctx, batchSize)
		if !continuous {
			return err
		}
		if err != nil && ctx.Err() == nil {
			s.log.Error("cycle failed", "error", err)
		}

		delay := s.cfg.BatchDelay
		if res.Selected == 0 {
			delay = s.cfg.IdleDelay
		}
		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// RunCycle selects eligible leads and runs one worker per lead up to the
// concurrency cap, then waits for all of them. Leads beyond the cap stay
// unclaimed for the next cycle.
func (s *Scheduler) RunCycle(ctx context.Context, batchSize int) (CycleResult, error) {
	var res CycleResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	cycleCtx := context.WithValue(ctx, logger.RunIDKey, uuid.NewString())
	log := s.log.WithContext(cycleCtx)

	leads, err := s.store.SelectEligible(cycleCtx, s.stage, batchSize)
	if err != nil {
		return res, fmt.Errorf("select eligible %s leads: %w", s.stage, err)
	}
	res.Selected = len(leads)
	if len(leads) == 0 {
		log.Debug("no eligible leads")
		return res, nil
	}

	workCtx, release := drainContext(cycleCtx, s.cfg.DrainTimeout)
	defer release()

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for _, lead := range leads {
		if !s.sem.TryAcquire(1) {
			log.Debug("concurrency cap reached, deferring remaining leads", "deferred", len(leads)-res.Launched)
			break
		}
		res.Launched++
		wg.Go(func() {
			defer s.sem.Release(1)
			if err := s.process(workCtx, lead); err != nil {
				failed.Add(1)
				log.Error("worker failed", "lead_id", lead.ID, "error", err)
			}
		})
	}
	wg.Wait()
	res.Failed = int(failed.Load())

	log.Info("cycle complete", "selected", res.Selected, "launched", res.Launched, "failed", res.Failed)
	return res, nil
}

// process isolates the loop from a misbehaving worker.
func (s *Scheduler) process(ctx context.Context, lead domain.Lead) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return s.worker.Process(ctx, lead)
}

// drainContext returns a context that survives cancellation of parent for up
// to grace before it is cancelled as well. grace <= 0 means no extra time.
func drainContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	if grace <= 0 {
		return context.WithCancel(parent)
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			t := time.NewTimer(grace)
			defer t.Stop()
			select {
			case <-t.C:
				cancel()
			case <-stop:
			}
		case <-stop:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(stop) })
		cancel()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
