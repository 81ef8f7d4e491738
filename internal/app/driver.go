// Package app runs the stage schedulers side by side and owns shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"leadpipe/internal/events"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/scheduler"
	"leadpipe/platform/logger"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another process holds the driver lock.
var ErrAlreadyRunning = errors.New("another leadpipe driver is already running")

// StageRunner is one stage loop.
type StageRunner interface {
	Stage() domain.Stage
	Run(ctx context.Context, batchSize int, continuous bool) error
}

// RunOptions selects what a driver run does.
type RunOptions struct {
	// Batches maps each stage to run onto its batch size. Stages absent from
	// the map are not started.
	Batches map[domain.Stage]int
	// Once runs exactly one cycle per stage.
	Once bool
}

// Driver runs the stage schedulers concurrently.
type Driver struct {
	runners  map[domain.Stage]StageRunner
	lockPath string
	log      *logger.Logger
}

// NewDriver creates a driver. An empty lockPath disables the single-instance
// lock.
func NewDriver(lockPath string, log *logger.Logger, runners ...StageRunner) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	byStage := make(map[domain.Stage]StageRunner, len(runners))
	for _, r := range runners {
		byStage[r.Stage()] = r
	}
	return &Driver{runners: byStage, lockPath: lockPath, log: log.WithComponent("driver")}
}

// Run starts every requested stage and blocks until all of them return. A
// failing stage never stops its sibling. In continuous mode Run returns once
// ctx is cancelled and in-flight batches have drained.
func (d *Driver) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Batches) == 0 {
		return fmt.Errorf("no stages selected")
	}
	for stage := range opts.Batches {
		if _, ok := d.runners[stage]; !ok {
			return fmt.Errorf("no scheduler configured for stage %q", stage)
		}
	}

	if d.lockPath != "" {
		lock := flock.New(d.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return ErrAlreadyRunning
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				d.log.Warn("failed to release driver lock", "error", err)
			}
		}()
	}

	d.log.Info("driver started", "stages", len(opts.Batches), "once", opts.Once)

	// Every stage runs to completion; one slot per stage keeps all failures.
	var wg sync.WaitGroup
	errs := make([]error, len(domain.Stages()))
	for i, stage := range domain.Stages() {
		batch, ok := opts.Batches[stage]
		if !ok {
			continue
		}
		runner := d.runners[stage]
		wg.Go(func() {
			if err := runner.Run(ctx, batch, !opts.Once); err != nil {
				d.log.Error("stage scheduler failed", "stage", stage, "error", err)
				errs[i] = fmt.Errorf("%s stage: %w", stage, err)
			}
		})
	}
	wg.Wait()

	d.log.Info("driver stopped")
	return errors.Join(errs...)
}

// SubscribeAudit logs every stage outcome as a lead transition.
func SubscribeAudit(bus events.Bus, log *logger.Logger) {
	audit := log.WithComponent("audit")
	bus.Subscribe(events.LeadStageFinished{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadStageFinished)
		if !ok {
			return nil
		}
		if !e.Applied {
			audit.Warn("stage outcome not applied", "lead_id", e.LeadID, "stage", e.Stage, "to", e.To)
			return nil
		}
		audit.StageTransition(e.LeadID, e.Stage, e.From, e.To, e.LastError)
		return nil
	}))
}

// SubscribeRecordingRetry schedules a delayed re-archive for every recording
// that could not be archived inline.
func SubscribeRecordingRetry(bus events.Bus, sched scheduler.RecordingArchiveScheduler, log *logger.Logger) {
	bus.Subscribe(events.RecordingArchiveFailed{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.RecordingArchiveFailed)
		if !ok {
			return nil
		}
		err := sched.ScheduleRecordingArchive(ctx, scheduler.RecordingArchivePayload{
			LeadID: e.LeadID.String(),
			CallID: e.CallID,
			Phone:  e.Phone,
		})
		if err != nil {
			log.Error("failed to schedule recording archive", "lead_id", e.LeadID, "call_id", e.CallID, "error", err)
			return err
		}
		log.Info("recording archive scheduled", "lead_id", e.LeadID, "call_id", e.CallID, "delay", scheduler.RecordingArchiveDelay)
		return nil
	}))
}
