package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadpipe/internal/events"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/platform/logger"
)

const defaultWriteTimeout = 15 * time.Second

// result is the final state of one worker invocation.
type result struct {
	to        domain.Status
	logStatus string
	// message is the user-visible error stored as last_error and log error.
	message   string
	err       error
	notes     string
	duration  *float64
	artifact  string
	confirmed *domain.Confirmed
}

// recorder owns the single status write and single log row of one worker
// invocation. settle must be deferred right after a successful claim.
type recorder struct {
	store        ports.LeadStore
	bus          events.Bus
	log          *logger.Logger
	lead         domain.Lead
	stage        domain.Stage
	started      time.Time
	writeTimeout time.Duration
	now          func() time.Time
	recorded     bool
}

func newRecorder(store ports.LeadStore, bus events.Bus, log *logger.Logger, lead domain.Lead, stage domain.Stage, now func() time.Time) *recorder {
	return &recorder{
		store:        store,
		bus:          bus,
		log:          log,
		lead:         lead,
		stage:        stage,
		started:      now(),
		writeTimeout: defaultWriteTimeout,
		now:          now,
	}
}

// record writes the outcome and the audit row. Only the first call has an
// effect; later calls return nil.
func (r *recorder) record(ctx context.Context, res result) error {
	if r.recorded {
		return nil
	}
	r.recorded = true

	// Writes must land even when the scheduler is shutting down.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	completedAt := r.now()
	outcome := domain.Outcome{
		LeadID:      r.lead.ID,
		Stage:       r.stage,
		To:          res.to,
		CompletedAt: completedAt,
		Duration:    res.duration,
		Notes:       res.notes,
		LastError:   res.message,
		ArtifactURL: res.artifact,
		Confirmed:   res.confirmed,
	}

	var errs []error
	applied, err := r.store.Complete(wctx, outcome)
	if err != nil {
		errs = append(errs, fmt.Errorf("complete lead: %w", err))
	} else if !applied {
		r.log.Warn("lead left in-progress status before outcome write", "to", res.to)
	}

	entry := domain.StageLog{
		LeadID:      r.lead.ID,
		Stage:       r.stage,
		InitiatedAt: r.started,
		CompletedAt: &completedAt,
		Status:      res.logStatus,
		Duration:    res.duration,
		Notes:       res.notes,
		Error:       res.message,
		ArtifactURL: res.artifact,
	}
	if _, err := r.store.AppendLog(wctx, entry); err != nil {
		errs = append(errs, fmt.Errorf("append log: %w", err))
	}

	if res.err != nil {
		r.log.Warn("lead stage failed", "to", res.to, "kind", FailureKind(res.err), "error", res.err)
	} else {
		r.log.Info("lead stage finished", "to", res.to, "log_status", res.logStatus)
	}

	if r.bus != nil {
		r.bus.Publish(wctx, events.LeadStageFinished{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    r.lead.ID,
			Stage:     string(r.stage),
			From:      string(r.stage.Spec().InProgress),
			To:        string(res.to),
			LogStatus: res.logStatus,
			LastError: res.message,
			Applied:   err == nil && applied,
		})
	}

	return errors.Join(errs...)
}

// settle guarantees the pairing on every exit path. It recovers a worker
// panic and records an unexpected failure when nothing was recorded yet.
func (r *recorder) settle(ctx context.Context, errp *error) {
	var cause error
	if p := recover(); p != nil {
		cause = fmt.Errorf("panic: %v", p)
	} else if errp != nil && *errp != nil {
		cause = *errp
	}

	if r.recorded {
		return
	}
	if cause == nil {
		cause = errors.New("worker returned without an outcome")
	}

	failed := failureStatus(r.stage)
	werr := Wrap(ErrUnexpected, string(r.stage), "process", "", cause)
	recErr := r.record(ctx, result{
		to:        failed,
		logStatus: logStatusError,
		message:   cause.Error(),
		err:       werr,
	})
	if errp != nil {
		*errp = errors.Join(werr, recErr)
	}
}

func failureStatus(stage domain.Stage) domain.Status {
	if stage == domain.StageEntry {
		return domain.StatusEntryFailed
	}
	return domain.StatusCallFailed
}

// Audit log status values.
const (
	logStatusCompleted   = "completed"
	logStatusFailed      = "failed"
	logStatusTimeout     = "timeout"
	logStatusError       = "error"
	logStatusLoginFailed = "login_failed"
)

func seconds(d time.Duration) *float64 {
	v := d.Seconds()
	return &v
}

// formatTimeout renders d for user-facing timeout messages.
func formatTimeout(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	}
	return d.String()
}
