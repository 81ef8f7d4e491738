package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadpipe/internal/events"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/platform/logger"
	"leadpipe/platform/phone"
)

// CallWorkerConfig holds the call stage settings.
type CallWorkerConfig struct {
	// Timeout is the hard deadline T for the provider to reach a terminal state.
	Timeout      time.Duration
	PollInterval time.Duration
	PhoneRegion  string
	TCPAText     string
	// RecordingFolder and PublisherID shape the archived recording key.
	RecordingFolder string
	PublisherID     string
	ArchiveTimeout  time.Duration
}

// CallWorker verifies one lead by phone.
type CallWorker struct {
	store     ports.LeadStore
	voice     ports.VoiceProvider
	artifacts ports.ArtifactStore
	bus       events.Bus
	interest  InterestPolicy
	cfg       CallWorkerConfig
	log       *logger.Logger
	now       func() time.Time
}

// CallWorkerOption customises a CallWorker.
type CallWorkerOption func(*CallWorker)

// WithInterestPolicy replaces the default interest classifier.
func WithInterestPolicy(p InterestPolicy) CallWorkerOption {
	return func(w *CallWorker) { w.interest = p }
}

// WithCallClock overrides the wall clock.
func WithCallClock(now func() time.Time) CallWorkerOption {
	return func(w *CallWorker) { w.now = now }
}

// NewCallWorker wires a call worker. artifacts and bus may be nil.
func NewCallWorker(store ports.LeadStore, voice ports.VoiceProvider, artifacts ports.ArtifactStore, bus events.Bus, cfg CallWorkerConfig, log *logger.Logger, opts ...CallWorkerOption) *CallWorker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	w := &CallWorker{
		store:     store,
		voice:     voice,
		artifacts: artifacts,
		bus:       bus,
		interest:  DefaultInterestPolicy(),
		cfg:       cfg,
		log:       log.WithComponent("call_worker"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process claims the lead and runs one verification call. A lost claim is a
// no-op. Once claimed, exactly one outcome and one log row are written.
func (w *CallWorker) Process(ctx context.Context, candidate domain.Lead) (err error) {
	lead, ok, err := w.store.Claim(ctx, candidate.ID, domain.StageCall)
	if err != nil {
		return fmt.Errorf("claim lead %s: %w", candidate.ID, err)
	}
	if !ok {
		w.log.Debug("lead claimed elsewhere, skipping", "lead_id", candidate.ID)
		return nil
	}

	log := w.log.WithLead(lead.ID, string(domain.StageCall))
	rec := newRecorder(w.store, w.bus, log, lead, domain.StageCall, w.now)
	defer rec.settle(ctx, &err)

	return rec.record(ctx, w.call(ctx, lead, log))
}

func (w *CallWorker) call(ctx context.Context, lead domain.Lead, log *logger.Logger) result {
	number := phone.NormalizeE164(lead.Phone, w.cfg.PhoneRegion)
	handle, err := w.voice.Initiate(ctx, ports.CallRequest{
		LeadID: lead.ID.String(),
		Phone:  number,
		Script: BuildScript(lead, w.cfg.TCPAText),
	})
	if err == nil && handle.CallID == "" {
		err = errors.New("provider returned no call id")
	}
	if err != nil {
		return result{
			to:        domain.StatusCallFailed,
			logStatus: logStatusFailed,
			message:   "Failed to initiate call: " + err.Error(),
			err:       Wrap(ErrInitiation, "call", "initiate", "", err),
		}
	}
	log.Info("call initiated", "call_id", handle.CallID)

	status, err := w.monitor(ctx, handle.CallID, log)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return result{
				to:        domain.StatusCallFailed,
				logStatus: logStatusTimeout,
				message:   "Call timed out after " + formatTimeout(w.cfg.Timeout),
				err:       err,
			}
		}
		return result{
			to:        domain.StatusCallFailed,
			logStatus: logStatusError,
			message:   "Call monitoring interrupted: " + err.Error(),
			err:       Wrap(ErrUnexpected, "call", "monitor", "", err),
		}
	}

	return w.classify(ctx, lead, number, handle.CallID, status, log)
}

// monitor polls until the call is terminal, the deadline passes or ctx is
// cancelled. Poll errors are retried.
func (w *CallWorker) monitor(ctx context.Context, callID string, log *logger.Logger) (ports.CallStatus, error) {
	deadline, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := w.voice.Status(deadline, callID)
		switch {
		case err != nil:
			if deadline.Err() == nil {
				log.Warn("call status poll failed", "call_id", callID, "error", err)
			}
		case ports.IsTerminalCallStatus(st.Status):
			return st, nil
		default:
			log.Debug("call in progress", "call_id", callID, "status", st.Status)
		}

		select {
		case <-deadline.Done():
			if err := ctx.Err(); err != nil {
				return ports.CallStatus{}, err
			}
			return ports.CallStatus{}, Wrap(ErrTimeout, "call", "monitor", "no terminal state after "+formatTimeout(w.cfg.Timeout), nil)
		case <-ticker.C:
		}
	}
}

func (w *CallWorker) classify(ctx context.Context, lead domain.Lead, number, callID string, st ports.CallStatus, log *logger.Logger) result {
	if st.Status != ports.CallStatusCompleted {
		return result{
			to:        domain.StatusCallFailed,
			logStatus: st.Status,
			message:   "Call failed with status: " + st.Status,
			err:       Wrap(ErrUnexpected, "call", "outcome", "provider reported "+st.Status, nil),
		}
	}

	verdict := w.interest.Decide(st.Responses)
	if verdict.Defaulted {
		log.Info("interest not stated, using default", "kind", ErrClassificationDefault.Error(), "interested", verdict.Interested)
	}

	res := result{
		to:        domain.StatusNotInterested,
		logStatus: logStatusCompleted,
		notes:     encodeResponses(st.Responses),
		duration:  callDuration(st),
	}
	if verdict.Interested {
		confirmed := extractConfirmed(st.Responses)
		res.to = domain.StatusConfirmed
		res.confirmed = &confirmed
	}
	res.artifact = w.archiveRecording(ctx, lead, number, callID, log)
	return res
}

// archiveRecording is best effort. Failures are logged and published, never
// returned.
func (w *CallWorker) archiveRecording(ctx context.Context, lead domain.Lead, number, callID string, log *logger.Logger) string {
	if w.artifacts == nil {
		return ""
	}
	actx, cancel := context.WithTimeout(ctx, w.cfg.ArchiveTimeout)
	defer cancel()

	url, err := ArchiveRecording(actx, w.voice, w.artifacts, RecordingTarget{
		CallID:      callID,
		Phone:       number,
		Folder:      w.cfg.RecordingFolder,
		PublisherID: w.cfg.PublisherID,
		At:          w.now(),
	})
	if err != nil {
		log.Warn("recording archive failed", "call_id", callID, "error", err)
		if w.bus != nil {
			w.bus.Publish(context.WithoutCancel(ctx), events.RecordingArchiveFailed{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    lead.ID,
				CallID:    callID,
				Phone:     number,
				Reason:    err.Error(),
			})
		}
		return ""
	}
	log.Info("recording archived", "call_id", callID, "url", url)
	return url
}

// RecordingTarget identifies a recording to archive.
type RecordingTarget struct {
	CallID      string
	Phone       string
	Folder      string
	PublisherID string
	At          time.Time
}

// ArchiveRecording downloads a call recording and uploads it to store.
func ArchiveRecording(ctx context.Context, voice ports.VoiceProvider, store ports.ArtifactStore, target RecordingTarget) (string, error) {
	rec, err := voice.DownloadRecording(ctx, target.CallID)
	if err != nil {
		return "", Wrap(ErrArtifact, "call", "download recording", target.CallID, err)
	}
	if len(rec.Data) == 0 {
		return "", Wrap(ErrArtifact, "call", "download recording", "empty recording", nil)
	}
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	key := RecordingKey(target.Folder, target.Phone, target.PublisherID, target.At, rec.Extension)
	url, err := store.Upload(ctx, key, contentType, rec.Data)
	if err != nil {
		return "", Wrap(ErrArtifact, "call", "upload recording", key, err)
	}
	return url, nil
}

func callDuration(st ports.CallStatus) *float64 {
	if st.StartTime == nil || st.EndTime == nil || st.EndTime.Before(*st.StartTime) {
		return nil
	}
	return seconds(st.EndTime.Sub(*st.StartTime))
}

func encodeResponses(responses map[string]ports.TopicResponse) string {
	if len(responses) == 0 {
		return ""
	}
	raw, err := json.Marshal(responses)
	if err != nil {
		return ""
	}
	return string(raw)
}
