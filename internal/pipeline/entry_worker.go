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

// fallbackSubmitError is stored when a failed submission shows no message.
const fallbackSubmitError = "Form submission failed without a specific error message"

// EntryWorkerConfig holds the entry stage settings.
type EntryWorkerConfig struct {
	// Timeout bounds the whole browser interaction.
	Timeout time.Duration
	// PortalName is used in user-facing messages.
	PortalName    string
	Fields        []ports.FormField
	TCPASelectors []string
}

// EntryWorker submits one confirmed lead into the intake portal.
type EntryWorker struct {
	store      ports.LeadStore
	surface    ports.IntakeSurface
	classifier ports.SubmissionClassifier
	artifacts  ports.ArtifactStore
	bus        events.Bus
	cfg        EntryWorkerConfig
	log        *logger.Logger
	now        func() time.Time
}

// WithEntryClock overrides the wall clock.
func WithEntryClock(now func() time.Time) func(*EntryWorker) {
	return func(w *EntryWorker) { w.now = now }
}

// NewEntryWorker wires an entry worker. artifacts and bus may be nil.
func NewEntryWorker(store ports.LeadStore, surface ports.IntakeSurface, classifier ports.SubmissionClassifier, artifacts ports.ArtifactStore, bus events.Bus, cfg EntryWorkerConfig, log *logger.Logger, opts ...func(*EntryWorker)) *EntryWorker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.PortalName == "" {
		cfg.PortalName = "intake"
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFormFields()
	}
	if len(cfg.TCPASelectors) == 0 {
		cfg.TCPASelectors = DefaultTCPASelectors()
	}
	if log == nil {
		log = logger.Nop()
	}
	w := &EntryWorker{
		store:      store,
		surface:    surface,
		classifier: classifier,
		artifacts:  artifacts,
		bus:        bus,
		cfg:        cfg,
		log:        log.WithComponent("entry_worker"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process claims the lead and submits it once. A lost claim is a no-op.
func (w *EntryWorker) Process(ctx context.Context, candidate domain.Lead) (err error) {
	lead, ok, err := w.store.Claim(ctx, candidate.ID, domain.StageEntry)
	if err != nil {
		return fmt.Errorf("claim lead %s: %w", candidate.ID, err)
	}
	if !ok {
		w.log.Debug("lead claimed elsewhere, skipping", "lead_id", candidate.ID)
		return nil
	}

	log := w.log.WithLead(lead.ID, string(domain.StageEntry))
	rec := newRecorder(w.store, w.bus, log, lead, domain.StageEntry, w.now)
	defer rec.settle(ctx, &err)

	return rec.record(ctx, w.enter(ctx, lead, log))
}

func (w *EntryWorker) enter(ctx context.Context, lead domain.Lead, log *logger.Logger) result {
	started := w.now()
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	session, err := w.surface.Open(ctx)
	if err != nil {
		return w.failure(ctx, logStatusFailed, "Failed to open "+w.cfg.PortalName+" portal session: "+err.Error(),
			Wrap(ErrAuthentication, "entry", "open session", "", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("closing intake session failed", "error", cerr)
		}
	}()

	if err := session.Authenticate(ctx); err != nil {
		return w.failure(ctx, logStatusLoginFailed, "Failed to log in to "+w.cfg.PortalName+" portal",
			Wrap(ErrAuthentication, "entry", "authenticate", "", err))
	}

	if err := session.OpenForm(ctx); err != nil {
		return w.failure(ctx, logStatusFailed, "Failed to open "+w.cfg.PortalName+" form: "+err.Error(),
			Wrap(ErrUnexpected, "entry", "open form", "", err))
	}

	for _, field := range BuildFormFields(lead, w.cfg.Fields) {
		if err := session.Fill(ctx, field); err != nil {
			log.Warn("field not filled", "field", field.Name, "selector", field.Selector, "error", err)
		}
	}

	if lead.Confirmed.TCPAAccepted != nil && *lead.Confirmed.TCPAAccepted {
		used, err := session.CheckFirst(ctx, w.cfg.TCPASelectors)
		switch {
		case err != nil:
			log.Warn("consent checkbox not ticked", "error", err)
		case used == "":
			log.Warn("no consent checkbox found")
		default:
			log.Debug("consent checkbox ticked", "selector", used)
		}
	}

	page, err := session.Submit(ctx)
	if err != nil {
		return w.failure(ctx, logStatusError, "Form submission failed: "+err.Error(),
			Wrap(ErrUnexpected, "entry", "submit", "", err))
	}

	verdict := w.classifier.Classify(page)
	if verdict.Defaulted {
		log.Info("no submission marker matched, using default", "kind", ErrClassificationDefault.Error(), "success", verdict.Success)
	}

	res := result{
		duration: seconds(w.now().Sub(started)),
		notes:    "classified by " + verdict.Rule + " rule",
		artifact: w.screenshot(ctx, lead, session, log),
	}
	if verdict.Success {
		res.to = domain.StatusEntered
		res.logStatus = logStatusCompleted
		return res
	}

	message := w.classifier.ExtractError(page)
	if message == "" {
		message = fallbackSubmitError
	}
	res.to = domain.StatusEntryFailed
	res.logStatus = logStatusFailed
	res.message = message
	res.err = Wrap(ErrUnexpected, "entry", "classify", message, nil)
	return res
}

// failure maps an interaction error to ENTRY_FAILED, turning an expired
// stage deadline into a timeout.
func (w *EntryWorker) failure(ctx context.Context, logStatus, message string, err error) result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result{
			to:        domain.StatusEntryFailed,
			logStatus: logStatusTimeout,
			message:   "Entry timed out after " + formatTimeout(w.cfg.Timeout),
			err:       Wrap(ErrTimeout, "entry", "interact", "", err),
		}
	}
	return result{to: domain.StatusEntryFailed, logStatus: logStatus, message: message, err: err}
}

// screenshot is best effort and never changes the outcome.
func (w *EntryWorker) screenshot(ctx context.Context, lead domain.Lead, session ports.IntakeSession, log *logger.Logger) string {
	if w.artifacts == nil {
		return ""
	}
	data, err := session.Screenshot(ctx)
	if err == nil && len(data) == 0 {
		err = errors.New("empty screenshot")
	}
	if err != nil {
		log.Warn("screenshot failed", "error", Wrap(ErrArtifact, "entry", "screenshot", "", err))
		return ""
	}
	url, err := w.artifacts.Upload(ctx, ScreenshotKey(lead.ID, w.now()), "image/png", data)
	if err != nil {
		log.Warn("screenshot upload failed", "error", Wrap(ErrArtifact, "entry", "upload screenshot", "", err))
		return ""
	}
	return url
}
