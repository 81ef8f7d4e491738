package pipeline_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"leadpipe/internal/events"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"

	"github.com/google/uuid"
)

// memStore is an in-memory LeadStore with the same conditional semantics as
// the SQL stores.
type memStore struct {
	mu    sync.Mutex
	now   func() time.Time
	leads map[uuid.UUID]domain.Lead
	logs  []domain.StageLog
}

func newMemStore(now func() time.Time, leads ...domain.Lead) *memStore {
	s := &memStore{now: now, leads: make(map[uuid.UUID]domain.Lead)}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *memStore) SelectEligible(_ context.Context, stage domain.Stage, limit int) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lead
	for _, l := range s.leads {
		if l.Status == stage.Spec().PreState {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Claim(_ context.Context, id uuid.UUID, stage domain.Stage) (domain.Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	spec := stage.Spec()
	if !ok || l.Status != spec.PreState {
		return domain.Lead{}, false, nil
	}
	now := s.now()
	l.Status = spec.InProgress
	l.StatusUpdatedAt = now
	if stage == domain.StageEntry {
		l.Entry.Attempts++
		l.Entry.InitiatedAt = &now
	} else {
		l.Call.Attempts++
		l.Call.InitiatedAt = &now
	}
	s.leads[id] = l
	return l, true, nil
}

func (s *memStore) Complete(_ context.Context, o domain.Outcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec := o.Stage.Spec()
	if !spec.AllowsOutcome(o.To) {
		return false, errors.New("illegal outcome")
	}
	l, ok := s.leads[o.LeadID]
	if !ok || l.Status != spec.InProgress {
		return false, nil
	}
	l.Status = o.To
	l.StatusUpdatedAt = o.CompletedAt
	progress := &l.Call
	if o.Stage == domain.StageEntry {
		progress = &l.Entry
	}
	completed := o.CompletedAt
	progress.CompletedAt = &completed
	progress.Duration = o.Duration
	progress.Notes = o.Notes
	if o.ArtifactURL != "" {
		progress.ArtifactURL = o.ArtifactURL
	}
	l.LastError = o.LastError
	if o.LastError != "" {
		l.ErrorCount++
	}
	if o.Confirmed != nil {
		l.Confirmed = *o.Confirmed
	}
	s.leads[o.LeadID] = l
	return true, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, ports.ErrLeadNotFound
	}
	return l, nil
}

func (s *memStore) AppendLog(_ context.Context, entry domain.StageLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.logs) + 1)
	s.logs = append(s.logs, entry)
	return entry.ID, nil
}

func (s *memStore) Statistics(context.Context) (domain.Statistics, error) {
	return domain.Statistics{StatusCounts: map[string]int{}}, nil
}

func (s *memStore) lead(id uuid.UUID) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leads[id]
}

func (s *memStore) logsFor(id uuid.UUID) []domain.StageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StageLog
	for _, l := range s.logs {
		if l.LeadID == id {
			out = append(out, l)
		}
	}
	return out
}

// fakeVoice answers per phone number.
type fakeVoice struct {
	mu          sync.Mutex
	initiateErr map[string]error
	statuses    []ports.CallStatus
	polls       int
	recording   ports.Recording
	downloadErr error
	requests    []ports.CallRequest
	panicOn     string
}

func (v *fakeVoice) Initiate(_ context.Context, req ports.CallRequest) (ports.CallHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.panicOn != "" && req.Phone == v.panicOn {
		panic("provider exploded")
	}
	v.requests = append(v.requests, req)
	if err := v.initiateErr[req.Phone]; err != nil {
		return ports.CallHandle{}, err
	}
	return ports.CallHandle{CallID: "call-" + req.LeadID, Status: "queued"}, nil
}

func (v *fakeVoice) Status(ctx context.Context, _ string) (ports.CallStatus, error) {
	if err := ctx.Err(); err != nil {
		return ports.CallStatus{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return ports.CallStatus{Status: "in-progress"}, nil
	}
	i := v.polls
	if i >= len(v.statuses) {
		i = len(v.statuses) - 1
	}
	v.polls++
	return v.statuses[i], nil
}

func (v *fakeVoice) DownloadRecording(context.Context, string) (ports.Recording, error) {
	if v.downloadErr != nil {
		return ports.Recording{}, v.downloadErr
	}
	return v.recording, nil
}

type upload struct {
	key         string
	contentType string
	size        int
}

type fakeArtifacts struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (a *fakeArtifacts) Upload(_ context.Context, key, contentType string, data []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads = append(a.uploads, upload{key: key, contentType: contentType, size: len(data)})
	return "s3://artifacts/" + key, nil
}

type fakeSurface struct {
	session *fakeSession
	openErr error
}

func (f *fakeSurface) Open(context.Context) (ports.IntakeSession, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.session, nil
}

type fakeSession struct {
	authErr       error
	formErr       error
	submitErr     error
	screenshotErr error
	// hangSubmit makes Submit wait for the context to end.
	hangSubmit bool
	page       ports.IntakePage
	screenshot []byte
	checkboxes map[string]bool

	filled  []ports.FormField
	checked string
	closed  bool
}

func (s *fakeSession) Authenticate(context.Context) error { return s.authErr }
func (s *fakeSession) OpenForm(context.Context) error     { return s.formErr }

func (s *fakeSession) Fill(_ context.Context, field ports.FormField) error {
	s.filled = append(s.filled, field)
	return nil
}

func (s *fakeSession) CheckFirst(_ context.Context, selectors []string) (string, error) {
	for _, sel := range selectors {
		if s.checkboxes[sel] {
			s.checked = sel
			return sel, nil
		}
	}
	return "", nil
}

func (s *fakeSession) Submit(ctx context.Context) (ports.IntakePage, error) {
	if s.hangSubmit {
		<-ctx.Done()
		return ports.IntakePage{}, ctx.Err()
	}
	return s.page, s.submitErr
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	if s.screenshotErr != nil {
		return nil, s.screenshotErr
	}
	return s.screenshot, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// captureBus records published events synchronously.
type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}
