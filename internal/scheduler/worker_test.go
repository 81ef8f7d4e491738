package scheduler

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeVoice struct {
	recording ports.Recording
	err       error
}

func (f *fakeVoice) Initiate(context.Context, ports.CallRequest) (ports.CallHandle, error) {
	return ports.CallHandle{}, errors.New("not used")
}

func (f *fakeVoice) Status(context.Context, string) (ports.CallStatus, error) {
	return ports.CallStatus{}, errors.New("not used")
}

func (f *fakeVoice) DownloadRecording(context.Context, string) (ports.Recording, error) {
	return f.recording, f.err
}

type fakeArtifacts struct {
	keys []string
}

func (f *fakeArtifacts) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	f.keys = append(f.keys, key)
	return "s3://artifacts/" + key, nil
}

type fakeRecordings struct {
	urls map[uuid.UUID]string
	err  error
}

func (f *fakeRecordings) SetRecordingURL(_ context.Context, id uuid.UUID, url string) error {
	if f.err != nil {
		return f.err
	}
	if f.urls == nil {
		f.urls = map[uuid.UUID]string{}
	}
	f.urls[id] = url
	return nil
}

type fakeObjects struct {
	files map[string]string
}

func (f *fakeObjects) PutObject(context.Context, string, string, string, io.Reader, int64) error {
	return nil
}

func (f *fakeObjects) UploadFile(context.Context, string, string, string, string, io.Reader, int64) (string, error) {
	return "", nil
}

func (f *fakeObjects) DownloadFile(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := f.files[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeObjects) DeleteObject(context.Context, string, string) error { return nil }
func (f *fakeObjects) EnsureBucketExists(context.Context, string) error    { return nil }
func (f *fakeObjects) ValidateContentType(string) error                    { return nil }
func (f *fakeObjects) ValidateFileSize(int64) error                        { return nil }

type fakeCreator struct {
	contacts []domain.Contact
}

func (f *fakeCreator) Create(_ context.Context, c domain.Contact) (domain.Lead, error) {
	f.contacts = append(f.contacts, c)
	return domain.Lead{ID: uuid.New(), Contact: c, Status: domain.StatusPending}, nil
}

func newTestWorker(t *testing.T, deps WorkerDeps) *Worker {
	t.Helper()
	mr := miniredis.RunT(t)
	deps.RecordingFolder = "recordings"
	deps.PublisherID = "pub42"
	deps.Now = func() time.Time { return time.Date(2026, 3, 2, 14, 30, 5, 0, time.UTC) }
	w, err := NewWorker(&config.Config{RedisURL: "redis://" + mr.Addr(), AsynqQueueName: "leadpipe"}, deps, logger.Nop())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func archiveTask(t *testing.T, leadID string) *asynq.Task {
	t.Helper()
	task, err := NewRecordingArchiveTask(RecordingArchivePayload{LeadID: leadID, CallID: "call-9", Phone: "+12015550123"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestRecordingArchiveTaskAttachesURL(t *testing.T) {
	leadID := uuid.New()
	recordings := &fakeRecordings{}
	artifacts := &fakeArtifacts{}
	w := newTestWorker(t, WorkerDeps{
		Recordings: recordings,
		Voice:      &fakeVoice{recording: ports.Recording{Data: []byte("mp3"), ContentType: "audio/mpeg"}},
		Artifacts:  artifacts,
	})

	if err := w.handleRecordingArchive(context.Background(), archiveTask(t, leadID.String())); err != nil {
		t.Fatalf("handle archive: %v", err)
	}

	want := "recordings/12015550123_pub42_20260302143005.mp3"
	if len(artifacts.keys) != 1 || artifacts.keys[0] != want {
		t.Fatalf("uploaded keys = %v, want [%s]", artifacts.keys, want)
	}
	if got := recordings.urls[leadID]; got != "s3://artifacts/"+want {
		t.Fatalf("recording url = %q", got)
	}
}

func TestRecordingArchiveTaskRetriesDownloadFailure(t *testing.T) {
	w := newTestWorker(t, WorkerDeps{
		Recordings: &fakeRecordings{},
		Voice:      &fakeVoice{err: errors.New("recording not ready")},
		Artifacts:  &fakeArtifacts{},
	})

	err := w.handleRecordingArchive(context.Background(), archiveTask(t, uuid.NewString()))
	if err == nil {
		t.Fatalf("expected download failure")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("download failure should be retried, got %v", err)
	}
}

func TestRecordingArchiveTaskSkipsRetryForUnknownLead(t *testing.T) {
	w := newTestWorker(t, WorkerDeps{
		Recordings: &fakeRecordings{err: ports.ErrLeadNotFound},
		Voice:      &fakeVoice{recording: ports.Recording{Data: []byte("mp3")}},
		Artifacts:  &fakeArtifacts{},
	})

	err := w.handleRecordingArchive(context.Background(), archiveTask(t, uuid.NewString()))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	err = w.handleRecordingArchive(context.Background(), archiveTask(t, "not-a-uuid"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for bad id, got %v", err)
	}
}

func TestLeadImportTaskCreatesLeads(t *testing.T) {
	creator := &fakeCreator{}
	objects := &fakeObjects{files: map[string]string{
		"lead-imports/imports/batch.csv": "Firstname,Lastname,Email,Phone1\nAda,Lovelace,ada@example.com,2015550123\n,Nobody,x@example.com,\n",
	}}
	w := newTestWorker(t, WorkerDeps{Leads: creator, Objects: objects})

	task, err := NewLeadImportTask(LeadImportPayload{Bucket: "lead-imports", Key: "imports/batch.csv"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := w.handleLeadImport(context.Background(), task); err != nil {
		t.Fatalf("handle import: %v", err)
	}
	if len(creator.contacts) != 1 || creator.contacts[0].FirstName != "Ada" {
		t.Fatalf("created = %+v", creator.contacts)
	}
}

func TestLeadImportTaskSkipsRetryForBadHeader(t *testing.T) {
	objects := &fakeObjects{files: map[string]string{"b/k.csv": "Name,Phone\nAda,1\n"}}
	w := newTestWorker(t, WorkerDeps{Leads: &fakeCreator{}, Objects: objects})

	task, _ := NewLeadImportTask(LeadImportPayload{Bucket: "b", Key: "k.csv"})
	if err := w.handleLeadImport(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	missing, _ := NewLeadImportTask(LeadImportPayload{Bucket: "b", Key: "gone.csv"})
	if err := w.handleLeadImport(context.Background(), missing); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable download error, got %v", err)
	}
}

