package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadpipe/internal/adapters/storage"
	"leadpipe/internal/leads/importer"
	"leadpipe/internal/leads/ports"
	"leadpipe/internal/pipeline"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// RecordingStore attaches late-archived recordings to leads.
type RecordingStore interface {
	SetRecordingURL(ctx context.Context, id uuid.UUID, url string) error
}

// WorkerDeps are the collaborators the task handlers need. Voice and
// Artifacts may be nil, which skips recording tasks; Objects may be nil,
// which fails import tasks without retry.
type WorkerDeps struct {
	Recordings      RecordingStore
	Leads           importer.Creator
	Voice           ports.VoiceProvider
	Artifacts       ports.ArtifactStore
	Objects         storage.StorageService
	RecordingFolder string
	PublisherID     string
	Now             func() time.Time
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	deps   WorkerDeps
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deps WorkerDeps, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		deps:   deps,
		log:    log.WithComponent("scheduler_worker"),
	}

	w.mux.HandleFunc(TaskRecordingArchive, w.handleRecordingArchive)
	w.mux.HandleFunc(TaskLeadImport, w.handleLeadImport)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleRecordingArchive(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRecordingArchivePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("%w: invalid lead id %q", asynq.SkipRetry, payload.LeadID)
	}

	if w.deps.Voice == nil || w.deps.Artifacts == nil || w.deps.Recordings == nil {
		w.log.Warn("recording archive task skipped, archive not configured", "lead_id", leadID)
		return nil
	}

	url, err := pipeline.ArchiveRecording(ctx, w.deps.Voice, w.deps.Artifacts, pipeline.RecordingTarget{
		CallID:      payload.CallID,
		Phone:       payload.Phone,
		Folder:      w.deps.RecordingFolder,
		PublisherID: w.deps.PublisherID,
		At:          w.deps.Now(),
	})
	if err != nil {
		w.log.Warn("recording archive retry failed", "lead_id", leadID, "call_id", payload.CallID, "error", err)
		return err
	}

	if err := w.deps.Recordings.SetRecordingURL(ctx, leadID, url); err != nil {
		if errors.Is(err, ports.ErrLeadNotFound) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	w.log.Info("recording archived", "lead_id", leadID, "call_id", payload.CallID, "url", url)
	return nil
}

func (w *Worker) handleLeadImport(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadImportPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if w.deps.Objects == nil || w.deps.Leads == nil {
		return fmt.Errorf("%w: import storage not configured", asynq.SkipRetry)
	}

	body, err := w.deps.Objects.DownloadFile(ctx, payload.Bucket, payload.Key)
	if err != nil {
		return fmt.Errorf("download import %s: %w", payload.Key, err)
	}
	defer body.Close()

	log := &logger.Logger{Logger: w.log.With("key", payload.Key)}
	res, err := importer.Import(ctx, body, w.deps.Leads, log)
	if err != nil {
		if errors.Is(err, importer.ErrMissingColumns) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	log.Info("lead import finished", "imported", res.Imported, "failed", res.Failed)
	return nil
}
