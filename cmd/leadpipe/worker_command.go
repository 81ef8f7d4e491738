package main

import (
	"errors"
	"fmt"

	"leadpipe/internal/scheduler"
	"leadpipe/internal/voice"

	"github.com/spf13/cobra"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process background jobs (recording archives, CSV imports)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCtx := cmd.Context()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.IsSchedulerEnabled() {
				return errors.New("REDIS_URL is required for the background worker")
			}
			log := ctx.appLogger()
			log.Info("starting scheduler worker", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

			store, err := ctx.openStore(runCtx)
			if err != nil {
				return err
			}
			defer store.Close()

			artifacts, err := ctx.artifactStore(runCtx)
			if err != nil {
				return err
			}
			objects, err := ctx.objectStorage(runCtx, cfg.GetMinIOBucketImports())
			if err != nil {
				return err
			}

			deps := scheduler.WorkerDeps{
				Recordings:      store,
				Leads:           store,
				Artifacts:       artifacts,
				Objects:         objects,
				RecordingFolder: cfg.GetRecordingFolder(),
				PublisherID:     cfg.GetPublisherID(),
			}
			if cfg.GetVoiceAPIURL() != "" {
				voiceClient, err := voice.NewClient(cfg, log)
				if err != nil {
					return err
				}
				deps.Voice = voiceClient
			}

			worker, err := scheduler.NewWorker(cfg, deps, log)
			if err != nil {
				return fmt.Errorf("initialize scheduler worker: %w", err)
			}
			worker.Run(runCtx)
			return nil
		},
	}
}
