package main

import (
	"fmt"
	"strings"

	"leadpipe/internal/app"
	"leadpipe/internal/events"
	"leadpipe/internal/intake"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/pipeline"
	"leadpipe/internal/scheduler"
	"leadpipe/internal/voice"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"

	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		callBatch  int
		entryBatch int
		runOnce    bool
		stage      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the call and entry schedulers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			batches, err := selectBatches(stage, callBatch, entryBatch)
			if err != nil {
				return err
			}
			return runPipeline(cmd, ctx, batches, runOnce)
		},
	}

	cmd.Flags().IntVar(&callBatch, "call-batch", 5, "Leads selected per call cycle")
	cmd.Flags().IntVar(&entryBatch, "entry-batch", 3, "Leads selected per entry cycle")
	cmd.Flags().BoolVar(&runOnce, "run-once", false, "Process a single cycle per stage and exit")
	cmd.Flags().StringVar(&stage, "stage", "all", "Stage to run: call, entry or all")
	return cmd
}

func selectBatches(stage string, callBatch, entryBatch int) (map[domain.Stage]int, error) {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "all", "":
		return map[domain.Stage]int{domain.StageCall: callBatch, domain.StageEntry: entryBatch}, nil
	case string(domain.StageCall):
		return map[domain.Stage]int{domain.StageCall: callBatch}, nil
	case string(domain.StageEntry):
		return map[domain.Stage]int{domain.StageEntry: entryBatch}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q (want call, entry or all)", stage)
	}
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, batches map[domain.Stage]int, once bool) error {
	runCtx := cmd.Context()
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	log := ctx.appLogger()

	store, err := ctx.openStore(runCtx)
	if err != nil {
		return err
	}
	defer store.Close()

	artifacts, err := ctx.artifactStore(runCtx)
	if err != nil {
		return err
	}

	bus, closeEvents, err := pipelineEvents(cfg, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	schedCfg := func(maxConcurrent int) pipeline.SchedulerConfig {
		return pipeline.SchedulerConfig{
			MaxConcurrent: maxConcurrent,
			IdleDelay:     cfg.GetIdleDelay(),
			BatchDelay:    cfg.GetBatchDelay(),
			DrainTimeout:  cfg.GetDrainTimeout(),
		}
	}

	var runners []app.StageRunner
	if _, ok := batches[domain.StageCall]; ok {
		voiceClient, err := voice.NewClient(cfg, log)
		if err != nil {
			return err
		}
		worker := pipeline.NewCallWorker(store, voiceClient, artifacts, bus, pipeline.CallWorkerConfig{
			Timeout:         cfg.GetCallTimeout(),
			PollInterval:    cfg.GetCallPollInterval(),
			PhoneRegion:     cfg.GetPhoneRegion(),
			TCPAText:        pipeline.DefaultTCPAText,
			RecordingFolder: cfg.GetRecordingFolder(),
			PublisherID:     cfg.GetPublisherID(),
		}, log)
		runners = append(runners, pipeline.NewScheduler(domain.StageCall, store, worker, schedCfg(cfg.GetMaxConcurrentCalls()), log))
	}

	if _, ok := batches[domain.StageEntry]; ok {
		profile, err := intake.LoadProfile(cfg.GetIntakeProfilePath())
		if err != nil {
			return err
		}
		if url := cfg.GetIntakePortalURL(); url != "" {
			profile.PortalURL = url
		}
		browser, err := intake.NewBrowser(intake.BrowserConfig{
			Profile:  profile,
			Username: cfg.GetIntakeUsername(),
			Password: cfg.GetIntakePassword(),
			Headless: cfg.GetIntakeHeadless(),
		}, log)
		if err != nil {
			return err
		}
		classifier, err := intake.NewClassifier(profile)
		if err != nil {
			return err
		}
		worker := pipeline.NewEntryWorker(store, browser, classifier, artifacts, bus, pipeline.EntryWorkerConfig{
			Timeout:       cfg.GetEntryTimeout(),
			PortalName:    profile.Name,
			Fields:        profile.FormFields(),
			TCPASelectors: profile.Form.TCPASelectors,
		}, log)
		runners = append(runners, pipeline.NewScheduler(domain.StageEntry, store, worker, schedCfg(cfg.GetMaxConcurrentEntries()), log))
	}

	driver := app.NewDriver(cfg.GetLockFile(), log, runners...)
	return driver.Run(runCtx, app.RunOptions{Batches: batches, Once: once})
}

// pipelineEvents builds the bus with the audit and recording retry
// subscribers. The returned close func drains in-flight handlers before it
// releases the scheduler client they publish through.
func pipelineEvents(cfg *config.Config, log *logger.Logger) (events.DrainingBus, func(), error) {
	bus := events.NewInMemoryBus(log)
	app.SubscribeAudit(bus, log)

	if !cfg.IsSchedulerEnabled() {
		log.Warn("REDIS_URL not configured; failed recording archives are not retried")
		return bus, bus.Wait, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize scheduler client: %w", err)
	}
	app.SubscribeRecordingRetry(bus, client, log)

	return bus, func() {
		bus.Wait()
		if err := client.Close(); err != nil {
			log.Warn("scheduler client close failed", "error", err)
		}
	}, nil
}
