package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apphttp "leadpipe/internal/http"
	"leadpipe/internal/http/router"
	"leadpipe/internal/leads"
	"leadpipe/internal/leads/service"
	"leadpipe/internal/scheduler"
	"leadpipe/platform/validator"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the lead status and operator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), ctx)
		},
	}
}

func serve(runCtx context.Context, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	log := ctx.appLogger()
	log.Info("starting server", "env", cfg.Env, "addr", cfg.GetHTTPAddr())

	store, err := ctx.openStore(runCtx)
	if err != nil {
		return err
	}
	defer store.Close()

	var opts []service.Option
	objects, err := ctx.objectStorage(runCtx, cfg.GetMinIOBucketImports())
	if err != nil {
		return err
	}
	if objects != nil {
		opts = append(opts, service.WithImportStorage(objects, cfg.GetMinIOBucketImports()))
	}
	if cfg.IsSchedulerEnabled() {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("initialize scheduler client: %w", err)
		}
		defer func() { _ = client.Close() }()
		opts = append(opts, service.WithImportQueue(client))
	} else {
		log.Warn("REDIS_URL not configured; imports run inline")
	}

	engine := router.New(&apphttp.App{
		Config: cfg,
		Logger: log,
		Health: store,
		Modules: []apphttp.Module{
			leads.NewModule(store, validator.New(), log, opts...),
		},
	})

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			return err
		}
		return nil
	}
}
