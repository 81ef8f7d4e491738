package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"leadpipe/internal/adapters/storage"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/internal/leads/repository"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"
)

type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error
	log        *logger.Logger
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.log = logger.New(cfg.Env)
	})
	return c.config, c.configErr
}

func (c *commandContext) appLogger() *logger.Logger {
	if c.log == nil {
		return logger.Nop()
	}
	return c.log
}

func policies(cfg config.PipelineConfig) domain.Policies {
	return domain.Policies{
		Call:  domain.Eligibility{MaxAttempts: cfg.GetCallMaxAttempts(), Cooldown: cfg.GetCallCooldown()},
		Entry: domain.Eligibility{MaxAttempts: cfg.GetEntryMaxAttempts()},
	}
}

// openStore connects to the lead store, retrying while the database comes up.
func (c *commandContext) openStore(ctx context.Context) (repository.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log := c.appLogger()

	maxConns := int32(cfg.GetMaxConcurrentCalls() + cfg.GetMaxConcurrentEntries() + 4)
	var store repository.Store
	err = withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		s, err := repository.Open(ctx, cfg, repository.WithPolicies(policies(cfg)), repository.WithMaxConns(maxConns))
		if err != nil {
			return err
		}
		store = s
		return nil
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return nil, err
	}

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return store.Migrate(ctx)
	}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database connection established")
	return store, nil
}

// objectStorage returns the MinIO service, or nil when MinIO is not configured.
func (c *commandContext) objectStorage(ctx context.Context, buckets ...string) (storage.StorageService, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}
	log := c.appLogger()

	svc, err := storage.NewMinIOService(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize storage service: %w", err)
	}
	for _, bucket := range buckets {
		if err := withRetry(ctx, log, "ensure "+bucket+" bucket", 5, 2*time.Second, func() error {
			return svc.EnsureBucketExists(ctx, bucket)
		}); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket exists: %w", err)
		}
	}
	log.Info("storage service initialized", "buckets", buckets)
	return svc, nil
}

// artifactStore prefers MinIO and falls back to the local artifact directory.
func (c *commandContext) artifactStore(ctx context.Context) (ports.ArtifactStore, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	svc, err := c.objectStorage(ctx, cfg.GetMinIOBucketArtifacts())
	if err != nil {
		return nil, err
	}
	if svc != nil {
		return storage.NewBucketArtifacts(svc, cfg.GetMinIOBucketArtifacts()), nil
	}
	c.appLogger().Info("MINIO_ENDPOINT not configured; storing artifacts locally", "dir", cfg.GetArtifactDir())
	local, err := storage.NewLocalArtifacts(cfg.GetArtifactDir(), cfg.GetMinIOMaxFileSize())
	if err != nil {
		return nil, err
	}
	return local, nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
