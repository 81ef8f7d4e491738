package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadpipe/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// RecordingArchiveDelay gives the provider time to finish encoding.
	RecordingArchiveDelay = 2 * time.Minute
	recordingArchiveRetry = 5
	leadImportRetry       = 3
)

type Client struct {
	client *asynq.Client
	queue  string
}

// RecordingArchiveScheduler retries recording archives that failed inline.
type RecordingArchiveScheduler interface {
	ScheduleRecordingArchive(ctx context.Context, payload RecordingArchivePayload) error
}

var _ RecordingArchiveScheduler = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) ScheduleRecordingArchive(ctx context.Context, payload RecordingArchivePayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewRecordingArchiveTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(RecordingArchiveDelay),
		asynq.MaxRetry(recordingArchiveRetry),
		asynq.Queue(c.queue),
	)
	return err
}

// EnqueueImport queues an uploaded CSV for import and returns the task id.
func (c *Client) EnqueueImport(ctx context.Context, bucket, key string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewLeadImportTask(LeadImportPayload{Bucket: bucket, Key: key})
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(leadImportRetry),
		asynq.Queue(c.queue),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
