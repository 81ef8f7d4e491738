package scheduler

import (
	"context"
	"testing"
	"time"

	"leadpipe/platform/config"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&config.Config{RedisURL: "redis://" + mr.Addr(), AsynqQueueName: "leadpipe"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(&config.Config{}); err == nil {
		t.Fatalf("expected error without redis url")
	}
}

func TestEnqueueImportQueuesPendingTask(t *testing.T) {
	client, mr := newTestClient(t)

	id, err := client.EnqueueImport(context.Background(), "lead-imports", "imports/leads.csv")
	if err != nil {
		t.Fatalf("enqueue import: %v", err)
	}
	if id == "" {
		t.Fatalf("expected task id")
	}

	pending, err := mr.List("asynq:{leadpipe}:pending")
	if err != nil {
		t.Fatalf("read pending list: %v", err)
	}
	if len(pending) != 1 || pending[0] != id {
		t.Fatalf("pending = %v, want [%s]", pending, id)
	}
	if !mr.Exists("asynq:{leadpipe}:t:" + id) {
		t.Fatalf("task hash for %s not stored", id)
	}
}

func TestScheduleRecordingArchiveDelaysTask(t *testing.T) {
	client, mr := newTestClient(t)
	before := time.Now()

	err := client.ScheduleRecordingArchive(context.Background(), RecordingArchivePayload{
		LeadID: "4b0f9d4e-8a4f-4d1c-9a57-2f5f0e0b9d11",
		CallID: "call-1",
		Phone:  "+12015550123",
	})
	if err != nil {
		t.Fatalf("schedule archive: %v", err)
	}

	members, err := mr.ZMembers("asynq:{leadpipe}:scheduled")
	if err != nil {
		t.Fatalf("read scheduled set: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("scheduled = %v, want one task", members)
	}
	score, err := mr.ZScore("asynq:{leadpipe}:scheduled", members[0])
	if err != nil {
		t.Fatalf("read score: %v", err)
	}
	runAt := time.Unix(int64(score), 0)
	if runAt.Before(before.Add(RecordingArchiveDelay - time.Second)) {
		t.Fatalf("task runs at %v, want at least %v after %v", runAt, RecordingArchiveDelay, before)
	}
}

func TestNilClientIgnoresArchiveSchedule(t *testing.T) {
	var c *Client
	if err := c.ScheduleRecordingArchive(context.Background(), RecordingArchivePayload{}); err != nil {
		t.Fatalf("nil client should be a no-op, got %v", err)
	}
	if _, err := c.EnqueueImport(context.Background(), "b", "k"); err == nil {
		t.Fatalf("nil client import should fail")
	}
}
