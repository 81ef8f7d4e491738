package main

import (
	"context"
	"strings"
	"testing"

	apphttp "leadpipe/internal/http"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/events"
	"leadpipe/internal/leads/repository"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

// serve hands the store to the router as its health check.
var _ apphttp.HealthChecker = repository.Store(nil)

func TestSelectBatches(t *testing.T) {
	all, err := selectBatches("all", 5, 3)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if all[domain.StageCall] != 5 || all[domain.StageEntry] != 3 {
		t.Fatalf("all = %v", all)
	}

	call, err := selectBatches("CALL", 7, 3)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(call) != 1 || call[domain.StageCall] != 7 {
		t.Fatalf("call = %v", call)
	}

	if _, err := selectBatches("voicemail", 1, 1); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}

func TestRenderStatistics(t *testing.T) {
	out := renderStatistics(domain.Statistics{
		TotalLeads:   4,
		StatusCounts: map[string]int{"confirmed": 1, "entered": 3},
		CallsToday:   2,
		SuccessRate:  75,
	})

	for _, want := range []string{"Status", "Total leads", "75.0%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"run", "serve", "worker", "status", "import", "export", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %q not registered: %v", name, err)
		}
	}
}

func TestPipelineEventsDrainsBeforeClosingScheduler(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisURL: "redis://" + mr.Addr(), AsynqQueueName: "leadpipe"}

	bus, closeEvents, err := pipelineEvents(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("pipelineEvents: %v", err)
	}
	for i := 0; i < 3; i++ {
		bus.Publish(context.Background(), events.RecordingArchiveFailed{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    uuid.New(),
			CallID:    "call-" + string(rune('a'+i)),
			Phone:     "+12015550123",
			Reason:    "upload failed",
		})
	}
	closeEvents()

	scheduled, err := mr.ZMembers("asynq:{leadpipe}:scheduled")
	if err != nil {
		t.Fatalf("read scheduled set: %v", err)
	}
	if len(scheduled) != 3 {
		t.Fatalf("scheduled = %d tasks, want 3", len(scheduled))
	}
}

func TestPipelineEventsWithoutRedis(t *testing.T) {
	bus, closeEvents, err := pipelineEvents(&config.Config{}, logger.Nop())
	if err != nil {
		t.Fatalf("pipelineEvents: %v", err)
	}
	bus.Publish(context.Background(), events.RecordingArchiveFailed{BaseEvent: events.NewBaseEvent(), LeadID: uuid.New()})
	closeEvents()
}
