// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadpipe/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	DrainingBus = events.DrainingBus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// LeadStageFinished is published after a worker wrote its outcome.
type LeadStageFinished struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	Stage     string    `json:"stage"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	LogStatus string    `json:"logStatus"`
	LastError string    `json:"lastError,omitempty"`
	// Applied is false when the lead had left the in-progress status before
	// the write, for example after an operator override.
	Applied bool `json:"applied"`
}

func (e LeadStageFinished) EventName() string { return "leads.stage.finished" }

// RecordingArchiveFailed is published when a completed call's recording could
// not be archived inline.
type RecordingArchiveFailed struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	CallID string    `json:"callId"`
	Phone  string    `json:"phone"`
	Reason string    `json:"reason"`
}

func (e RecordingArchiveFailed) EventName() string { return "leads.recording.archive_failed" }
