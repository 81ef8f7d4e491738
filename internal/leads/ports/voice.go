package ports

import (
	"context"
	"encoding/json"
	"time"
)

// Terminal provider call states.
const (
	CallStatusCompleted = "completed"
	CallStatusFailed    = "failed"
	CallStatusNoAnswer  = "no-answer"
	CallStatusBusy      = "busy"
	CallStatusCanceled  = "canceled"
)

// IsTerminalCallStatus reports whether the provider will not change the status again.
func IsTerminalCallStatus(status string) bool {
	switch status {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	}
	return false
}

// CallRequest is everything the provider needs to place one call.
type CallRequest struct {
	LeadID string
	Phone  string
	Script Script
}

// Script is the section-keyed conversation flow sent to the provider.
type Script map[string]any

// CallHandle identifies an in-flight call.
type CallHandle struct {
	CallID string
	Status string
}

// TopicResponse is what the lead answered for one script section.
type TopicResponse struct {
	Confirmed bool   `json:"confirmed,omitempty"`
	Response  string `json:"response,omitempty"`
	Value     string `json:"value,omitempty"`
}

// CallStatus is a provider status poll result.
type CallStatus struct {
	Status    string
	Responses map[string]TopicResponse
	StartTime *time.Time
	EndTime   *time.Time
	Raw       json.RawMessage
}

// Recording is a downloaded call recording.
type Recording struct {
	Data        []byte
	ContentType string
	Extension   string
}

// VoiceProvider places and monitors outbound verification calls.
type VoiceProvider interface {
	Initiate(ctx context.Context, req CallRequest) (CallHandle, error)
	Status(ctx context.Context, callID string) (CallStatus, error)
	DownloadRecording(ctx context.Context, callID string) (Recording, error)
}
