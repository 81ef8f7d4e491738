// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"fmt"
	"strings"
)

// Status is the persisted pipeline state of a lead.
type Status string

const (
	StatusPending         Status = "pending"
	StatusCalling         Status = "calling"
	StatusConfirmed       Status = "confirmed"
	StatusNotInterested   Status = "not_interested"
	StatusCallFailed      Status = "call_failed"
	StatusEntryInProgress Status = "entry_in_progress"
	StatusEntered         Status = "entered"
	StatusEntryFailed     Status = "entry_failed"
)

// InitialStatus is the status every imported lead starts in.
const InitialStatus = StatusPending

var allStatuses = []Status{
	StatusPending,
	StatusCalling,
	StatusConfirmed,
	StatusNotInterested,
	StatusCallFailed,
	StatusEntryInProgress,
	StatusEntered,
	StatusEntryFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, s := range allStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// transitions lists every automatic move the pipeline may make.
var transitions = map[Status][]Status{
	StatusPending:         {StatusCalling},
	StatusCalling:         {StatusConfirmed, StatusNotInterested, StatusCallFailed},
	StatusConfirmed:       {StatusEntryInProgress},
	StatusEntryInProgress: {StatusEntered, StatusEntryFailed},
}

// terminalStatuses have no outgoing automatic transition. CALL_FAILED is
// terminal because selection only re-offers pending leads.
var terminalStatuses = map[Status]bool{
	StatusNotInterested: true,
	StatusCallFailed:    true,
	StatusEntered:       true,
	StatusEntryFailed:   true,
}

var inProgressStatuses = map[Status]bool{
	StatusCalling:         true,
	StatusEntryInProgress: true,
}

// AllStatuses returns the defined states in pipeline order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus accepts both the persisted form ("call_failed") and the
// upper-case form ("CALL_FAILED").
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown lead status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the defined states.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Label returns the upper-case display name.
func (s Status) Label() string {
	return strings.ToUpper(string(s))
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether the pipeline may move a lead from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further automatic transition is defined.
func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// IsInProgress returns true while a worker owns the lead.
func IsInProgress(s Status) bool {
	return inProgressStatuses[s]
}

// ValidateOverride checks a manual operator status change. Operators may
// reset or correct any settled lead but never take or release worker
// ownership.
func ValidateOverride(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("unknown lead status %q", to)
	}
	if IsInProgress(from) {
		return fmt.Errorf("lead is %s and owned by a worker", from.Label())
	}
	if IsInProgress(to) {
		return fmt.Errorf("status %s can only be set by a worker claim", to.Label())
	}
	return nil
}
