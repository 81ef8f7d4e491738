package domain

import (
	"fmt"
	"time"
)

// Stage is one phase of the pipeline with its own worker and attempt counter.
type Stage string

const (
	StageCall  Stage = "call"
	StageEntry Stage = "entry"
)

// StageSpec describes the statuses a stage moves a lead through.
type StageSpec struct {
	Stage      Stage
	PreState   Status
	InProgress Status
	Outcomes   []Status
}

var stageSpecs = map[Stage]StageSpec{
	StageCall: {
		Stage:      StageCall,
		PreState:   StatusPending,
		InProgress: StatusCalling,
		Outcomes:   []Status{StatusConfirmed, StatusNotInterested, StatusCallFailed},
	},
	StageEntry: {
		Stage:      StageEntry,
		PreState:   StatusConfirmed,
		InProgress: StatusEntryInProgress,
		Outcomes:   []Status{StatusEntered, StatusEntryFailed},
	},
}

// Stages returns both stages in pipeline order.
func Stages() []Stage {
	return []Stage{StageCall, StageEntry}
}

// ParseStage converts "call" or "entry".
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if _, ok := stageSpecs[s]; !ok {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}

// Spec returns the status layout for the stage.
func (s Stage) Spec() StageSpec {
	return stageSpecs[s]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageSpecs[s]
	return ok
}

// AllowsOutcome reports whether to is a legal final status for the stage.
func (s StageSpec) AllowsOutcome(to Status) bool {
	for _, o := range s.Outcomes {
		if o == to {
			return true
		}
	}
	return false
}

// Eligibility is the selection policy for one stage.
type Eligibility struct {
	MaxAttempts int
	// Cooldown is the minimum age of the last initiation before a lead is
	// re-offered. Zero disables the check.
	Cooldown time.Duration
}

// Policies holds the selection policy per stage.
type Policies struct {
	Call  Eligibility
	Entry Eligibility
}

// DefaultPolicies mirrors the production settings: three attempts per stage
// and a one hour call cooldown.
func DefaultPolicies() Policies {
	return Policies{
		Call:  Eligibility{MaxAttempts: 3, Cooldown: time.Hour},
		Entry: Eligibility{MaxAttempts: 3},
	}
}

// For returns the policy for a stage.
func (p Policies) For(stage Stage) Eligibility {
	if stage == StageEntry {
		return p.Entry
	}
	return p.Call
}
