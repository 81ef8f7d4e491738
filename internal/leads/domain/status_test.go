package domain

import "testing"

func TestCanTransitionFollowsPipeline(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusCalling, true},
		{StatusCalling, StatusConfirmed, true},
		{StatusCalling, StatusNotInterested, true},
		{StatusCalling, StatusCallFailed, true},
		{StatusConfirmed, StatusEntryInProgress, true},
		{StatusEntryInProgress, StatusEntered, true},
		{StatusEntryInProgress, StatusEntryFailed, true},

		{StatusPending, StatusConfirmed, false},
		{StatusPending, StatusEntered, false},
		{StatusConfirmed, StatusEntered, false},
		{StatusCallFailed, StatusCalling, false},
		{StatusEntered, StatusEntryInProgress, false},
		{StatusCalling, StatusEntryInProgress, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, s := range AllStatuses() {
		if !IsTerminal(s) {
			continue
		}
		for _, to := range AllStatuses() {
			if CanTransition(s, to) {
				t.Fatalf("terminal status %s transitions to %s", s, to)
			}
		}
	}
	if !IsTerminal(StatusCallFailed) {
		t.Fatalf("expected CALL_FAILED to be terminal")
	}
}

func TestStageSpecsMatchTransitions(t *testing.T) {
	for _, stage := range Stages() {
		spec := stage.Spec()
		if !CanTransition(spec.PreState, spec.InProgress) {
			t.Fatalf("%s: claim %s -> %s not allowed", stage, spec.PreState, spec.InProgress)
		}
		if !IsInProgress(spec.InProgress) {
			t.Fatalf("%s: %s should be an in-progress status", stage, spec.InProgress)
		}
		for _, out := range spec.Outcomes {
			if !CanTransition(spec.InProgress, out) {
				t.Fatalf("%s: outcome %s not reachable from %s", stage, out, spec.InProgress)
			}
		}
	}
}

func TestParseStatusAcceptsBothForms(t *testing.T) {
	for _, raw := range []string{"CALL_FAILED", "call_failed", " Call_Failed "} {
		s, err := ParseStatus(raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q) error: %v", raw, err)
		}
		if s != StatusCallFailed {
			t.Fatalf("ParseStatus(%q) = %s", raw, s)
		}
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestValidateOverride(t *testing.T) {
	if err := ValidateOverride(StatusCallFailed, StatusPending); err != nil {
		t.Fatalf("expected reset of failed call to be allowed: %v", err)
	}
	if err := ValidateOverride(StatusCalling, StatusPending); err == nil {
		t.Fatalf("expected override of owned lead to fail")
	}
	if err := ValidateOverride(StatusConfirmed, StatusEntryInProgress); err == nil {
		t.Fatalf("expected override into in-progress to fail")
	}
}

func TestStatisticsSuccessRate(t *testing.T) {
	stats := Statistics{StatusCounts: map[string]int{"confirmed": 1, "entered": 3}}
	stats.ComputeSuccessRate()
	if stats.SuccessRate != 75 {
		t.Fatalf("success rate = %v, want 75", stats.SuccessRate)
	}

	empty := Statistics{StatusCounts: map[string]int{}}
	empty.ComputeSuccessRate()
	if empty.SuccessRate != 0 {
		t.Fatalf("success rate = %v, want 0", empty.SuccessRate)
	}
}
