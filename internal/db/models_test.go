package db

import "testing"

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobPending, JobProcessing, true},
		{JobProcessing, JobDone, true},
		{JobProcessing, JobFailed, true},
		{JobProcessing, JobPending, true}, // retry requeue
		{JobPending, JobDone, false},
		{JobPending, JobFailed, false},
		{JobDone, JobPending, false},
		{JobDone, JobProcessing, false},
		{JobFailed, JobPending, false},
		{JobFailed, JobProcessing, false},
		{JobDone, JobFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []JobStatus{JobDone, JobFailed} {
		for _, next := range []JobStatus{JobPending, JobProcessing, JobDone, JobFailed} {
			if terminal.CanTransitionTo(next) {
				t.Errorf("terminal state %s must not transition to %s", terminal, next)
			}
		}
	}
}
