package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("paused").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskStatusPending, false},
		{TaskStatusAssigned, false},
		{TaskStatusInProgress, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
		{TaskStatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%q.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestTaskPriorityWeight(t *testing.T) {
	if TaskPriorityHigh.Weight() <= TaskPriorityNormal.Weight() {
		t.Error("high priority should outweigh normal")
	}
	if TaskPriorityNormal.Weight() <= TaskPriorityLow.Weight() {
		t.Error("normal priority should outweigh low")
	}
}

func TestTaskPriorityValid(t *testing.T) {
	for _, p := range []TaskPriority{TaskPriorityLow, TaskPriorityNormal, TaskPriorityHigh} {
		if !p.Valid() {
			t.Errorf("expected %q to be valid", p)
		}
	}
	if TaskPriority("urgent").Valid() {
		t.Error("expected unknown priority to be invalid")
	}
}
