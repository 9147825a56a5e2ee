package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusTransitionDoingKeepsExistingStart(t *testing.T) {
	started := NewDate(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	task := Task{ID: "t", Status: StatusTodo, StartDate: &started}

	p := StatusTransition(task, StatusDoing, time.Now())
	if p.StartDate != nil {
		t.Fatalf("expected existing start date to be kept, got %v", p.StartDate)
	}
	if p.Completed == nil || *p.Completed {
		t.Fatalf("expected completed=false for DOING")
	}
}

func TestTaskPatchApplyDoesNotAlias(t *testing.T) {
	assignee := "bob"
	p := TaskPatch{Assignee: &assignee}
	task := p.Apply(Task{ID: "t"})
	assignee = "eve"
	if task.AssigneeID() != "bob" {
		t.Fatalf("applied task aliases patch value: %q", task.AssigneeID())
	}

	cleared := TaskPatch{ClearAssignee: true}.Apply(task)
	if cleared.Assignee != nil {
		t.Fatalf("expected assignee cleared")
	}
}

func TestTaskPatchEmpty(t *testing.T) {
	if !(TaskPatch{IfMatch: "x"}).Empty() {
		t.Fatalf("a version alone changes nothing")
	}
	if (TaskPatch{ClearAssignee: true}).Empty() {
		t.Fatalf("clearing the assignee is a change")
	}
}

func TestDateJSON(t *testing.T) {
	var task Task
	payload := `{"id":"t","start_date":"2026-04-01","end_date":"2026-04-03T10:00:00Z"}`
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.StartDate == nil || task.StartDate.Day() != 1 || task.EndDate == nil || task.EndDate.Hour() != 10 {
		t.Fatalf("unexpected dates: %v %v", task.StartDate, task.EndDate)
	}
	out, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["start_date"] != "2026-04-01" || back["end_date"] != "2026-04-03" {
		t.Fatalf("unexpected encoded dates: %v %v", back["start_date"], back["end_date"])
	}
}

func TestStatusValid(t *testing.T) {
	if !StatusDoing.Valid() || Status("BLOCKED").Valid() || Status("").Valid() {
		t.Fatalf("unexpected status validity")
	}
}

func TestTaskPatchRevertKeepsLaterChanges(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	original := Task{ID: "A", Status: StatusTodo}
	patch := StatusTransition(original, StatusDone, now)
	moved := patch.Apply(original)

	reverted := patch.Revert(moved, original)
	if reverted.Status != StatusTodo || reverted.Completed || reverted.ProgressPercentage != nil || reverted.EndDate != nil {
		t.Fatalf("expected all patched fields restored, got %+v", reverted)
	}

	later := moved
	later.Status = StatusDoing
	later.Completed = false
	reverted = patch.Revert(later, original)
	if reverted.Status != StatusDoing {
		t.Fatalf("expected later status change kept, got %s", reverted.Status)
	}
	if reverted.EndDate != nil {
		t.Fatalf("expected untouched end date restored")
	}
}
