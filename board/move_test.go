package board

import (
	"reflect"
	"testing"
	"time"

	"hackboard/domain"
)

func fixClock(t *testing.T, ts time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

func TestMoveToAnotherStatus(t *testing.T) {
	b := Build([]domain.Task{{ID: "A", Status: domain.StatusTodo}}, StatusStrategy{})

	res := Move(b, "A", "DOING")
	if !res.Moved {
		t.Fatalf("expected move to happen")
	}
	if got := res.Board.Bucket("TODO"); len(got) != 0 {
		t.Fatalf("expected TODO to be empty, got %v", got)
	}
	doing := res.Board.Bucket("DOING")
	if len(doing) != 1 || doing[0].ID != "A" || doing[0].Status != domain.StatusDoing {
		t.Fatalf("unexpected DOING bucket: %#v", doing)
	}
	if got := res.Board.Bucket("DONE"); len(got) != 0 {
		t.Fatalf("expected DONE to be empty, got %v", got)
	}
	if res.From != "TODO" || res.To != "DOING" {
		t.Fatalf("unexpected from/to: %s -> %s", res.From, res.To)
	}
}

func TestMoveSameBucketIsNoOp(t *testing.T) {
	b := Build([]domain.Task{{ID: "A", Status: domain.StatusTodo}}, StatusStrategy{})
	res := Move(b, "A", "TODO")
	if res.Moved {
		t.Fatalf("expected no move")
	}
	if res.Board != b {
		t.Fatalf("expected the input board to be returned")
	}
}

func TestMoveRejects(t *testing.T) {
	b := Build(sampleTasks(), StatusStrategy{})
	cases := map[string][2]string{
		"unknown_task":   {"zzz", "DONE"},
		"empty_task_id":  {"", "DONE"},
		"unknown_bucket": {"a", "BLOCKED"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := Move(b, tc[0], tc[1])
			if res.Moved || res.Board != b {
				t.Fatalf("expected no-op, got moved=%v", res.Moved)
			}
		})
	}
}

func TestMoveInsertsAtHeadAndLeavesSnapshotIntact(t *testing.T) {
	b := Build(sampleTasks(), StatusStrategy{})
	before := b.View()

	res := Move(b, "a", "DONE")
	if got := ids(res.Board.Bucket("DONE")); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("expected moved task at head of DONE, got %v", got)
	}
	if got := ids(res.Board.Bucket("TODO")); !reflect.DeepEqual(got, []string{"d", "e"}) {
		t.Fatalf("unexpected TODO after move: %v", got)
	}
	if !reflect.DeepEqual(b.View(), before) {
		t.Fatalf("source board mutated by move")
	}
	if res.Board.Len() != b.Len() {
		t.Fatalf("move changed task count: %d != %d", res.Board.Len(), b.Len())
	}
}

func TestMoveStatusSideEffects(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	fixClock(t, ts)
	b := Build([]domain.Task{{ID: "A", Status: domain.StatusTodo, ETag: "v1"}}, StatusStrategy{})

	doing := Move(b, "A", "DOING")
	if doing.Patch.StartDate == nil || !doing.Patch.StartDate.Equal(ts) {
		t.Fatalf("expected start date stamp, got %v", doing.Patch.StartDate)
	}
	if doing.Patch.IfMatch != "v1" {
		t.Fatalf("expected version to be carried, got %q", doing.Patch.IfMatch)
	}

	done := Move(doing.Board, "A", "DONE")
	task := done.Task
	if !task.Completed || task.ProgressPercentage == nil || *task.ProgressPercentage != 100 {
		t.Fatalf("expected completed task at 100%%, got %#v", task)
	}
	if task.EndDate == nil || !task.EndDate.Equal(ts) {
		t.Fatalf("expected end date stamp, got %v", task.EndDate)
	}
	if done.Patch.StartDate != nil {
		t.Fatalf("start date should not be re-sent when moving to DONE")
	}

	back := Move(done.Board, "A", "TODO")
	if back.Task.Completed || *back.Task.ProgressPercentage != 0 {
		t.Fatalf("expected reset task, got %#v", back.Task)
	}
	fields := back.Patch.Fields()
	if fields["status"] != "TODO" || fields["completed"] != false || fields["progress_percentage"] != 0 {
		t.Fatalf("unexpected patch fields: %#v", fields)
	}
}

func TestMoveBetweenMembers(t *testing.T) {
	b := Build(sampleTasks(), NewMemberStrategy(sampleMembers()))

	res := Move(b, "c", "alice")
	if !res.Moved || res.Task.AssigneeID() != "alice" {
		t.Fatalf("expected c assigned to alice, got %#v", res.Task)
	}
	if got := ids(res.Board.Bucket("alice")); !reflect.DeepEqual(got, []string{"c", "b"}) {
		t.Fatalf("unexpected alice bucket: %v", got)
	}
	if got := res.Patch.Fields(); !reflect.DeepEqual(got, map[string]any{"assignee": "alice"}) {
		t.Fatalf("unexpected patch: %#v", got)
	}

	res = Move(res.Board, "c", Unassigned)
	if !res.Moved || res.Task.Assignee != nil {
		t.Fatalf("expected c to be unassigned, got %#v", res.Task)
	}
	fields := res.Patch.Fields()
	if v, ok := fields["assignee"]; !ok || v != nil {
		t.Fatalf("expected explicit null assignee, got %#v", fields)
	}
}

func TestMoveDuplicateIDsKeepsOtherCopy(t *testing.T) {
	tasks := []domain.Task{{ID: "x", Title: "first"}, {ID: "x", Title: "second"}}
	b := Build(tasks, StatusStrategy{})
	res := Move(b, "x", "DONE")
	if res.Board.Len() != 2 {
		t.Fatalf("expected both copies to stay on the board, got %d", res.Board.Len())
	}
	if got := res.Board.Bucket("TODO"); len(got) != 1 || got[0].Title != "second" {
		t.Fatalf("expected second copy to remain in TODO, got %#v", got)
	}
}
