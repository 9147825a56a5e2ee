package api

import (
	"encoding/json"
	"errors"
	"testing"

	"hackboard/board"
	"hackboard/domain"
)

func TestCycleEventType(t *testing.T) {
	tests := []struct {
		kind    board.CycleKind
		outcome board.Outcome
		want    string
	}{
		{board.CycleMove, board.Confirmed, domain.TaskMoved},
		{board.CycleMove, board.RolledBack, domain.TaskMoveRolledBack},
		{board.CycleCompletion, board.Confirmed, domain.TaskCompletionSet},
		{board.CycleCompletion, board.RolledBack, domain.TaskCompletionReverted},
	}
	for _, tt := range tests {
		if got := cycleEventType(board.CycleReport{Kind: tt.kind, Outcome: tt.outcome}); got != tt.want {
			t.Errorf("%s/%s: got %s, want %s", tt.kind, tt.outcome, got, tt.want)
		}
	}
}

func TestCycleEventCarriesError(t *testing.T) {
	done := true
	ev, err := cycleEvent(&session{userID: "u", projectID: "p"}, board.CycleReport{
		Kind:    board.CycleCompletion,
		Board:   board.KindStatus,
		TaskID:  "t1",
		Patch:   domain.TaskPatch{Completed: &done},
		Outcome: board.RolledBack,
		Err:     errors.New("timeout"),
	})
	if err != nil {
		t.Fatalf("cycleEvent: %v", err)
	}
	if ev.ID == "" || ev.Timestamp == 0 || ev.Type != domain.TaskCompletionReverted {
		t.Fatalf("unexpected event %+v", ev)
	}
	var data cycleEventData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Error != "timeout" || data.Fields["completed"] != true {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestNextTimestampIncreases(t *testing.T) {
	prev := nextTimestamp()
	for i := 0; i < 100; i++ {
		next := nextTimestamp()
		if next <= prev {
			t.Fatalf("timestamp went backwards: %d <= %d", next, prev)
		}
		prev = next
	}
}
