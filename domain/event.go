package domain

import "encoding/json"

const (
	TaskMoved              = "task-moved"
	TaskMoveRolledBack     = "task-move-rolled-back"
	TaskCompletionSet      = "task-completion-set"
	TaskCompletionReverted = "task-completion-reverted"
)

// BoardEvent is published to the board event feed after each sync cycle.
type BoardEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId"`
	TaskID    string          `json:"taskId"`
	Board     string          `json:"board"`
	UserID    string          `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}
