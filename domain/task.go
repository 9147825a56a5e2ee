package domain

// Status is the workflow column a task sits in on the status board.
type Status string

const (
	StatusTodo  Status = "TODO"
	StatusDoing Status = "DOING"
	StatusDone  Status = "DONE"
)

// Statuses lists the status columns in board order.
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Task represents a single backlog item as cached by the board.
type Task struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Status             Status         `json:"status,omitempty"`
	Assignee           *string        `json:"assignee,omitempty"`
	Priority           string         `json:"priority,omitempty"`
	Completed          bool           `json:"completed"`
	ProgressPercentage *int           `json:"progress_percentage,omitempty"`
	StartDate          *Date          `json:"start_date,omitempty"`
	EndDate            *Date          `json:"end_date,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ETag               string         `json:"etag,omitempty"`
}

// Interactive reports whether the task can be dragged or opened.
func (t Task) Interactive() bool {
	return t.ID != ""
}

// AssigneeID returns the assignee or "" when the task is unassigned.
func (t Task) AssigneeID() string {
	if t.Assignee == nil {
		return ""
	}
	return *t.Assignee
}

// Member is a project participant tasks can be assigned to.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
