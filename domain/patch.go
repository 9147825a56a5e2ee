package domain

import "time"

// dateLayout is the calendar-date format the backend stores task dates in.
const dateLayout = "2006-01-02"

// TaskPatch carries a partial task update. Only non-nil fields are sent.
type TaskPatch struct {
	Status             *Status
	Assignee           *string
	ClearAssignee      bool
	Completed          *bool
	ProgressPercentage *int
	StartDate          *time.Time
	EndDate            *time.Time

	// IfMatch is the task version the update was computed from, if known.
	IfMatch string
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Status == nil && p.Assignee == nil && !p.ClearAssignee && p.Completed == nil &&
		p.ProgressPercentage == nil && p.StartDate == nil && p.EndDate == nil
}

// Fields returns the wire representation of the patch. A cleared assignee is
// sent as an explicit null.
func (p TaskPatch) Fields() map[string]any {
	out := make(map[string]any, 6)
	if p.Status != nil {
		out["status"] = string(*p.Status)
	}
	if p.ClearAssignee {
		out["assignee"] = nil
	} else if p.Assignee != nil {
		out["assignee"] = *p.Assignee
	}
	if p.Completed != nil {
		out["completed"] = *p.Completed
	}
	if p.ProgressPercentage != nil {
		out["progress_percentage"] = *p.ProgressPercentage
	}
	if p.StartDate != nil {
		out["start_date"] = p.StartDate.UTC().Format(dateLayout)
	}
	if p.EndDate != nil {
		out["end_date"] = p.EndDate.UTC().Format(dateLayout)
	}
	return out
}

// Apply returns t with the patch applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ClearAssignee {
		t.Assignee = nil
	} else if p.Assignee != nil {
		a := *p.Assignee
		t.Assignee = &a
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.ProgressPercentage != nil {
		v := *p.ProgressPercentage
		t.ProgressPercentage = &v
	}
	if p.StartDate != nil {
		d := NewDate(*p.StartDate)
		t.StartDate = &d
	}
	if p.EndDate != nil {
		d := NewDate(*p.EndDate)
		t.EndDate = &d
	}
	return t
}

// Revert undoes p on current using the field values of original. A field is
// only restored while current still holds the value p set, so later changes
// to the same field are kept.
func (p TaskPatch) Revert(current, original Task) Task {
	if p.Status != nil && current.Status == *p.Status {
		current.Status = original.Status
	}
	if p.ClearAssignee && current.Assignee == nil {
		current.Assignee = original.Assignee
	} else if p.Assignee != nil && current.AssigneeID() == *p.Assignee {
		current.Assignee = original.Assignee
	}
	if p.Completed != nil && current.Completed == *p.Completed {
		current.Completed = original.Completed
	}
	if p.ProgressPercentage != nil && current.ProgressPercentage != nil &&
		*current.ProgressPercentage == *p.ProgressPercentage {
		current.ProgressPercentage = original.ProgressPercentage
	}
	if p.StartDate != nil && sameDate(current.StartDate, *p.StartDate) {
		current.StartDate = original.StartDate
	}
	if p.EndDate != nil && sameDate(current.EndDate, *p.EndDate) {
		current.EndDate = original.EndDate
	}
	return current
}

func sameDate(d *Date, t time.Time) bool {
	return d != nil && d.Time.Equal(NewDate(t).Time)
}

// StatusTransition builds the patch for moving t into status to. Besides the
// status itself it derives completion, progress and date stamps:
// TODO resets progress, DOING stamps a start date when none is set and DONE
// completes the task and stamps an end date.
func StatusTransition(t Task, to Status, now time.Time) TaskPatch {
	status := to
	p := TaskPatch{Status: &status, IfMatch: t.ETag}
	switch to {
	case StatusTodo:
		completed := false
		progress := 0
		p.Completed = &completed
		p.ProgressPercentage = &progress
	case StatusDoing:
		completed := false
		p.Completed = &completed
		if t.StartDate == nil {
			start := now
			p.StartDate = &start
		}
	case StatusDone:
		completed := true
		progress := 100
		end := now
		p.Completed = &completed
		p.ProgressPercentage = &progress
		p.EndDate = &end
	}
	return p
}
