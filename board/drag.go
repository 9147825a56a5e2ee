package board

import (
	"errors"
	"sync"
)

// ErrNotDraggable is returned when a drag starts on a task without an id.
var ErrNotDraggable = errors.New("task is not draggable")

// DragSession tracks the task currently being dragged. It has no effect on
// the board by itself.
type DragSession struct {
	mu     sync.Mutex
	taskID string
}

// Start records taskID as the dragged task, replacing any previous one.
func (d *DragSession) Start(taskID string) error {
	if taskID == "" {
		return ErrNotDraggable
	}
	d.mu.Lock()
	d.taskID = taskID
	d.mu.Unlock()
	return nil
}

// Current returns the dragged task id, if any.
func (d *DragSession) Current() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.taskID, d.taskID != ""
}

// End clears the session unconditionally.
func (d *DragSession) End() {
	d.mu.Lock()
	d.taskID = ""
	d.mu.Unlock()
}

// endIf clears the session only while it still tracks taskID, so a drag
// started after the drop is left alone.
func (d *DragSession) endIf(taskID string) {
	d.mu.Lock()
	if d.taskID == taskID {
		d.taskID = ""
	}
	d.mu.Unlock()
}
