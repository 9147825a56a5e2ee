package board

import "hackboard/domain"

// MoveResult is the outcome of Move. Task, From, To and Patch are only set
// when Moved is true.
type MoveResult struct {
	Board *Board
	Moved bool
	Task  domain.Task
	From  string
	To    string
	Patch domain.TaskPatch
}

// Move relocates taskID to the head of bucket dest and updates the task's
// keyed field to match. When the task is not on the board, dest is unknown,
// or dest is already the task's bucket, the input board is returned
// unchanged with Moved=false.
func Move(b *Board, taskID, dest string) MoveResult {
	noop := MoveResult{Board: b}
	if !b.HasBucket(dest) {
		return noop
	}
	from, idx, ok := b.locate(taskID)
	if !ok || from == dest {
		return noop
	}
	task := b.buckets[from][idx]

	patch := b.strategy.Transition(task, dest, now())
	moved := patch.Apply(task)

	next := b.shallowCopy()
	src := b.buckets[from]
	remaining := make([]domain.Task, 0, len(src)-1)
	remaining = append(remaining, src[:idx]...)
	remaining = append(remaining, src[idx+1:]...)
	next.buckets[from] = remaining

	dst := b.buckets[dest]
	head := make([]domain.Task, 0, len(dst)+1)
	head = append(head, moved)
	head = append(head, dst...)
	next.buckets[dest] = head

	return MoveResult{Board: next, Moved: true, Task: moved, From: from, To: dest, Patch: patch}
}
