package board

import (
	"time"

	"hackboard/domain"
)

// Board is an immutable partition of tasks into ordered buckets. Moves
// produce a new Board, so holding on to a previous value is a snapshot.
type Board struct {
	strategy Strategy
	keys     []string
	buckets  map[string][]domain.Task
}

// Build partitions tasks using strategy. Each task lands in exactly one
// bucket and input order is preserved within a bucket.
func Build(tasks []domain.Task, strategy Strategy) *Board {
	keys := strategy.Keys()
	b := &Board{
		strategy: strategy,
		keys:     keys,
		buckets:  make(map[string][]domain.Task, len(keys)),
	}
	for _, k := range keys {
		b.buckets[k] = []domain.Task{}
	}
	fallback := strategy.Fallback()
	for _, t := range tasks {
		key := strategy.KeyOf(t)
		if _, ok := b.buckets[key]; !ok {
			key = fallback
		}
		b.buckets[key] = append(b.buckets[key], t)
	}
	return b
}

// Kind returns the keying scheme of the board.
func (b *Board) Kind() Kind { return b.strategy.Kind() }

// Strategy returns the strategy the board was built with.
func (b *Board) Strategy() Strategy { return b.strategy }

// Keys returns the bucket keys in display order.
func (b *Board) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Bucket returns a copy of the tasks in bucket key.
func (b *Board) Bucket(key string) []domain.Task {
	src := b.buckets[key]
	out := make([]domain.Task, len(src))
	copy(out, src)
	return out
}

// HasBucket reports whether key is a bucket of the board.
func (b *Board) HasBucket(key string) bool {
	_, ok := b.buckets[key]
	return ok
}

// Len returns the total number of tasks on the board.
func (b *Board) Len() int {
	n := 0
	for _, k := range b.keys {
		n += len(b.buckets[k])
	}
	return n
}

// Find locates an interactive task by id, scanning buckets in key order.
func (b *Board) Find(taskID string) (domain.Task, string, bool) {
	key, idx, ok := b.locate(taskID)
	if !ok {
		return domain.Task{}, "", false
	}
	return b.buckets[key][idx], key, true
}

func (b *Board) locate(taskID string) (string, int, bool) {
	if taskID == "" {
		return "", 0, false
	}
	for _, k := range b.keys {
		for i, t := range b.buckets[k] {
			if t.ID == taskID {
				return k, i, true
			}
		}
	}
	return "", 0, false
}

// Tasks flattens the board in key order.
func (b *Board) Tasks() []domain.Task {
	out := make([]domain.Task, 0, b.Len())
	for _, k := range b.keys {
		out = append(out, b.buckets[k]...)
	}
	return out
}

// Column is a single bucket in display form.
type Column struct {
	Key   string        `json:"key"`
	Tasks []domain.Task `json:"tasks"`
}

// View is the serialisable form of a board.
type View struct {
	Kind    Kind     `json:"kind"`
	Columns []Column `json:"columns"`
}

// View returns the board as ordered columns.
func (b *Board) View() View {
	v := View{Kind: b.Kind(), Columns: make([]Column, 0, len(b.keys))}
	for _, k := range b.keys {
		v.Columns = append(v.Columns, Column{Key: k, Tasks: b.Bucket(k)})
	}
	return v
}

// replaceAt returns a board where position idx of bucket key holds t. The
// receiver is left untouched.
func (b *Board) replaceAt(key string, idx int, t domain.Task) *Board {
	next := b.shallowCopy()
	bucket := make([]domain.Task, len(b.buckets[key]))
	copy(bucket, b.buckets[key])
	bucket[idx] = t
	next.buckets[key] = bucket
	return next
}

// revert undoes patch on taskID using the task as it was on snapshot. When
// the undone field moves the task to another bucket it goes back to its
// snapshot position if that bucket is where it came from, else to the head.
// Everything else on the receiver is kept.
func (b *Board) revert(snapshot *Board, taskID string, patch domain.TaskPatch) *Board {
	curKey, curIdx, ok := b.locate(taskID)
	if !ok {
		return b
	}
	origKey, origIdx, ok := snapshot.locate(taskID)
	if !ok {
		return b
	}
	task := patch.Revert(b.buckets[curKey][curIdx], snapshot.buckets[origKey][origIdx])

	key := b.strategy.KeyOf(task)
	if !b.HasBucket(key) {
		key = b.strategy.Fallback()
	}
	if key == curKey {
		return b.replaceAt(curKey, curIdx, task)
	}

	next := b.shallowCopy()
	src := b.buckets[curKey]
	remaining := make([]domain.Task, 0, len(src)-1)
	remaining = append(remaining, src[:curIdx]...)
	remaining = append(remaining, src[curIdx+1:]...)
	next.buckets[curKey] = remaining

	dst := b.buckets[key]
	at := 0
	if key == origKey {
		at = min(origIdx, len(dst))
	}
	bucket := make([]domain.Task, 0, len(dst)+1)
	bucket = append(bucket, dst[:at]...)
	bucket = append(bucket, task)
	bucket = append(bucket, dst[at:]...)
	next.buckets[key] = bucket
	return next
}

func (b *Board) shallowCopy() *Board {
	next := &Board{
		strategy: b.strategy,
		keys:     b.keys,
		buckets:  make(map[string][]domain.Task, len(b.buckets)),
	}
	for k, v := range b.buckets {
		next.buckets[k] = v
	}
	return next
}

// now is swapped in tests.
var now = time.Now
