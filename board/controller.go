package board

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hackboard/domain"
)

const tracerName = "hackboard/board"

// State is the sync state of a controller.
type State int

const (
	Idle State = iota
	Updating
)

func (s State) String() string {
	if s == Updating {
		return "updating"
	}
	return "idle"
}

// Outcome is how a sync cycle resolved. Every cycle has exactly one.
type Outcome int

const (
	NoOp Outcome = iota
	Confirmed
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return "noop"
	}
}

// CycleKind tells moves and completion toggles apart in reports.
type CycleKind string

const (
	CycleMove       CycleKind = "move"
	CycleCompletion CycleKind = "completion"
)

// Updater sends a partial task update to the remote backend.
type Updater interface {
	UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch) error
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(ctx context.Context, taskID string, patch domain.TaskPatch) error

func (f UpdaterFunc) UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch) error {
	return f(ctx, taskID, patch)
}

// Notifier surfaces a failed cycle to the user.
type Notifier interface {
	NotifyFailure(ctx context.Context, message string)
}

// CycleResult is returned by every controller operation that may sync.
type CycleResult struct {
	Outcome Outcome
	// Board is the visible board once the cycle resolved.
	Board *Board
	Task  domain.Task
	Err   error
	// Stale is set when the backend rejected the update as a version
	// conflict, meaning the local board should be refetched.
	Stale bool
}

// CycleReport describes a resolved cycle that reached the backend.
type CycleReport struct {
	Kind     CycleKind
	Board    Kind
	TaskID   string
	From     string
	To       string
	Patch    domain.TaskPatch
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Options configures a Controller. All fields are optional.
type Options struct {
	Logger   *log.Logger
	Notifier Notifier
	// OnChange is called after every visible board change.
	OnChange func(*Board)
	// OnResolved is called once per cycle that reached the backend.
	OnResolved func(CycleReport)
}

// Controller owns a board and applies moves optimistically, reconciling each
// with the backend and restoring the pre-move snapshot on failure.
type Controller struct {
	updater Updater
	opts    Options
	logger  *log.Logger
	tracer  trace.Tracer
	drag    DragSession

	mu       sync.Mutex
	board    *Board
	inflight int
	pending  *Board
}

// NewController creates a controller for b.
func NewController(b *Board, updater Updater, opts Options) *Controller {
	if b == nil {
		panic("board.NewController: board is nil")
	}
	if updater == nil {
		panic("board.NewController: updater is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{
		updater: updater,
		opts:    opts,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		board:   b,
	}
}

// Board returns the visible board.
func (c *Controller) Board() *Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board
}

// State reports whether any cycle is awaiting the backend.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight > 0 {
		return Updating
	}
	return Idle
}

// Drag exposes the drag session of this board.
func (c *Controller) Drag() *DragSession { return &c.drag }

// StartDrag begins a drag on taskID. Tasks that are not on the board or have
// no id cannot be dragged.
func (c *Controller) StartDrag(taskID string) error {
	if _, _, ok := c.Board().Find(taskID); !ok {
		if taskID == "" {
			return ErrNotDraggable
		}
		return domain.ErrTaskNotFound
	}
	return c.drag.Start(taskID)
}

// EndDrag clears the drag session, whether or not a drop happened.
func (c *Controller) EndDrag() { c.drag.End() }

// Replace swaps in a freshly fetched board. While cycles are in flight the
// board stays owned by them, so the new board is parked and applied once the
// last one resolves. It reports whether the board was applied immediately.
func (c *Controller) Replace(b *Board) bool {
	c.mu.Lock()
	if c.inflight > 0 {
		c.pending = b
		c.mu.Unlock()
		return false
	}
	c.board = b
	c.pending = nil
	c.mu.Unlock()
	c.changed(b)
	return true
}

// Drop moves the dragged task into dest. A drop without a tracked drag is a
// no-op.
func (c *Controller) Drop(ctx context.Context, dest string) CycleResult {
	taskID, ok := c.drag.Current()
	if !ok {
		return CycleResult{Outcome: NoOp, Board: c.Board()}
	}
	return c.Move(ctx, taskID, dest)
}

// Move runs one move-and-sync cycle: snapshot, optimistic commit, remote
// update, then confirm or roll back.
func (c *Controller) Move(ctx context.Context, taskID, dest string) CycleResult {
	c.mu.Lock()
	snapshot := c.board
	res := Move(snapshot, taskID, dest)
	if !res.Moved {
		c.mu.Unlock()
		c.drag.endIf(taskID)
		return CycleResult{Outcome: NoOp, Board: snapshot}
	}
	c.board = res.Board
	c.inflight++
	c.mu.Unlock()
	c.changed(res.Board)

	report := CycleReport{
		Kind:   CycleMove,
		Board:  snapshot.Kind(),
		TaskID: taskID,
		From:   res.From,
		To:     res.To,
		Patch:  res.Patch,
	}
	result := c.sync(ctx, snapshot, res.Board, report, snapshot.strategy.FailureMessage())
	result.Task = res.Task
	if result.Outcome == Confirmed {
		c.drag.endIf(taskID)
	}
	return result
}

// SetCompleted sets the completion flag of taskID with the same optimistic
// commit and rollback as a move. The task keeps its bucket and position.
func (c *Controller) SetCompleted(ctx context.Context, taskID string, completed bool) (CycleResult, error) {
	c.mu.Lock()
	snapshot := c.board
	key, idx, ok := snapshot.locate(taskID)
	if !ok {
		c.mu.Unlock()
		return CycleResult{Outcome: NoOp, Board: snapshot}, domain.ErrTaskNotFound
	}
	task := snapshot.buckets[key][idx]
	if task.Completed == completed {
		c.mu.Unlock()
		return CycleResult{Outcome: NoOp, Board: snapshot, Task: task}, nil
	}
	patch := domain.TaskPatch{Completed: &completed, IfMatch: task.ETag}
	updated := patch.Apply(task)
	next := snapshot.replaceAt(key, idx, updated)
	c.board = next
	c.inflight++
	c.mu.Unlock()
	c.changed(next)

	report := CycleReport{
		Kind:   CycleCompletion,
		Board:  snapshot.Kind(),
		TaskID: taskID,
		From:   key,
		To:     key,
		Patch:  patch,
	}
	result := c.sync(ctx, snapshot, next, report, "failed to update task completion")
	result.Task = updated
	return result, nil
}

// ToggleCompleted flips the completion flag of taskID.
func (c *Controller) ToggleCompleted(ctx context.Context, taskID string) (CycleResult, error) {
	task, _, ok := c.Board().Find(taskID)
	if !ok {
		return CycleResult{Outcome: NoOp, Board: c.Board()}, domain.ErrTaskNotFound
	}
	return c.SetCompleted(ctx, taskID, !task.Completed)
}

// sync issues the remote update for an already committed cycle and resolves
// it. committed is the board the cycle made visible and snapshot the one it
// started from. A failure restores snapshot only while committed is still
// visible; once other cycles have changed the board, only this cycle's task
// is reverted so their moves survive.
func (c *Controller) sync(ctx context.Context, snapshot, committed *Board, report CycleReport, failureMsg string) CycleResult {
	ctx, span := c.tracer.Start(ctx, "board.sync", trace.WithAttributes(
		attribute.String("board.kind", string(report.Board)),
		attribute.String("board.cycle", string(report.Kind)),
		attribute.String("board.task_id", report.TaskID),
		attribute.String("board.from", report.From),
		attribute.String("board.to", report.To),
	))
	defer span.End()

	start := time.Now()
	err := c.updater.UpdateTask(ctx, report.TaskID, report.Patch)
	report.Duration = time.Since(start)

	c.mu.Lock()
	c.inflight--
	if err != nil {
		if c.board == committed {
			c.board = snapshot
		} else {
			c.board = c.board.revert(snapshot, report.TaskID, report.Patch)
		}
	}
	refreshed := false
	if c.inflight == 0 && c.pending != nil {
		c.board = c.pending
		c.pending = nil
		refreshed = true
	}
	visible := c.board
	c.mu.Unlock()

	result := CycleResult{Board: visible}
	fields := log.Fields{
		"board":    report.Board,
		"cycle":    report.Kind,
		"task":     report.TaskID,
		"from":     report.From,
		"to":       report.To,
		"duration": report.Duration,
	}
	if err != nil {
		result.Outcome = RolledBack
		result.Err = err
		result.Stale = errors.Is(err, domain.ErrVersionConflict)
		span.RecordError(err)
		span.SetStatus(codes.Error, failureMsg)
		c.logger.WithError(err).WithFields(fields).Error("board update failed, rolled back")
		if c.opts.Notifier != nil {
			c.opts.Notifier.NotifyFailure(ctx, failureMsg)
		}
	} else {
		result.Outcome = Confirmed
		c.logger.WithFields(fields).Debug("board update confirmed")
	}
	span.SetAttributes(attribute.String("board.outcome", result.Outcome.String()))

	report.Outcome = result.Outcome
	report.Err = err
	if err != nil || refreshed {
		c.changed(visible)
	}
	if c.opts.OnResolved != nil {
		c.opts.OnResolved(report)
	}
	return result
}

func (c *Controller) changed(b *Board) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(b)
	}
}
