package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"hackboard/board"
	"hackboard/domain"
	"hackboard/stream"
)

var lastTimestamp int64

// nextTimestamp returns a strictly increasing unix-nano timestamp so events
// emitted by one instance keep their order.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

type cycleEventData struct {
	From   string         `json:"from,omitempty"`
	To     string         `json:"to,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func cycleEventType(r board.CycleReport) string {
	switch {
	case r.Kind == board.CycleCompletion && r.Outcome == board.RolledBack:
		return domain.TaskCompletionReverted
	case r.Kind == board.CycleCompletion:
		return domain.TaskCompletionSet
	case r.Outcome == board.RolledBack:
		return domain.TaskMoveRolledBack
	default:
		return domain.TaskMoved
	}
}

// cycleEvent turns a resolved cycle into the event published on the feed.
func cycleEvent(s *session, r board.CycleReport) (domain.BoardEvent, error) {
	data := cycleEventData{From: r.From, To: r.To, Fields: r.Patch.Fields()}
	if r.Err != nil {
		data.Error = r.Err.Error()
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		return domain.BoardEvent{}, err
	}
	return domain.BoardEvent{
		ID:        uuid.NewString(),
		Type:      cycleEventType(r),
		ProjectID: s.projectID,
		TaskID:    r.TaskID,
		Board:     string(r.Board),
		UserID:    s.userID,
		Data:      raw,
		Timestamp: nextTimestamp(),
	}, nil
}

type errorPayload struct {
	Message string `json:"message"`
}

// streamNotifier surfaces failed cycles as SSE error events on the session
// topic.
type streamNotifier struct {
	relay  *stream.Relay
	topic  string
	logger *log.Logger
}

func (n *streamNotifier) NotifyFailure(ctx context.Context, message string) {
	data, err := sonic.Marshal(errorPayload{Message: message})
	if err != nil {
		n.logger.WithError(err).Error("marshal failure notification")
		return
	}
	ev := stream.Event{Name: stream.EventError, Data: data}
	if err := n.relay.Publish(context.WithoutCancel(ctx), n.topic, ev); err != nil {
		n.logger.WithError(err).WithField("topic", n.topic).Error("publish failure notification")
	}
}
