package board

import (
	"time"

	"hackboard/domain"
)

// Unassigned is the bucket key for tasks without a known assignee.
const Unassigned = "unassigned"

// Kind names a keying scheme.
type Kind string

const (
	KindStatus Kind = "status"
	KindMember Kind = "member"
)

// Strategy decides how tasks map onto buckets and what a move changes.
type Strategy interface {
	Kind() Kind
	// Keys returns bucket keys in display order.
	Keys() []string
	// KeyOf returns the bucket a task belongs to. The result may be unknown
	// to Keys, in which case Fallback is used.
	KeyOf(t domain.Task) string
	Fallback() string
	// Transition computes the remote patch for moving t into key.
	Transition(t domain.Task, key string, now time.Time) domain.TaskPatch
	// FailureMessage is shown to the user when a move is rolled back.
	FailureMessage() string
}

// StatusStrategy partitions tasks by workflow status.
type StatusStrategy struct{}

func (StatusStrategy) Kind() Kind { return KindStatus }

func (StatusStrategy) Keys() []string {
	keys := make([]string, len(domain.Statuses))
	for i, s := range domain.Statuses {
		keys[i] = string(s)
	}
	return keys
}

func (StatusStrategy) KeyOf(t domain.Task) string { return string(t.Status) }

func (StatusStrategy) Fallback() string { return string(domain.StatusTodo) }

func (StatusStrategy) Transition(t domain.Task, key string, now time.Time) domain.TaskPatch {
	return domain.StatusTransition(t, domain.Status(key), now)
}

func (StatusStrategy) FailureMessage() string { return "failed to update task status" }

// MemberStrategy partitions tasks by assignee, with one bucket per member in
// member-list order followed by the Unassigned bucket.
type MemberStrategy struct {
	keys []string
}

// NewMemberStrategy builds a strategy over the given members. Duplicate and
// empty member ids are skipped.
func NewMemberStrategy(members []domain.Member) MemberStrategy {
	seen := make(map[string]struct{}, len(members))
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		if m.ID == "" || m.ID == Unassigned {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		keys = append(keys, m.ID)
	}
	keys = append(keys, Unassigned)
	return MemberStrategy{keys: keys}
}

func (MemberStrategy) Kind() Kind { return KindMember }

func (s MemberStrategy) Keys() []string {
	if len(s.keys) == 0 {
		return []string{Unassigned}
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (MemberStrategy) KeyOf(t domain.Task) string {
	if id := t.AssigneeID(); id != "" {
		return id
	}
	return Unassigned
}

func (MemberStrategy) Fallback() string { return Unassigned }

func (MemberStrategy) Transition(t domain.Task, key string, _ time.Time) domain.TaskPatch {
	p := domain.TaskPatch{IfMatch: t.ETag}
	if key == Unassigned {
		p.ClearAssignee = true
		return p
	}
	assignee := key
	p.Assignee = &assignee
	return p
}

func (MemberStrategy) FailureMessage() string { return "failed to update task assignee" }
