package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hackboard/board"
	"hackboard/domain"
)

// session is one mounted board: a user looking at a project's board of a
// given kind.
type session struct {
	key       string
	userID    string
	projectID string
	kind      board.Kind
	ctrl      *board.Controller
	created   time.Time
}

func sessionKey(userID, projectID string, kind board.Kind) string {
	return userID + ":" + projectID + ":" + string(kind)
}

func parseKind(raw string) (board.Kind, error) {
	switch board.Kind(raw) {
	case board.KindStatus, board.KindMember:
		return board.Kind(raw), nil
	}
	return "", fmt.Errorf("unknown board kind %q", raw)
}

type registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) get(key string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key]
}

// add stores s unless a session with the same key was mounted concurrently,
// in which case the existing one wins.
func (r *registry) add(s *session) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.key]; ok {
		return existing
	}
	r.sessions[s.key] = s
	return s
}

func (r *registry) remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[key]; !ok {
		return false
	}
	delete(r.sessions, key)
	return true
}

// forProject returns the sessions a user has open on a project.
func (r *registry) forProject(userID, projectID string) []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session
	for _, kind := range []board.Kind{board.KindStatus, board.KindMember} {
		if s, ok := r.sessions[sessionKey(userID, projectID, kind)]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// loadBoard fetches what a board of kind needs and partitions it.
func loadBoard(ctx context.Context, src TaskSource, projectID string, kind board.Kind) (*board.Board, error) {
	tasks, err := src.FetchTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	var strategy board.Strategy = board.StatusStrategy{}
	if kind == board.KindMember {
		members, err := src.FetchMembers(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("fetch members: %w", err)
		}
		strategy = board.NewMemberStrategy(members)
	}
	return board.Build(tasks, strategy), nil
}

// findTask looks the task up on every board the user has open on the project.
func findTask(sessions []*session, taskID string) (domain.Task, bool) {
	for _, s := range sessions {
		if t, _, ok := s.ctrl.Board().Find(taskID); ok {
			return t, true
		}
	}
	return domain.Task{}, false
}
