package board

import (
	"reflect"
	"testing"

	"hackboard/domain"
)

func strPtr(s string) *string { return &s }

func sampleTasks() []domain.Task {
	return []domain.Task{
		{ID: "a", Title: "Set up repo", Status: domain.StatusTodo},
		{ID: "b", Title: "Design schema", Status: domain.StatusDoing, Assignee: strPtr("alice")},
		{ID: "c", Title: "Pitch deck", Status: domain.StatusDone, Assignee: strPtr("bob")},
		{ID: "d", Title: "Landing page", Assignee: strPtr("carol")},
		{ID: "e", Title: "Auth", Status: domain.StatusTodo, Assignee: strPtr("bob")},
		{ID: "", Title: "Broken card", Status: domain.StatusDoing},
	}
}

func sampleMembers() []domain.Member {
	return []domain.Member{{ID: "bob", Name: "Bob"}, {ID: "alice", Name: "Alice"}}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestBuildPlacesEveryTaskExactlyOnce(t *testing.T) {
	strategies := map[string]Strategy{
		"status": StatusStrategy{},
		"member": NewMemberStrategy(sampleMembers()),
	}
	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			tasks := sampleTasks()
			b := Build(tasks, strategy)
			if b.Len() != len(tasks) {
				t.Fatalf("expected %d tasks on board, got %d", len(tasks), b.Len())
			}
			counts := map[string]int{}
			for _, k := range b.Keys() {
				for _, task := range b.Bucket(k) {
					counts[task.Title]++
				}
			}
			for _, task := range tasks {
				if counts[task.Title] != 1 {
					t.Fatalf("task %q appears %d times", task.Title, counts[task.Title])
				}
			}
		})
	}
}

func TestBuildIsDeterministicAndStable(t *testing.T) {
	first := Build(sampleTasks(), StatusStrategy{})
	second := Build(sampleTasks(), StatusStrategy{})
	if !reflect.DeepEqual(first.View(), second.View()) {
		t.Fatalf("expected identical boards, got %#v and %#v", first.View(), second.View())
	}
	want := []string{"a", "d", "e"}
	if got := ids(first.Bucket(string(domain.StatusTodo))); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected TODO order %v, got %v", want, got)
	}
}

func TestBuildStatusDefaultsToTodo(t *testing.T) {
	b := Build([]domain.Task{{ID: "x"}, {ID: "y", Status: "ARCHIVED"}}, StatusStrategy{})
	if got := ids(b.Bucket("TODO")); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("expected tasks without known status in TODO, got %v", got)
	}
}

func TestBuildMemberFallsBackToUnassigned(t *testing.T) {
	b := Build(sampleTasks(), NewMemberStrategy(sampleMembers()))

	wantKeys := []string{"bob", "alice", Unassigned}
	if !reflect.DeepEqual(b.Keys(), wantKeys) {
		t.Fatalf("expected keys %v, got %v", wantKeys, b.Keys())
	}
	if got := ids(b.Bucket(Unassigned)); !reflect.DeepEqual(got, []string{"a", "d", ""}) {
		t.Fatalf("unexpected unassigned bucket: %v", got)
	}
	if got := ids(b.Bucket("bob")); !reflect.DeepEqual(got, []string{"c", "e"}) {
		t.Fatalf("unexpected bob bucket: %v", got)
	}
}

func TestBuildMemberRemovedFromList(t *testing.T) {
	tasks := []domain.Task{{ID: "B", Assignee: strPtr("alice")}}
	b := Build(tasks, NewMemberStrategy([]domain.Member{{ID: "bob"}}))
	if got := ids(b.Bucket(Unassigned)); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("expected B under unassigned, got %v", got)
	}
	if got := b.Bucket("alice"); len(got) != 0 {
		t.Fatalf("expected no bucket for removed member, got %v", got)
	}
}

func TestNewMemberStrategySkipsDuplicates(t *testing.T) {
	s := NewMemberStrategy([]domain.Member{{ID: "bob"}, {ID: ""}, {ID: "bob"}, {ID: Unassigned}, {ID: "amy"}})
	want := []string{"bob", "amy", Unassigned}
	if !reflect.DeepEqual(s.Keys(), want) {
		t.Fatalf("expected %v, got %v", want, s.Keys())
	}
	if keys := (MemberStrategy{}).Keys(); !reflect.DeepEqual(keys, []string{Unassigned}) {
		t.Fatalf("zero strategy should only have the unassigned bucket, got %v", keys)
	}
}

func TestFindSkipsTasksWithoutID(t *testing.T) {
	b := Build(sampleTasks(), StatusStrategy{})
	if _, _, ok := b.Find(""); ok {
		t.Fatalf("expected task without id to be unreachable")
	}
	task, key, ok := b.Find("b")
	if !ok || key != "DOING" || task.Title != "Design schema" {
		t.Fatalf("unexpected find result: %v %q %v", task, key, ok)
	}
}
