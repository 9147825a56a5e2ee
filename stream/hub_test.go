package stream

import (
	"encoding/json"
	"testing"
)

func TestHubBroadcastsPerTopic(t *testing.T) {
	h := NewHub(4)
	a, unsubA := h.Subscribe("u:p:status")
	defer unsubA()
	b, unsubB := h.Subscribe("u:p:member")
	defer unsubB()

	ev := Event{Name: EventBoard, Data: json.RawMessage(`{"kind":"status"}`)}
	if n := h.Broadcast("u:p:status", ev); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	select {
	case got := <-a:
		if got.Name != EventBoard || string(got.Data) != `{"kind":"status"}` {
			t.Fatalf("unexpected event %+v", got)
		}
	default:
		t.Fatal("expected event on status topic")
	}
	select {
	case got := <-b:
		t.Fatalf("member topic received %+v", got)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe("topic")
	if h.Subscribers("topic") != 1 {
		t.Fatalf("expected one subscriber")
	}
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if h.Subscribers("topic") != 0 {
		t.Fatalf("expected no subscribers")
	}
	if n := h.Broadcast("topic", Event{Name: EventBoard}); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe("topic")
	defer unsub()

	h.Broadcast("topic", Event{Name: EventBoard, Data: json.RawMessage(`1`)})
	if n := h.Broadcast("topic", Event{Name: EventBoard, Data: json.RawMessage(`2`)}); n != 0 {
		t.Fatalf("expected full subscriber to be skipped, got %d", n)
	}
	if got := <-ch; string(got.Data) != "1" {
		t.Fatalf("expected first event, got %s", got.Data)
	}
}
