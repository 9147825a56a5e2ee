package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRelayDeliversThroughRedis(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	hub := NewHub(4)
	ch, unsub := hub.Subscribe("u1:p1:status")
	defer unsub()

	relay := NewRelay(hub, rc, "chan", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	// wait for subscription to start
	time.Sleep(50 * time.Millisecond)

	ev := Event{Name: EventError, Data: json.RawMessage(`{"message":"failed to update task status"}`)}
	if err := relay.Publish(context.Background(), "u1:p1:status", ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.Name != EventError {
			t.Fatalf("unexpected event name %q", got.Name)
		}
		var body map[string]string
		if err := json.Unmarshal(got.Data, &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body["message"] != "failed to update task status" {
			t.Fatalf("unexpected payload %v", body)
		}
	case <-time.After(time.Second):
		t.Fatal("relayed event not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit")
	}
}

func TestRelayIgnoresMalformedPayloads(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	hub := NewHub(4)
	ch, unsub := hub.Subscribe("t")
	defer unsub()
	relay := NewRelay(hub, rc, "chan", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	rc.Publish(context.Background(), "chan", "not json")
	rc.Publish(context.Background(), "chan", `{"event":{"event":"board","data":{}}}`)
	if err := relay.Publish(context.Background(), "t", Event{Name: EventBoard, Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.Name != EventBoard {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("valid event not delivered after malformed ones")
	}
}

func TestRelayWithoutRedisDeliversLocally(t *testing.T) {
	hub := NewHub(1)
	ch, unsub := hub.Subscribe("t")
	defer unsub()
	relay := NewRelay(hub, nil, "", nil)
	relay.Run(context.Background())

	if err := relay.Publish(context.Background(), "t", Event{Name: EventBoard, Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-ch:
	default:
		t.Fatal("expected local delivery")
	}
}
