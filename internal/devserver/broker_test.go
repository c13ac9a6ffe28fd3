package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestHubDeliversPerInterview(t *testing.T) {
	hub := NewHub()
	a, releaseA := hub.Subscribe(1)
	b, releaseB := hub.Subscribe(2)
	defer releaseA()
	defer releaseB()

	if err := hub.Publish(context.Background(), newEvent(EventSessionEnded, 1)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ev := <-a:
		if ev.Type != EventSessionEnded || ev.InterviewID != 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case ev := <-b:
		t.Fatalf("subscriber of another interview got %+v", ev)
	default:
	}
}

func TestHubReleaseIsIdempotent(t *testing.T) {
	hub := NewHub()
	ch, release := hub.Subscribe(5)
	release()
	release()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after release")
	}
	if n := hub.subscribers(5); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	hub.Broadcast(newEvent(EventSessionEnded, 5))
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()
	ch, release := hub.Subscribe(1)
	defer release()

	done := make(chan struct{})
	go func() {
		for range 100 {
			hub.Broadcast(newEvent(EventFeedbackReady, 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected buffer full, got %d of %d", len(ch), cap(ch))
	}
}

func TestRedisBrokerRelaysToLocalSubscribers(t *testing.T) {
	b := &RedisBroker{hub: NewHub(), logger: slog.Default()}
	events, release := b.Subscribe(3)
	defer release()

	payload, _ := json.Marshal(newEvent(EventSessionEnded, 3))
	messages := make(chan *redis.Message, 3)
	messages <- &redis.Message{Channel: EventChannel, Payload: "not json"}
	messages <- &redis.Message{Channel: EventChannel, Payload: string(payload)}
	close(messages)

	b.relay(messages)

	select {
	case ev := <-events:
		if ev.Type != EventSessionEnded || ev.InterviewID != 3 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected relayed event")
	}
}
