package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1@example.com")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		Principal: "user-1@example.com",
		EventType: RealtimeEventInventoryChanged,
		IDs:       []string{"item-a", "item-b"},
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventInventoryChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventInventoryChanged, received.EventType)
		}
		if len(received.IDs) != 2 {
			t.Fatalf("expected 2 ids, got %d", len(received.IDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByPrincipal(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2@example.com")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(ctx, "user-3@example.com")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		Principal: "user-3@example.com",
		EventType: RealtimeEventInventoryChanged,
		IDs:       []string{"item-c"},
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated principal")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.Principal != "user-3@example.com" {
			t.Fatalf("expected user-3, received %s", msg.Principal)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed principal")
	}
}

func TestRealtimeDispatcherBroadcastReachesEveryone(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, firstCleanup := dispatcher.Subscribe(ctx, "a@example.com")
	defer firstCleanup()
	second, secondCleanup := dispatcher.Subscribe(ctx, "b@example.com")
	defer secondCleanup()

	dispatcher.Broadcast(RealtimeMessage{EventType: RealtimeEventTrainingChanged, IDs: []string{"training-1"}})

	for _, stream := range []<-chan RealtimeMessage{first, second} {
		select {
		case msg := <-stream:
			if msg.EventType != RealtimeEventTrainingChanged {
				t.Fatalf("unexpected event %s", msg.EventType)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected broadcast to reach every subscriber")
		}
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	_, cleanup := dispatcher.Subscribe(ctx, "gone@example.com")
	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		dispatcher.mu.RLock()
		remaining := len(dispatcher.subscribers)
		dispatcher.mu.RUnlock()
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cleanup()
}
