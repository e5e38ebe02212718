package server

import (
	"context"
	"testing"
	"time"

	"github.com/morotw/awards/backend/internal/event"
)

func revealedFinalist(id string, position int) event.Finalist {
	revealedAt := time.Date(2025, time.December, 20, 21, 0, 0, 0, time.UTC)
	return event.Finalist{
		ID:            id,
		CategoryID:    5,
		DisplayName:   "Cuenta del Año",
		VoteCount:     42,
		FinalPosition: &position,
		IsRevealed:    true,
		RevealedAt:    &revealedAt,
	}
}

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	dispatcher.PublishReveal(revealedFinalist("finalist-1", 3))

	select {
	case received := <-stream:
		if received.FinalistID != "finalist-1" {
			t.Fatalf("expected finalist-1, got %s", received.FinalistID)
		}
		if received.FinalPosition != 3 {
			t.Fatalf("expected final position 3, got %d", received.FinalPosition)
		}
		if received.VoteCount != 42 {
			t.Fatalf("expected vote count 42, got %d", received.VoteCount)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected reveal message within deadline")
	}
}

func TestRealtimeDispatcherFansOutToEverySubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, cleanupFirst := dispatcher.Subscribe(ctx)
	defer cleanupFirst()
	second, cleanupSecond := dispatcher.Subscribe(ctx)
	defer cleanupSecond()

	if count := dispatcher.SubscriberCount(); count != 2 {
		t.Fatalf("expected 2 subscribers, got %d", count)
	}

	dispatcher.PublishReveal(revealedFinalist("finalist-2", 1))

	for _, stream := range []<-chan RevealMessage{first, second} {
		select {
		case received := <-stream:
			if received.FinalistID != "finalist-2" {
				t.Fatalf("expected finalist-2, got %s", received.FinalistID)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected reveal message within deadline")
		}
	}
}

func TestRealtimeDispatcherDropsMessagesForSlowSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	// Fill the buffer without draining; publishing must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for index := 0; index < 64; index++ {
			dispatcher.PublishReveal(revealedFinalist("finalist-overflow", index+1))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
}

func TestRealtimeDispatcherRemovesSubscriberOnContextCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()
	cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dispatcher.SubscriberCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected subscriber removal after cancel, still %d registered", dispatcher.SubscriberCount())
}
