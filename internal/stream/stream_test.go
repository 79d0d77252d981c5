package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)

	evt := TransitionEvent{
		EventID:    "evt-1",
		EntityType: "contract",
		EntityID:   "123",
		FromState:  "final_approval",
		ToState:    "signature",
		Trigger:    "approve_final",
		ActorID:    "user-1",
		OccurredAt: time.Now().UTC(),
	}
	s.Publish(evt)

	for _, ch := range []<-chan TransitionEvent{a, b} {
		select {
		case got := <-ch:
			if got.EventID != "evt-1" || got.ToState != "signature" {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never drained; the buffer fills and further publishes must drop.
	_ = s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(TransitionEvent{EventID: "evt"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after context end")
	}
}
