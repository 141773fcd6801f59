package events

import "testing"

type recordingEmitter struct {
	events []Event
}

func (r *recordingEmitter) Emit(e Event) { r.events = append(r.events, e) }

func TestBroadcasterForwardsAndFansOut(t *testing.T) {
	inner := &recordingEmitter{}
	b := NewBroadcaster(inner)
	sub, cancel := b.Subscribe(4)
	defer cancel()

	b.Emit(MetadataUpdated{MetadataURI: "ipfs://meta"})

	if len(inner.events) != 1 {
		t.Fatalf("wrapped emitter events: %d", len(inner.events))
	}
	select {
	case got := <-sub:
		if got.EventType() != TypeMetadataUpdated {
			t.Fatalf("event type: %s", got.EventType())
		}
	default:
		t.Fatalf("subscriber did not receive the event")
	}
}

func TestBroadcasterDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBroadcaster(nil)
	sub, cancel := b.Subscribe(1)
	defer cancel()

	b.Emit(MetadataUpdated{MetadataURI: "one"})
	// The buffer is full; this must neither block nor queue.
	b.Emit(MetadataUpdated{MetadataURI: "two"})

	first := (<-sub).(MetadataUpdated)
	if first.MetadataURI != "one" {
		t.Fatalf("first event: %q", first.MetadataURI)
	}
	select {
	case evt := <-sub:
		t.Fatalf("overflow event should have been dropped, got %v", evt)
	default:
	}
}

func TestBroadcasterCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	sub, cancel := b.Subscribe(1)
	cancel()
	// Cancelling twice is harmless.
	cancel()

	if _, ok := <-sub; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	// Emitting after cancel must not panic or write to the closed channel.
	b.Emit(MetadataUpdated{MetadataURI: "late"})
}
