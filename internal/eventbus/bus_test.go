package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, un1 := b.Subscribe(4)
	ch2, un2 := b.Subscribe(4)
	defer un1()
	defer un2()

	b.Publish(Event{Type: "batch.started"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != "batch.started" {
				t.Fatalf("sub %d: Type = %q", i, e.Type)
			}
			if e.Time.IsZero() {
				t.Fatalf("sub %d: Time not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no event", i)
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, un := b.Subscribe(1)
	defer un()

	b.Publish(Event{Type: "first"})
	b.Publish(Event{Type: "second"}) // buffer full; must not block

	e := <-ch
	if e.Type != "first" {
		t.Fatalf("Type = %q, want first", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event %q", e.Type)
	default:
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	_, un := b.Subscribe(1)
	un()
	un() // second call must not panic
	b.Publish(Event{Type: "after-unsub"})
}
