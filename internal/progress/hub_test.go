package progress

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_DeliversToSubscriber(t *testing.T) {
	hub := newTestHub()
	events := hub.Subscribe()
	defer hub.Unsubscribe(events)

	hub.Publish(EventUpload, Event{
		FileID:     "f1",
		ProviderID: "p1",
		Status:     StatusStarting,
	})

	select {
	case e := <-events:
		assert.Equal(t, EventUpload, e.Event)
		assert.Equal(t, "f1", e.FileID)
		assert.Equal(t, StatusStarting, e.Status)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := newTestHub()
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)

	hub.Publish(EventDelete, Event{FileID: "f1", Status: StatusCompleted})

	for _, ch := range []chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, EventDelete, e.Event)
		case <-time.After(time.Second):
			t.Fatal("event not delivered to all subscribers")
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := newTestHub()
	slow := hub.Subscribe()
	defer hub.Unsubscribe(slow)

	// fill the buffer and then some; Publish must never block
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish(EventUpload, Event{FileID: "f1", Status: StatusStarting})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// the subscriber got at most its buffer worth of events
	received := 0
	for {
		select {
		case <-slow:
			received++
			continue
		default:
		}
		break
	}
	assert.LessOrEqual(t, received, subscriberBuffer)
	assert.Positive(t, received)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := newTestHub()
	events := hub.Subscribe()
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(events)
	assert.Equal(t, 0, hub.SubscriberCount())

	_, open := <-events
	assert.False(t, open, "channel must be closed on unsubscribe")

	// double unsubscribe is harmless
	hub.Unsubscribe(events)
}

func TestHub_NoSubscribers(t *testing.T) {
	hub := newTestHub()
	// publishing into the void must not panic or block
	hub.Publish(EventUpload, Event{FileID: "f1"})
}
