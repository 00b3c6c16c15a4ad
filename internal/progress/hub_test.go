package progress

import (
	"testing"
	"time"

	"clarivid/internal/core/domain"
)

func TestSubscribeDeliversConnectedFirst(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("job-1")
	defer cancel()

	ev := <-ch
	if ev.Kind != domain.EventConnected {
		t.Fatalf("expected connected event first, got %q", ev.Kind)
	}
	if ev.JobID != "job-1" {
		t.Fatalf("expected job-1, got %q", ev.JobID)
	}
}

func TestPublishReachesAllSubscribersOfJob(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe("job-1")
	defer cancel1()
	ch2, cancel2 := h.Subscribe("job-1")
	defer cancel2()
	other, cancelOther := h.Subscribe("job-2")
	defer cancelOther()

	<-ch1
	<-ch2
	<-other

	h.Publish(domain.LogEvent("job-1", "hello"))

	for _, ch := range []<-chan domain.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Message != "hello" {
				t.Fatalf("expected hello, got %q", ev.Message)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	select {
	case ev := <-other:
		t.Fatalf("job-2 subscriber received foreign event: %+v", ev)
	default:
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("job-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer without anyone draining it.
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish(domain.LogEvent("job-1", "line"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestCancelClosesChannelAndStopsDelivery(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("job-1")
	<-ch
	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}
	// Must not panic on publish after cancel.
	h.Publish(domain.LogEvent("job-1", "late"))
}
