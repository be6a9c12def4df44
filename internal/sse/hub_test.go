package sse

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	events, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish("refresh", map[string]int{"added": 3})

	select {
	case ev := <-events:
		if ev.Name != "refresh" {
			t.Errorf("event name = %q, want refresh", ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	events, cancel := hub.Subscribe()
	cancel()

	if _, ok := <-events; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if n := hub.SubscriberCount(); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}
	// Publishing with no subscribers must not panic or block.
	hub.Publish("refresh", nil)
}

func TestHubDropsEventsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	_, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			hub.Publish("refresh", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestHubStopClosesSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Start()

	events, cancel := hub.Subscribe()
	defer cancel()
	hub.Stop()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Stop")
	}

	// The stopped hub hands out closed channels.
	events, cancel2 := hub.Subscribe()
	defer cancel2()
	if _, ok := <-events; ok {
		t.Error("subscribe after Stop should return a closed channel")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the handler to register its subscription.
	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish("refresh", map[string]int{"added": 2})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, ": connected") {
		t.Errorf("missing connect comment in %q", body)
	}
	if !strings.Contains(body, "event: refresh") || !strings.Contains(body, `"added":2`) {
		t.Errorf("missing event frame in %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
