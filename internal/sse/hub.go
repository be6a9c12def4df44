// Package sse implements the push notification channel: a process-local hub
// fanning out events to connected server-sent-events clients. Delivery is
// best effort, at most once, with no replay; consumers treat events as a
// "something changed" hint, never as authoritative state.
package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// KeepaliveInterval is how often an idle connection gets a comment frame.
const KeepaliveInterval = 30 * time.Second

// subscriberBuffer is the per-client event buffer; events beyond it are
// dropped rather than blocking the publisher.
const subscriberBuffer = 8

// Event is one published notification.
type Event struct {
	Name string
	Data interface{}
}

// Hub is the subscriber registry. It is an explicit service object with a
// start/stop lifecycle so separate instances never share state.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	started bool
}

// NewHub creates a hub. Call Start before use.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Start makes the hub accept subscribers.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
}

// Stop disconnects all subscribers and rejects new ones.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = false
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

// Subscribe registers a client. The returned cancel func must be called on
// disconnect. Subscribing to a stopped hub returns a closed channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if !h.started {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish broadcasts an event to all currently connected subscribers.
// Slow subscribers miss events instead of blocking the publisher.
func (h *Hub) Publish(event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- Event{Name: event, Data: payload}:
		default:
		}
	}
}

// SubscriberCount reports how many clients are connected.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP streams hub events to one client as text/event-stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := h.Subscribe()
	defer cancel()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				log.Printf("SSE marshal error: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}
