package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "field.added", Data: map[string]int64{"id": 7}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: field.added") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":7`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) (preview, other int) {
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "event: "+PreviewUpdated) {
				preview++
			} else {
				other++
			}
		default:
			return preview, other
		}
	}
}

func TestPublishDocumentEvent_PreviewThrottle(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First body change triggers preview.updated right away.
	b.PublishDocumentEvent("body.updated", map[string]string{}, true)
	// The next two inside the interval coalesce into one trailing event.
	b.PublishDocumentEvent("body.updated", map[string]string{}, true)
	b.PublishDocumentEvent("body.updated", map[string]string{}, true)
	// Field changes never trigger a preview.
	b.PublishDocumentEvent("field.added", map[string]int64{"id": 1}, false)

	time.Sleep(50 * time.Millisecond)
	preview, other := drain(ch)
	if other != 4 {
		t.Errorf("document events = %d, want 4", other)
	}
	if preview != 1 {
		t.Errorf("preview events = %d, want 1 (throttled)", preview)
	}

	time.Sleep(300 * time.Millisecond)
	preview, other = drain(ch)
	if preview != 1 || other != 0 {
		t.Errorf("trailing preview = %d, other = %d, want 1, 0", preview, other)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "body.updated", Data: map[string]string{"revision": "abc"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: body.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for range 70 {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "body.updated", Data: map[string]string{}})
	b.PublishDocumentEvent("body.updated", map[string]string{}, true)
}

func TestBroker_DeliversQueuedEventsOnClose(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatal("subscriber not registered")
	}

	b.Publish(Event{Type: ServerShutdown, Data: map[string]string{}})
	b.Close()

	var got []string
	for msg := range ch {
		got = append(got, string(msg))
	}
	if len(got) != 1 || !strings.Contains(got[0], "event: "+ServerShutdown) {
		t.Errorf("messages = %q", got)
	}
}
