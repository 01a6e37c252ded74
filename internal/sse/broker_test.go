package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/publish"
)

// drain collects every message currently buffered on ch.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	if n := b.subscribers(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.subscribers(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
}

func TestObserve_PublishStates(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Observe(publish.Event{RunID: "r1", ProfileID: "blog", State: publish.StateUploading, Notes: 3})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: publish.uploading") {
			t.Errorf("event type missing in %q", s)
		}
		if !strings.Contains(s, `"profile_id":"blog"`) || !strings.Contains(s, `"notes":3`) {
			t.Errorf("payload missing in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishNoteEvent_LinksThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "a.md")
	b.PublishNoteEvent("deleted", "b.md")
	b.PublishNoteEvent("renamed", "c.md")
	time.Sleep(50 * time.Millisecond)

	var notes, linkEvents int
	for _, s := range drain(ch) {
		if strings.Contains(s, "links.updated") {
			linkEvents++
		} else {
			notes++
		}
	}
	if notes != 2 {
		t.Errorf("note events = %d, want 2", notes)
	}
	if linkEvents != 1 {
		t.Errorf("links events = %d, want 1", linkEvents)
	}
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if n := b.subscribers(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	b.PublishNoteEvent("updated", "x.md")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.updated") || !strings.Contains(body, "event: links.updated") {
		t.Errorf("body = %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if n := b.subscribers(); n != 0 {
		t.Errorf("clients after disconnect = %d", n)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel still open")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.subscribers(); n != 0 {
		t.Fatalf("clients = %d after close", n)
	}
	// No-ops after close.
	b.Observe(publish.Event{State: publish.StateIdle})
	b.PublishNoteEvent("updated", "x.md")
	if sub := b.Subscribe(); sub == nil {
		t.Error("Subscribe returned nil after close")
	}
}

func TestSlowClientDropsMessages(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	slow := b.Subscribe()
	defer b.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.PublishNoteEvent("updated", "a.md")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slow client blocked the sender")
	}
	if n := len(drain(slow)); n != cap(slow) {
		t.Errorf("buffered = %d, want %d", n, cap(slow))
	}
}
