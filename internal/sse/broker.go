// Package sse streams vault changes and publish run progress to browsers
// over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/starford/folio/internal/publish"
)

// Broker fans vault and publish events out to connected browsers. A client
// that falls behind loses messages instead of blocking the sender.
type Broker struct {
	throttle time.Duration

	mu        sync.Mutex
	subs      map[chan []byte]struct{}
	lastLinks time.Time
	closed    bool
}

// NewBroker returns a broker that emits links.updated at most once per
// linksThrottle.
func NewBroker(linksThrottle time.Duration) *Broker {
	if linksThrottle <= 0 {
		linksThrottle = 2 * time.Second
	}
	return &Broker{throttle: linksThrottle, subs: make(map[chan []byte]struct{})}
}

// frame encodes one SSE message.
func frame(event string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload))
}

// send delivers frames to every subscriber. Callers hold b.mu.
func (b *Broker) send(frames ...[]byte) {
	for _, f := range frames {
		if f == nil {
			continue
		}
		for ch := range b.subs {
			select {
			case ch <- f:
			default:
			}
		}
	}
}

// Subscribe registers a client. After Close it returns a closed channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Broker) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close disconnects every client. Later events are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}

// PublishNoteEvent broadcasts note.created, note.updated or note.deleted
// and, throttled, links.updated. Its signature matches the index watcher
// callback; other kinds are ignored.
func (b *Broker) PublishNoteEvent(kind, path string) {
	switch kind {
	case "created", "updated", "deleted":
	default:
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.send(frame("note."+kind, map[string]string{"path": path}))
	// A note change may alter resolved links and backlinks.
	if now := time.Now(); now.Sub(b.lastLinks) >= b.throttle {
		b.lastLinks = now
		b.send(frame("links.updated", map[string]string{}))
	}
}

// Observe broadcasts a publish run transition as publish.<state>.
func (b *Broker) Observe(ev publish.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.send(frame("publish."+string(ev.State), ev))
}

// ServeHTTP streams events to one client until it disconnects or the
// broker closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
