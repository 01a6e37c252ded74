package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/starford/folio/internal/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	writes map[string]map[string]any
	fail   map[string]bool
}

func (f *fakeWriter) UpdateMetadata(_ context.Context, path string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[path] {
		return errors.New("disk full")
	}
	if f.writes == nil {
		f.writes = make(map[string]map[string]any)
	}
	f.writes[path] = fields
	return nil
}

func member(path string) *models.Note {
	return &models.Note{Path: path, Contexts: models.NewMembership("blog")}
}

func TestResolve_ExistingUID(t *testing.T) {
	s := New(&fakeWriter{}, "uid", nil)
	n := member("a.md")
	n.UID = "persisted"
	if got := s.Resolve(n); got != "persisted" {
		t.Errorf("uid = %q, want persisted", got)
	}
	if len(s.Pending()) != 0 {
		t.Error("persisted uid must not be queued")
	}
}

func TestResolve_NoMembershipNoUID(t *testing.T) {
	s := New(&fakeWriter{}, "uid", nil)
	if got := s.Resolve(&models.Note{Path: "a.md"}); got != "" {
		t.Errorf("uid = %q, want empty", got)
	}
	if len(s.Pending()) != 0 {
		t.Error("non-member must not be queued")
	}
}

func TestResolve_StableWhilePending(t *testing.T) {
	s := New(&fakeWriter{}, "uid", nil)
	first := s.Resolve(member("a.md"))
	if first == "" {
		t.Fatal("member should get a uid")
	}
	if second := s.Resolve(member("a.md")); second != first {
		t.Errorf("second resolve = %q, want %q", second, first)
	}
}

func TestResolve_ConcurrentSameNote(t *testing.T) {
	s := New(&fakeWriter{}, "uid", nil)
	const n = 32
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Resolve(member("shared.md"))
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("result %d = %q, want %q", i, r, results[0])
		}
	}
	if len(s.Pending()) != 1 {
		t.Errorf("pending = %v", s.Pending())
	}
}

func TestFlush_WritesAndClears(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, "uid", nil)
	uid := s.Resolve(member("a.md"))

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if w.writes["a.md"]["uid"] != uid {
		t.Errorf("written = %v, want uid %q", w.writes["a.md"], uid)
	}
	if len(s.Pending()) != 0 {
		t.Error("cache should be cleared after flush")
	}
}

func TestFlush_FailureKeepsPending(t *testing.T) {
	w := &fakeWriter{fail: map[string]bool{"b.md": true}}
	s := New(w, "uid", nil)
	s.Resolve(member("a.md"))
	uidB := s.Resolve(member("b.md"))

	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	pending := s.Pending()
	if _, ok := pending["a.md"]; ok {
		t.Error("written entry should be dropped")
	}
	if pending["b.md"] != uidB {
		t.Errorf("failed entry should keep its uid, pending = %v", pending)
	}
}

func TestNewUID_Format(t *testing.T) {
	a, b := NewUID(), NewUID()
	if len(a) != 22 {
		t.Errorf("len = %d, want 22", len(a))
	}
	if a == b {
		t.Error("uids should differ")
	}
}

func TestResolve_StaleNoteAfterFlush(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, "uid", nil)
	stale := member("x.md") // read before another operation assigned a uid

	first := s.Resolve(member("x.md"))
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := s.Resolve(stale); got != first {
		t.Errorf("stale resolve = %q, want flushed %q", got, first)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("flushed note queued again: %v", s.Pending())
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if w.writes["x.md"]["uid"] != first {
		t.Errorf("on disk = %v, want %q", w.writes["x.md"], first)
	}
}

// diskWriter also reports what it wrote, the way the vault reports indexed UIDs.
type diskWriter struct{ fakeWriter }

func (d *diskWriter) PersistedUID(path string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	uid, _ := d.writes[path]["uid"].(string)
	return uid
}

func TestResolve_PersistedByOtherStore(t *testing.T) {
	w := &diskWriter{}
	stale := member("x.md")

	a := New(w, "uid", nil)
	first := a.Resolve(member("x.md"))
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	b := New(w, "uid", nil)
	if got := b.Resolve(stale); got != first {
		t.Errorf("second store uid = %q, want persisted %q", got, first)
	}
	if len(b.Pending()) != 0 {
		t.Errorf("persisted uid queued again: %v", b.Pending())
	}
}
