package contentindex

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/storage"
)

type failingConverter struct{}

func (failingConverter) Plaintext([]byte) (string, error) { return "", errors.New("bad markdown") }

func newWorkspace(t *testing.T) *profile.Workspace {
	t.Helper()
	ws := profile.NewWorkspace(storage.NewMemFS(), "blog", nil)
	if err := ws.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return ws
}

func TestQueueAndApply(t *testing.T) {
	ws := newWorkspace(t)
	x := New(ws, render.New(0), nil)

	x.QueueEntry("u1", "Gardens", []byte("Notes about *compost* and soil."))
	if _, ok, _ := ws.ReadDoc(profile.ContentIndexFile); ok {
		t.Fatal("queue must not write")
	}
	if err := x.ApplyQueued(); err != nil {
		t.Fatalf("ApplyQueued: %v", err)
	}
	if x.Queued() != 0 {
		t.Errorf("queue not cleared: %d", x.Queued())
	}

	entries, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := entries["u1"]; got.Title != "Gardens" || got.Content != "Notes about compost and soil." {
		t.Errorf("entry = %+v", got)
	}
}

func TestApply_MergesByUID(t *testing.T) {
	ws := newWorkspace(t)
	_ = ws.WriteJSON(profile.ContentIndexFile, map[string]Entry{
		"old": {Title: "Old", Content: "kept"},
		"u1":  {Title: "Stale", Content: "stale"},
	})
	x := New(ws, render.New(0), nil)
	x.QueueEntry("u1", "Fresh", []byte("fresh"))
	if err := x.ApplyQueued(); err != nil {
		t.Fatalf("ApplyQueued: %v", err)
	}

	entries, _ := Load(ws)
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want 2", entries)
	}
	if entries["old"].Content != "kept" {
		t.Error("existing entry must not be pruned")
	}
	if entries["u1"].Title != "Fresh" {
		t.Errorf("u1 = %+v, want overwrite", entries["u1"])
	}
}

func TestQueue_ConversionFailureFallsBackToTitle(t *testing.T) {
	ws := newWorkspace(t)
	x := New(ws, failingConverter{}, nil)
	x.QueueEntry("u1", "Only Title", []byte("whatever"))
	if err := x.ApplyQueued(); err != nil {
		t.Fatalf("ApplyQueued: %v", err)
	}
	entries, _ := Load(ws)
	if got := entries["u1"]; got.Content != "Only Title" {
		t.Errorf("content = %q, want title fallback", got.Content)
	}
}

func TestSearch(t *testing.T) {
	ws := newWorkspace(t)
	_ = ws.WriteJSON(profile.ContentIndexFile, map[string]Entry{
		"u1": {Title: "Compost", Content: "worms break down kitchen scraps"},
		"u2": {Title: "Bicycles", Content: "chains and gears"},
	})

	hits, err := Search(context.Background(), ws, "worms", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].UID != "u1" || hits[0].Title != "Compost" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	hits, err := Search(context.Background(), newWorkspace(t), "anything", 0)
	if err != nil || hits != nil {
		t.Errorf("hits = %v, err = %v", hits, err)
	}
}

func TestApply_NullDocumentStartsEmpty(t *testing.T) {
	ws := newWorkspace(t)
	_ = ws.WriteDoc(profile.ContentIndexFile, []byte("null"))

	x := New(ws, render.New(0), nil)
	x.QueueEntry("u1", "One", []byte("first note"))
	if err := x.ApplyQueued(); err != nil {
		t.Fatalf("ApplyQueued: %v", err)
	}
	entries, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entries["u1"].Title != "One" {
		t.Errorf("entries = %v", entries)
	}
	if archives, _ := ws.Archives(); len(archives) != 1 {
		t.Errorf("archives = %v, want 1", archives)
	}
}
