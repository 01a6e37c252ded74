package hashchain

import (
	"testing"

	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/storage"
)

func TestCompute_DeterministicAndSensitive(t *testing.T) {
	base := Compute("u1", "Title", "body")
	if base != Compute("u1", "Title", "body") {
		t.Fatal("hash not deterministic")
	}
	if len(base) != 64 {
		t.Errorf("len = %d, want 64", len(base))
	}
	for name, h := range map[string]string{
		"uid":   Compute("u2", "Title", "body"),
		"title": Compute("u1", "Other", "body"),
		"raw":   Compute("u1", "Title", "body!"),
		"shift": Compute("u1T", "itle", "body"),
	} {
		if h == base {
			t.Errorf("%s change not detected", name)
		}
	}
}

func TestDerivePrior(t *testing.T) {
	h := History{}
	if p := h.DerivePrior("u", "a"); p != nil {
		t.Errorf("no history: prior = %q, want nil", *p)
	}

	h["u"] = []string{"a"}
	if p := h.DerivePrior("u", "a"); p != nil {
		t.Errorf("single equal entry: prior = %q, want nil", *p)
	}
	if p := h.DerivePrior("u", "b"); p == nil || *p != "a" {
		t.Errorf("changed content: prior = %v, want a", p)
	}

	h["u"] = []string{"a", "b"}
	if p := h.DerivePrior("u", "b"); p == nil || *p != "a" {
		t.Errorf("republish unchanged: prior = %v, want a", p)
	}
}

func TestAppendIfChanged_NoConsecutiveDuplicates(t *testing.T) {
	h := History{}
	seq := []string{"a", "a", "b", "b", "b", "a", "c", "c"}
	for _, s := range seq {
		h.AppendIfChanged("u", s)
	}
	want := []string{"a", "b", "a", "c"}
	got := h["u"]
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
}

func TestPublishTwiceUnchanged(t *testing.T) {
	h := History{}
	hash := Compute("u", "T", "same")

	if p := h.DerivePrior("u", hash); p != nil {
		t.Fatalf("first publish prior = %q", *p)
	}
	h.AppendIfChanged("u", hash)

	p := h.DerivePrior("u", hash)
	if p != nil && *p == hash {
		t.Fatal("prior must never equal current")
	}
	if p != nil {
		t.Errorf("second unchanged publish prior = %q, want nil", *p)
	}
}

func TestLoadSave_CorruptQuarantined(t *testing.T) {
	ws := profile.NewWorkspace(storage.NewMemFS(), "blog", nil)
	_ = ws.WriteDoc(profile.HistoryFile, []byte("{not json"))

	h, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(h) != 0 {
		t.Errorf("corrupt history should load empty, got %v", h)
	}
	archives, _ := ws.Archives()
	if len(archives) != 1 {
		t.Errorf("archives = %v, want 1", archives)
	}

	h.AppendIfChanged("u", "x")
	if err := Save(ws, h); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := Load(ws)
	if err != nil || len(again["u"]) != 1 {
		t.Errorf("reload = %v, err = %v", again, err)
	}
}

func TestLoad_NullDocumentStartsEmpty(t *testing.T) {
	ws := profile.NewWorkspace(storage.NewMemFS(), "blog", nil)
	_ = ws.WriteDoc(profile.HistoryFile, []byte("null"))

	h, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !h.AppendIfChanged("u", "x") {
		t.Error("append to fresh history should report a change")
	}
	if archives, _ := ws.Archives(); len(archives) != 1 {
		t.Errorf("archives = %v, want 1", archives)
	}
}
