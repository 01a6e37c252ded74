package mapping

import (
	"strings"
	"testing"

	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/storage"
)

func newWorkspace(t *testing.T) *profile.Workspace {
	t.Helper()
	ws := profile.NewWorkspace(storage.NewMemFS(), "blog", nil)
	if err := ws.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return ws
}

func TestLoad_Empty(t *testing.T) {
	tbl, err := Load(newWorkspace(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d, want 0", tbl.Len())
	}
	if _, ok := tbl.LookupHashByUID("x"); ok {
		t.Error("unexpected hash")
	}
}

func TestUpdateSaveReload(t *testing.T) {
	ws := newWorkspace(t)
	tbl, _ := Load(ws)
	tbl.Update("notes/a", "u1", "h1")
	tbl.Update("notes/a", "u1", "h2")

	if data, ok, _ := ws.ReadDoc(profile.SlugToUIDFile); ok {
		t.Fatalf("update must not write, found %s", data)
	}
	if err := tbl.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := Load(ws)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if uid, _ := again.LookupUIDBySlug("notes/a"); uid != "u1" {
		t.Errorf("uid = %q, want u1", uid)
	}
	if h, _ := again.LookupHashByUID("u1"); h != "h2" {
		t.Errorf("hash = %q, want h2", h)
	}
}

func TestLoad_CorruptUIDToHashQuarantined(t *testing.T) {
	ws := newWorkspace(t)
	_ = ws.WriteJSON(profile.SlugToUIDFile, map[string]string{"a": "u1"})
	_ = ws.WriteDoc(profile.UIDToHashFile, []byte("{\"u1\": "))

	tbl, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := tbl.LookupHashByUID("u1"); ok {
		t.Error("corrupt map should load empty")
	}
	if uid, _ := tbl.LookupUIDBySlug("a"); uid != "u1" {
		t.Errorf("intact map lost: uid = %q", uid)
	}

	archives, err := ws.Archives()
	if err != nil || len(archives) != 1 {
		t.Fatalf("archives = %v, err = %v", archives, err)
	}
	if !strings.Contains(archives[0], "corrupt-mapping_uid-to-hash.json") {
		t.Errorf("archive dir = %q", archives[0])
	}
	backup, ok, _ := ws.ReadDoc(archives[0] + "/uid-to-hash.json")
	if !ok || string(backup) != "{\"u1\": " {
		t.Errorf("backup = %q, ok = %v", backup, ok)
	}
	if _, ok, _ := ws.ReadDoc(archives[0] + "/error.json"); !ok {
		t.Error("error record missing")
	}
}

func TestLoad_NullDocumentStartsEmpty(t *testing.T) {
	ws := newWorkspace(t)
	_ = ws.WriteDoc(profile.SlugToUIDFile, []byte("null"))
	_ = ws.WriteDoc(profile.UIDToHashFile, []byte(" null\n"))

	tbl, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tbl.Update("a", "u1", "h1")
	if h, _ := tbl.LookupHashByUID("u1"); h != "h1" {
		t.Errorf("hash = %q, want h1", h)
	}
	if archives, _ := ws.Archives(); len(archives) != 2 {
		t.Errorf("archives = %v, want both documents quarantined", archives)
	}
}
