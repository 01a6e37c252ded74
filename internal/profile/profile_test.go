package profile

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/storage"
)

func localProfile(id string) Profile {
	return Profile{ID: id, Mechanism: MechanismLocal}
}

func TestValidate_MechanismSettings(t *testing.T) {
	p := localProfile("blog")
	if err := p.Validate(); err != nil {
		t.Fatalf("local profile should pass: %v", err)
	}

	p = Profile{ID: "site", Mechanism: MechanismAWSCLI}
	if err := p.Validate(); err == nil {
		t.Error("aws-cli profile without bucket should fail")
	}
	p.AWS.Bucket = "b"
	if err := p.Validate(); err != nil {
		t.Errorf("aws-cli profile with bucket should pass: %v", err)
	}

	p.Mechanism = MechanismS3
	if err := p.Validate(); err == nil {
		t.Error("s3 profile without region should fail")
	}

	p = Profile{ID: "../x", Mechanism: MechanismLocal}
	if err := p.Validate(); err == nil {
		t.Error("id with path characters should fail")
	}
}

func TestExcludes(t *testing.T) {
	p := Profile{ExcludedDirectories: []string{"private", "/drafts/"}}
	cases := map[string]bool{
		"private/x.md":       true,
		"notes/private/y.md": true,
		"drafts/z.md":        true,
		"privateer/x.md":     false,
		"notes/x.md":         false,
		"notes/private-x.md": false,
		"a/b/drafts/deep.md": true,
	}
	for path, want := range cases {
		if got := p.Excludes(path); got != want {
			t.Errorf("Excludes(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestShouldInvalidate(t *testing.T) {
	base := Profile{ID: "p", Mechanism: MechanismAWSCLI, AWS: AWSSettings{Bucket: "b", DistributionID: "D1"}}

	cases := []struct {
		scheme string
		op     Level
		want   bool
	}{
		{SchemeIndividual, LevelIndividual, true},
		{SchemeConnected, LevelIndividual, false},
		{SchemeConnected, LevelConnected, true},
		{SchemeSinceLast, LevelAll, true},
		{SchemeAll, LevelSinceLast, false},
		{SchemeManual, LevelAll, false},
	}
	for _, tc := range cases {
		p := base
		p.AWS.InvalidationScheme = tc.scheme
		if got := ShouldInvalidate(p, tc.op); got != tc.want {
			t.Errorf("scheme %s op %d: got %v, want %v", tc.scheme, tc.op, got, tc.want)
		}
	}

	noDist := base
	noDist.AWS.DistributionID = ""
	if ShouldInvalidate(noDist, LevelAll) {
		t.Error("no distribution id must never invalidate")
	}
	local := localProfile("l")
	if ShouldInvalidate(local, LevelAll) {
		t.Error("local profiles never invalidate")
	}
}

func TestStore_CRUDAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatal("new store should be empty")
	}

	p := localProfile("blog")
	p.ExcludedDirectories = []string{"private"}
	if err := s.Put(p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.SetWatermark("blog", at); err != nil {
		t.Fatalf("SetWatermark: %v", err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get("blog")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastFullPublish.Equal(at) {
		t.Errorf("watermark = %v, want %v", got.LastFullPublish, at)
	}
	if len(got.ExcludedDirectories) != 1 {
		t.Errorf("excluded = %v", got.ExcludedDirectories)
	}

	got.ExcludedDirectories[0] = "mutated"
	again, _ := reopened.Get("blog")
	if again.ExcludedDirectories[0] != "private" {
		t.Error("Get must return a copy")
	}

	if err := reopened.Delete("blog"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := reopened.Get("blog"); !errors.Is(err, apperr.ErrProfileNotFound) {
		t.Errorf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestStore_PutRejectsInvalid(t *testing.T) {
	s, _ := OpenStore(filepath.Join(t.TempDir(), "profiles.yaml"))
	err := s.Put(Profile{ID: "x", Mechanism: "ftp"})
	if !errors.Is(err, apperr.ErrProfileMisconfigured) {
		t.Errorf("err = %v, want ErrProfileMisconfigured", err)
	}
}

func TestFileValidate_AggregatesErrors(t *testing.T) {
	f := File{Profiles: []Profile{
		{ID: "a", Mechanism: "bad"},
		{ID: "b", Mechanism: MechanismS3},
		localProfile("c"),
		localProfile("c"),
	}}
	err := f.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	for _, want := range []string{`"a"`, `"b"`, "duplicate"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %s", msg, want)
		}
	}
}

func TestWorkspace_ArchiveStaging(t *testing.T) {
	ws := NewWorkspace(storage.NewMemFS(), "blog", nil)
	if err := ws.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_ = ws.WriteDoc(StagingDir+"/h1.json", []byte(`{"uid":"u"}`))
	_ = ws.WriteDoc(StagingDir+"/index.json", []byte(`{"uid":"u"}`))

	dir, err := ws.ArchiveStaging(errors.New("boom"), "trace")
	if err != nil {
		t.Fatalf("ArchiveStaging: %v", err)
	}
	staged, _ := ws.StagedFiles()
	if len(staged) != 0 {
		t.Errorf("staging not cleared: %v", staged)
	}
	rec, ok, _ := ws.ReadDoc(dir + "/error.json")
	if !ok || !strings.Contains(string(rec), "boom") {
		t.Errorf("error record = %s", rec)
	}
	if _, ok, _ := ws.ReadDoc(dir + "/h1.json"); !ok {
		t.Error("staged file not copied into archive")
	}
}

func TestWorkspace_QuarantineUniqueDirs(t *testing.T) {
	ws := NewWorkspace(storage.NewMemFS(), "blog", nil)
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ws.now = func() time.Time { return fixed }

	a, err := ws.Quarantine(UIDToHashFile, []byte("{bad"), errors.New("parse"))
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	b, err := ws.Quarantine(UIDToHashFile, []byte("{bad"), errors.New("parse"))
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if a == b {
		t.Errorf("quarantine dirs collide: %s", a)
	}
	archives, _ := ws.Archives()
	if len(archives) != 2 {
		t.Errorf("archives = %v", archives)
	}
}
