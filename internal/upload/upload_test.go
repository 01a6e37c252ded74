package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/storage"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	stderr map[string]string // keyed by first arg
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return "ok\n", f.stderr[args[0]], nil
}

func stage(t *testing.T, fs *storage.FS, notes ...models.StagedNote) Request {
	t.Helper()
	for _, n := range notes {
		data, err := json.Marshal(n)
		if err != nil {
			t.Fatal(err)
		}
		if err := fs.Write("p/staged-notes/"+n.Hash+".json", data); err != nil {
			t.Fatal(err)
		}
	}
	if err := fs.Write("p/mapping/slug-to-uid.json", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := fs.Write("p/contentIndex.json", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	return Request{
		FS:           fs,
		Dir:          "p",
		StagedDir:    "p/staged-notes",
		MappingDir:   "p/mapping",
		ContentIndex: "p/contentIndex.json",
	}
}

func diskFS(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func awsProfile() profile.Profile {
	return profile.Profile{
		ID:        "p",
		Mechanism: profile.MechanismAWSCLI,
		AWS:       profile.AWSSettings{Profile: "site", Bucket: "b", Prefix: "pre", DistributionID: "D"},
	}
}

func TestCLI_Upload(t *testing.T) {
	fs := diskFS(t)
	req := stage(t, fs, models.StagedNote{UID: "u1", Hash: "h1"})
	req.Invalidate = true
	runner := &fakeRunner{}

	res, err := NewCLI(runner, nil).Upload(context.Background(), awsProfile(), req)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Uploaded != 3 || !res.Invalidated {
		t.Errorf("result = %+v", res)
	}
	if len(runner.calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(runner.calls))
	}

	notes := strings.Join(runner.calls[0].args, " ")
	wantNotes := "s3 cp " + filepath.Join(fs.Root(), "p", "staged-notes") + " s3://b/pre/notes/ --recursive --profile site"
	if notes != wantNotes {
		t.Errorf("notes cmd = %q, want %q", notes, wantNotes)
	}
	if got := runner.calls[1].args[3]; got != "s3://b/pre/static/mapping/" {
		t.Errorf("mapping dest = %q", got)
	}
	if got := runner.calls[2].args[3]; got != "s3://b/pre/static/content/contentIndex.json" {
		t.Errorf("content index dest = %q", got)
	}
	inv := strings.Join(runner.calls[3].args, " ")
	if inv != "cloudfront create-invalidation --distribution-id D --paths /* --profile site" {
		t.Errorf("invalidation cmd = %q", inv)
	}
	if runner.calls[0].name != "aws" {
		t.Errorf("bin = %q, want aws", runner.calls[0].name)
	}
}

func TestCLI_StderrFails(t *testing.T) {
	fs := diskFS(t)
	req := stage(t, fs)
	runner := &fakeRunner{stderr: map[string]string{"s3": "upload failed: access denied"}}

	_, err := NewCLI(runner, nil).Upload(context.Background(), awsProfile(), req)
	if !errors.Is(err, apperr.ErrUploadFailed) {
		t.Fatalf("err = %v, want ErrUploadFailed", err)
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Errorf("err = %v, want stderr text", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("calls = %d, want stop after first failure", len(runner.calls))
	}
}

func TestCLI_InvalidationFailureIsNotFatal(t *testing.T) {
	fs := diskFS(t)
	req := stage(t, fs)
	req.Invalidate = true
	runner := &fakeRunner{stderr: map[string]string{"cloudfront": "throttled"}}

	res, err := NewCLI(runner, nil).Upload(context.Background(), awsProfile(), req)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Invalidated {
		t.Error("Invalidated = true after failed invalidation")
	}
	if !strings.Contains(res.Output, "throttled") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestCLI_NeedsDisk(t *testing.T) {
	req := stage(t, storage.NewMemFS())
	if _, err := NewCLI(&fakeRunner{}, nil).Upload(context.Background(), awsProfile(), req); !errors.Is(err, apperr.ErrUploadFailed) {
		t.Errorf("err = %v, want ErrUploadFailed", err)
	}
}

type fakePutter struct {
	mu     sync.Mutex
	keys   map[string]string
	fails  map[string]int
	called int
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	key := *in.Key
	if f.fails[key] > 0 {
		f.fails[key]--
		return nil, errors.New("503 slow down")
	}
	body, _ := io.ReadAll(in.Body)
	if f.keys == nil {
		f.keys = map[string]string{}
	}
	f.keys[key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3_UploadWithRetry(t *testing.T) {
	fs := storage.NewMemFS()
	req := stage(t, fs, models.StagedNote{UID: "u1", Hash: "h1"})
	putter := &fakePutter{fails: map[string]int{"pre/notes/h1.json": 2}}
	u := newS3(putter, "b", nil, discard())

	p := awsProfile()
	p.Mechanism = profile.MechanismS3
	res, err := u.Upload(context.Background(), p, req)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Uploaded != 3 {
		t.Errorf("uploaded = %d, want 3", res.Uploaded)
	}
	for _, key := range []string{"pre/notes/h1.json", "pre/static/mapping/slug-to-uid.json", "pre/static/content/contentIndex.json"} {
		if _, ok := putter.keys[key]; !ok {
			t.Errorf("missing key %q (have %v)", key, putter.keys)
		}
	}
	if putter.called != 5 {
		t.Errorf("put calls = %d, want 5", putter.called)
	}
}

func TestS3_PersistentFailure(t *testing.T) {
	fs := storage.NewMemFS()
	req := stage(t, fs, models.StagedNote{UID: "u1", Hash: "h1"})
	putter := &fakePutter{fails: map[string]int{"pre/notes/h1.json": 100}}
	u := newS3(putter, "b", nil, discard())
	u.maxRetries = 1

	res, err := u.Upload(context.Background(), awsProfile(), req)
	if !errors.Is(err, apperr.ErrUploadFailed) {
		t.Fatalf("err = %v, want ErrUploadFailed", err)
	}
	if res.Uploaded != 2 {
		t.Errorf("uploaded = %d, want the other 2 objects", res.Uploaded)
	}
}

func TestLocal_CombinesAndMerges(t *testing.T) {
	fs := storage.NewMemFS()
	if err := fs.Write("p/notes.json", []byte(`{"old":{"uid":"old","title":"Old"},"u1":{"uid":"u1","title":"Stale"}}`)); err != nil {
		t.Fatal(err)
	}
	req := stage(t, fs,
		models.StagedNote{UID: "u1", Title: "One", Hash: "h1"},
		models.StagedNote{UID: "u2", Title: "Two", Hash: "h2"},
	)
	if err := fs.Write("p/staged-notes/index.json", []byte(`{"uid":"u1"}`)); err != nil {
		t.Fatal(err)
	}

	res, err := NewLocal(discard()).Upload(context.Background(), profile.Profile{ID: "p", Mechanism: profile.MechanismLocal}, req)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Uploaded != 2 {
		t.Errorf("uploaded = %d, want 2", res.Uploaded)
	}
	data, err := fs.Read("p/notes.json")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]models.StagedNote
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got["u1"].Title != "One" || got["old"].Title != "Old" {
		t.Errorf("combined = %+v", got)
	}
}

func TestLocal_Compressed(t *testing.T) {
	dir := t.TempDir()
	fs := storage.NewMemFS()
	req := stage(t, fs, models.StagedNote{UID: "u1", Title: "One", Hash: "h1"})
	p := profile.Profile{
		ID:        "p",
		Mechanism: profile.MechanismLocal,
		Local:     profile.LocalSettings{OutputPath: filepath.Join(dir, "site.json"), Compress: true},
	}

	if _, err := NewLocal(discard()).Upload(context.Background(), p, req); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	out, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := out.Read("site.json.zst")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(raw, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(string(plain), `"title":"One"`) {
		t.Errorf("output = %s", plain)
	}
}

func TestFactory_UnknownMechanism(t *testing.T) {
	f := NewFactory(&fakeRunner{}, discard())
	if _, err := f(context.Background(), profile.Profile{Mechanism: "ftp"}); !errors.Is(err, apperr.ErrProfileMisconfigured) {
		t.Errorf("err = %v, want ErrProfileMisconfigured", err)
	}
	if u, err := f(context.Background(), profile.Profile{Mechanism: profile.MechanismLocal}); err != nil || u == nil {
		t.Errorf("local = %v, %v", u, err)
	}
}
