package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/storage"
)

// Workspace layout, relative to the profile directory.
const (
	MappingDir       = "mapping"
	SlugToUIDFile    = "mapping/slug-to-uid.json"
	UIDToHashFile    = "mapping/uid-to-hash.json"
	HistoryFile      = "publish-history.json"
	ContentIndexFile = "contentIndex.json"
	StagingDir       = "staged-notes"
	ErrorDir         = "staged-error"
	LocalOutputFile  = "notes.json"
	HomeArtifact     = "index.json"
	errorRecordFile  = "error.json"
	archiveTimestamp = "20060102T150405.000000000Z"
)

// ErrorRecord is the diagnostic written next to archived or quarantined files.
type ErrorRecord struct {
	Timestamp string   `json:"timestamp"`
	Error     string   `json:"error"`
	Stack     string   `json:"stack,omitempty"`
	Files     []string `json:"files,omitempty"`
}

// Workspace is one profile's directory inside the state store.
type Workspace struct {
	fs     *storage.FS
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewWorkspace returns the workspace for profileID inside fs.
func NewWorkspace(fs *storage.FS, profileID string, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{
		fs:     fs,
		dir:    profileID,
		logger: logger.With(slog.String("profile", profileID)),
		now:    time.Now,
	}
}

// FS returns the state store backing the workspace.
func (w *Workspace) FS() *storage.FS { return w.fs }

// Rel returns name relative to the state store root.
func (w *Workspace) Rel(name string) string { return path.Join(w.dir, name) }

// Abs returns the on-disk path of name, or the store-relative path when the
// store lives in memory.
func (w *Workspace) Abs(name string) string {
	if w.fs.Root() == "" {
		return w.Rel(name)
	}
	return filepath.Join(w.fs.Root(), filepath.FromSlash(w.Rel(name)))
}

// Init creates the directory skeleton.
func (w *Workspace) Init() error {
	for _, d := range []string{MappingDir, StagingDir, ErrorDir} {
		if err := w.fs.MkdirAll(w.Rel(d)); err != nil {
			return fmt.Errorf("workspace: init %s: %w", d, err)
		}
	}
	return nil
}

// ReadDoc reads a workspace document. ok is false when it does not exist.
func (w *Workspace) ReadDoc(name string) (data []byte, ok bool, err error) {
	if !w.fs.Exists(w.Rel(name)) {
		return nil, false, nil
	}
	data, err = w.fs.Read(w.Rel(name))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WriteDoc atomically replaces a workspace document.
func (w *Workspace) WriteDoc(name string, data []byte) error {
	return w.fs.Write(w.Rel(name), data)
}

// WriteJSON encodes v with indentation and writes it to name.
func (w *Workspace) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: encode %s: %w", name, err)
	}
	return w.WriteDoc(name, data)
}

// LoadJSON decodes the document name into v. loaded is false when the
// document is missing or corrupt; a corrupt document is quarantined and the
// caller is expected to start from an empty value. A top-level null counts
// as corrupt: every document is a JSON object.
func (w *Workspace) LoadJSON(name string, v any) (loaded bool, err error) {
	data, ok, err := w.ReadDoc(name)
	if err != nil || !ok {
		return false, err
	}
	decErr := json.Unmarshal(data, v)
	if decErr == nil && bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		decErr = errors.New("document is null")
	}
	if decErr != nil {
		cause := fmt.Errorf("%w: %s: %v", apperr.ErrCorrupt, name, decErr)
		if _, qErr := w.Quarantine(name, data, cause); qErr != nil {
			w.logger.Error("quarantine failed", slog.String("doc", name), slog.String("error", qErr.Error()))
		}
		return false, nil
	}
	return true, nil
}

// StagedFiles lists staged artifacts relative to the workspace.
func (w *Workspace) StagedFiles() ([]string, error) {
	files, err := w.fs.Files(w.Rel(StagingDir))
	if err != nil {
		return nil, err
	}
	for i, f := range files {
		files[i] = strings.TrimPrefix(f, w.dir+"/")
	}
	return files, nil
}

// ClearStaging empties the staging directory.
func (w *Workspace) ClearStaging() error {
	if err := w.fs.RemoveAll(w.Rel(StagingDir)); err != nil {
		return err
	}
	return w.fs.MkdirAll(w.Rel(StagingDir))
}

// ArchiveStaging copies every staged file into a new timestamped directory
// under the error archive together with a diagnostic record, then clears
// staging. It returns the archive directory relative to the workspace.
func (w *Workspace) ArchiveStaging(cause error, stack string) (string, error) {
	staged, err := w.StagedFiles()
	if err != nil {
		return "", err
	}
	dir, ts := w.newArchiveDir("")

	copied := make([]string, 0, len(staged))
	for _, name := range staged {
		data, err := w.fs.Read(w.Rel(name))
		if err != nil {
			w.logger.Warn("archive: read staged file failed", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		rel := strings.TrimPrefix(name, StagingDir+"/")
		if err := w.WriteDoc(path.Join(dir, rel), data); err != nil {
			return "", fmt.Errorf("workspace: archive %s: %w", name, err)
		}
		copied = append(copied, rel)
	}

	if err := w.writeRecord(dir, ts, cause, stack, copied); err != nil {
		return "", err
	}
	if err := w.ClearStaging(); err != nil {
		return "", fmt.Errorf("workspace: clear staging after archive: %w", err)
	}
	w.logger.Warn("staging archived", slog.String("dir", dir), slog.Int("files", len(copied)))
	return dir, nil
}

// Quarantine stores a copy of a corrupt document under the error archive with
// a diagnostic record and returns the archive directory.
func (w *Workspace) Quarantine(name string, data []byte, cause error) (string, error) {
	dir, ts := w.newArchiveDir("corrupt-" + strings.ReplaceAll(name, "/", "_"))
	base := path.Base(name)
	if err := w.WriteDoc(path.Join(dir, base), data); err != nil {
		return "", fmt.Errorf("workspace: quarantine %s: %w", name, err)
	}
	if err := w.writeRecord(dir, ts, cause, "", []string{base}); err != nil {
		return "", err
	}
	w.logger.Warn("corrupt document quarantined", slog.String("doc", name), slog.String("dir", dir))
	return dir, nil
}

// Archives lists the error archive directories, oldest first.
func (w *Workspace) Archives() ([]string, error) {
	files, err := w.fs.Files(w.Rel(ErrorDir))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		if path.Base(f) == errorRecordFile {
			out = append(out, strings.TrimPrefix(path.Dir(f), w.dir+"/"))
		}
	}
	return out, nil
}

func (w *Workspace) newArchiveDir(suffix string) (dir, ts string) {
	now := w.now().UTC()
	ts = now.Format(time.RFC3339Nano)
	name := now.Format(archiveTimestamp)
	if suffix != "" {
		name += "-" + suffix
	}
	dir = path.Join(ErrorDir, name)
	for i := 1; w.fs.Exists(w.Rel(dir)); i++ {
		dir = path.Join(ErrorDir, fmt.Sprintf("%s-%d", name, i))
	}
	return dir, ts
}

func (w *Workspace) writeRecord(dir, ts string, cause error, stack string, files []string) error {
	rec := ErrorRecord{Timestamp: ts, Stack: stack, Files: files}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := w.WriteJSON(path.Join(dir, errorRecordFile), rec); err != nil {
		return fmt.Errorf("workspace: write error record: %w", err)
	}
	return nil
}
