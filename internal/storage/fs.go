package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/starford/folio/internal/models"
)

const tempPrefix = ".folio-tmp-"

// FS implements Provider on top of an afero file system rooted at a base path.
type FS struct {
	fs   afero.Fs
	root string // absolute path on disk, empty for in-memory trees
}

// NewFS creates a provider rooted at the given directory on disk.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{fs: afero.NewBasePathFs(afero.NewOsFs(), abs), root: abs}, nil
}

// NewMemFS returns an empty in-memory provider.
func NewMemFS() *FS {
	return &FS{fs: afero.NewBasePathFs(afero.NewMemMapFs(), string(os.PathSeparator))}
}

// Root returns the on-disk root, or "" for in-memory providers.
func (f *FS) Root() string { return f.root }

// Afero exposes the underlying file system.
func (f *FS) Afero() afero.Fs { return f.fs }

// safePath cleans a path relative to the root and rejects anything that
// would escape it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return ".", nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return cleaned, nil
}

// List walks dir and returns metadata for every .md file, sorted by path.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	var out []models.NoteMetadata
	err := f.walk(dir, func(rel string, info os.FileInfo) error {
		if !strings.HasSuffix(rel, ".md") {
			return nil
		}
		data, err := afero.ReadFile(f.fs, rel)
		if err != nil {
			return err
		}
		out = append(out, models.NoteMetadata{
			Path:      filepath.ToSlash(rel),
			Checksum:  Checksum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Files returns every regular file under dir (slash separated, relative to
// the root), skipping in-flight temp files. A missing dir yields no files.
func (f *FS) Files(dir string) ([]string, error) {
	var out []string
	err := f.walk(dir, func(rel string, _ os.FileInfo) error {
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: files: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (f *FS) walk(dir string, fn func(rel string, info os.FileInfo) error) error {
	base, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if ok, _ := afero.DirExists(f.fs, base); !ok {
		return nil
	}
	return afero.Walk(f.fs, base, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), tempPrefix) {
			return nil
		}
		return fn(filepath.Clean(strings.TrimPrefix(p, string(os.PathSeparator))), info)
	})
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	rel, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, rel)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Stat returns file info for path.
func (f *FS) Stat(path string) (os.FileInfo, error) {
	rel, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	info, err := f.fs.Stat(rel)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return info, nil
}

// Exists reports whether a file or directory exists at path.
func (f *FS) Exists(path string) bool {
	rel, err := f.safePath(path)
	if err != nil {
		return false
	}
	ok, _ := afero.Exists(f.fs, rel)
	return ok
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	rel, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(rel)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := afero.TempFile(f.fs, dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := filepath.Join(dir, filepath.Base(tmp.Name()))

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = f.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := f.fs.Rename(tmpName, rel); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a file.
func (f *FS) Delete(path string) error {
	rel, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := f.fs.Remove(rel); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// RemoveAll deletes dir and everything below it. Missing dirs are not an error.
func (f *FS) RemoveAll(dir string) error {
	rel, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if rel == "." {
		return errors.New("storage: refusing to remove root")
	}
	if err := f.fs.RemoveAll(rel); err != nil {
		return fmt.Errorf("storage: remove %s: %w", dir, err)
	}
	return nil
}

// MkdirAll creates dir and any missing parents.
func (f *FS) MkdirAll(dir string) error {
	rel, err := f.safePath(dir)
	if err != nil {
		return err
	}
	return f.fs.MkdirAll(rel, 0o755)
}

// Move renames a file within the root.
func (f *FS) Move(oldPath, newPath string) error {
	relOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	relNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(filepath.Dir(relNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := f.fs.Rename(relOld, relNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// Checksum returns the hex SHA-256 of data. The index uses it to detect
// files that changed on disk.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
