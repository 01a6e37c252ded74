package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// Change kinds passed to EventCallback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

const reconcileDelay = 200 * time.Millisecond

type watcher struct {
	db     *DB
	store  storage.Provider
	keys   parser.Keys
	root   string
	logger *slog.Logger
	cb     EventCallback
}

// Watch keeps the index current with the vault at vaultRoot until ctx is
// cancelled. Directories created at runtime are watched as they appear.
// fsnotify reports renames on the old path only, so a rename drops the old
// row and schedules a debounced reconciliation with the disk.
func Watch(ctx context.Context, db *DB, store storage.Provider, keys parser.Keys, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, vaultRoot); err != nil {
		return err
	}

	w := &watcher{db: db, store: store, keys: keys, root: vaultRoot, logger: logger, cb: cb}
	logger.Info("watcher: started", slog.String("root", vaultRoot))

	reconcile := time.NewTimer(reconcileDelay)
	reconcile.Stop()
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-reconcile.C:
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					w.watchNewDir(fw, ev.Name)
					continue
				}
			}
			if w.handle(ev) {
				reconcile.Reset(reconcileDelay)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle applies one file event and reports whether a reconciliation pass
// should follow.
func (w *watcher) handle(ev fsnotify.Event) bool {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return false
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		kind := ChangeUpdated
		if ev.Op&fsnotify.Create != 0 {
			kind = ChangeCreated
		}
		w.index(rel, kind)
	case ev.Op&fsnotify.Remove != 0:
		w.remove(rel)
	case ev.Op&fsnotify.Rename != 0:
		w.remove(rel)
		return true
	}
	return false
}

// rel maps an absolute event path to a slash-separated note path.
func (w *watcher) rel(abs string) (string, bool) {
	if !strings.HasSuffix(abs, ".md") {
		return "", false
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *watcher) index(rel, kind string) {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	mtime := time.Now()
	if info, err := w.store.Stat(rel); err == nil {
		mtime = info.ModTime()
	}
	if err := IndexFile(w.db, rel, data, mtime, w.keys); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	w.notify(kind, rel)
}

func (w *watcher) remove(rel string) {
	if err := w.db.DeleteNote(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	w.notify(ChangeDeleted, rel)
}

func (w *watcher) notify(kind, rel string) {
	if w.cb != nil {
		w.cb(kind, rel)
	}
}

// watchNewDir adds a directory created at runtime and indexes the notes
// already inside it.
func (w *watcher) watchNewDir(fw *fsnotify.Watcher, dir string) {
	if err := addDirsRecursive(fw, dir); err != nil {
		w.logger.Warn("watcher: add new dir failed", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: watching new dir", slog.String("path", dir))
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(p); ok {
			w.index(rel, ChangeCreated)
		}
		return nil
	})
}

// reconcile compares checksums with the disk in one batch: rows without a
// file are removed and changed or unindexed files are indexed.
func (w *watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, err := w.store.Read(m.Path)
		if err != nil {
			continue
		}
		if err := IndexFile(w.db, m.Path, data, m.UpdatedAt, w.keys); err == nil {
			w.notify(ChangeCreated, m.Path)
		}
	}
	for p := range checksums {
		if _, ok := onDisk[p]; !ok {
			w.remove(p)
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
// Hidden directories are skipped.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}
