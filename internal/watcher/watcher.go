// Package watcher implements the bundled fsnotify-backed event
// watcher: it translates filesystem create/write/remove/rename events
// for a watched root into AddFile (create/write) or RemoveObject
// (remove/rename) task enqueues on the core, debounced over a short
// window to coalesce bursts (an editor's write-then-rename save
// pattern). No event is translated into a RescanDirectory enqueue.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mantonx/cdscore/internal/cds"
	"github.com/mantonx/cdscore/internal/logger"
)

// notifier is the subset of *cds.Core the watcher drives.
type notifier interface {
	OnWatchEvent(ctx context.Context, adir *cds.AutoscanDirectory, kind cds.TaskKind, path string)
	GetAutoscanDirectoryByLocation(location string) (*cds.AutoscanDirectory, bool)
}

// Watcher bridges fsnotify to the core's Event-mode autoscan
// directories.
type Watcher struct {
	fsw      *fsnotify.Watcher
	core     notifier
	debounce time.Duration
	log      interface {
		Debug(string, ...interface{})
		Warn(string, ...interface{})
	}

	mu      sync.Mutex
	pending map[string]*time.Timer
	watched map[string]*cds.AutoscanDirectory
}

// New creates a Watcher with the given debounce window.
func New(core notifier, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		fsw:      fsw,
		core:     core,
		debounce: debounce,
		log:      logger.Named("watcher"),
		pending:  make(map[string]*time.Timer),
		watched:  make(map[string]*cds.AutoscanDirectory),
	}, nil
}

// Watch registers adir's directory tree with fsnotify. fsnotify has no
// native recursive mode, so every subdirectory is added explicitly;
// a directory created later is added to fsnotify when the create event
// its parent's watch reports is dispatched.
func (w *Watcher) Watch(adir *cds.AutoscanDirectory) error {
	root := adir.Location
	w.mu.Lock()
	w.watched[root] = adir
	w.mu.Unlock()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.log.Warn("failed to watch directory", "path", path, "error", addErr.Error())
		}
		return nil
	})
}

// Unwatch removes adir from tracking; fsnotify watches on its
// subdirectories are left in place (harmless once the autoscan entry
// is gone, since dispatch looks up the owning adir by path prefix and
// no-ops when none matches).
func (w *Watcher) Unwatch(adir *cds.AutoscanDirectory) {
	w.mu.Lock()
	delete(w.watched, adir.Location)
	w.mu.Unlock()
}

// Run drains fsnotify events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.debouncedDispatch(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("fsnotify error", "error", err.Error())
		}
	}
}

// debouncedDispatch coalesces repeated events for the same path within
// the debounce window into a single dispatch.
func (w *Watcher) debouncedDispatch(ctx context.Context, event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[event.Name]; ok {
		t.Stop()
	}
	w.pending[event.Name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, event.Name)
		w.mu.Unlock()
		w.dispatch(ctx, event)
	})
}

func (w *Watcher) dispatch(ctx context.Context, event fsnotify.Event) {
	adir := w.owningAutoscan(event.Name)
	if adir == nil {
		return
	}
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if event.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if addErr := w.fsw.Add(event.Name); addErr != nil {
					w.log.Warn("failed to watch directory", "path", event.Name, "error", addErr.Error())
				}
			}
		}
		w.core.OnWatchEvent(ctx, adir, cds.TaskAddFile, event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.core.OnWatchEvent(ctx, adir, cds.TaskRemoveObject, event.Name)
	}
}

func (w *Watcher) owningAutoscan(path string) *cds.AutoscanDirectory {
	w.mu.Lock()
	defer w.mu.Unlock()
	var best *cds.AutoscanDirectory
	bestLen := -1
	for root, adir := range w.watched {
		if (path == root || len(path) > len(root) && path[:len(root)+1] == root+"/") && len(root) > bestLen {
			best = adir
			bestLen = len(root)
		}
	}
	return best
}
