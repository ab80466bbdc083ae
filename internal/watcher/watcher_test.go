package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/cdscore/internal/cds"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

type event struct {
	kind cds.TaskKind
	path string
}

func (f *fakeNotifier) OnWatchEvent(ctx context.Context, adir *cds.AutoscanDirectory, kind cds.TaskKind, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{kind: kind, path: path})
}

func (f *fakeNotifier) GetAutoscanDirectoryByLocation(location string) (*cds.AutoscanDirectory, bool) {
	return nil, false
}

func (f *fakeNotifier) snapshot() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event, len(f.events))
	copy(out, f.events)
	return out
}

func TestWatchRegistersEverySubdirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "nested"), 0o755))

	w, err := New(&fakeNotifier{}, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.fsw.Close()

	adir := cds.NewAutoscanDirectory(root, cds.ScanModeEvent)
	require.NoError(t, w.Watch(adir))

	assert.ElementsMatch(t, []string{root, filepath.Join(root, "sub"), filepath.Join(root, "sub", "nested")}, w.fsw.WatchList())
}

func TestOwningAutoscanPrefersLongestPrefix(t *testing.T) {
	w, err := New(&fakeNotifier{}, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.fsw.Close()

	outer := cds.NewAutoscanDirectory("/media", cds.ScanModeEvent)
	inner := cds.NewAutoscanDirectory("/media/movies", cds.ScanModeEvent)
	w.watched["/media"] = outer
	w.watched["/media/movies"] = inner

	found := w.owningAutoscan("/media/movies/action/a.mkv")
	assert.Same(t, inner, found, "the most specific watched ancestor must win")

	found = w.owningAutoscan("/media/music/song.mp3")
	assert.Same(t, outer, found)

	found = w.owningAutoscan("/unrelated/file.txt")
	assert.Nil(t, found)
}

func TestDispatchMapsCreateAndRemoveEvents(t *testing.T) {
	notifier := &fakeNotifier{}
	w, err := New(notifier, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.fsw.Close()

	adir := cds.NewAutoscanDirectory("/media", cds.ScanModeEvent)
	w.watched["/media"] = adir

	ctx := context.Background()
	w.dispatch(ctx, fsnotify.Event{Name: "/media/a.mkv", Op: fsnotify.Create})
	w.dispatch(ctx, fsnotify.Event{Name: "/media/b.mkv", Op: fsnotify.Remove})
	w.dispatch(ctx, fsnotify.Event{Name: "/unwatched/c.mkv", Op: fsnotify.Create})

	events := notifier.snapshot()
	require.Len(t, events, 2, "the event outside any watched root must be dropped")
	assert.Equal(t, cds.TaskAddFile, events[0].kind)
	assert.Equal(t, cds.TaskRemoveObject, events[1].kind)
}

func TestDebouncedDispatchCoalescesRepeatedEvents(t *testing.T) {
	notifier := &fakeNotifier{}
	w, err := New(notifier, 30*time.Millisecond)
	require.NoError(t, err)
	defer w.fsw.Close()

	adir := cds.NewAutoscanDirectory("/media", cds.ScanModeEvent)
	w.watched["/media"] = adir

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.debouncedDispatch(ctx, fsnotify.Event{Name: "/media/a.mkv", Op: fsnotify.Write})
	}

	require.Eventually(t, func() bool {
		return len(notifier.snapshot()) == 1
	}, time.Second, 5*time.Millisecond, "rapid repeated writes to the same path must coalesce into one dispatch")
}

func TestUnwatchRemovesTracking(t *testing.T) {
	w, err := New(&fakeNotifier{}, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.fsw.Close()

	adir := cds.NewAutoscanDirectory("/media", cds.ScanModeEvent)
	w.watched["/media"] = adir

	w.Unwatch(adir)
	assert.Nil(t, w.owningAutoscan("/media/a.mkv"))
}
