package cds

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAddFileSynchronousReturnsObjectID(t *testing.T) {
	c := newAddTestCore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, writeFile(path))

	id, err := c.SubmitAddFile(context.Background(), AddFileRequest{Path: path, RootPath: dir})
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestSubmitAddFileAsyncReturnsTaskID(t *testing.T) {
	c := newAddTestCore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, writeFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Shutdown()

	taskID, err := c.SubmitAddFile(ctx, AddFileRequest{Path: path, RootPath: dir, Async: true})
	require.NoError(t, err)
	assert.NotZero(t, taskID)

	require.Eventually(t, func() bool {
		_, err := c.db.FindObjectByPath(ctx, path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateObjectAppliesKnownFieldsAndMetadata(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	obj := &Object{Kind: KindItem, ParentID: FSRoot, Title: "old", Metadata: NewMetadata()}
	_, err := c.db.AddObject(ctx, obj)
	require.NoError(t, err)

	require.NoError(t, c.UpdateObject(ctx, obj.ID, map[string]string{"title": "new", "GENRE": "Rock"}))

	loaded, err := c.db.LoadObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Title)
	v, ok := loaded.Metadata.Get("GENRE")
	require.True(t, ok)
	assert.Equal(t, "Rock", v)
}

func TestEnsurePathExistenceDelegatesToDatabase(t *testing.T) {
	c := newTestCore(t)
	id, err := c.EnsurePathExistence(context.Background(), "/movies/action")
	require.NoError(t, err)
	assert.Zero(t, id, "the stub database's EnsurePathExistence returns a zero id")
}

func TestAddContainerChainReportsWhetherNewlyCreated(t *testing.T) {
	c := newChainTestCore(t)
	ctx := context.Background()

	id, created, err := c.AddContainerChain(ctx, "/Audio/Artists/Radiohead", "object.container.person.musicArtist", 0, nil)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.True(t, created)

	id2, created2, err := c.AddContainerChain(ctx, "/Audio/Artists/Radiohead", "object.container.person.musicArtist", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.False(t, created2, "repeating the same chain must report not-newly-created")
}

func TestSetAutoscanDirectoryRejectsOverlap(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	root := NewAutoscanDirectory("/movies", ScanModeTimed)
	require.NoError(t, c.SetAutoscanDirectory(ctx, root))

	nested := NewAutoscanDirectory("/movies/action", ScanModeTimed)
	err := c.SetAutoscanDirectory(ctx, nested)
	assert.Error(t, err)
}

func TestRemoveAutoscanDirectoryRevokesAndDetaches(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	adir := NewAutoscanDirectory("/movies", ScanModeTimed)
	require.NoError(t, c.SetAutoscanDirectory(ctx, adir))
	scanID := adir.ScanID

	require.NoError(t, c.RemoveAutoscanDirectory(ctx, adir))

	assert.Equal(t, InvalidScanID, adir.ScanID)
	_, ok := c.GetAutoscanDirectoryByScanID(scanID)
	assert.False(t, ok)
}

// fakeTimer records every Subscribe/Unsubscribe call so the wiring
// between the autoscan registry and the Timer collaborator can be
// asserted on directly.
type fakeTimer struct {
	subscribed   []string
	unsubscribed []string
}

func (f *fakeTimer) Subscribe(param string, interval int64) error {
	f.subscribed = append(f.subscribed, param)
	return nil
}

func (f *fakeTimer) Unsubscribe(param string) error {
	f.unsubscribed = append(f.unsubscribed, param)
	return nil
}

func TestSetAutoscanDirectorySubscribesTimedEntriesToTheTimer(t *testing.T) {
	timer := &fakeTimer{}
	c, err := New(DefaultConfig(), Collaborators{Database: newFakeDatabase(), Timer: timer})
	require.NoError(t, err)
	ctx := context.Background()

	timed := NewAutoscanDirectory("/movies", ScanModeTimed)
	timed.Interval = 60
	require.NoError(t, c.SetAutoscanDirectory(ctx, timed))
	assert.Equal(t, []string{timed.ScanID}, timer.subscribed, "a Timed autoscan must subscribe its scan id with the timer")

	event := NewAutoscanDirectory("/music", ScanModeEvent)
	require.NoError(t, c.SetAutoscanDirectory(ctx, event))
	assert.Equal(t, []string{timed.ScanID}, timer.subscribed, "an Event autoscan must not subscribe to the timer")

	require.NoError(t, c.RemoveAutoscanDirectory(ctx, timed))
	assert.Equal(t, []string{timed.ScanID}, timer.unsubscribed, "removing a Timed autoscan must unsubscribe its scan id from the timer")

	require.NoError(t, c.RemoveAutoscanDirectory(ctx, event))
	assert.Equal(t, []string{timed.ScanID}, timer.unsubscribed, "removing an Event autoscan must not touch the timer")
}

func TestTimerNotifyIgnoresUnknownScanID(t *testing.T) {
	c := newTestCore(t)
	c.TimerNotify(context.Background(), "not-a-real-scan-id")
}

func TestOnWatchEventRescanDispatchesSubmitRescan(t *testing.T) {
	c := newTestCore(t)
	adir := NewAutoscanDirectory("/movies", ScanModeEvent)
	adir.ObjectID = FSRoot

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Shutdown()

	c.OnWatchEvent(ctx, adir, TaskRescanDirectory, "/movies")

	require.Eventually(t, func() bool {
		return len(c.GetTaskList()) == 0
	}, 2*time.Second, 10*time.Millisecond, "the enqueued rescan task must eventually drain")
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("data"), 0o644)
}
