package cds

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMime struct{}

func (fakeMime) MimeType(path, fallback string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".mkv":
		return "video/x-matroska"
	default:
		return fallback
	}
}

func (fakeMime) MimeTypeToUpnpClass(mimeType string) string {
	switch {
	case mimeType == "audio/mpeg":
		return "object.item.audioItem.musicTrack"
	case mimeType == "video/x-matroska":
		return "object.item.videoItem"
	default:
		return "object.item"
	}
}

type playlistMime struct{ fakeMime }

func (playlistMime) MimeType(path, fallback string) string {
	if filepath.Ext(path) == ".m3u" {
		return "audio/x-mpegurl"
	}
	return fakeMime{}.MimeType(path, fallback)
}

// countingMetadata records how many times SetMetadata is invoked, so
// ProcessExisting's re-extraction path can be asserted on directly.
type countingMetadata struct {
	calls int
}

func (m *countingMetadata) SetMetadata(ctx context.Context, item *Object, path string) error {
	m.calls++
	item.Metadata.Set("PASS", "1")
	return nil
}

// recordingPlaylistParser records every item handed to it.
type recordingPlaylistParser struct {
	parsed []int64
}

func (p *recordingPlaylistParser) ParsePlaylist(ctx context.Context, item *Object, path string) error {
	p.parsed = append(p.parsed, item.ID)
	return nil
}

func newAddTestCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(DefaultConfig(), Collaborators{Database: newFakeDatabase(), Mime: fakeMime{}})
	require.NoError(t, err)
	return c
}

func TestAddFileCreatesItemWithClassifiedMime(t *testing.T) {
	c := newAddTestCore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	id, err := c.AddFile(context.Background(), path, dir, AddSettings{})
	require.NoError(t, err)
	require.NotZero(t, id)

	obj, err := c.db.LoadObject(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, obj.IsItem())
	assert.Equal(t, "object.item.audioItem.musicTrack", obj.UpnpClass)
}

func TestAddFileSkipsHiddenEntriesUnlessEnabled(t *testing.T) {
	c := newAddTestCore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".hidden.mp3")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	id, err := c.AddFile(context.Background(), path, dir, AddSettings{Hidden: false})
	require.NoError(t, err)
	assert.Zero(t, id, "a hidden file must be skipped when Hidden is false")

	id, err = c.AddFile(context.Background(), path, dir, AddSettings{Hidden: true})
	require.NoError(t, err)
	assert.NotZero(t, id, "a hidden file must be added when Hidden is true")
}

func TestAddFileRecursesIntoDirectories(t *testing.T) {
	c := newAddTestCore(t)
	root := t.TempDir()
	sub := filepath.Join(root, "album")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "track.mp3"), []byte("data"), 0o644))

	id, err := c.AddFile(context.Background(), sub, root, AddSettings{Recursive: true})
	require.NoError(t, err)
	require.NotZero(t, id)

	ids, err := c.db.GetObjects(context.Background(), id, false)
	require.NoError(t, err)
	assert.Len(t, ids, 1, "the track under the recursed directory must be added")
}

func TestAddFileSkipsUnresolvableSymlinksWithoutFollowSymlinks(t *testing.T) {
	c := newAddTestCore(t)
	dir := t.TempDir()
	link := filepath.Join(dir, "link.mp3")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing.mp3"), link))

	id, err := c.AddFile(context.Background(), link, dir, AddSettings{FollowSymlinks: false})
	require.NoError(t, err)
	assert.Zero(t, id, "a symlink must be skipped entirely when FollowSymlinks is false")
}

func TestAddFileProcessExistingReExtractsMetadata(t *testing.T) {
	metadata := &countingMetadata{}
	c, err := New(DefaultConfig(), Collaborators{Database: newFakeDatabase(), Mime: fakeMime{}, Metadata: metadata})
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	_, err = c.AddFile(context.Background(), path, dir, AddSettings{})
	require.NoError(t, err)
	assert.Equal(t, 1, metadata.calls, "creating a new object must extract metadata exactly once")

	_, err = c.AddFile(context.Background(), path, dir, AddSettings{})
	require.NoError(t, err)
	assert.Equal(t, 1, metadata.calls, "re-adding an existing path without ProcessExisting must not re-extract")

	_, err = c.AddFile(context.Background(), path, dir, AddSettings{ProcessExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 2, metadata.calls, "ProcessExisting must trigger re-extraction for an existing object")
}

func TestAddFileHandsPlaylistItemsToConfiguredParser(t *testing.T) {
	parser := &recordingPlaylistParser{}
	cfg := DefaultConfig()
	cfg.MimetypeToContentType = map[string]string{"audio/x-mpegurl": "playlist"}
	c, err := New(cfg, Collaborators{Database: newFakeDatabase(), Mime: playlistMime{}, Playlist: parser})
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "mix.m3u")
	require.NoError(t, os.WriteFile(path, []byte("#EXTM3U\n"), 0o644))

	id, err := c.AddFile(context.Background(), path, dir, AddSettings{})
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Equal(t, []int64{id}, parser.parsed, "an item classified as playlist content-type must be handed to the playlist parser")
}

func TestAddFileDoesNotInvokePlaylistParserForNonPlaylistContent(t *testing.T) {
	parser := &recordingPlaylistParser{}
	c, err := New(DefaultConfig(), Collaborators{Database: newFakeDatabase(), Mime: fakeMime{}, Playlist: parser})
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	_, err = c.AddFile(context.Background(), path, dir, AddSettings{})
	require.NoError(t, err)
	assert.Empty(t, parser.parsed, "a non-playlist item must not reach the playlist parser")
}

func TestAddFileNotifiesGrandparentOnFirstChild(t *testing.T) {
	db := newFakeDatabase()
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "track.mp3"), []byte("data"), 0o644))

	container := &Object{Kind: KindContainer, ParentID: FSRoot, Location: dir, Metadata: NewMetadata()}
	_, err := db.AddObject(ctx, container)
	require.NoError(t, err)

	sessions := &recordingSessions{}
	bus := &recordingBus{}
	c, err := New(DefaultConfig(), Collaborators{Database: db, Mime: fakeMime{}, Sessions: sessions, Bus: bus})
	require.NoError(t, err)

	// Drive addEntry directly with container pre-marked as created this
	// walk, isolating the first-child signal from the ordinary
	// container-changed notification a real creation would also emit.
	ac := &addContext{rootPath: dir, settings: AddSettings{Recursive: true}, firstChild: make(map[int64]bool), created: map[int64]bool{container.ID: true}}
	_, err = c.addEntry(ctx, ac, dir)
	require.NoError(t, err)

	assert.Equal(t, []int64{container.ID, container.ParentID}, sessions.ids, "the track's own add notifies its parent, then gaining a first child notifies the grandparent exactly once")
}

func TestAddFileDoesNotReNotifyOnAlreadyPopulatedContainer(t *testing.T) {
	db := newFakeDatabase()
	ctx := context.Background()
	dir := t.TempDir()

	container := &Object{Kind: KindContainer, ParentID: FSRoot, Location: dir, Metadata: NewMetadata()}
	_, err := db.AddObject(ctx, container)
	require.NoError(t, err)
	existingChild := &Object{Kind: KindItem, ParentID: container.ID, Location: filepath.Join(dir, "existing.mp3"), Metadata: NewMetadata()}
	_, err = db.AddObject(ctx, existingChild)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(existingChild.Location, []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.mp3"), []byte("data"), 0o644))

	sessions := &recordingSessions{}
	bus := &recordingBus{}
	c, err := New(DefaultConfig(), Collaborators{Database: db, Mime: fakeMime{}, Sessions: sessions, Bus: bus})
	require.NoError(t, err)

	// container pre-exists (not created this walk), so even though it
	// gains a new child, no first-child signal is emitted for its parent.
	_, err = c.AddFile(ctx, dir, dir, AddSettings{Recursive: true})
	require.NoError(t, err)

	assert.NotContains(t, sessions.ids, container.ParentID, "re-walking an already-populated container must not re-emit a first-child signal")
}

func TestAddFileIsIdempotentForAnExistingPath(t *testing.T) {
	c := newAddTestCore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	id1, err := c.AddFile(context.Background(), path, dir, AddSettings{})
	require.NoError(t, err)

	id2, err := c.AddFile(context.Background(), path, dir, AddSettings{})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "re-adding the same path must return the existing object, not duplicate it")
}
