package mime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeByExtension(t *testing.T) {
	c := New()

	assert.Equal(t, "video/x-matroska", c.MimeType("/media/movie.MKV", "application/octet-stream"))
	assert.Equal(t, "audio/flac", c.MimeType("/media/track.flac", "application/octet-stream"))
	assert.Equal(t, "image/jpeg", c.MimeType("/media/cover.jpeg", "application/octet-stream"))
}

func TestMimeTypeFallsBackOnUnknownExtension(t *testing.T) {
	c := New()
	assert.Equal(t, "application/octet-stream", c.MimeType("/media/notes.txt", "application/octet-stream"))
}

func TestMimeTypeToUpnpClass(t *testing.T) {
	c := New()
	assert.Equal(t, "object.item.videoItem", c.MimeTypeToUpnpClass("video/mp4"))
	assert.Equal(t, "object.item.audioItem.musicTrack", c.MimeTypeToUpnpClass("audio/mpeg"))
	assert.Equal(t, "object.item.imageItem.photo", c.MimeTypeToUpnpClass("image/png"))
	assert.Equal(t, "object.item", c.MimeTypeToUpnpClass("text/srt"))
}

func TestIsPlaylist(t *testing.T) {
	assert.True(t, IsPlaylist("audio/x-mpegurl"))
	assert.True(t, IsPlaylist("audio/x-scpls"))
	assert.False(t, IsPlaylist("audio/mpeg"))
}

func TestDefaultContentTypesMarksOnlyPlaylistMimeTypes(t *testing.T) {
	types := DefaultContentTypes()
	assert.Equal(t, "playlist", types["audio/x-mpegurl"])
	assert.Equal(t, "playlist", types["audio/x-scpls"])
	assert.NotContains(t, types, "audio/mpeg")
}
