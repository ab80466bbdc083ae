package layout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/cdscore/internal/cds"
)

func itemWithMime(mimeType string) *cds.Object {
	item := &cds.Object{Kind: cds.KindItem, Metadata: cds.NewMetadata()}
	res := &cds.Resource{HandlerType: cds.ResourceHandlerFile}
	res.SetAttr("protocolInfo", "http-get:*:"+mimeType+":*")
	item.Resources = append(item.Resources, res)
	return item
}

func TestProcessObjectPlacesAudioUnderArtistAlbum(t *testing.T) {
	b := New(true)
	item := itemWithMime("audio/mpeg")
	item.Metadata.Set("ARTIST", "Radiohead")
	item.Metadata.Set("ALBUM", "Kid A")

	descriptors, err := b.ProcessObject(context.Background(), item, "/media")
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, []string{"Audio", "Artists", "Radiohead", "Kid A"}, descriptors[0].Segments)
	assert.Equal(t, "object.container.album.musicAlbum", descriptors[0].UpnpClass)
}

func TestProcessObjectAudioFallsBackToUnknownArtistAndAlbum(t *testing.T) {
	b := New(true)
	item := itemWithMime("audio/flac")

	descriptors, err := b.ProcessObject(context.Background(), item, "/media")
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, []string{"Audio", "Artists", "Unknown Artist", "Unknown Album"}, descriptors[0].Segments)
}

func TestProcessObjectPrefersAlbumArtistOverArtist(t *testing.T) {
	b := New(true)
	item := itemWithMime("audio/mpeg")
	item.Metadata.Set("ARTIST", "Thom Yorke")
	item.Metadata.Set("ALBUMARTIST", "Radiohead")

	descriptors, err := b.ProcessObject(context.Background(), item, "/media")
	require.NoError(t, err)
	assert.Equal(t, []string{"Audio", "Artists", "Radiohead", "Unknown Album"}, descriptors[0].Segments)
}

func TestProcessObjectPlacesVideoAndImageInFlatContainers(t *testing.T) {
	b := New(true)

	video, err := b.ProcessObject(context.Background(), itemWithMime("video/mp4"), "/media")
	require.NoError(t, err)
	require.Len(t, video, 1)
	assert.Equal(t, []string{"Video", "All Video"}, video[0].Segments)

	image, err := b.ProcessObject(context.Background(), itemWithMime("image/jpeg"), "/media")
	require.NoError(t, err)
	require.Len(t, image, 1)
	assert.Equal(t, []string{"Photos", "All Photos"}, image[0].Segments)
}

func TestProcessObjectLeavesUnknownMimeUnplaced(t *testing.T) {
	b := New(true)
	descriptors, err := b.ProcessObject(context.Background(), itemWithMime("application/octet-stream"), "/media")
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestProcessObjectIgnoresContainers(t *testing.T) {
	b := New(true)
	container := &cds.Object{Kind: cds.KindContainer}
	descriptors, err := b.ProcessObject(context.Background(), container, "/media")
	require.NoError(t, err)
	assert.Nil(t, descriptors)
}
