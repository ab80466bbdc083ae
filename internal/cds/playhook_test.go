package cds

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScrobbler struct {
	scrobbled []int64
}

func (s *recordingScrobbler) Scrobble(ctx context.Context, item *Object) error {
	s.scrobbled = append(s.scrobbled, item.ID)
	return nil
}

func itemWithFileMime(mimeType string) *Object {
	obj := &Object{Kind: KindItem, ParentID: FSRoot, Metadata: NewMetadata()}
	res := &Resource{HandlerType: ResourceHandlerFile}
	res.SetAttr("protocolInfo", "http-get:*:"+mimeType+":*")
	obj.Resources = append(obj.Resources, res)
	return obj
}

func TestTriggerPlayHookMarksPlayedForEligibleMime(t *testing.T) {
	c, err := New(DefaultConfig(), Collaborators{Database: newFakeDatabase()})
	require.NoError(t, err)
	ctx := context.Background()

	obj := itemWithFileMime("video/mp4")
	_, err = c.db.AddObject(ctx, obj)
	require.NoError(t, err)

	require.NoError(t, c.TriggerPlayHook(ctx, obj.ID))

	loaded, err := c.db.LoadObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.True(t, loaded.HasFlag(FlagPlayed))
}

func TestTriggerPlayHookSkipsIneligibleMimePrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MarkPlayedMimePrefix = []string{"video"}
	c, err := New(cfg, Collaborators{Database: newFakeDatabase()})
	require.NoError(t, err)
	ctx := context.Background()

	obj := itemWithFileMime("image/jpeg")
	_, err = c.db.AddObject(ctx, obj)
	require.NoError(t, err)

	require.NoError(t, c.TriggerPlayHook(ctx, obj.ID))

	loaded, err := c.db.LoadObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.False(t, loaded.HasFlag(FlagPlayed))
}

func TestTriggerPlayHookScrobblesAudioOnly(t *testing.T) {
	scrobbler := &recordingScrobbler{}
	c, err := New(DefaultConfig(), Collaborators{Database: newFakeDatabase(), Scrobbler: scrobbler})
	require.NoError(t, err)
	ctx := context.Background()

	audio := itemWithFileMime("audio/mpeg")
	_, err = c.db.AddObject(ctx, audio)
	require.NoError(t, err)
	video := itemWithFileMime("video/mp4")
	_, err = c.db.AddObject(ctx, video)
	require.NoError(t, err)

	require.NoError(t, c.TriggerPlayHook(ctx, audio.ID))
	require.NoError(t, c.TriggerPlayHook(ctx, video.ID))

	assert.Equal(t, []int64{audio.ID}, scrobbler.scrobbled, "only the audio item must be scrobbled")
}

func TestPushLastOpenedDedupsAndTruncatesToBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LastOpenedBound = 2
	c, err := New(cfg, Collaborators{Database: newFakeDatabase()})
	require.NoError(t, err)

	c.pushLastOpened(1)
	c.pushLastOpened(2)
	c.pushLastOpened(1)
	c.pushLastOpened(3)

	assert.Equal(t, []int64{3, 1}, c.LastOpened(), "re-opening an id must move it to front, and the MRU must stay bounded")
}
