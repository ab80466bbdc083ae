package cds

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChainEscapesSeparatorAndEscapeChar(t *testing.T) {
	c := &Core{cfg: Config{Separator: "/", Escape: "\\"}}

	chain := c.buildChain([]string{"Audio", "Artists", "AC/DC"})
	assert.Equal(t, `/Audio/Artists/AC\/DC`, chain)

	chain = c.buildChain([]string{"Weird\\Name"})
	assert.Equal(t, `/Weird\\Name`, chain)
}

// chainDatabase extends fakeDatabase with a real AddContainerChain
// implementation, so addContainerChain can be exercised end to end
// against the container cache.
type chainDatabase struct {
	*fakeDatabase
	nextID int64
	byPath map[string]int64
}

func newChainDatabase() *chainDatabase {
	return &chainDatabase{fakeDatabase: newFakeDatabase(), nextID: FirstValidID, byPath: make(map[string]int64)}
}

func (d *chainDatabase) AddContainerChain(ctx context.Context, chain, upnpClass string, refID int64, meta *Metadata) (int64, []int64, error) {
	var created []int64
	var terminal int64
	path := ""
	segments := splitChain(chain)
	for _, seg := range segments {
		path += "/" + seg
		if id, ok := d.byPath[path]; ok {
			terminal = id
			continue
		}
		d.nextID++
		id := d.nextID
		obj := &Object{ID: id, Kind: KindContainer, Title: seg, Location: path, UpnpClass: upnpClass}
		d.fakeDatabase.mu.Lock()
		d.fakeDatabase.objects[id] = obj
		d.fakeDatabase.mu.Unlock()
		d.byPath[path] = id
		created = append(created, id)
		terminal = id
	}
	return terminal, created, nil
}

func splitChain(chain string) []string {
	var segs []string
	cur := ""
	for _, r := range chain {
		if r == '/' {
			if cur != "" {
				segs = append(segs, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		segs = append(segs, cur)
	}
	return segs
}

func newChainTestCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(DefaultConfig(), Collaborators{Database: newChainDatabase()})
	require.NoError(t, err)
	return c
}

func TestAddContainerChainCreatesEachPrefixOnce(t *testing.T) {
	c := newChainTestCore(t)
	ctx := context.Background()

	changed, err := c.addContainerChain(ctx, "/Audio/Artists/Radiohead/Kid A", "object.container.album.musicAlbum", 0, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, changed.UPnP, "a brand-new chain must report a changed terminal container")

	_, ok := c.cache.get("/Audio/Artists/Radiohead/Kid A")
	assert.True(t, ok, "the terminal container must be cached after creation")
}

func TestAddContainerChainIsIdempotentViaCache(t *testing.T) {
	c := newChainTestCore(t)
	ctx := context.Background()

	_, err := c.addContainerChain(ctx, "/Audio/Artists/Radiohead/Kid A", "object.container.album.musicAlbum", 0, nil, nil)
	require.NoError(t, err)

	changed, err := c.addContainerChain(ctx, "/Audio/Artists/Radiohead/Kid A", "object.container.album.musicAlbum", 0, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, changed.UPnP, "repeating the same chain must hit the cache and report no new change")
}

// fakeLayoutEngine emits exactly the descriptors it's configured with,
// regardless of the item passed in.
type fakeLayoutEngine struct {
	descriptors []LayoutDescriptor
}

func (f *fakeLayoutEngine) ProcessObject(ctx context.Context, item *Object, rootPath string) ([]LayoutDescriptor, error) {
	return f.descriptors, nil
}

func TestApplyLayoutEscapesSegmentsContainingTheSeparator(t *testing.T) {
	engine := &fakeLayoutEngine{descriptors: []LayoutDescriptor{
		{Segments: []string{"Audio", "Artists", "AC/DC"}, UpnpClass: "object.container.storageFolder"},
	}}
	c, err := New(DefaultConfig(), Collaborators{Database: newChainDatabase(), Layout: engine})
	require.NoError(t, err)

	_, err = c.applyLayout(context.Background(), &Object{Kind: KindItem}, "/media")
	require.NoError(t, err)

	_, ok := c.cache.get(`/Audio/Artists/AC\/DC`)
	assert.True(t, ok, "the artist title must be escaped, not split into an extra container")
}

func TestApplyLayoutAppliesConfiguredMapping(t *testing.T) {
	engine := &fakeLayoutEngine{descriptors: []LayoutDescriptor{
		{Segments: []string{"Audio", "Artists", "Radiohead"}, UpnpClass: "object.container.storageFolder"},
	}}
	cfg := DefaultConfig()
	cfg.Mapping = []LayoutMappingRule{{Pattern: `^/Audio/`, Replacement: "/Music/"}}
	c, err := New(cfg, Collaborators{Database: newChainDatabase(), Layout: engine})
	require.NoError(t, err)

	_, err = c.applyLayout(context.Background(), &Object{Kind: KindItem}, "/media")
	require.NoError(t, err)

	_, ok := c.cache.get("/Music/Artists/Radiohead")
	assert.True(t, ok, "the configured layout_mapping rule must be applied before caching the chain")
}
