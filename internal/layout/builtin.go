// Package layout implements the bundled builtin LayoutEngine: a small
// rule table keyed by MIME top-level prefix, sufficient to exercise
// the virtual-container machinery end to end without an external
// scripting engine.
package layout

import (
	"context"
	"strings"

	"github.com/mantonx/cdscore/internal/cds"
)

// Builtin is the rule-table layout engine.
type Builtin struct {
	ReadableNames bool
}

// New returns a Builtin layout engine.
func New(readableNames bool) *Builtin {
	return &Builtin{ReadableNames: readableNames}
}

// ProcessObject places item under a chain derived from its MIME
// top-level prefix: audio goes to /Audio/Artists/<artist>/<album>,
// video to /Video/All Video, image to /Photos/All Photos. Anything
// else is left unplaced.
func (b *Builtin) ProcessObject(ctx context.Context, item *cds.Object, rootPath string) ([]cds.LayoutDescriptor, error) {
	if item == nil || !item.IsItem() {
		return nil, nil
	}
	mimeType := itemMime(item)
	prefix := mimeType
	if idx := strings.IndexByte(mimeType, '/'); idx >= 0 {
		prefix = mimeType[:idx]
	}

	switch prefix {
	case "audio":
		return []cds.LayoutDescriptor{b.audioChain(item)}, nil
	case "video":
		return []cds.LayoutDescriptor{{Segments: []string{"Video", "All Video"}, UpnpClass: "object.container.storageFolder"}}, nil
	case "image":
		return []cds.LayoutDescriptor{{Segments: []string{"Photos", "All Photos"}, UpnpClass: "object.container.storageFolder"}}, nil
	default:
		return nil, nil
	}
}

// audioChain builds the single terminal chain Audio/Artists/<artist>/<album>
// as raw, unescaped segments; the core escapes and joins them before the
// database layer materializes every intermediate prefix in one call, and
// emits one container-changed signal for the terminal album container.
// Segments (not a pre-joined path) is what lets an artist or album title
// containing the configured separator (e.g. "AC/DC") pass through intact
// instead of fracturing into bogus extra containers.
func (b *Builtin) audioChain(item *cds.Object) cds.LayoutDescriptor {
	artist := metaOr(item, "ALBUMARTIST", metaOr(item, "ARTIST", "Unknown Artist"))
	album := metaOr(item, "ALBUM", "Unknown Album")

	meta := cds.NewMetadata()
	if v, ok := item.Metadata.Get("ARTIST"); ok {
		meta.Set("ARTIST", v)
	}
	if v, ok := item.Metadata.Get("ALBUM"); ok {
		meta.Set("ALBUM", v)
	}

	return cds.LayoutDescriptor{
		Segments:  []string{"Audio", "Artists", artist, album},
		UpnpClass: "object.container.album.musicAlbum",
		Metadata:  meta,
	}
}

func metaOr(item *cds.Object, key, fallback string) string {
	if item.Metadata == nil {
		return fallback
	}
	if v, ok := item.Metadata.Get(key); ok && v != "" {
		return v
	}
	return fallback
}

func itemMime(item *cds.Object) string {
	res := item.ResourceByHandler(cds.ResourceHandlerFile)
	if res == nil {
		return ""
	}
	pi, ok := res.Attr("protocolInfo")
	if !ok {
		return ""
	}
	parts := strings.Split(pi, ":")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
