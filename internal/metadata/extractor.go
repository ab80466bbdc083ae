package metadata

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/mantonx/cdscore/internal/cds"
	"github.com/mantonx/cdscore/internal/logger"
)

// Extractor is the bundled cds.MetadataExtractor: dhowden/tag for
// audio file headers, ffprobe (via os/exec) for the duration of video
// items; items of any other MIME type are left untouched. Either stage
// is skipped on error; extraction never fails the add.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

func (e *Extractor) SetMetadata(ctx context.Context, item *cds.Object, path string) error {
	if item.Metadata == nil {
		item.Metadata = cds.NewMetadata()
	}

	mimeType := itemMimeType(item)
	switch {
	case strings.HasPrefix(mimeType, "audio"):
		if err := e.readAudioTags(item, path); err != nil {
			logger.Named("metadata").Debug("audio tag read failed", "path", path, "error", err.Error())
		}
	case strings.HasPrefix(mimeType, "video"):
		if info, err := ExtractAudioTechnicalInfo(path); err == nil {
			setDuration(item, info.Duration)
		}
	}
	return nil
}

func (e *Extractor) readAudioTags(item *cds.Object, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("read tags: %w", err)
	}

	if title := m.Title(); title != "" {
		item.Title = title
		item.Metadata.Set("TITLE", title)
	}
	if artist := m.Artist(); artist != "" {
		item.Metadata.Set("ARTIST", artist)
	}
	if albumArtist := m.AlbumArtist(); albumArtist != "" {
		item.Metadata.Set("ALBUMARTIST", albumArtist)
	}
	if album := m.Album(); album != "" {
		item.Metadata.Set("ALBUM", album)
	}
	if genre := m.Genre(); genre != "" {
		item.Metadata.Set("GENRE", genre)
	}
	if year := m.Year(); year != 0 {
		item.Metadata.Set("DATE", strconv.Itoa(year))
	}
	track, _ := m.Track()
	if track != 0 {
		item.Metadata.Set("TRACKNUMBER", strconv.Itoa(track))
	}

	if picture := m.Picture(); picture != nil {
		res := &cds.Resource{HandlerType: cds.ResourceHandlerAlbumArt}
		res.SetAttr("protocolInfo", fmt.Sprintf("http-get:*:%s:*", picture.MIMEType))
		item.Resources = append(item.Resources, res)
	}
	return nil
}

func setDuration(item *cds.Object, seconds float64) {
	if seconds <= 0 {
		return
	}
	item.Metadata.Set("DURATION", strconv.FormatFloat(seconds, 'f', 2, 64))
}

func itemMimeType(item *cds.Object) string {
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

// NopExtractor is the default fallback when no extraction capability
// is configured.
type NopExtractor struct{}

func (NopExtractor) SetMetadata(context.Context, *cds.Object, string) error { return nil }
