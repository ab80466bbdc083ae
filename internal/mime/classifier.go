// Package mime implements the bundled extension-table MimeClassifier
// that satisfies the core's MimeClassifier contract.
package mime

import (
	"path/filepath"
	"strings"
)

// byExtension maps a lowercased file extension to a MIME type, covering
// the audio/video/image/subtitle/playlist entries a content-directory
// classifier needs.
var byExtension = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".3gp":  "video/3gpp",
	".ogv":  "video/ogg",

	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "application/ogg", // disambiguated to audio/video by the add engine
	".wma":  "audio/x-ms-wma",
	".m4a":  "audio/mp4",
	".opus": "audio/opus",
	".aiff": "audio/aiff",
	".aac":  "audio/aac",

	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",

	".srt": "text/srt",
	".vtt": "text/vtt",
	".ass": "text/x-ssa",
	".sub": "text/x-microdvd",

	".m3u":  "audio/x-mpegurl",
	".pls":  "audio/x-scpls",
}

// upnpClassByPrefix maps a MIME top-level type to the upnp:class the
// add engine assigns new Items.
var upnpClassByPrefix = map[string]string{
	"video": "object.item.videoItem",
	"audio": "object.item.audioItem.musicTrack",
	"image": "object.item.imageItem.photo",
}

// Classifier is the bundled extension-table MimeClassifier.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier { return &Classifier{} }

// MimeType returns the MIME type registered for path's extension, or
// fallback if the extension is unknown.
func (Classifier) MimeType(path string, fallback string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := byExtension[ext]; ok {
		return mt
	}
	return fallback
}

// MimeTypeToUpnpClass maps a MIME type's top-level prefix to an
// upnp:class, defaulting to the generic item class for anything else
// (subtitles, playlists, application/* handled elsewhere).
func (Classifier) MimeTypeToUpnpClass(mimeType string) string {
	prefix := mimeType
	if idx := strings.IndexByte(mimeType, '/'); idx >= 0 {
		prefix = mimeType[:idx]
	}
	if class, ok := upnpClassByPrefix[prefix]; ok {
		return class
	}
	return "object.item"
}

// IsPlaylist reports whether mimeType names a playlist container
// format.
func IsPlaylist(mimeType string) bool {
	switch mimeType {
	case "audio/x-mpegurl", "audio/x-scpls":
		return true
	default:
		return false
	}
}

// DefaultContentTypes returns the built-in mimetype_to_content_type
// mapping: every MIME type this classifier can produce that IsPlaylist
// recognizes is classified as "playlist". Callers merge this with any
// operator-configured mimetype_to_content_type entries, which take
// precedence.
func DefaultContentTypes() map[string]string {
	out := make(map[string]string)
	for _, mt := range byExtension {
		if IsPlaylist(mt) {
			out[mt] = "playlist"
		}
	}
	return out
}
