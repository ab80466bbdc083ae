package cds

import "context"

// ChangedContainers is the result of any database mutation: the set of
// container object ids whose children changed, split by which audience
// needs to hear about it.
type ChangedContainers struct {
	UI   []int64
	UPnP []int64
}

// Merge appends other's ids into c.
func (c *ChangedContainers) Merge(other ChangedContainers) {
	c.UI = append(c.UI, other.UI...)
	c.UPnP = append(c.UPnP, other.UPnP...)
}

// Database is the persistence contract the core consumes. A bundled
// GORM-backed implementation lives in internal/store.
type Database interface {
	FindObjectByPath(ctx context.Context, path string) (*Object, error)
	FindObjectIDByPath(ctx context.Context, path string) (int64, error)
	LoadObject(ctx context.Context, id int64) (*Object, error)
	AddObject(ctx context.Context, obj *Object) (changed ChangedContainers, err error)
	UpdateObject(ctx context.Context, obj *Object) (changed ChangedContainers, err error)
	RemoveObject(ctx context.Context, id int64, all bool) (ChangedContainers, error)
	RemoveObjects(ctx context.Context, ids []int64) (ChangedContainers, error)
	EnsurePathExistence(ctx context.Context, path string) (id int64, changed ChangedContainers, err error)
	AddContainerChain(ctx context.Context, chain, upnpClass string, refID int64, meta *Metadata) (terminalID int64, createdIDs []int64, err error)
	GetObjects(ctx context.Context, containerID int64, itemsOnly bool) ([]int64, error)

	UpdateAutoscanList(ctx context.Context, mode ScanMode, list []*AutoscanDirectory) error
	GetAutoscanList(ctx context.Context, mode ScanMode) ([]*AutoscanDirectory, error)
	UpdateAutoscanDirectory(ctx context.Context, adir *AutoscanDirectory) error
	RemoveAutoscanDirectory(ctx context.Context, adir *AutoscanDirectory) error
	GetAutoscanDirectory(ctx context.Context, objectID int64) (*AutoscanDirectory, error)
	CheckOverlappingAutoscans(ctx context.Context, adir *AutoscanDirectory) error

	GetServiceObjectIDs(ctx context.Context, prefix string) ([]int64, error)
}

// MimeClassifier resolves a filesystem path to a MIME type and a MIME
// type to a upnp:class. A bundled extension-table classifier lives in
// internal/mime.
type MimeClassifier interface {
	MimeType(path string, fallback string) string
	MimeTypeToUpnpClass(mimeType string) string
}

// MetadataExtractor enriches an Item in place from the underlying file.
// A bundled ffprobe/dhowden-tag-backed extractor lives in
// internal/metadata; a no-op extractor is the default.
type MetadataExtractor interface {
	SetMetadata(ctx context.Context, item *Object, dirEntryPath string) error
}

// LayoutDescriptor is one container chain the layout engine emits for a
// physical item. Segments holds the raw, unescaped title of each
// container in the chain (e.g. ["Audio", "Artists", artist, album]);
// the core escapes and joins them with the configured separator and
// escape character before the chain is cached or persisted, so an
// engine never needs to worry about a title colliding with the
// separator. Chain is an already-fully-formed path and is used as a
// fallback only when Segments is empty.
type LayoutDescriptor struct {
	Chain     string
	Segments  []string
	UpnpClass string
	Metadata  *Metadata
}

// LayoutEngine maps a physical Item to zero or more virtual container
// chains. The bundled builtin layout lives in internal/layout;
// layout_type "disabled" is represented by NopLayout.
type LayoutEngine interface {
	ProcessObject(ctx context.Context, item *Object, rootPath string) ([]LayoutDescriptor, error)
}

// NopLayout implements LayoutEngine by emitting nothing.
type NopLayout struct{}

func (NopLayout) ProcessObject(context.Context, *Object, string) ([]LayoutDescriptor, error) {
	return nil, nil
}

// UpdateBus is the update-notification contract for UPnP-visible
// changes. The bundled internal/events bus satisfies it through the
// adapter in internal/notifybus.
type UpdateBus interface {
	ContainerChanged(id int64) error
	ContainersChanged(ids []int64) error
}

// SessionManager is the update-notification contract for UI-visible
// changes. A minimal in-process registry lives in internal/session.
type SessionManager interface {
	ContainerChangedUI(id int64) error
}

// Timer subscribes a param (a scan_id or an online-service id) for
// periodic firing; Notify is invoked on the core's TimerNotify method.
type Timer interface {
	Subscribe(param string, interval int64) error
	Unsubscribe(param string) error
}

// NopTimer implements Timer as a no-op; the default when no Timer
// collaborator is supplied. Timed autoscans registered against a
// NopTimer never fire, matching the absence of a scheduling backend.
type NopTimer struct{}

func (NopTimer) Subscribe(string, int64) error { return nil }
func (NopTimer) Unsubscribe(string) error       { return nil }

// Scrobbler is notified when an audio item is played. A no-op
// implementation is the default; last.fm scrobbling is out of scope.
type Scrobbler interface {
	Scrobble(ctx context.Context, item *Object) error
}

// NopScrobbler implements Scrobbler as a no-op.
type NopScrobbler struct{}

func (NopScrobbler) Scrobble(context.Context, *Object) error { return nil }

// PlaylistParser is handed every item the add engine processes (newly
// created or already present) whose configured content-type is
// "playlist", to expand it into its member items. A
// no-op implementation is the default; no playlist format parser is
// bundled.
type PlaylistParser interface {
	ParsePlaylist(ctx context.Context, item *Object, path string) error
}

// NopPlaylistParser implements PlaylistParser as a no-op.
type NopPlaylistParser struct{}

func (NopPlaylistParser) ParsePlaylist(context.Context, *Object, string) error { return nil }
