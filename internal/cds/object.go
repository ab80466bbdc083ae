package cds

import "strings"

// Kind distinguishes the two Object variants. The source polymorphs via
// inheritance (CdsObject -> CdsItem/CdsContainer); here the variant set is
// closed and small, so a tagged union with a handful of variant-specific
// fields replaces the class hierarchy.
type Kind int

const (
	KindItem Kind = iota
	KindContainer
)

func (k Kind) String() string {
	if k == KindContainer {
		return "container"
	}
	return "item"
}

// Flag is a bit in an Object's flag set.
type Flag uint32

const (
	FlagPlayed  Flag = 1 << iota // object has been played at least once
	FlagVirtual                 // object is layout-derived, not a direct filesystem entry
)

// Reserved object ids. ROOT is the catalog root; FSRoot is the root of the
// physical filesystem tree; ids below FirstValidID are reserved sentinels
// and may never be assigned to a real object or targeted for removal.
const (
	ROOT         int64 = 0
	FSRoot       int64 = 1
	FirstValidID int64 = 10
)

// IsSentinel reports whether id refers to a reserved, non-removable
// object.
func IsSentinel(id int64) bool {
	return id == ROOT || id == FSRoot || (id >= 0 && id < FirstValidID)
}

// Metadata is an ordered key/value mapping of domain metadata (ARTIST,
// ALBUM, TRACKNUMBER, ...). Order is preserved across Set so that
// metadata round-trips in insertion order, matching how a tag reader
// hands back fields.
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata returns an empty ordered metadata map.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]string)}
}

// Set assigns key to value, appending key to the iteration order the
// first time it is seen.
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key if present.
func (m *Metadata) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the metadata keys in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// chainMetadataExclusions is the set of keys stripped before persisting
// a container's chain metadata, since they describe the originating
// item and are not meaningful on the container itself.
var chainMetadataExclusions = map[string]bool{
	"DESCRIPTION": true,
	"TITLE":       true,
	"TRACKNUMBER": true,
	"ARTIST":      true,
}

// ForChainContainer returns a copy filtered for persistence on a virtual
// container: the source-specific keys are stripped, and ARTIST is copied
// to ALBUMARTIST first if ALBUMARTIST is absent.
func (m *Metadata) ForChainContainer() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	if _, hasAlbumArtist := m.Get("ALBUMARTIST"); !hasAlbumArtist {
		if artist, ok := m.Get("ARTIST"); ok {
			out.Set("ALBUMARTIST", artist)
		}
	}
	for _, k := range m.keys {
		if chainMetadataExclusions[k] {
			continue
		}
		out.Set(k, m.values[k])
	}
	return out
}

// Resource is a handle to a streamable byte sequence attached to an
// Object: the file itself, an external subtitle, album art.
type Resource struct {
	HandlerType string
	Attributes  map[string]string
}

// Attr returns an attribute value, ok=false if unset.
func (r *Resource) Attr(key string) (string, bool) {
	if r == nil || r.Attributes == nil {
		return "", false
	}
	v, ok := r.Attributes[key]
	return v, ok
}

// SetAttr sets an attribute, creating the map if needed.
func (r *Resource) SetAttr(key, value string) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]string)
	}
	r.Attributes[key] = value
}

const (
	ResourceHandlerFile      = "file"
	ResourceHandlerSubtitle  = "subtitle"
	ResourceHandlerAlbumArt  = "albumart"
	ResourceHandlerContainerArt = "containerart"
)

// Object is the catalog entity: an Item (streamable leaf) or a Container
// (grouping node), distinguished by Kind.
type Object struct {
	ID       int64
	Kind     Kind
	ParentID int64
	// RefID points at the physical source object for a virtual object;
	// zero for physical objects.
	RefID      int64
	Title      string
	UpnpClass  string
	Location   string // absolute filesystem path (physical) or chain path (virtual)
	MTime      int64  // unix seconds
	Flags      Flag
	Metadata   *Metadata
	Resources  []*Resource

	// childCount is not persisted and is not read by the add engine;
	// first-child tracking for the first-child signal lives in the
	// per-walk addContext instead.
	childCount int
}

// IsItem reports whether the object is the Item variant.
func (o *Object) IsItem() bool { return o.Kind == KindItem }

// IsContainer reports whether the object is the Container variant.
func (o *Object) IsContainer() bool { return o.Kind == KindContainer }

// IsVirtual reports whether the object is layout-derived.
func (o *Object) IsVirtual() bool { return o.Flags&FlagVirtual != 0 }

// HasFlag reports whether f is set.
func (o *Object) HasFlag(f Flag) bool { return o.Flags&f != 0 }

// SetFlag sets f.
func (o *Object) SetFlag(f Flag) { o.Flags |= f }

// ResourceByHandler returns the first resource with the given handler
// type, or nil.
func (o *Object) ResourceByHandler(handlerType string) *Resource {
	for _, r := range o.Resources {
		if r.HandlerType == handlerType {
			return r
		}
	}
	return nil
}

// PathDepth returns the number of '/'-delimited segments in Location,
// used to evaluate the container-art min-depth rule.
func (o *Object) PathDepth() int {
	trimmed := strings.Trim(o.Location, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}
