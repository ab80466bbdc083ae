// Package store implements the bundled GORM-backed reference Database,
// following the sqlite-by-default/postgres-via-DSN driver switch common
// across this codebase.
package store

import (
	"encoding/json"

	"github.com/mantonx/cdscore/internal/cds"
)

// objectRow is the persisted form of a cds.Object.
type objectRow struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	Kind         int
	ParentID     int64 `gorm:"index"`
	RefID        int64
	Title        string
	UpnpClass    string
	Location     string `gorm:"uniqueIndex;size:1024"`
	MTime        int64
	Flags        uint32
	MetadataJSON string `gorm:"type:text"`

	Resources []resourceRow `gorm:"foreignKey:ObjectID"`
}

func (objectRow) TableName() string { return "cds_objects" }

// resourceRow is the persisted form of a cds.Resource.
type resourceRow struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	ObjectID       int64 `gorm:"index"`
	HandlerType    string
	AttributesJSON string `gorm:"type:text"`
}

func (resourceRow) TableName() string { return "cds_resources" }

// autoscanRow is the persisted form of a cds.AutoscanDirectory.
type autoscanRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	Location   string
	Mode       int
	Recursive  bool
	Hidden     bool
	Interval   int64
	Persistent bool
	ObjectID   int64 `gorm:"uniqueIndex"`
	ScanID     string
}

func (autoscanRow) TableName() string { return "cds_autoscan_directories" }

// metaPair is the wire form of one Metadata key/value, used to
// round-trip Metadata's insertion order through JSON (a plain map
// would not preserve it).
type metaPair struct {
	K string `json:"k"`
	V string `json:"v"`
}

func marshalMetadata(m *cds.Metadata) string {
	if m == nil {
		return "[]"
	}
	pairs := make([]metaPair, 0, len(m.Keys()))
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		pairs = append(pairs, metaPair{K: k, V: v})
	}
	b, _ := json.Marshal(pairs)
	return string(b)
}

func unmarshalMetadata(raw string) *cds.Metadata {
	m := cds.NewMetadata()
	if raw == "" {
		return m
	}
	var pairs []metaPair
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return m
	}
	for _, p := range pairs {
		m.Set(p.K, p.V)
	}
	return m
}

func marshalAttrs(attrs map[string]string) string {
	if attrs == nil {
		return "{}"
	}
	b, _ := json.Marshal(attrs)
	return string(b)
}

func unmarshalAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	if raw == "" {
		return attrs
	}
	_ = json.Unmarshal([]byte(raw), &attrs)
	return attrs
}

func toRow(obj *cds.Object) objectRow {
	row := objectRow{
		ID:           obj.ID,
		Kind:         int(obj.Kind),
		ParentID:     obj.ParentID,
		RefID:        obj.RefID,
		Title:        obj.Title,
		UpnpClass:    obj.UpnpClass,
		Location:     obj.Location,
		MTime:        obj.MTime,
		Flags:        uint32(obj.Flags),
		MetadataJSON: marshalMetadata(obj.Metadata),
	}
	for _, r := range obj.Resources {
		row.Resources = append(row.Resources, resourceRow{
			ObjectID:       obj.ID,
			HandlerType:    r.HandlerType,
			AttributesJSON: marshalAttrs(r.Attributes),
		})
	}
	return row
}

func fromRow(row *objectRow) *cds.Object {
	obj := &cds.Object{
		ID:        row.ID,
		Kind:      cds.Kind(row.Kind),
		ParentID:  row.ParentID,
		RefID:     row.RefID,
		Title:     row.Title,
		UpnpClass: row.UpnpClass,
		Location:  row.Location,
		MTime:     row.MTime,
		Flags:     cds.Flag(row.Flags),
		Metadata:  unmarshalMetadata(row.MetadataJSON),
	}
	for _, r := range row.Resources {
		obj.Resources = append(obj.Resources, &cds.Resource{
			HandlerType: r.HandlerType,
			Attributes:  unmarshalAttrs(r.AttributesJSON),
		})
	}
	return obj
}

func toAutoscanRow(adir *cds.AutoscanDirectory) autoscanRow {
	return autoscanRow{
		Location:   adir.Location,
		Mode:       int(adir.Mode),
		Recursive:  adir.Recursive,
		Hidden:     adir.Hidden,
		Interval:   adir.Interval,
		Persistent: adir.Persistent,
		ObjectID:   adir.ObjectID,
		ScanID:     adir.ScanID,
	}
}
