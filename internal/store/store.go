package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mantonx/cdscore/internal/cds"
)

// Store is the bundled GORM-backed cds.Database implementation.
type Store struct {
	db *gorm.DB
}

// Open opens a sqlite or postgres connection per driver ("sqlite" or
// "postgres") and dsn.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate runs auto-migration for the store's tables, then seeds the
// two sentinel objects (ROOT, FS_ROOT) if absent.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&objectRow{}, &resourceRow{}, &autoscanRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return s.seedSentinels()
}

func (s *Store) seedSentinels() error {
	seed := func(id int64, title, location string) error {
		var count int64
		if err := s.db.Model(&objectRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		row := objectRow{ID: id, Kind: int(cds.KindContainer), ParentID: -1, Title: title, UpnpClass: "object.container.storageFolder", Location: location, MetadataJSON: "[]"}
		return s.db.Create(&row).Error
	}
	if err := seed(cds.ROOT, "Root", "/"); err != nil {
		return err
	}
	return seed(cds.FSRoot, "Filesystem", "/fs")
}

func (s *Store) FindObjectByPath(ctx context.Context, path string) (*cds.Object, error) {
	var row objectRow
	err := s.db.WithContext(ctx).Preload("Resources").Where("location = ?", path).First(&row).Error
	if err != nil {
		if gorm.ErrRecordNotFound == err {
			return nil, cds.ErrNotFound
		}
		return nil, fmt.Errorf("find object by path %q: %w", path, err)
	}
	return fromRow(&row), nil
}

func (s *Store) FindObjectIDByPath(ctx context.Context, path string) (int64, error) {
	var row objectRow
	err := s.db.WithContext(ctx).Select("id").Where("location = ?", path).First(&row).Error
	if err != nil {
		if gorm.ErrRecordNotFound == err {
			return 0, cds.ErrNotFound
		}
		return 0, fmt.Errorf("find object id by path %q: %w", path, err)
	}
	return row.ID, nil
}

func (s *Store) LoadObject(ctx context.Context, id int64) (*cds.Object, error) {
	var row objectRow
	err := s.db.WithContext(ctx).Preload("Resources").Where("id = ?", id).First(&row).Error
	if err != nil {
		if gorm.ErrRecordNotFound == err {
			return nil, cds.ErrNotFound
		}
		return nil, err
	}
	return fromRow(&row), nil
}

func (s *Store) AddObject(ctx context.Context, obj *cds.Object) (cds.ChangedContainers, error) {
	row := toRow(obj)
	row.ID = 0
	for i := range row.Resources {
		row.Resources[i].ObjectID = 0
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return cds.ChangedContainers{}, err
	}
	obj.ID = row.ID
	return cds.ChangedContainers{UI: []int64{obj.ParentID}, UPnP: []int64{obj.ParentID}}, nil
}

func (s *Store) UpdateObject(ctx context.Context, obj *cds.Object) (cds.ChangedContainers, error) {
	row := toRow(obj)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&objectRow{}).Where("id = ?", obj.ID).Updates(map[string]interface{}{
			"kind": row.Kind, "parent_id": row.ParentID, "ref_id": row.RefID, "title": row.Title,
			"upnp_class": row.UpnpClass, "location": row.Location, "m_time": row.MTime,
			"flags": row.Flags, "metadata_json": row.MetadataJSON,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("object_id = ?", obj.ID).Delete(&resourceRow{}).Error; err != nil {
			return err
		}
		for i := range row.Resources {
			row.Resources[i].ObjectID = obj.ID
			row.Resources[i].ID = 0
		}
		if len(row.Resources) > 0 {
			if err := tx.Create(&row.Resources).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cds.ChangedContainers{}, err
	}
	return cds.ChangedContainers{UI: []int64{obj.ParentID}, UPnP: []int64{obj.ParentID}}, nil
}

func (s *Store) RemoveObject(ctx context.Context, id int64, all bool) (cds.ChangedContainers, error) {
	if cds.IsSentinel(id) {
		return cds.ChangedContainers{}, cds.ErrIllegalObject
	}
	var row objectRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if gorm.ErrRecordNotFound == err {
			return cds.ChangedContainers{}, nil
		}
		return cds.ChangedContainers{}, err
	}
	affected := map[int64]bool{row.ParentID: true}
	if err := s.removeRecursive(ctx, id, all, affected); err != nil {
		return cds.ChangedContainers{}, err
	}
	ids := mapKeys(affected)
	return cds.ChangedContainers{UI: ids, UPnP: ids}, nil
}

func (s *Store) removeRecursive(ctx context.Context, id int64, all bool, affected map[int64]bool) error {
	if all {
		var children []objectRow
		if err := s.db.WithContext(ctx).Select("id").Where("parent_id = ?", id).Find(&children).Error; err != nil {
			return err
		}
		for _, child := range children {
			affected[id] = true
			if err := s.removeRecursive(ctx, child.ID, all, affected); err != nil {
				return err
			}
		}
	}
	if err := s.db.WithContext(ctx).Where("object_id = ?", id).Delete(&resourceRow{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&objectRow{}).Error
}

func (s *Store) RemoveObjects(ctx context.Context, ids []int64) (cds.ChangedContainers, error) {
	affected := make(map[int64]bool)
	for _, id := range ids {
		if cds.IsSentinel(id) {
			continue
		}
		var row objectRow
		if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
			continue
		}
		affected[row.ParentID] = true
		if err := s.removeRecursive(ctx, id, false, affected); err != nil {
			return cds.ChangedContainers{}, err
		}
	}
	out := mapKeys(affected)
	return cds.ChangedContainers{UI: out, UPnP: out}, nil
}

// EnsurePathExistence walks path's '/'-delimited segments, creating a
// physical-container chain rooted at FSRoot for any segment absent
// from the catalog.
func (s *Store) EnsurePathExistence(ctx context.Context, path string) (int64, cds.ChangedContainers, error) {
	var changed cds.ChangedContainers
	segments := strings.Split(strings.Trim(path, "/"), "/")
	parentID := cds.FSRoot
	current := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		current += "/" + seg
		id, err := s.FindObjectIDByPath(ctx, current)
		if err == nil {
			parentID = id
			continue
		}
		row := objectRow{Kind: int(cds.KindContainer), ParentID: parentID, Title: seg, UpnpClass: "object.container.storageFolder", Location: current, MetadataJSON: "[]"}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return 0, changed, err
		}
		changed.UI = append(changed.UI, parentID)
		changed.UPnP = append(changed.UPnP, parentID)
		parentID = row.ID
	}
	return parentID, changed, nil
}

// AddContainerChain ensures every prefix of chain exists as a virtual
// container rooted at ROOT, returning the terminal id and every newly
// created container id.
func (s *Store) AddContainerChain(ctx context.Context, chain, upnpClass string, refID int64, meta *cds.Metadata) (int64, []int64, error) {
	segments := strings.Split(strings.Trim(chain, "/"), "/")
	parentID := cds.ROOT
	current := ""
	var created []int64
	var terminalID int64

	for i, seg := range segments {
		if seg == "" {
			continue
		}
		current += "/" + seg
		isTerminal := i == len(segments)-1

		id, err := s.FindObjectIDByPath(ctx, current)
		if err == nil {
			parentID = id
			terminalID = id
			continue
		}

		row := objectRow{Kind: int(cds.KindContainer), ParentID: parentID, Title: seg, UpnpClass: "object.container.storageFolder", Location: current, MetadataJSON: "[]"}
		if isTerminal {
			row.UpnpClass = upnpClass
			row.RefID = refID
			row.MetadataJSON = marshalMetadata(meta)
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return 0, nil, err
		}
		created = append(created, row.ID)
		parentID = row.ID
		terminalID = row.ID
	}
	return terminalID, created, nil
}

func (s *Store) GetObjects(ctx context.Context, containerID int64, itemsOnly bool) ([]int64, error) {
	q := s.db.WithContext(ctx).Model(&objectRow{}).Select("id").Where("parent_id = ?", containerID)
	if itemsOnly {
		q = q.Where("kind = ?", int(cds.KindItem))
	}
	var rows []objectRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out, nil
}

func (s *Store) UpdateAutoscanList(ctx context.Context, mode cds.ScanMode, list []*cds.AutoscanDirectory) error {
	for _, adir := range list {
		if err := s.UpdateAutoscanDirectory(ctx, adir); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAutoscanList(ctx context.Context, mode cds.ScanMode) ([]*cds.AutoscanDirectory, error) {
	var rows []autoscanRow
	if err := s.db.WithContext(ctx).Where("mode = ?", int(mode)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*cds.AutoscanDirectory, len(rows))
	for i, r := range rows {
		out[i] = rowToAutoscan(&r)
	}
	return out, nil
}

func (s *Store) UpdateAutoscanDirectory(ctx context.Context, adir *cds.AutoscanDirectory) error {
	var existing autoscanRow
	err := s.db.WithContext(ctx).Where("object_id = ?", adir.ObjectID).First(&existing).Error
	row := toAutoscanRow(adir)
	switch err {
	case nil:
		row.ID = existing.ID
		return s.db.WithContext(ctx).Save(&row).Error
	case gorm.ErrRecordNotFound:
		return s.db.WithContext(ctx).Create(&row).Error
	default:
		return err
	}
}

func (s *Store) RemoveAutoscanDirectory(ctx context.Context, adir *cds.AutoscanDirectory) error {
	return s.db.WithContext(ctx).Where("object_id = ?", adir.ObjectID).Delete(&autoscanRow{}).Error
}

func (s *Store) GetAutoscanDirectory(ctx context.Context, objectID int64) (*cds.AutoscanDirectory, error) {
	var row autoscanRow
	if err := s.db.WithContext(ctx).Where("object_id = ?", objectID).First(&row).Error; err != nil {
		if gorm.ErrRecordNotFound == err {
			return nil, cds.ErrNotFound
		}
		return nil, err
	}
	return rowToAutoscan(&row), nil
}

func (s *Store) CheckOverlappingAutoscans(ctx context.Context, adir *cds.AutoscanDirectory) error {
	var rows []autoscanRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		if r.ObjectID == adir.ObjectID {
			continue
		}
		if isPathOverlap(r.Location, adir.Location) {
			return fmt.Errorf("autoscan at %q overlaps existing autoscan at %q", adir.Location, r.Location)
		}
	}
	return nil
}

func (s *Store) GetServiceObjectIDs(ctx context.Context, prefix string) ([]int64, error) {
	var rows []objectRow
	if err := s.db.WithContext(ctx).Select("id").Where("location LIKE ?", prefix+"%").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out, nil
}

func rowToAutoscan(row *autoscanRow) *cds.AutoscanDirectory {
	adir := cds.RestoreAutoscanDirectory(row.Location, cds.ScanMode(row.Mode), row.ScanID)
	adir.Recursive = row.Recursive
	adir.Hidden = row.Hidden
	adir.Interval = row.Interval
	adir.Persistent = row.Persistent
	adir.ObjectID = row.ObjectID
	return adir
}

func isPathOverlap(a, b string) bool {
	a = strings.TrimRight(a, "/")
	b = strings.TrimRight(b, "/")
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

func mapKeys(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
