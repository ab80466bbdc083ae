package cds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AddSettings groups the knobs that govern one add_file invocation and
// any recursion it performs.
type AddSettings struct {
	Recursive       bool
	Hidden          bool
	FollowSymlinks  bool
	RescanResource  bool
	ProcessExisting bool // re-extract metadata for an object that already exists at path
	Adir            *AutoscanDirectory
	ConfigFilePath  string // skip this path if encountered; usually empty

	// Task, when set, is the running task this add is executing under;
	// the walk polls its validity between directory entries.
	Task *Task
}

// addContext threads the running task (for cooperative cancellation)
// and first-child tracking through a recursive add.
type addContext struct {
	task       *Task
	rootPath   string
	settings   AddSettings
	firstChild map[int64]bool // containerID -> already had a child this walk
	created    map[int64]bool // containerID -> created (not pre-existing) this walk
}

// AddFile implements the add engine for a single directory entry at
// path, synchronously. It classifies, persists, lays out, and (for
// directories, when Recursive) walks children.
func (c *Core) AddFile(ctx context.Context, path, rootPath string, settings AddSettings) (int64, error) {
	ac := &addContext{task: settings.Task, rootPath: rootPath, settings: settings, firstChild: make(map[int64]bool), created: make(map[int64]bool)}
	return c.addEntry(ctx, ac, path)
}

func (c *Core) addEntry(ctx context.Context, ac *addContext, path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		c.log.Warn("stat failed during add", "path", path, "error", err.Error())
		return 0, fmt.Errorf("stat %q: %w", path, err)
	}

	if ac.settings.ConfigFilePath != "" && path == ac.settings.ConfigFilePath {
		return 0, nil
	}

	isSymlink := info.Mode()&os.ModeSymlink != 0
	if isSymlink {
		if !ac.settings.FollowSymlinks {
			return 0, nil
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return 0, nil
		}
		info, err = os.Stat(resolved)
		if err != nil {
			return 0, nil
		}
	}

	if !info.IsDir() && !info.Mode().IsRegular() {
		return 0, nil // ignore fifos, sockets, devices
	}

	base := filepath.Base(path)
	if !ac.settings.Hidden && strings.HasPrefix(base, ".") {
		return 0, nil
	}

	existing, err := c.db.FindObjectByPath(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("find object by path %q: %w", path, err)
	}

	var obj *Object
	var changed ChangedContainers

	if existing == nil {
		parentID, err := c.resolveParentID(ctx, path, ac)
		if err != nil {
			return 0, err
		}
		obj, changed, err = c.createObject(ctx, path, info, parentID)
		if err != nil {
			return 0, err
		}
		if obj.IsContainer() {
			ac.created[obj.ID] = true
		}
	} else {
		obj = existing
		if ac.settings.ProcessExisting && obj.IsItem() && c.metadata != nil {
			if err := c.metadata.SetMetadata(ctx, obj, path); err != nil {
				c.log.Warn("metadata re-extraction failed", "path", path, "error", err.Error())
			} else if updateChanged, err := c.db.UpdateObject(ctx, obj); err != nil {
				return 0, fmt.Errorf("update object %q: %w", path, err)
			} else {
				changed.Merge(updateChanged)
			}
		}
	}

	if obj.IsItem() {
		layoutChanged, err := c.applyLayout(ctx, obj, ac.rootPath)
		if err == nil {
			changed.Merge(layoutChanged)
		}

		if c.cfg.MimetypeToContentType[objMime(obj)] == "playlist" {
			if err := c.playlist.ParsePlaylist(ctx, obj, path); err != nil {
				c.log.Warn("playlist parse failed", "path", path, "error", err.Error())
			}
		}
	}

	if ac.settings.RescanResource && len(obj.Resources) > 0 && obj.ParentID != ROOT {
		c.forceResourceRescan(ctx, obj.ParentID)
	}

	if ac.settings.Recursive && obj.IsContainer() {
		entries, err := os.ReadDir(path)
		if err != nil {
			c.log.Warn("readdir failed during add", "path", path, "error", err.Error())
		} else {
			for _, entry := range entries {
				if ac.task != nil {
					if err := c.checkValid(ac.task); err != nil {
						break
					}
				}
				childPath := filepath.Join(path, entry.Name())
				_, err := c.addEntry(ctx, ac, childPath)
				if err != nil {
					continue
				}
				if ac.created[obj.ID] && !ac.firstChild[obj.ID] {
					ac.firstChild[obj.ID] = true
					c.notifyFirstChild(obj.ParentID)
				}
			}
		}
	}

	c.notify(changed)
	return obj.ID, nil
}

// resolveParentID finds the container path's parent directory maps to.
// The parent is almost always already in the database: either it was
// added earlier in this same walk, or it is the container a rescan or
// watch event is already anchored on. Only the very top of a walk (the
// root path handed to AddFile) can miss, in which case the walk's
// autoscan directory's object, or FSRoot, stands in as the parent.
func (c *Core) resolveParentID(ctx context.Context, path string, ac *addContext) (int64, error) {
	parentPath := filepath.Dir(path)
	if id, err := c.db.FindObjectIDByPath(ctx, parentPath); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("find object id by path %q: %w", parentPath, err)
	}
	if ac.settings.Adir != nil && !IsSentinel(ac.settings.Adir.ObjectID) {
		return ac.settings.Adir.ObjectID, nil
	}
	return FSRoot, nil
}

// createObject classifies path via MIME, constructs an Object, extracts
// metadata for items, and persists it.
func (c *Core) createObject(ctx context.Context, path string, info os.FileInfo, parentID int64) (*Object, ChangedContainers, error) {
	if info.IsDir() {
		obj := &Object{
			Kind:      KindContainer,
			ParentID:  parentID,
			Title:     info.Name(),
			UpnpClass: "object.container.storageFolder",
			Location:  path,
			MTime:     info.ModTime().Unix(),
			Metadata:  NewMetadata(),
		}
		changed, err := c.db.AddObject(ctx, obj)
		if err != nil {
			return nil, changed, fmt.Errorf("add container %q: %w", path, err)
		}
		return obj, changed, nil
	}

	mimeType := "application/octet-stream"
	if c.mime != nil {
		mimeType = c.mime.MimeType(path, mimeType)
	}
	if mimeType == "application/ogg" {
		if probablyTheora(path) {
			mimeType = "video/ogg"
		} else {
			mimeType = "audio/ogg"
		}
	}
	upnpClass := "object.item"
	if c.mime != nil {
		upnpClass = c.mime.MimeTypeToUpnpClass(mimeType)
	}

	obj := &Object{
		Kind:      KindItem,
		ParentID:  parentID,
		Title:     info.Name(),
		UpnpClass: upnpClass,
		Location:  path,
		MTime:     info.ModTime().Unix(),
		Metadata:  NewMetadata(),
		Resources: []*Resource{fileResource(mimeType)},
	}

	if c.metadata != nil {
		if err := c.metadata.SetMetadata(ctx, obj, path); err != nil {
			c.log.Warn("metadata extraction failed", "path", path, "error", err.Error())
		}
	}

	changed, err := c.db.AddObject(ctx, obj)
	if err != nil {
		return nil, changed, fmt.Errorf("add item %q: %w", path, err)
	}
	return obj, changed, nil
}

func fileResource(mimeType string) *Resource {
	r := &Resource{HandlerType: ResourceHandlerFile}
	r.SetAttr("protocolInfo", fmt.Sprintf("http-get:*:%s:*", mimeType))
	return r
}

// forceResourceRescan implements the "source remove then re-add" idiom:
// reset the parent's mtime memo to 1 and enqueue a recursive re-add so
// the new resource (e.g. an external subtitle dropped alongside a
// video) is picked up.
func (c *Core) forceResourceRescan(ctx context.Context, parentID int64) {
	parent, err := c.db.LoadObject(ctx, parentID)
	if err != nil {
		return
	}
	if parent.IsVirtual() || parent.Location == "" {
		return
	}
	adir, ok := c.timedScans.byObjectID(parentID)
	if !ok {
		adir, ok = c.eventScans.byObjectID(parentID)
	}
	if ok {
		adir.SetPreviousLMT(parent.Location, 1)
	}
	c.enqueue(TaskAddFile, parent.Location, "re-add after resource rescan", 0, true, PriorityLo, func(ctx context.Context, self *Task) error {
		_, err := c.AddFile(ctx, parent.Location, parent.Location, AddSettings{Recursive: true, Hidden: c.cfg.IncludeHidden, FollowSymlinks: c.cfg.FollowSymlinks, Adir: adir, Task: self})
		return err
	})
}

// notifyFirstChild emits exactly one container-changed signal for the
// grandparent of a container's newly gained first child: gaining a
// first child changes how the container itself renders under its own
// parent (e.g. from empty to non-empty), so the parent is what must
// be reported changed.
func (c *Core) notifyFirstChild(grandparentID int64) {
	c.notify(ChangedContainers{UI: []int64{grandparentID}, UPnP: []int64{grandparentID}})
}

// probablyTheora peeks the first bytes of an Ogg stream for a Theora
// header packet, to disambiguate application/ogg into audio vs. video.
func probablyTheora(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 4096)
	n, _ := f.Read(buf)
	return bytes.Contains(buf[:n], []byte("theora"))
}
