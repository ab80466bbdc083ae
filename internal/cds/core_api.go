package cds

import (
	"context"
	"fmt"
)

// AddFileRequest groups the knobs the public AddFile surface exposes
// beyond the synchronous engine's own AddSettings.
type AddFileRequest struct {
	Path        string
	RootPath    string
	Settings    AddSettings
	Async       bool
	LowPriority bool
	Cancellable bool
}

// SubmitAddFile is the public add_file surface. Synchronous calls run
// the engine inline and return the resulting object id; async calls
// enqueue a task and return its task id.
func (c *Core) SubmitAddFile(ctx context.Context, req AddFileRequest) (int64, error) {
	if !req.Async {
		return c.AddFile(ctx, req.Path, req.RootPath, req.Settings)
	}
	priority := PriorityHi
	if req.LowPriority {
		priority = PriorityLo
	}
	taskID := c.enqueue(TaskAddFile, req.Path, "add "+req.Path, 0, req.Cancellable, priority, func(ctx context.Context, self *Task) error {
		settings := req.Settings
		settings.Task = self
		_, err := c.AddFile(ctx, req.Path, req.RootPath, settings)
		return err
	})
	return taskID, nil
}

// UpdateObject applies the given field updates to object id and
// notifies subscribers of any resulting container changes.
func (c *Core) UpdateObject(ctx context.Context, id int64, params map[string]string) error {
	obj, err := c.db.LoadObject(ctx, id)
	if err != nil {
		return fmt.Errorf("update object %d: %w", id, err)
	}
	for k, v := range params {
		switch k {
		case "title":
			obj.Title = v
		case "upnp_class":
			obj.UpnpClass = v
		case "location":
			obj.Location = v
		default:
			obj.Metadata.Set(k, v)
		}
	}
	changed, err := c.db.UpdateObject(ctx, obj)
	if err != nil {
		return fmt.Errorf("update object %d: %w", id, err)
	}
	c.notify(changed)
	return nil
}

// SubmitRescan enqueues a RescanDirectory task for adir/containerID.
func (c *Core) SubmitRescan(adir *AutoscanDirectory, containerID int64, description string, cancellable bool) int64 {
	if description == "" {
		description = "rescan " + adir.Location
	}
	return c.enqueue(TaskRescanDirectory, adir.Location, description, 0, cancellable, PriorityLo, func(ctx context.Context, self *Task) error {
		return c.RescanDirectory(ctx, adir, containerID, self)
	})
}

// EnsurePathExistence ensures every prefix of path exists as a
// filesystem-backed container chain, returning the terminal id.
func (c *Core) EnsurePathExistence(ctx context.Context, path string) (int64, error) {
	id, changed, err := c.db.EnsurePathExistence(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("ensure path existence %q: %w", path, err)
	}
	c.notify(changed)
	return id, nil
}

// AddContainerChain is the public surface for materializing an
// arbitrary virtual chain outside the add engine (e.g. from a
// playlist parser). Returns the terminal id and whether it was newly
// created.
func (c *Core) AddContainerChain(ctx context.Context, chain, upnpClass string, refID int64, source *Object) (int64, bool, error) {
	_, wasCached := c.cache.get(chain)
	changed, err := c.addContainerChain(ctx, chain, upnpClass, refID, source, nil)
	if err != nil {
		return 0, false, err
	}
	c.notify(changed)
	terminal, ok := c.cache.get(chain)
	if !ok {
		return 0, false, fmt.Errorf("add container chain %q: %w", chain, ErrNotFound)
	}
	return terminal.ID, !wasCached && len(changed.UPnP) > 0, nil
}

// SetAutoscanDirectory registers or updates adir. Overlap with an
// existing autoscan is rejected by the database's
// CheckOverlappingAutoscans before insertion.
func (c *Core) SetAutoscanDirectory(ctx context.Context, adir *AutoscanDirectory) error {
	if err := c.db.CheckOverlappingAutoscans(ctx, adir); err != nil {
		return fmt.Errorf("set autoscan directory %q: %w", adir.Location, err)
	}
	if err := c.db.UpdateAutoscanDirectory(ctx, adir); err != nil {
		return fmt.Errorf("set autoscan directory %q: %w", adir.Location, err)
	}
	c.registryFor(adir.Mode).add(adir)
	if adir.Mode == ScanModeTimed {
		if err := c.timer.Subscribe(adir.ScanID, adir.Interval); err != nil {
			c.log.Warn("timer subscribe failed", "location", adir.Location, "error", err.Error())
		}
	}
	return nil
}

// RemoveAutoscanDirectory revokes adir's scan id, detaches it from the
// registry, and persists the removal. A running scan referencing this
// adir observes the revoked scan id at its next suspension point and
// aborts cleanly.
func (c *Core) RemoveAutoscanDirectory(ctx context.Context, adir *AutoscanDirectory) error {
	scanID := adir.ScanID
	adir.Revoke()
	c.registryFor(adir.Mode).remove(adir)
	if adir.Mode == ScanModeTimed {
		if err := c.timer.Unsubscribe(scanID); err != nil {
			c.log.Warn("timer unsubscribe failed", "location", adir.Location, "error", err.Error())
		}
	}
	if err := c.db.RemoveAutoscanDirectory(ctx, adir); err != nil {
		return fmt.Errorf("remove autoscan directory %q: %w", adir.Location, err)
	}
	return nil
}

// GetAutoscanDirectoryByScanID looks up an autoscan entry by its
// current scan id, searching both registries.
func (c *Core) GetAutoscanDirectoryByScanID(scanID string) (*AutoscanDirectory, bool) {
	if a, ok := c.timedScans.byScan(scanID); ok {
		return a, true
	}
	return c.eventScans.byScan(scanID)
}

// GetAutoscanDirectoryByObjectID looks up an autoscan entry by the
// container object id it maps to.
func (c *Core) GetAutoscanDirectoryByObjectID(id int64) (*AutoscanDirectory, bool) {
	if a, ok := c.timedScans.byObjectID(id); ok {
		return a, true
	}
	return c.eventScans.byObjectID(id)
}

// GetAutoscanDirectoryByLocation looks up an autoscan entry by its
// watched filesystem path.
func (c *Core) GetAutoscanDirectoryByLocation(location string) (*AutoscanDirectory, bool) {
	if a, ok := c.timedScans.byLocation(location); ok {
		return a, true
	}
	return c.eventScans.byLocation(location)
}

// ListAutoscanDirectories returns every registered entry for mode.
func (c *Core) ListAutoscanDirectories(mode ScanMode) []*AutoscanDirectory {
	return c.registryFor(mode).list()
}

// TimerNotify is invoked by the Timer collaborator when a subscribed
// param fires; param is an autoscan scan_id for Timed autoscans.
func (c *Core) TimerNotify(ctx context.Context, param string) {
	adir, ok := c.GetAutoscanDirectoryByScanID(param)
	if !ok {
		return
	}
	c.SubmitRescan(adir, adir.ObjectID, "", true)
}

// OnWatchEvent is invoked by the event watcher collaborator with the
// task kind implied by the underlying filesystem event, translated
// into the matching enqueue.
func (c *Core) OnWatchEvent(ctx context.Context, adir *AutoscanDirectory, kind TaskKind, path string) {
	switch kind {
	case TaskAddFile:
		c.enqueue(TaskAddFile, path, "watch add "+path, 0, true, PriorityHi, func(ctx context.Context, self *Task) error {
			_, err := c.AddFile(ctx, path, adir.Location, AddSettings{Recursive: true, Hidden: adir.Hidden, FollowSymlinks: c.cfg.FollowSymlinks, ProcessExisting: c.cfg.ProcessExisting, Adir: adir, Task: self})
			return err
		})
	case TaskRemoveObject:
		id, err := c.db.FindObjectIDByPath(ctx, path)
		if err != nil {
			return
		}
		_, _ = c.RemoveObjectAsync(ctx, id, false, true, false)
	case TaskRescanDirectory:
		c.SubmitRescan(adir, adir.ObjectID, "watch rescan "+path, true)
	}
}
