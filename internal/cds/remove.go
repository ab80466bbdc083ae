package cds

import (
	"context"
	"fmt"
)

// RemoveObject implements the synchronous remove engine. It rejects
// sentinel targets, honors the parent-removal resource-rescan
// optimization, and otherwise clears the container cache and delegates
// to the database.
func (c *Core) RemoveObject(ctx context.Context, id int64, rescanResource, all bool) error {
	if IsSentinel(id) {
		return fmt.Errorf("remove object %d: %w", id, ErrIllegalObject)
	}

	if rescanResource {
		obj, err := c.db.LoadObject(ctx, id)
		if err == nil && len(obj.Resources) > 0 && !IsSentinel(obj.ParentID) {
			if _, rmErr := c.db.RemoveObject(ctx, obj.ParentID, false); rmErr == nil {
				c.cache.clear()
			}
			c.forceResourceRescan(ctx, obj.ParentID)
			return nil
		}
	}

	c.cache.clear()
	changed, err := c.db.RemoveObject(ctx, id, all)
	if err != nil {
		return fmt.Errorf("remove object %d: %w", id, err)
	}
	c.notify(changed)
	return nil
}

// RemoveObjectAsync enqueues the removal. If the target is a
// container, every autoscan entry rooted at its path is detached first
// (both registries), and every queued or running AddFile task whose
// path descends from the target is invalidated, closing the race where
// a doomed subtree spawns new additions.
func (c *Core) RemoveObjectAsync(ctx context.Context, id int64, rescanResource, all, lowPriority bool) (int64, error) {
	if IsSentinel(id) {
		return 0, fmt.Errorf("remove object %d: %w", id, ErrIllegalObject)
	}

	obj, err := c.db.LoadObject(ctx, id)
	if err == nil && obj.IsContainer() {
		for _, adir := range c.timedScans.removeIfSubdir(obj.Location) {
			if err := c.timer.Unsubscribe(adir.ScanID); err != nil {
				c.log.Warn("timer unsubscribe failed", "location", adir.Location, "error", err.Error())
			}
			if err := c.db.RemoveAutoscanDirectory(ctx, adir); err != nil {
				c.log.Warn("failed to persist autoscan removal", "location", adir.Location, "error", err.Error())
			}
		}
		for _, adir := range c.eventScans.removeIfSubdir(obj.Location) {
			if err := c.db.RemoveAutoscanDirectory(ctx, adir); err != nil {
				c.log.Warn("failed to persist autoscan removal", "location", adir.Location, "error", err.Error())
			}
		}
		c.invalidateDescendantsOfPath(obj.Location)
	}

	priority := PriorityHi
	if lowPriority {
		priority = PriorityLo
	}
	path := ""
	if obj != nil {
		path = obj.Location
	}
	taskID := c.enqueue(TaskRemoveObject, path, fmt.Sprintf("remove object %d", id), 0, true, priority, func(ctx context.Context, self *Task) error {
		return c.RemoveObject(ctx, id, rescanResource, all)
	})
	return taskID, nil
}
