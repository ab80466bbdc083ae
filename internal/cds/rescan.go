package cds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RescanDirectory brings the catalog subtree rooted at containerID
// (belonging to adir) into agreement with the filesystem directory that
// container maps to (adir.Location for the autoscan root, the
// subdirectory's own path for a child rescan), using the mtime memo to
// skip unchanged children.
func (c *Core) RescanDirectory(ctx context.Context, adir *AutoscanDirectory, containerID int64, task *Task) error {
	container, err := c.db.LoadObject(ctx, containerID)
	if err != nil {
		if adir.Persistent {
			ensuredID, _, ensureErr := c.db.EnsurePathExistence(ctx, adir.Location)
			if ensureErr != nil {
				return fmt.Errorf("ensure path existence %q: %w", adir.Location, ensureErr)
			}
			adir.ObjectID = ensuredID
			container, err = c.db.LoadObject(ctx, ensuredID)
			if err != nil {
				return err
			}
		} else {
			c.removeAutoscan(ctx, adir)
			return nil
		}
	}

	location := adir.Location
	if containerID != adir.ObjectID && container.Location != "" {
		location = container.Location
	}
	previous := adir.PreviousLMT(location)
	adir.SetPreviousLMT(location, 0)
	newMax := previous

	known, err := c.db.GetObjects(ctx, containerID, !adir.Recursive)
	if err != nil {
		return fmt.Errorf("get objects for %q: %w", location, err)
	}
	knownSet := make(map[int64]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}

	aborted := false
	entries, err := os.ReadDir(location)
	if err != nil {
		c.finishScan(ctx, adir, location, container, newMax)
		return fmt.Errorf("readdir %q: %w", location, err)
	}

	for _, entry := range entries {
		if task != nil {
			if err := c.checkValid(task); err != nil {
				aborted = true
				break
			}
		}
		name := entry.Name()
		if !adir.Hidden && strings.HasPrefix(name, ".") {
			continue
		}
		if !adir.Valid() {
			aborted = true
			break
		}

		childPath := filepath.Join(location, name)
		info, err := os.Lstat(childPath)
		if err != nil {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if !c.cfg.FollowSymlinks {
				if id, err := c.db.FindObjectIDByPath(ctx, childPath); err == nil {
					c.removeKnown(ctx, id, knownSet)
				}
				continue
			}
		}

		if info.IsDir() && adir.Recursive {
			newMax = maxInt64(newMax, info.ModTime().Unix())
			childID, err := c.db.FindObjectIDByPath(ctx, childPath)
			if err == nil {
				delete(knownSet, childID)
				c.enqueue(TaskRescanDirectory, childPath, "rescan "+childPath, taskIDOrZero(task), true, PriorityHi, func(ctx context.Context, self *Task) error {
					return c.RescanDirectory(ctx, adir, childID, self)
				})
			} else {
				registry := c.registryFor(adir.Mode)
				enqueued := registry.guardedEnqueue(adir, func() {
					c.enqueue(TaskAddFile, childPath, "add "+childPath, taskIDOrZero(task), true, PriorityLo, func(ctx context.Context, self *Task) error {
						_, err := c.AddFile(ctx, childPath, location, AddSettings{Recursive: true, Hidden: adir.Hidden, FollowSymlinks: c.cfg.FollowSymlinks, ProcessExisting: c.cfg.ProcessExisting, Adir: adir, Task: self})
						return err
					})
				})
				if !enqueued {
					aborted = true
					break
				}
			}
			continue
		}

		if info.Mode().IsRegular() {
			childID, err := c.db.FindObjectIDByPath(ctx, childPath)
			if err == nil {
				delete(knownSet, childID)
				if info.ModTime().Unix() > previous {
					if _, rmErr := c.db.RemoveObject(ctx, childID, false); rmErr == nil {
						c.cache.clear()
						c.addNonRecursive(ctx, childPath, location, adir)
					}
				}
				newMax = maxInt64(newMax, info.ModTime().Unix())
			} else {
				c.addNonRecursive(ctx, childPath, location, adir)
			}
		}
	}

	c.finishScan(ctx, adir, location, container, newMax)

	if !aborted {
		if len(knownSet) > 0 {
			ids := make([]int64, 0, len(knownSet))
			for id := range knownSet {
				ids = append(ids, id)
			}
			changed, err := c.db.RemoveObjects(ctx, ids)
			if err != nil {
				c.log.Warn("batch remove stale children failed", "location", location, "error", err.Error())
			} else {
				c.cache.clear()
				c.notify(changed)
			}
		}
	}
	return nil
}

func (c *Core) addNonRecursive(ctx context.Context, path, rootPath string, adir *AutoscanDirectory) {
	if _, err := c.AddFile(ctx, path, rootPath, AddSettings{Recursive: false, Hidden: adir.Hidden, FollowSymlinks: c.cfg.FollowSymlinks, ProcessExisting: c.cfg.ProcessExisting, Adir: adir}); err != nil {
		c.log.Warn("re-add during rescan failed", "path", path, "error", err.Error())
	}
}

func (c *Core) removeKnown(ctx context.Context, id int64, known map[int64]bool) {
	delete(known, id)
	changed, err := c.db.RemoveObject(ctx, id, false)
	if err != nil {
		return
	}
	c.cache.clear()
	c.notify(changed)
}

// finishScan promotes the mtime memo and stamps the parent container,
// regardless of whether the walk completed or was aborted.
func (c *Core) finishScan(ctx context.Context, adir *AutoscanDirectory, location string, container *Object, newMax int64) {
	finalMax := newMax
	if finalMax <= 0 {
		finalMax = 1
	}
	adir.SetPreviousLMT(location, finalMax)

	if newMax > 0 && container != nil {
		container.MTime = newMax
		if _, err := c.db.UpdateObject(ctx, container); err != nil {
			c.log.Warn("failed to stamp container mtime", "container_id", container.ID, "error", err.Error())
		}
	}
}

func (c *Core) removeAutoscan(ctx context.Context, adir *AutoscanDirectory) {
	registry := c.registryFor(adir.Mode)
	registry.remove(adir)
	if err := c.db.RemoveAutoscanDirectory(ctx, adir); err != nil {
		c.log.Warn("failed to persist autoscan removal", "location", adir.Location, "error", err.Error())
	}
}

func (c *Core) registryFor(mode ScanMode) *autoscanRegistry {
	if mode == ScanModeEvent {
		return c.eventScans
	}
	return c.timedScans
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func taskIDOrZero(t *Task) int64 {
	if t == nil {
		return 0
	}
	return t.ID
}
