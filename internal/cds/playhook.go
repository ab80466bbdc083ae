package cds

import (
	"context"
	"strings"
)

// TriggerPlayHook runs the play-hook for object id: marks it played if
// configured and eligible, notifies the scrobbler for audio, and
// maintains the bounded MRU of recently opened parent containers.
func (c *Core) TriggerPlayHook(ctx context.Context, id int64) error {
	obj, err := c.db.LoadObject(ctx, id)
	if err != nil {
		return err
	}

	if c.cfg.MarkPlayedEnabled && !obj.HasFlag(FlagPlayed) && mimeHasPrefix(obj, c.cfg.MarkPlayedMimePrefix) {
		obj.SetFlag(FlagPlayed)
		changed, err := c.db.UpdateObject(ctx, obj)
		if err != nil {
			c.log.Warn("failed to persist played flag", "object_id", id, "error", err.Error())
		} else if !c.cfg.SuppressUpdatesOnPlay {
			c.notify(changed)
		}
	}

	if strings.HasPrefix(objMime(obj), "audio") {
		if err := c.scrobbler.Scrobble(ctx, obj); err != nil {
			c.log.Warn("scrobble failed", "object_id", id, "error", err.Error())
		}
	}

	c.pushLastOpened(obj.ParentID)
	return nil
}

// mimeHasPrefix reports whether obj's protocolInfo-derived MIME type
// starts with any of prefixes.
func mimeHasPrefix(obj *Object, prefixes []string) bool {
	mime := objMime(obj)
	if mime == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(mime, p) {
			return true
		}
	}
	return false
}

// objMime extracts the MIME type recorded on an item's file resource,
// parsed out of its protocolInfo attribute (the standard
// "http-get:*:<mime>:*" form).
func objMime(obj *Object) string {
	res := obj.ResourceByHandler(ResourceHandlerFile)
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

// pushLastOpened removes parentID if present, then pushes it to the
// front of last_opened, truncating to LastOpenedBound.
func (c *Core) pushLastOpened(parentID int64) {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	for i, id := range c.lastOpened {
		if id == parentID {
			c.lastOpened = append(c.lastOpened[:i], c.lastOpened[i+1:]...)
			break
		}
	}
	c.lastOpened = append([]int64{parentID}, c.lastOpened...)

	bound := c.cfg.LastOpenedBound
	if bound <= 0 {
		bound = 5
	}
	if len(c.lastOpened) > bound {
		c.lastOpened = c.lastOpened[:bound]
	}
}

// LastOpened returns a copy of the recently-opened-container MRU.
func (c *Core) LastOpened() []int64 {
	c.playMu.Lock()
	defer c.playMu.Unlock()
	out := make([]int64, len(c.lastOpened))
	copy(out, c.lastOpened)
	return out
}
