package cds

// notify forwards a mutation's changed-container record to the session
// manager (UI-visible) and the update bus (UPnP-visible), in the order
// the ids are recorded. Delivery is at-least-once; coalescing duplicate
// ids across a burst of mutations is left to the subscriber.
func (c *Core) notify(changed ChangedContainers) {
	for _, id := range changed.UI {
		if err := c.sessions.ContainerChangedUI(id); err != nil {
			c.log.Warn("session notify failed", "container_id", id, "error", err.Error())
		}
	}
	for _, id := range changed.UPnP {
		if err := c.bus.ContainerChanged(id); err != nil {
			c.log.Warn("update bus notify failed", "container_id", id, "error", err.Error())
		}
	}
}
