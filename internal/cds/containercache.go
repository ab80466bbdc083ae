package cds

import "sync"

// containerCache maps a virtual-path chain to its terminal container
// object. It must stay consistent with the database after every
// chain-add, and is cleared whenever a removal may have collapsed
// virtual parents.
type containerCache struct {
	mu    sync.RWMutex
	byKey map[string]*Object
}

func newContainerCache() *containerCache {
	return &containerCache{byKey: make(map[string]*Object)}
}

func (c *containerCache) get(chain string) (*Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.byKey[chain]
	return obj, ok
}

func (c *containerCache) put(chain string, obj *Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[chain] = obj
}

// clear drops every cached entry. Called after any removal that may
// have invalidated a chain prefix.
func (c *containerCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey = make(map[string]*Object)
}

func (c *containerCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}
