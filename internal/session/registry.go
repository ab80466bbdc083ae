// Package session implements a minimal in-process session registry
// satisfying the core's SessionManager contract; a
// full UI session layer with real transport is out of scope.
package session

import "sync"

// Callback is invoked with a UI-visible container-changed id.
type Callback func(containerID int64)

// Registry is a subscribe/unsubscribe callback registry.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]Callback
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{callbacks: make(map[string]Callback)}
}

// Subscribe registers callback under name, replacing any existing
// registration with the same name.
func (r *Registry) Subscribe(name string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[name] = cb
}

// Unsubscribe removes name's registration.
func (r *Registry) Unsubscribe(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, name)
}

// ContainerChangedUI fans containerID out to every subscribed callback.
func (r *Registry) ContainerChangedUI(containerID int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.callbacks {
		cb(containerID)
	}
	return nil
}
