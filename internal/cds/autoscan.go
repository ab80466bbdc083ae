package cds

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ScanMode distinguishes the two autoscan registries.
type ScanMode int

const (
	ScanModeTimed ScanMode = iota
	ScanModeEvent
)

func (m ScanMode) String() string {
	if m == ScanModeEvent {
		return "event"
	}
	return "timed"
}

// InvalidScanID marks a revoked autoscan: a worker task holding this
// scan_id must abort cleanly.
const InvalidScanID = ""

// AutoscanDirectory is a watched filesystem root.
type AutoscanDirectory struct {
	Location   string
	Mode       ScanMode
	Recursive  bool
	Hidden     bool
	Interval   int64 // seconds, Timed only
	Persistent bool
	ObjectID   int64
	ScanID     string

	mu              sync.Mutex
	taskCount       int
	activeScanCount int
	previousLMT     map[string]int64
}

// NewAutoscanDirectory constructs a fresh autoscan entry with a newly
// generated scan id.
func NewAutoscanDirectory(location string, mode ScanMode) *AutoscanDirectory {
	return &AutoscanDirectory{
		Location:    location,
		Mode:        mode,
		ScanID:      uuid.NewString(),
		previousLMT: make(map[string]int64),
	}
}

// RestoreAutoscanDirectory reconstructs an entry loaded from storage,
// preserving its persisted scan id rather than minting a new one.
func RestoreAutoscanDirectory(location string, mode ScanMode, scanID string) *AutoscanDirectory {
	return &AutoscanDirectory{
		Location:    location,
		Mode:        mode,
		ScanID:      scanID,
		previousLMT: make(map[string]int64),
	}
}

// PreviousLMT returns the memoized mtime for path, or 0 if never scanned.
func (a *AutoscanDirectory) PreviousLMT(path string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.previousLMT[path]
}

// SetPreviousLMT memoizes the mtime for path.
func (a *AutoscanDirectory) SetPreviousLMT(path string, value int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.previousLMT == nil {
		a.previousLMT = make(map[string]int64)
	}
	a.previousLMT[path] = value
}

// Revoke invalidates the scan id so in-flight tasks referencing it abort.
func (a *AutoscanDirectory) Revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ScanID = InvalidScanID
}

// Valid reports whether the scan id has not been revoked.
func (a *AutoscanDirectory) Valid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ScanID != InvalidScanID
}

func (a *AutoscanDirectory) incTaskCount(delta int) {
	a.mu.Lock()
	a.taskCount += delta
	a.mu.Unlock()
}

// TaskCount returns the number of in-flight tasks referencing this
// directory.
func (a *AutoscanDirectory) TaskCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.taskCount
}

// autoscanRegistry indexes AutoscanDirectory entries by scan_id and by
// object_id, and supports prefix (subtree) queries for remove-if-subdir.
type autoscanRegistry struct {
	mu       sync.Mutex
	byScanID map[string]*AutoscanDirectory
	byObject map[int64]*AutoscanDirectory
}

func newAutoscanRegistry() *autoscanRegistry {
	return &autoscanRegistry{
		byScanID: make(map[string]*AutoscanDirectory),
		byObject: make(map[int64]*AutoscanDirectory),
	}
}

func (r *autoscanRegistry) add(adir *AutoscanDirectory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if adir.ScanID != InvalidScanID {
		r.byScanID[adir.ScanID] = adir
	}
	r.byObject[adir.ObjectID] = adir
}

func (r *autoscanRegistry) remove(adir *AutoscanDirectory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byScanID, adir.ScanID)
	delete(r.byObject, adir.ObjectID)
}

func (r *autoscanRegistry) byScan(scanID string) (*AutoscanDirectory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byScanID[scanID]
	return a, ok
}

func (r *autoscanRegistry) byObjectID(id int64) (*AutoscanDirectory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byObject[id]
	return a, ok
}

func (r *autoscanRegistry) byLocation(location string) (*AutoscanDirectory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byObject {
		if a.Location == location {
			return a, true
		}
	}
	return nil, false
}

func (r *autoscanRegistry) list() []*AutoscanDirectory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AutoscanDirectory, 0, len(r.byObject))
	for _, a := range r.byObject {
		out = append(out, a)
	}
	return out
}

// removeIfSubdir detaches every entry whose location is path or a
// descendant of it, returning them so the caller can unregister the
// corresponding timer or watcher.
func (r *autoscanRegistry) removeIfSubdir(path string) []*AutoscanDirectory {
	r.mu.Lock()
	var hits []*AutoscanDirectory
	for _, a := range r.byObject {
		if a.Location == path || isSubpath(path, a.Location) {
			hits = append(hits, a)
		}
	}
	for _, a := range hits {
		delete(r.byScanID, a.ScanID)
		delete(r.byObject, a.ObjectID)
	}
	r.mu.Unlock()
	return hits
}

// guardedEnqueue holds the registry lock while re-checking adir's scan
// id and, if still valid, running enqueueFn. Holding the lock across
// the check and the enqueue closes the race with a concurrent
// removeIfSubdir revoking adir between the caller's last validity
// check and the task actually being queued. Returns whether enqueueFn
// ran.
func (r *autoscanRegistry) guardedEnqueue(adir *AutoscanDirectory, enqueueFn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !adir.Valid() {
		return false
	}
	enqueueFn()
	return true
}

// isSubpath reports whether candidate is root or a descendant of root.
func isSubpath(root, candidate string) bool {
	root = strings.TrimRight(root, "/")
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+"/")
}
