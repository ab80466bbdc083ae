package cds

import "errors"

// Sentinel errors surfaced across the task scheduler, the add/rescan
// engines, and the public Core surface. Task-runtime errors never cross
// the worker boundary; these are for synchronous API
// callers and for internal control flow compared with errors.Is.
var (
	// ErrShutdown is raised inside a running task once shutdown has been
	// requested. It unwinds to the worker, which sets the shutdown flag
	// and drains.
	ErrShutdown = errors.New("core is shutting down")

	// ErrTaskInvalid is observed cooperatively by a running task whose
	// valid flag has been cleared by invalidation.
	ErrTaskInvalid = errors.New("task invalidated")

	// ErrIllegalObject is returned when a caller attempts to remove a
	// sentinel object (ROOT, FS_ROOT, or a reserved id).
	ErrIllegalObject = errors.New("illegal operation on sentinel object")

	// ErrNotFound is returned when an object, container, or autoscan
	// directory is absent when expected.
	ErrNotFound = errors.New("not found")

	// ErrLayout wraps an error returned by the layout engine; the
	// triggering add still completes without virtual placement.
	ErrLayout = errors.New("layout engine error")
)
