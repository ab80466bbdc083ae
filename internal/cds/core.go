// Package cds implements the content-management core: the task
// scheduler, the autoscan registry, the filesystem add/rescan/remove
// engines, the virtual-layout container cache, the change-notification
// fan-out, and the play-hook, wired together behind the Core type.
package cds

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/mantonx/cdscore/internal/logger"
)

// LayoutMappingRule is one regex→replacement step applied, in order, to
// a virtual container chain before it is cached or persisted, mirroring
// config.LayoutMappingRule at the core's own layer.
type LayoutMappingRule struct {
	Pattern     string
	Replacement string
}

// Config carries the subset of the process configuration the core
// reads directly; the rest (database DSN, logging level) is consumed
// by the collaborators before they're handed to New.
type Config struct {
	FollowSymlinks       bool
	IncludeHidden        bool
	ProcessExisting      bool
	MarkPlayedEnabled    bool
	MarkPlayedMimePrefix []string
	SuppressUpdatesOnPlay bool
	LastOpenedBound      int
	ContainerArtParents  int
	ContainerArtMinDepth int
	Separator            string
	Escape               string
	Mapping              []LayoutMappingRule
	MimetypeToContentType map[string]string
}

// DefaultConfig returns the core's own defaults, used when the caller
// does not supply a Config.
func DefaultConfig() Config {
	return Config{
		FollowSymlinks:        false,
		IncludeHidden:         false,
		MarkPlayedEnabled:     true,
		MarkPlayedMimePrefix:  []string{"audio", "video"},
		SuppressUpdatesOnPlay: false,
		LastOpenedBound:       5,
		ContainerArtParents:   3,
		ContainerArtMinDepth:  1,
		Separator:             "/",
		Escape:                "\\",
	}
}

// Core is the content-management core. It owns the task queues, the
// container cache, the autoscan registries, and the current-task slot;
// Database, MimeClassifier, MetadataExtractor, LayoutEngine, UpdateBus,
// SessionManager, Timer, and Scrobbler are shared collaborators.
type Core struct {
	cfg Config
	log hclogNamed

	db        Database
	mime      MimeClassifier
	metadata  MetadataExtractor
	layout    LayoutEngine
	bus       UpdateBus
	sessions  SessionManager
	timer     Timer
	scrobbler Scrobbler
	playlist  PlaylistParser

	mu          sync.Mutex
	hi, lo      []*Task
	currentTask *Task
	nextTaskID  int64
	shuttingDown bool
	wake        chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup

	timedScans *autoscanRegistry
	eventScans *autoscanRegistry

	cache *containerCache

	mappingRules []compiledMappingRule

	playMu     sync.Mutex
	lastOpened []int64
}

// compiledMappingRule is one LayoutMappingRule with its pattern
// precompiled, so applyLayoutMapping doesn't recompile a regexp on
// every chain it processes.
type compiledMappingRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// hclogNamed is the minimal logging surface Core needs; satisfied by
// logger.Named's return value.
type hclogNamed interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

// Collaborators bundles the external interfaces New requires. Database
// must be set. A nil Layout, Bus, Sessions, Timer, Scrobbler or
// Playlist is replaced by a no-op implementation; a nil Mime or
// Metadata stays nil, and the add engine then skips classification
// (octet-stream, object.item) or metadata extraction.
type Collaborators struct {
	Database       Database
	Mime           MimeClassifier
	Metadata       MetadataExtractor
	Layout         LayoutEngine
	Bus            UpdateBus
	Sessions       SessionManager
	Timer          Timer
	Scrobbler      Scrobbler
	Playlist       PlaylistParser
}

// New constructs a Core. Database is required; all other collaborators
// fall back to no-op implementations if nil.
func New(cfg Config, collab Collaborators) (*Core, error) {
	if collab.Database == nil {
		return nil, fmt.Errorf("cds: Database collaborator is required")
	}
	if collab.Layout == nil {
		collab.Layout = NopLayout{}
	}
	if collab.Scrobbler == nil {
		collab.Scrobbler = NopScrobbler{}
	}
	if collab.Bus == nil {
		collab.Bus = nopUpdateBus{}
	}
	if collab.Sessions == nil {
		collab.Sessions = nopSessionManager{}
	}
	if collab.Playlist == nil {
		collab.Playlist = NopPlaylistParser{}
	}
	if collab.Timer == nil {
		collab.Timer = NopTimer{}
	}
	c := &Core{
		cfg:        cfg,
		log:        logger.Named("cds"),
		db:         collab.Database,
		mime:       collab.Mime,
		metadata:   collab.Metadata,
		layout:     collab.Layout,
		bus:        collab.Bus,
		sessions:   collab.Sessions,
		timer:      collab.Timer,
		scrobbler:  collab.Scrobbler,
		playlist:   collab.Playlist,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		timedScans: newAutoscanRegistry(),
		eventScans: newAutoscanRegistry(),
		cache:      newContainerCache(),
	}
	for _, rule := range cfg.Mapping {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			c.log.Warn("skipping invalid layout_mapping pattern", "pattern", rule.Pattern, "error", err.Error())
			continue
		}
		c.mappingRules = append(c.mappingRules, compiledMappingRule{pattern: re, replacement: rule.Replacement})
	}
	return c, nil
}

// Start launches the worker goroutine.
func (c *Core) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.worker(ctx)
	c.log.Info("core started")
}

// Shutdown signals the worker to stop once both queues are empty (tasks
// already queued still run) and blocks until it has drained.
func (c *Core) Shutdown() {
	c.mu.Lock()
	c.shuttingDown = true
	c.mu.Unlock()
	c.wakeWorker()
	c.wg.Wait()
	c.log.Info("core shut down")
}

func (c *Core) isShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shuttingDown
}

func (c *Core) wakeWorker() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// worker drains hi then lo, one task at a time, until shutdown.
func (c *Core) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if c.shuttingDown && len(c.hi) == 0 && len(c.lo) == 0 {
			c.mu.Unlock()
			return
		}
		task := c.dequeueLocked()
		c.currentTask = task
		c.mu.Unlock()

		if task == nil {
			select {
			case <-c.wake:
			case <-ctx.Done():
				return
			}
			continue
		}

		if task.Valid {
			c.runTask(ctx, task)
		}

		c.mu.Lock()
		c.currentTask = nil
		c.mu.Unlock()
	}
}

func (c *Core) runTask(ctx context.Context, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("task panic", "task_id", task.ID, "kind", task.Kind.String(), "recovered", r)
		}
	}()
	err := task.run(ctx, task)
	if err == nil {
		return
	}
	switch {
	case isShutdownErr(err):
		c.mu.Lock()
		c.shuttingDown = true
		c.mu.Unlock()
	default:
		c.log.Warn("task error", "task_id", task.ID, "kind", task.Kind.String(), "error", err.Error())
	}
}

func isShutdownErr(err error) bool {
	return errors.Is(err, ErrShutdown)
}

// dequeueLocked pops the next task: hi before lo. Caller holds c.mu.
func (c *Core) dequeueLocked() *Task {
	if len(c.hi) > 0 {
		t := c.hi[0]
		c.hi = c.hi[1:]
		return t
	}
	if len(c.lo) > 0 {
		t := c.lo[0]
		c.lo = c.lo[1:]
		return t
	}
	return nil
}

// enqueue appends task to the selected queue and wakes the worker. A
// no-op after shutdown has been requested.
func (c *Core) enqueue(kind TaskKind, path, description string, parentID int64, cancellable bool, priority Priority, run func(ctx context.Context, self *Task) error) int64 {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return 0
	}
	c.nextTaskID++
	t := &Task{
		ID:          c.nextTaskID,
		ParentID:    parentID,
		Kind:        kind,
		Path:        path,
		Description: description,
		Cancellable: cancellable,
		Valid:       true,
		run:         run,
	}
	if priority == PriorityHi {
		c.hi = append(c.hi, t)
	} else {
		c.lo = append(c.lo, t)
	}
	c.mu.Unlock()
	c.wakeWorker()
	return t.ID
}

// InvalidateTask marks taskID, and every queued task whose ParentID
// equals taskID, as not valid. Applies to the current task, hi, and lo
// queues.
func (c *Core) InvalidateTask(taskID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(taskID)
}

func (c *Core) invalidateLocked(taskID int64) {
	matches := func(t *Task) bool { return t.ID == taskID || t.ParentID == taskID }
	if c.currentTask != nil && matches(c.currentTask) {
		c.currentTask.Valid = false
	}
	for _, t := range c.hi {
		if matches(t) {
			t.Valid = false
		}
	}
	for _, t := range c.lo {
		if matches(t) {
			t.Valid = false
		}
	}
}

// invalidateDescendantsOfPath invalidates every AddFile task (current,
// hi, lo) whose path is path or a descendant of it, used by the async
// remove-object path to stop a doomed subtree from spawning new
// additions.
func (c *Core) invalidateDescendantsOfPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	matches := func(t *Task) bool {
		return t.Kind == TaskAddFile && (t.Path == path || isSubpath(path, t.Path))
	}
	if c.currentTask != nil && matches(c.currentTask) {
		c.currentTask.Valid = false
	}
	for _, t := range c.hi {
		if matches(t) {
			t.Valid = false
		}
	}
	for _, t := range c.lo {
		if matches(t) {
			t.Valid = false
		}
	}
}

// GetTaskList returns the current task followed by every valid task
// from hi then lo, as copied snapshots.
func (c *Core) GetTaskList() []TaskSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []TaskSnapshot
	if c.currentTask != nil && c.currentTask.Valid {
		out = append(out, c.currentTask.snapshot())
	}
	for _, t := range c.hi {
		if t.Valid {
			out = append(out, t.snapshot())
		}
	}
	for _, t := range c.lo {
		if t.Valid {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// checkValid returns ErrTaskInvalid if task has been invalidated, and
// ErrShutdown if shutdown has been requested; tasks poll this at
// suspension-safe boundaries.
func (c *Core) checkValid(task *Task) error {
	c.mu.Lock()
	shuttingDown := c.shuttingDown
	valid := task.Valid
	c.mu.Unlock()
	if shuttingDown {
		return ErrShutdown
	}
	if !valid {
		return ErrTaskInvalid
	}
	return nil
}

type nopUpdateBus struct{}

func (nopUpdateBus) ContainerChanged(int64) error    { return nil }
func (nopUpdateBus) ContainersChanged([]int64) error { return nil }

type nopSessionManager struct{}

func (nopSessionManager) ContainerChangedUI(int64) error { return nil }
