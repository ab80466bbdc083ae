package cds

import "context"

// TaskKind identifies the variant of work a Task performs.
type TaskKind int

const (
	TaskAddFile TaskKind = iota
	TaskRemoveObject
	TaskRescanDirectory
	TaskFetchOnlineContent
)

func (k TaskKind) String() string {
	switch k {
	case TaskAddFile:
		return "add_file"
	case TaskRemoveObject:
		return "remove_object"
	case TaskRescanDirectory:
		return "rescan_directory"
	case TaskFetchOnlineContent:
		return "fetch_online_content"
	default:
		return "unknown"
	}
}

// Priority selects which of the two FIFO queues a task joins.
type Priority int

const (
	PriorityHi Priority = iota
	PriorityLo
)

// Task is one unit of scheduled work. Fields read or written from
// outside the worker goroutine (Valid, in particular) are only ever
// touched while the scheduler's mutex is held; Task itself has no lock
// of its own.
type Task struct {
	ID          int64
	ParentID    int64
	Kind        TaskKind
	Path        string
	Description string
	Cancellable bool
	Valid       bool

	run func(ctx context.Context, self *Task) error
}

// TaskSnapshot is the externally visible, copied view of a Task
// returned by GetTaskList; it never exposes the live struct.
type TaskSnapshot struct {
	ID          int64
	ParentID    int64
	Kind        TaskKind
	Path        string
	Description string
	Cancellable bool
}

func (t *Task) snapshot() TaskSnapshot {
	return TaskSnapshot{
		ID:          t.ID,
		ParentID:    t.ParentID,
		Kind:        t.Kind,
		Path:        t.Path,
		Description: t.Description,
		Cancellable: t.Cancellable,
	}
}
