package core

import "github.com/valter-silva-au/flow/pkg/models"

// TaskStore is the persistence surface core needs for tasks. Implementations
// upsert whole records and guarantee read-your-writes within a process.
// LoadTask returns (nil, nil) when the ID does not exist.
type TaskStore interface {
	LoadTasks() ([]models.Task, error)
	LoadTask(id string) (*models.Task, error)
	SaveTask(task models.Task) error
	DeleteTask(id string) error
}

// EpicStore is the persistence surface core needs for epics.
type EpicStore interface {
	LoadEpics() ([]models.Epic, error)
	LoadEpic(id string) (*models.Epic, error)
	SaveEpic(epic models.Epic) error
	DeleteEpic(id string) error
}

// BacklogStore is the persistence surface core needs for backlog items.
type BacklogStore interface {
	LoadBacklog() ([]models.BacklogItem, error)
	LoadBacklogItem(id string) (*models.BacklogItem, error)
	SaveBacklogItem(item models.BacklogItem) error
	DeleteBacklogItem(id string) error
}

// RunStore is the append-only run history.
type RunStore interface {
	AppendRun(run models.Run) error
	ListRuns(taskID string) ([]models.Run, error)
}

// Locker serializes read-modify-write cycles across processes sharing a store.
type Locker interface {
	WithLock(fn func() error) error
}

// ProcessChecker answers whether an OS process is still running.
type ProcessChecker interface {
	IsProcessAlive(pid int) bool
}

// Store bundles the entity stores and the lock. storage.FileStore satisfies it.
type Store interface {
	TaskStore
	EpicStore
	BacklogStore
	Locker
}
