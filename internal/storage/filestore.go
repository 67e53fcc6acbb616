// Package storage persists flow entities as YAML files and run history as
// JSONL or SQLite inside the data directory.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
	"gopkg.in/yaml.v3"
)

// File names inside the data directory.
const (
	TasksFile   = "tasks.yaml"
	EpicsFile   = "epics.yaml"
	BacklogFile = "backlog.yaml"
	LockFile    = ".lock"
)

const fileVersion = "1.0"

// tasksFile represents the top-level structure of tasks.yaml.
type tasksFile struct {
	Version string                 `yaml:"version"`
	Tasks   map[string]models.Task `yaml:"tasks"`
}

type epicsFile struct {
	Version string                 `yaml:"version"`
	Epics   map[string]models.Epic `yaml:"epics"`
}

type backlogFile struct {
	Version string                        `yaml:"version"`
	Items   map[string]models.BacklogItem `yaml:"items"`
}

// FileStore persists tasks, epics and backlog items as YAML files in one
// directory. Every read goes to disk and every write replaces the file
// atomically, so separate processes see each other's writes. Callers
// serialize read-modify-write cycles with WithLock.
type FileStore struct {
	dir  string
	lock *FileLock
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string, lockTimeout time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:  dir,
		lock: NewFileLock(filepath.Join(dir, LockFile), lockTimeout),
	}, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// WithLock runs fn while holding the store's advisory file lock.
func (s *FileStore) WithLock(fn func() error) error {
	return s.lock.WithLock(fn)
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// LoadTasks returns every stored task in ID order.
func (s *FileStore) LoadTasks() ([]models.Task, error) {
	f, err := s.readTasks()
	if err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(f.Tasks))
	for _, t := range f.Tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// LoadTask returns the task with id, or nil when it does not exist.
func (s *FileStore) LoadTask(id string) (*models.Task, error) {
	f, err := s.readTasks()
	if err != nil {
		return nil, err
	}
	t, ok := f.Tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// SaveTask inserts or replaces the task.
func (s *FileStore) SaveTask(task models.Task) error {
	if task.ID == "" {
		return fmt.Errorf("saving task: ID must not be empty")
	}
	f, err := s.readTasks()
	if err != nil {
		return err
	}
	f.Tasks[task.ID] = task
	return writeYAML(s.path(TasksFile), f)
}

// DeleteTask removes the task. Deleting a missing task is not an error.
func (s *FileStore) DeleteTask(id string) error {
	f, err := s.readTasks()
	if err != nil {
		return err
	}
	if _, ok := f.Tasks[id]; !ok {
		return nil
	}
	delete(f.Tasks, id)
	return writeYAML(s.path(TasksFile), f)
}

func (s *FileStore) readTasks() (*tasksFile, error) {
	f := &tasksFile{Version: fileVersion}
	if err := readYAML(s.path(TasksFile), f); err != nil {
		return nil, err
	}
	if f.Tasks == nil {
		f.Tasks = make(map[string]models.Task)
	}
	return f, nil
}

// LoadEpics returns every stored epic in ID order.
func (s *FileStore) LoadEpics() ([]models.Epic, error) {
	f, err := s.readEpics()
	if err != nil {
		return nil, err
	}
	epics := make([]models.Epic, 0, len(f.Epics))
	for _, e := range f.Epics {
		epics = append(epics, e)
	}
	sort.Slice(epics, func(i, j int) bool { return epics[i].ID < epics[j].ID })
	return epics, nil
}

func (s *FileStore) LoadEpic(id string) (*models.Epic, error) {
	f, err := s.readEpics()
	if err != nil {
		return nil, err
	}
	e, ok := f.Epics[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *FileStore) SaveEpic(epic models.Epic) error {
	if epic.ID == "" {
		return fmt.Errorf("saving epic: ID must not be empty")
	}
	f, err := s.readEpics()
	if err != nil {
		return err
	}
	f.Epics[epic.ID] = epic
	return writeYAML(s.path(EpicsFile), f)
}

func (s *FileStore) DeleteEpic(id string) error {
	f, err := s.readEpics()
	if err != nil {
		return err
	}
	if _, ok := f.Epics[id]; !ok {
		return nil
	}
	delete(f.Epics, id)
	return writeYAML(s.path(EpicsFile), f)
}

func (s *FileStore) readEpics() (*epicsFile, error) {
	f := &epicsFile{Version: fileVersion}
	if err := readYAML(s.path(EpicsFile), f); err != nil {
		return nil, err
	}
	if f.Epics == nil {
		f.Epics = make(map[string]models.Epic)
	}
	return f, nil
}

// LoadBacklog returns every backlog item in ID order.
func (s *FileStore) LoadBacklog() ([]models.BacklogItem, error) {
	f, err := s.readBacklog()
	if err != nil {
		return nil, err
	}
	items := make([]models.BacklogItem, 0, len(f.Items))
	for _, b := range f.Items {
		items = append(items, b)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *FileStore) LoadBacklogItem(id string) (*models.BacklogItem, error) {
	f, err := s.readBacklog()
	if err != nil {
		return nil, err
	}
	b, ok := f.Items[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *FileStore) SaveBacklogItem(item models.BacklogItem) error {
	if item.ID == "" {
		return fmt.Errorf("saving backlog item: ID must not be empty")
	}
	f, err := s.readBacklog()
	if err != nil {
		return err
	}
	f.Items[item.ID] = item
	return writeYAML(s.path(BacklogFile), f)
}

func (s *FileStore) DeleteBacklogItem(id string) error {
	f, err := s.readBacklog()
	if err != nil {
		return err
	}
	if _, ok := f.Items[id]; !ok {
		return nil
	}
	delete(f.Items, id)
	return writeYAML(s.path(BacklogFile), f)
}

func (s *FileStore) readBacklog() (*backlogFile, error) {
	f := &backlogFile{Version: fileVersion}
	if err := readYAML(s.path(BacklogFile), f); err != nil {
		return nil, err
	}
	if f.Items == nil {
		f.Items = make(map[string]models.BacklogItem)
	}
	return f, nil
}

// readYAML decodes path into out. A missing file leaves out unchanged.
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeYAML replaces path with the encoding of v via a temp file and rename,
// so readers never observe a partial write.
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
