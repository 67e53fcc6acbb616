package core

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
)

// memStore implements Store in memory for testing.
type memStore struct {
	mu      sync.Mutex
	tasks   map[string]models.Task
	epics   map[string]models.Epic
	backlog map[string]models.BacklogItem
	writes  int

	// failOn makes the named write method return the error.
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		tasks:   make(map[string]models.Task),
		epics:   make(map[string]models.Epic),
		backlog: make(map[string]models.BacklogItem),
	}
}

func (s *memStore) LoadTasks() ([]models.Task, error) {
	var out []models.Task
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) LoadTask(id string) (*models.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	c := t.Clone()
	return &c, nil
}

func (s *memStore) SaveTask(task models.Task) error {
	s.tasks[task.ID] = task.Clone()
	s.writes++
	return nil
}

func (s *memStore) DeleteTask(id string) error {
	if err := s.failOn["DeleteTask"]; err != nil {
		return err
	}
	delete(s.tasks, id)
	s.writes++
	return nil
}

func (s *memStore) LoadEpics() ([]models.Epic, error) {
	var out []models.Epic
	for _, e := range s.epics {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) LoadEpic(id string) (*models.Epic, error) {
	e, ok := s.epics[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memStore) SaveEpic(epic models.Epic) error {
	s.epics[epic.ID] = epic
	s.writes++
	return nil
}

func (s *memStore) DeleteEpic(id string) error {
	delete(s.epics, id)
	s.writes++
	return nil
}

func (s *memStore) LoadBacklog() ([]models.BacklogItem, error) {
	var out []models.BacklogItem
	for _, b := range s.backlog {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) LoadBacklogItem(id string) (*models.BacklogItem, error) {
	b, ok := s.backlog[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *memStore) SaveBacklogItem(item models.BacklogItem) error {
	if err := s.failOn["SaveBacklogItem"]; err != nil {
		return err
	}
	s.backlog[item.ID] = item
	s.writes++
	return nil
}

func (s *memStore) DeleteBacklogItem(id string) error {
	delete(s.backlog, id)
	s.writes++
	return nil
}

func (s *memStore) WithLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// put seeds a task directly, bypassing validation.
func (s *memStore) put(tasks ...models.Task) {
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
}

// memRunStore implements RunStore in memory.
type memRunStore struct {
	runs []models.Run
}

func (m *memRunStore) AppendRun(run models.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRunStore) ListRuns(taskID string) ([]models.Run, error) {
	var out []models.Run
	for _, r := range m.runs {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordedEvent struct {
	Type string
	Data map[string]any
}

// eventRecorder implements EventLogger and keeps every event.
type eventRecorder struct {
	events []recordedEvent
}

func (r *eventRecorder) LogEvent(eventType string, data map[string]any) error {
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (r *eventRecorder) ofType(eventType string) []recordedEvent {
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeProcs reports the PIDs in alive as running.
type fakeProcs struct {
	alive map[int]bool
}

func (f fakeProcs) IsProcessAlive(pid int) bool { return f.alive[pid] }

// fixture bundles a store and every service built on it.
type fixture struct {
	store   *memStore
	runs    *memRunStore
	events  *eventRecorder
	tasks   TaskManager
	deps    DependencyGraph
	epics   EpicManager
	backlog BacklogManager
	recs    RunRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	runs := &memRunStore{}
	events := &eventRecorder{}
	resolver := NewIDResolver(store)
	ids := NewIDGenerator(store, DefaultIDLength)
	defaults := TaskDefaults{Type: models.TaskTypeTask, Priority: 2, Complexity: models.ComplexitySimple}
	return &fixture{
		store:   store,
		runs:    runs,
		events:  events,
		tasks:   NewTaskManager(store, resolver, ids, events, defaults),
		deps:    NewDependencyGraph(store, resolver, events),
		epics:   NewEpicManager(store, resolver, ids, events),
		backlog: NewBacklogManager(store, resolver, ids, events, defaults),
		recs:    NewRunRecorder(runs, resolver, events),
	}
}

func (f *fixture) create(t *testing.T, title string) models.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(CreateTaskOpts{Title: title})
	if err != nil {
		t.Fatalf("CreateTask(%q) failed: %v", title, err)
	}
	return *task
}

func (f *fixture) reload(t *testing.T, id string) models.Task {
	t.Helper()
	task, err := f.store.LoadTask(id)
	if err != nil || task == nil {
		t.Fatalf("LoadTask(%s) = %v, %v", id, task, err)
	}
	return *task
}

// seedTask builds a task with fixed timestamps for pure-function tests.
func seedTask(id string, status models.TaskStatus, blockedBy ...string) models.Task {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.Task{
		ID:        id,
		Title:     "task " + id,
		Type:      models.TaskTypeTask,
		Priority:  2,
		Status:    status,
		BlockedBy: blockedBy,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func taskIDs(tasks []models.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func intPtr(v int) *int { return &v }
