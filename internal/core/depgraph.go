package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
)

// DependencyView describes a task's place in the dependency graph.
type DependencyView struct {
	Task       models.Task   `json:"task"`
	Blockers   []models.Task `json:"blockers,omitempty"`
	Missing    []string      `json:"missing,omitempty"` // blocker IDs with no stored task
	Dependents []models.Task `json:"dependents,omitempty"`
}

// DependencyGraph adds and removes blocked_by edges while keeping the task
// graph acyclic.
type DependencyGraph interface {
	AddDependency(blockedRef, blockerRef string) (*models.Task, error)
	RemoveDependency(blockedRef, blockerRef string) (*models.Task, error)
	Dependencies(ref string) (*DependencyView, error)
}

type dependencyGraph struct {
	store    Store
	resolver IDResolver
	events   EventLogger
}

// NewDependencyGraph creates a DependencyGraph over store. events may be nil.
func NewDependencyGraph(store Store, resolver IDResolver, events EventLogger) DependencyGraph {
	return &dependencyGraph{store: store, resolver: resolver, events: events}
}

// AddDependency makes the blocked task depend on the blocker. Adding an edge
// that already exists succeeds without writing. An edge that would close a
// cycle is rejected and nothing is written.
func (g *dependencyGraph) AddDependency(blockedRef, blockerRef string) (*models.Task, error) {
	var result *models.Task
	err := g.store.WithLock(func() error {
		blockedID, blockerID, err := g.resolvePair(blockedRef, blockerRef)
		if err != nil {
			return err
		}
		if blockedID == blockerID {
			return &CycleError{Blocked: blockedID, Blocker: blockerID}
		}

		tasks, err := g.store.LoadTasks()
		if err != nil {
			return err
		}
		index := indexTasks(tasks)
		blocked, ok := index[blockedID]
		if !ok {
			return &NotFoundError{Kind: models.KindTask, Input: blockedRef}
		}

		if blocked.HasBlocker(blockerID) {
			t := blocked.Clone()
			result = &t
			return nil
		}
		if path := dependencyPath(index, blockerID, blockedID); path != nil {
			return &CycleError{Blocked: blockedID, Blocker: blockerID, Path: path}
		}

		t := blocked.Clone()
		t.BlockedBy = append(t.BlockedBy, blockerID)
		t.UpdatedAt = time.Now().UTC()
		if err := g.store.SaveTask(t); err != nil {
			return err
		}
		logEvent(g.events, "dependency.added", map[string]any{"task_id": blockedID, "blocker_id": blockerID})
		result = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding dependency: %w", err)
	}
	return result, nil
}

// RemoveDependency deletes the edge. A missing edge is an error, not a no-op.
func (g *dependencyGraph) RemoveDependency(blockedRef, blockerRef string) (*models.Task, error) {
	var result *models.Task
	err := g.store.WithLock(func() error {
		blockedID, blockerID, err := g.resolvePair(blockedRef, blockerRef)
		if err != nil {
			return err
		}
		blocked, err := g.store.LoadTask(blockedID)
		if err != nil {
			return err
		}
		if blocked == nil {
			return &NotFoundError{Kind: models.KindTask, Input: blockedRef}
		}
		if !blocked.HasBlocker(blockerID) {
			return &NoSuchEdgeError{Blocked: blockedID, Blocker: blockerID}
		}

		t := blocked.Clone()
		t.BlockedBy = removeString(t.BlockedBy, blockerID)
		t.UpdatedAt = time.Now().UTC()
		if err := g.store.SaveTask(t); err != nil {
			return err
		}
		logEvent(g.events, "dependency.removed", map[string]any{"task_id": blockedID, "blocker_id": blockerID})
		result = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("removing dependency: %w", err)
	}
	return result, nil
}

// Dependencies returns the task's blockers and the tasks that list it as a
// blocker.
func (g *dependencyGraph) Dependencies(ref string) (*DependencyView, error) {
	id, err := g.resolver.Resolve(models.KindTask, ref)
	if err != nil {
		return nil, fmt.Errorf("listing dependencies: %w", err)
	}
	tasks, err := g.store.LoadTasks()
	if err != nil {
		return nil, fmt.Errorf("listing dependencies of %s: %w", id, err)
	}
	index := indexTasks(tasks)
	task, ok := index[id]
	if !ok {
		return nil, fmt.Errorf("listing dependencies: %w", &NotFoundError{Kind: models.KindTask, Input: ref})
	}

	view := &DependencyView{Task: task}
	for _, blockerID := range task.BlockedBy {
		if b, ok := index[blockerID]; ok {
			view.Blockers = append(view.Blockers, b)
		} else {
			view.Missing = append(view.Missing, blockerID)
		}
	}
	for _, t := range tasks {
		if t.HasBlocker(id) {
			view.Dependents = append(view.Dependents, t)
		}
	}
	sortTasks(view.Blockers)
	sortTasks(view.Dependents)
	return view, nil
}

func (g *dependencyGraph) resolvePair(blockedRef, blockerRef string) (string, string, error) {
	blockedID, err := g.resolver.Resolve(models.KindTask, blockedRef)
	if err != nil {
		return "", "", err
	}
	blockerID, err := g.resolver.Resolve(models.KindTask, blockerRef)
	if err != nil {
		return "", "", err
	}
	return blockedID, blockerID, nil
}

// WouldCycle reports whether making blockedID depend on blockerID would close
// a cycle in tasks.
func WouldCycle(tasks []models.Task, blockedID, blockerID string) bool {
	if blockedID == blockerID {
		return true
	}
	return dependencyPath(indexTasks(tasks), blockerID, blockedID) != nil
}

// dependencyPath searches breadth-first from "from" along blocked_by edges and
// returns the chain from "from" to "target", or nil when target is
// unreachable. Blockers with no stored task are dead ends.
func dependencyPath(index map[string]models.Task, from, target string) []string {
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		task, ok := index[current]
		if !ok {
			continue
		}
		for _, blockerID := range task.BlockedBy {
			if _, seen := parent[blockerID]; seen {
				continue
			}
			parent[blockerID] = current
			if blockerID == target {
				return unwindPath(parent, from, target)
			}
			queue = append(queue, blockerID)
		}
	}
	return nil
}

func unwindPath(parent map[string]string, from, target string) []string {
	path := []string{target}
	for node := target; node != from; {
		node = parent[node]
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FindCycles returns every cycle reachable in the blocked_by graph, each as a
// list of task IDs starting and ending with the same ID. The store should
// never contain one; doctor uses this to detect hand-edited data.
func FindCycles(tasks []models.Task) [][]string {
	index := indexTasks(tasks)
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(ids))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range index[id].BlockedBy {
			if _, ok := index[next]; !ok {
				continue
			}
			switch color[next] {
			case white:
				visit(next)
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, append(cycle, next))
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

func indexTasks(tasks []models.Task) map[string]models.Task {
	index := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		index[t.ID] = t
	}
	return index
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
